package pipeline

import (
	"context"
	"regexp"
	"strings"

	"idealcity/internal/builder"
	"idealcity/internal/cityphone"
	"idealcity/internal/model"
	"idealcity/internal/protocolfs"
)

// CityphoneState renders the curatorial payload for one player and
// scenario. Every input is best-effort: a missing narrative or a stale
// technology file degrades the view, never fails it.
func (p *Pipeline) CityphoneState(playerID, scenarioID string) (cityphone.State, error) {
	if scenarioID == "" {
		scenarioID = p.deps.DefaultScenario
	}
	narrative, err := p.deps.Narratives.Load(scenarioID)
	if err != nil && p.deps.Log != nil {
		p.deps.Log.Printf("cityphone narrative: %v", err)
	}
	instances, err := p.deps.Exhibits.Instances(scenarioID)
	if err != nil && p.deps.Log != nil {
		p.deps.Log.Printf("cityphone exhibits: %v", err)
	}

	state, err := p.deps.Story.Load(playerID, scenarioID)
	if err != nil {
		return cityphone.State{}, err
	}
	var execRec *builder.ExecutionRecord
	if state.LastPlanID != "" {
		if rec, err := p.deps.Scheduler.Executed(state.LastPlanID); err == nil {
			execRec = &rec
		}
	}

	tech, err := p.deps.Technology.Read()
	if err != nil && p.deps.Log != nil {
		p.deps.Log.Printf("cityphone technology: %v", err)
	}
	metrics, err := p.deps.Social.Metrics()
	if err != nil && p.deps.Log != nil {
		p.deps.Log.Printf("cityphone social: %v", err)
	}

	return p.deps.Renderer.Render(cityphone.RenderInput{
		Narrative:  narrative,
		Instances:  instances,
		Execution:  execRec,
		Technology: tech,
		Atmosphere: protocolfs.Atmosphere(metrics),
		Ready:      state.ReadyForBuild,
	}), nil
}

// Action is the CityPhone action envelope.
type Action struct {
	Action     string            `json:"action"`
	PlayerID   string            `json:"player_id"`
	ScenarioID string            `json:"scenario_id,omitempty"`
	Narrative  string            `json:"narrative,omitempty"`
	Pose       *model.PlayerPose `json:"pose,omitempty"`
	TemplateID string            `json:"template_id,omitempty"`
}

// ActionResult carries whichever payload the action produced.
type ActionResult struct {
	Status     string           `json:"status"`
	State      *cityphone.State `json:"state,omitempty"`
	Submission *SubmitResult    `json:"submission,omitempty"`
}

// HandleCityphoneAction dispatches the four supported actions.
// apply_template is retained for client compatibility but archived.
func (p *Pipeline) HandleCityphoneAction(ctx context.Context, action Action) (*ActionResult, error) {
	if strings.TrimSpace(action.PlayerID) == "" {
		return nil, model.NewValidationError("player_id required")
	}
	switch action.Action {
	case "request_state":
		state, err := p.CityphoneState(action.PlayerID, action.ScenarioID)
		if err != nil {
			return nil, err
		}
		return &ActionResult{Status: "ok", State: &state}, nil

	case "submit_narrative":
		res, err := p.Submit(ctx, model.DeviceSpecSubmission{
			PlayerID:   action.PlayerID,
			ScenarioID: action.ScenarioID,
			Narrative:  action.Narrative,
			Pose:       action.Pose,
		})
		if err != nil {
			return nil, err
		}
		return &ActionResult{Status: "ok", Submission: res}, nil

	case "push_pose":
		if action.Pose == nil {
			return nil, model.NewValidationError("pose required")
		}
		scenario := action.ScenarioID
		if scenario == "" {
			scenario = p.deps.DefaultScenario
		}
		if _, err := p.deps.Story.UpdatePose(action.PlayerID, scenario, *action.Pose); err != nil {
			return nil, err
		}
		return &ActionResult{Status: "pose_recorded"}, nil

	case "apply_template":
		return &ActionResult{Status: "archived"}, nil
	}
	return nil, model.NewValidationError("unknown action " + action.Action)
}

// chatPattern lifts a proposal out of ordinary chat.
var chatPattern = regexp.MustCompile(`^\s*(?:提案|proposal)[:：]\s*(.+)$`)

// IngestChat bridges a chat line into a submission. Returns false when
// the line is not a proposal.
func (p *Pipeline) IngestChat(ctx context.Context, playerID, scenarioID, message string) (*SubmitResult, bool, error) {
	m := chatPattern.FindStringSubmatch(message)
	if m == nil {
		return nil, false, nil
	}
	res, err := p.Submit(ctx, model.DeviceSpecSubmission{
		PlayerID:   playerID,
		ScenarioID: scenarioID,
		Narrative:  strings.TrimSpace(m[1]),
	})
	if err != nil {
		return nil, true, err
	}
	return res, true, nil
}
