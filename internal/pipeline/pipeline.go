// Package pipeline is the facade: one Submit call runs normalisation,
// story merge, adjudication, planning, execution and persistence in
// order, and every external dependency degrades to a deterministic path.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"idealcity/internal/adjudicate"
	"idealcity/internal/builder"
	"idealcity/internal/buildplan"
	"idealcity/internal/cityphone"
	"idealcity/internal/exhibit"
	"idealcity/internal/model"
	"idealcity/internal/mods"
	"idealcity/internal/normalize"
	"idealcity/internal/oracle"
	"idealcity/internal/patch"
	"idealcity/internal/persistence/repo"
	"idealcity/internal/planner"
	"idealcity/internal/protocolfs"
	"idealcity/internal/story"
	"idealcity/internal/tuning"
	"idealcity/internal/worldview"
)

// Deps wires the facade. Runner may be nil (dry-run only); everything
// else is required.
type Deps struct {
	Config     tuning.Tuning
	Log        *log.Logger
	Oracle     *oracle.Oracle
	Scenarios  *worldview.ScenarioStore
	Worldview  worldview.Worldview
	Normaliser *normalize.Normaliser
	Story      *story.Manager
	Plans      *buildplan.Agent
	Planner    *planner.Chain
	PatchExec  *patch.Executor
	Scheduler  *builder.Scheduler
	Registry   *mods.Registry
	Store      *repo.Store
	Intents    *protocolfs.IntentWriter
	Technology *protocolfs.TechnologyReader
	Social     *protocolfs.SocialFeed
	Exhibits   *exhibit.Store
	Narratives *exhibit.NarrativeStore
	Renderer   *cityphone.Renderer
	Runner     patch.CommandRunner

	// Scenario used when a submission names none.
	DefaultScenario string
}

type Pipeline struct {
	deps Deps
	// one submission at a time; per-player fairness is not a goal yet
	mu sync.Mutex
}

func New(deps Deps) *Pipeline {
	return &Pipeline{deps: deps}
}

// SubmitResult is the full per-submission bundle returned to transports.
type SubmitResult struct {
	Spec         model.DeviceSpec         `json:"spec"`
	Ruling       model.AdjudicationRecord `json:"ruling"`
	Notice       model.ExecutionNotice    `json:"notice"`
	Guidance     []string                 `json:"guidance"`
	BuildPlan    *model.BuildPlan         `json:"build_plan,omitempty"`
	CreationPlan *model.CreationPlan      `json:"creation_plan,omitempty"`
	Execution    *patch.Result            `json:"execution,omitempty"`
	Narration    string                   `json:"narration,omitempty"`
	Scenario     worldview.Scenario       `json:"scenario"`
	StoryState   model.StoryState         `json:"story_state"`

	// Set only for system intents; all other fields are zero then.
	SystemResponse string `json:"system_response,omitempty"`
}

// Submit runs the whole adjudication and build flow for one submission.
func (p *Pipeline) Submit(ctx context.Context, sub model.DeviceSpecSubmission) (*SubmitResult, error) {
	if strings.TrimSpace(sub.PlayerID) == "" {
		return nil, model.NewValidationError("player_id required")
	}
	if strings.TrimSpace(sub.Narrative) == "" {
		return nil, model.NewValidationError("narrative empty")
	}

	if sys := RecognizeSystemIntent(sub.Narrative); sys == SystemRefreshMods {
		if err := p.deps.Registry.Refresh(); err != nil {
			return nil, fmt.Errorf("%w: refresh mods: %v", model.ErrStorage, err)
		}
		return &SubmitResult{
			SystemResponse: fmt.Sprintf("模组缓存已刷新，共 %d 个", len(p.deps.Registry.List())),
		}, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if sub.ScenarioID == "" {
		sub.ScenarioID = p.deps.DefaultScenario
	}
	sc, err := p.deps.Scenarios.Get(sub.ScenarioID)
	if err != nil {
		return nil, model.NewValidationError("unknown scenario " + sub.ScenarioID)
	}

	spec := p.deps.Normaliser.Normalise(ctx, sub, sc)
	state, err := p.deps.Story.Merge(ctx, sub, spec)
	if err != nil {
		return nil, fmt.Errorf("%w: story merge: %v", model.ErrStorage, err)
	}

	device := freezeSpec(sub, spec)
	ruling := adjudicate.New(p.deps.Worldview).Adjudicate(device.SpecID, spec, sc, sub.Hints())
	guidance := model.AppendUnique(
		adjudicate.NewGuide(p.deps.Worldview).Guidance(ruling.Record, state),
		state.Blocking...)

	var buildPlan *model.BuildPlan
	if state.ReadyForBuild {
		buildPlan = p.deps.Plans.Generate(ctx, state, sc)
		p.annotateModHooks(buildPlan)
		if err := p.deps.Scheduler.Enqueue(buildPlan); err != nil {
			return nil, fmt.Errorf("%w: enqueue: %v", model.ErrStorage, err)
		}
		if _, err := p.deps.Story.SyncPlanStatus(sub.PlayerID, sub.ScenarioID, buildPlan.PlanID, string(model.PlanQueued)); err != nil {
			return nil, fmt.Errorf("%w: plan status: %v", model.ErrStorage, err)
		}
	}

	creation, execResult, err := p.runCreationPlan(ctx, sub, sc)
	if err != nil {
		return nil, err
	}

	narration := p.narrate(ctx, sub, spec, ruling.Record.Verdict)

	if ruling.Record.Verdict == model.VerdictAccept && state.ReadyForBuild {
		if err := p.publishIntent(sub.PlayerID, sc, state, ruling.ContextNotes); err != nil {
			return nil, err
		}
	}

	notice := p.buildNotice(device, ruling, buildPlan, guidance, narration)

	if err := p.persist(device, ruling.Record, notice, buildPlan); err != nil {
		return nil, err
	}

	p.recordSocial(ruling.Record, state, sc)

	return &SubmitResult{
		Spec:         device,
		Ruling:       ruling.Record,
		Notice:       notice,
		Guidance:     guidance,
		BuildPlan:    buildPlan,
		CreationPlan: creation,
		Execution:    execResult,
		Narration:    narration,
		Scenario:     sc,
		StoryState:   state,
	}, nil
}

func freezeSpec(sub model.DeviceSpecSubmission, spec model.NormalizedSpec) model.DeviceSpec {
	return model.DeviceSpec{
		SpecID:           model.NewID("spec"),
		AuthorRef:        sub.PlayerID,
		ScenarioID:       sub.ScenarioID,
		IntentSummary:    spec.IntentSummary,
		IsDraft:          spec.IsDraft,
		WorldConstraints: model.CloneList(spec.WorldConstraints),
		LogicOutline:     model.CloneList(spec.LogicOutline),
		ResourceLedger:   model.CloneList(spec.ResourceLedger),
		SuccessCriteria:  model.CloneList(spec.SuccessCriteria),
		RiskRegister:     model.CloneList(spec.RiskRegister),
		SubmittedAt:      time.Now().UTC(),
		RawNarrative:     sub.Narrative,
	}
}

// annotateModHooks records uninstalled hooks as risk notes so the build
// executor's blocked archive is no surprise to the player.
func (p *Pipeline) annotateModHooks(plan *model.BuildPlan) {
	for _, hook := range plan.ModHooks {
		modID, _, ok := strings.Cut(hook, ":")
		if !ok {
			continue
		}
		if _, found := p.deps.Registry.Get(modID); !found {
			plan.RiskNotes = model.AppendUnique(plan.RiskNotes, "模组挂钩未安装: "+hook)
		}
	}
}

// runCreationPlan tries the planner chain on the raw narrative and runs
// the resulting plan through dry-run or auto-execute.
func (p *Pipeline) runCreationPlan(ctx context.Context, sub model.DeviceSpecSubmission, sc worldview.Scenario) (*model.CreationPlan, *patch.Result, error) {
	res, ok := p.deps.Planner.Plan(Decide(sub.Narrative), sub.Narrative)
	if !ok {
		return nil, nil, nil
	}
	plan := res.Plan
	exec := p.deps.PatchExec.WithAIFallback(!p.deps.Oracle.Enabled())
	patchID := patch.DerivePatchID(plan.Summary)

	var (
		result patch.Result
		err    error
	)
	if p.deps.Config.AutoExecute && p.deps.Runner != nil {
		result, err = exec.Execute(ctx, plan, patchID, p.deps.Runner)
	} else {
		result, err = exec.DryRun(plan, patchID)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%w: transaction log: %v", model.ErrStorage, err)
	}

	p.captureExhibits(sub, sc, plan, result)
	return plan, &result, nil
}

func (p *Pipeline) captureExhibits(sub model.DeviceSpecSubmission, sc worldview.Scenario, plan *model.CreationPlan, result patch.Result) {
	byID := make(map[string]model.PatchTemplate, len(plan.Templates))
	for _, t := range plan.Templates {
		byID[t.TemplateID] = t
	}
	var levelID string
	if sub.Pose != nil {
		levelID = sub.Pose.World
	}
	for _, ex := range result.Executed {
		t, found := byID[ex.TemplateID]
		if !found {
			continue
		}
		if _, _, err := p.deps.Exhibits.Capture(sc.ScenarioID, plan.PlanID, sub.PlayerID, levelID, t.WorldPatch); err != nil {
			if p.deps.Log != nil {
				p.deps.Log.Printf("exhibit capture failed: %v", err)
			}
		}
	}
}

// recordSocial folds each ruling into the city mood: acceptance builds
// trust, rejection and mandatory review raise stress. Feed failures never
// fail the submission.
func (p *Pipeline) recordSocial(ruling model.AdjudicationRecord, state model.StoryState, sc worldview.Scenario) {
	ev := model.SocialFeedEvent{
		Tags: []string{sc.ScenarioID, string(ruling.Verdict)},
	}
	switch ruling.Verdict {
	case model.VerdictAccept:
		ev.Category = model.SocialPraise
		ev.Title = "提案获准"
		ev.Body = "裁定通过，市民情绪升温。"
		ev.TrustDelta = 0.02
		if state.ReadyForBuild {
			ev.Body = "裁定通过，施工在即。"
			ev.TrustDelta = 0.03
		}
	case model.VerdictPartial:
		ev.Category = model.SocialConcern
		ev.Title = "提案部分获准"
		ev.Body = "裁定附带条件，观望情绪增多。"
		ev.TrustDelta = 0.01
		ev.StressDelta = 0.01
	case model.VerdictReviewRequired:
		ev.Category = model.SocialControversy
		ev.Title = "提案转入复核"
		ev.Body = "裁定悬而未决，议论纷起。"
		ev.StressDelta = 0.01
	default:
		ev.Category = model.SocialConcern
		ev.Title = "提案被驳回"
		ev.Body = "裁定未通过，质疑声上升。"
		ev.StressDelta = 0.02
	}
	if state.BuildCapability >= p.deps.Config.StageTwoCapability {
		ev.Stage = 2
	} else {
		ev.Stage = 1
	}
	if err := p.deps.Social.Append(ev); err != nil && p.deps.Log != nil {
		p.deps.Log.Printf("social feed append failed: %v", err)
	}
}

func (p *Pipeline) publishIntent(playerID string, sc worldview.Scenario, state model.StoryState, notes []string) error {
	stage := 1
	if state.BuildCapability >= p.deps.Config.StageTwoCapability {
		stage = 2
	}
	confidence := float64(state.BuildCapability) / 200
	intent := protocolfs.NewIntent(sc.ScenarioID, sc.Version, stage, confidence,
		sc.ContextualConstraints, notes, p.deps.Config.IntentTTL())
	if err := p.deps.Intents.Write(model.IntentEnvelope{PlayerID: playerID, Intent: intent}); err != nil {
		return fmt.Errorf("%w: intent publish: %v", model.ErrStorage, err)
	}
	return nil
}

// buildNotice assembles the presentation-safe bundle. The body is always
// populated, rejections included.
func (p *Pipeline) buildNotice(device model.DeviceSpec, ruling adjudicate.Ruling, plan *model.BuildPlan, guidance []string, narration string) model.ExecutionNotice {
	body := model.AppendUnique(nil, ruling.ContextNotes...)
	body = model.AppendUnique(body, ruling.Record.Reasoning...)
	body = model.AppendUnique(body, ruling.Record.Conditions...)
	if len(body) == 0 {
		body = []string{"裁定已登记。"}
	}
	notice := model.ExecutionNotice{
		NoticeID:   model.NewID("notice"),
		SpecID:     device.SpecID,
		RulingID:   ruling.Record.RulingID,
		Verdict:    ruling.Record.Verdict,
		Body:       body,
		Guidance:   guidance,
		Broadcast:  narration,
		PlayerID:   device.AuthorRef,
		ScenarioID: device.ScenarioID,
		CreatedAt:  time.Now().UTC(),
	}
	if plan != nil {
		notice.PlanID = plan.PlanID
	}
	return notice
}

func (p *Pipeline) persist(device model.DeviceSpec, ruling model.AdjudicationRecord, notice model.ExecutionNotice, plan *model.BuildPlan) error {
	if err := p.deps.Store.AppendSpec(device); err != nil {
		return err
	}
	if err := p.deps.Store.AppendRuling(ruling); err != nil {
		return err
	}
	if err := p.deps.Store.AppendNotice(notice); err != nil {
		return err
	}
	if plan != nil {
		if err := p.deps.Store.AppendPlan(*plan); err != nil {
			return err
		}
	}
	return nil
}
