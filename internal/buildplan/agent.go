// Package buildplan turns a ready story state into an ordered build plan.
package buildplan

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"idealcity/internal/model"
	"idealcity/internal/oracle"
	"idealcity/internal/worldview"
)

const agentSystemPrompt = `你是理想之城的施工规划师。根据故事档案输出且仅输出一个 JSON 对象，
键为 summary (string), steps (数组，元素含 title, description, dependencies), resource_ledger,
risk_notes, mod_hooks（string 数组）。步骤保持可执行的先后顺序，不要发明档案之外的资源。`

// maxFallbackSteps keeps the deterministic plan small enough to review.
const maxFallbackSteps = 6

type Agent struct {
	oracle *oracle.Oracle
	log    *log.Logger
}

func New(o *oracle.Oracle, logger *log.Logger) *Agent {
	return &Agent{oracle: o, log: logger}
}

// Generate builds a plan from the story state. The LLM draft is used when
// parseable; the deterministic projection of the story state is the
// fallback and the baseline for mod hooks either way.
func (a *Agent) Generate(ctx context.Context, state model.StoryState, sc worldview.Scenario) *model.BuildPlan {
	plan, ok := a.llmPlan(ctx, state, sc)
	if !ok {
		plan = fallbackPlan(state)
	}
	plan.PlanID = model.NewID("bplan")
	plan.Status = model.PlanPending
	plan.OriginScenario = sc.ScenarioID
	plan.CreatedAt = time.Now().UTC()
	if state.PlayerPose != nil {
		pose := *state.PlayerPose
		plan.PlayerPose = &pose
	}
	augmentModHooks(plan, sc)
	return plan
}

func (a *Agent) llmPlan(ctx context.Context, state model.StoryState, sc worldview.Scenario) (*model.BuildPlan, bool) {
	if !a.oracle.Enabled() {
		return nil, false
	}
	payload, err := json.Marshal(map[string]any{
		"state":    state,
		"scenario": map[string]any{"summary": sc.Summary, "mod_hooks": sc.DefaultModHooks},
	})
	if err != nil {
		return nil, false
	}
	reply, err := a.oracle.Complete(ctx, agentSystemPrompt, string(payload))
	if err != nil {
		return nil, false
	}
	raw, ok := oracle.ExtractJSON(reply)
	if !ok {
		return nil, false
	}
	var plan model.BuildPlan
	if err := json.Unmarshal([]byte(raw), &plan); err != nil {
		if a.log != nil {
			a.log.Printf("buildplan: bad plan JSON: %v", err)
		}
		return nil, false
	}
	if len(plan.Steps) == 0 {
		return nil, false
	}
	for i := range plan.Steps {
		if plan.Steps[i].StepID == "" {
			plan.Steps[i].StepID = fmt.Sprintf("step_%d", i+1)
		}
	}
	return &plan, true
}

// fallbackPlan projects the story state directly: one step per outline
// entry, chained sequentially.
func fallbackPlan(state model.StoryState) *model.BuildPlan {
	plan := &model.BuildPlan{
		Summary:        firstOr(state.Goals, "未命名装置"),
		ResourceLedger: model.CloneList(state.Resources),
		RiskNotes:      model.CloneList(state.RiskRegister),
	}
	outline := state.LogicOutline
	if len(outline) > maxFallbackSteps {
		outline = outline[:maxFallbackSteps]
	}
	if len(outline) == 0 {
		outline = []string{"确认选址并放样"}
	}
	for i, title := range outline {
		step := model.BuildStep{
			StepID: fmt.Sprintf("step_%d", i+1),
			Title:  title,
		}
		if i > 0 {
			step.Dependencies = []string{fmt.Sprintf("step_%d", i)}
		}
		plan.Steps = append(plan.Steps, step)
	}
	return plan
}

// augmentModHooks appends the scenario's default hooks without removing
// or reordering hooks already on the plan.
func augmentModHooks(plan *model.BuildPlan, sc worldview.Scenario) {
	plan.ModHooks = model.AppendUnique(plan.ModHooks, sc.DefaultModHooks...)
}

func firstOr(list []string, fallback string) string {
	if len(list) > 0 {
		return list[0]
	}
	return fallback
}
