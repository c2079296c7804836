// Package planner turns an adjudicated decision plus the player's message
// into a creation plan. Planners are tried in order; the first one that
// produces a plan wins.
package planner

import (
	"fmt"
	"time"

	"idealcity/internal/model"
	"idealcity/internal/patch"
)

// Decision carries the recognised intent and extracted slots for planning.
type Decision struct {
	Intent     string            `json:"intent"`
	Confidence float64           `json:"confidence"`
	Slots      map[string]string `json:"slots,omitempty"`
	Materials  []string          `json:"materials,omitempty"`
}

// Result pairs the plan with the planner that produced it.
type Result struct {
	Plan    *model.CreationPlan `json:"plan"`
	Planner string              `json:"planner"`
}

type Planner interface {
	Name() string
	// Plan returns nil when this planner cannot handle the decision.
	Plan(decision Decision, message string) *model.CreationPlan
}

// Chain tries each planner in order. Deterministic planning wins on any
// message with explicit coordinates because it is registered first.
type Chain struct {
	planners []Planner
}

func NewChain(planners ...Planner) *Chain {
	return &Chain{planners: planners}
}

func (c *Chain) Plan(decision Decision, message string) (Result, bool) {
	for _, p := range c.planners {
		if plan := p.Plan(decision, message); plan != nil {
			patch.ValidatePlan(plan)
			return Result{Plan: plan, Planner: p.Name()}, true
		}
	}
	return Result{}, false
}

// planConfidence combines intent confidence with the resolved-material
// ratio: 0.6 * max(intent, 0.3) + 0.4 * resolved.
func planConfidence(intentConfidence, resolvedRatio float64) float64 {
	if intentConfidence < 0.3 {
		intentConfidence = 0.3
	}
	return 0.6*intentConfidence + 0.4*resolvedRatio
}

func newTemplate(idx int, title string, stepType model.StepType, status model.TemplateStatus, commands []string, meta map[string]string) model.PatchTemplate {
	return model.PatchTemplate{
		TemplateID: fmt.Sprintf("tpl_%d", idx+1),
		StepID:     fmt.Sprintf("step_%d", idx+1),
		Title:      title,
		StepType:   stepType,
		Status:     status,
		WorldPatch: model.WorldPatch{
			MC:       map[string]any{"commands": commands},
			Metadata: meta,
		},
	}
}

func newPlan(summary string, confidence float64, templates []model.PatchTemplate, meta map[string]string) *model.CreationPlan {
	return &model.CreationPlan{
		PlanID:     model.NewID("cplan"),
		Summary:    summary,
		Confidence: confidence,
		Templates:  templates,
		Metadata:   meta,
		CreatedAt:  time.Now().UTC(),
	}
}
