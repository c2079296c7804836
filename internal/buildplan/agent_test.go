package buildplan

import (
	"context"
	"testing"

	"idealcity/internal/model"
	"idealcity/internal/oracle"
	"idealcity/internal/tuning"
	"idealcity/internal/worldview"
)

func disabledAgent() *Agent {
	t := tuning.Default()
	t.AI.Disable = true
	return New(oracle.New(t, nil), nil)
}

func TestGenerate_FallbackFromStoryState(t *testing.T) {
	state := model.StoryState{
		Goals:        []string{"建一座灯塔"},
		LogicOutline: []string{"搭骨架", "接能源管线", "点亮塔顶"},
		Resources:    []string{"石料 - 矿业公会"},
		RiskRegister: []string{"风险: 能源不足 / 预留备用电路"},
		PlayerPose:   &model.PlayerPose{World: "world", X: 12.3, Y: 64, Z: -7.1},
	}
	sc := worldview.Scenario{ScenarioID: "lighthouse", DefaultModHooks: []string{"drift_city:beacon"}}

	plan := disabledAgent().Generate(context.Background(), state, sc)

	if plan.PlanID == "" || plan.Status != model.PlanPending {
		t.Fatalf("plan header: %+v", plan)
	}
	if plan.Summary != "建一座灯塔" {
		t.Fatalf("summary: %q", plan.Summary)
	}
	if len(plan.Steps) != 3 {
		t.Fatalf("steps: %+v", plan.Steps)
	}
	if len(plan.Steps[0].Dependencies) != 0 {
		t.Fatalf("first step deps: %v", plan.Steps[0].Dependencies)
	}
	if got := plan.Steps[2].Dependencies; len(got) != 1 || got[0] != "step_2" {
		t.Fatalf("chained deps: %v", got)
	}
	if plan.OriginScenario != "lighthouse" || plan.PlayerPose == nil {
		t.Fatalf("origin/pose: %+v", plan)
	}
	if len(plan.ModHooks) != 1 || plan.ModHooks[0] != "drift_city:beacon" {
		t.Fatalf("mod hooks: %v", plan.ModHooks)
	}
}

func TestGenerate_EmptyOutlineGetsSitingStep(t *testing.T) {
	plan := disabledAgent().Generate(context.Background(), model.StoryState{}, worldview.Scenario{})
	if len(plan.Steps) != 1 || plan.Steps[0].Title != "确认选址并放样" {
		t.Fatalf("steps: %+v", plan.Steps)
	}
}

func TestAugmentModHooks_AppendOnly(t *testing.T) {
	plan := &model.BuildPlan{ModHooks: []string{"drift_city:beacon", "drift_city:plaza"}}
	augmentModHooks(plan, worldview.Scenario{DefaultModHooks: []string{"drift_city:plaza", "drift_city:market"}})
	want := []string{"drift_city:beacon", "drift_city:plaza", "drift_city:market"}
	if len(plan.ModHooks) != len(want) {
		t.Fatalf("hooks: %v", plan.ModHooks)
	}
	for i, h := range want {
		if plan.ModHooks[i] != h {
			t.Fatalf("hooks: %v", plan.ModHooks)
		}
	}
}
