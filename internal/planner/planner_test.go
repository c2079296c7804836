package planner

import (
	"os"
	"path/filepath"
	"testing"

	"idealcity/internal/catalog"
	"idealcity/internal/model"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	dir := t.TempDir()
	seed := filepath.Join(dir, "seed.json")
	body := `[
	  {"resource_id":"minecraft:amethyst_block","label":"紫水晶块","aliases":["amethyst","紫水晶"],
	   "commands":["setblock 0 64 0 minecraft:amethyst_block","fill 0 64 0 2 66 2 minecraft:amethyst_block","clone 0 64 0 2 66 2 5 64 5","summon item_display 0 67 0"]},
	  {"resource_id":"drift_city:beacon_core","label":"灯塔核心","commands":["function drift_city:beacon_init"]}
	]`
	if err := os.WriteFile(seed, []byte(body), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	c, err := catalog.Load(seed, "")
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return c
}

func TestDeterministic_ExplicitCoordinates(t *testing.T) {
	var p Deterministic
	plan := p.Plan(Decision{Confidence: 0.4}, "在 坐标 10 64 -5 放置 minecraft:amethyst_block")
	if plan == nil {
		t.Fatalf("expected plan")
	}
	if len(plan.Templates) != 1 {
		t.Fatalf("templates: %d", len(plan.Templates))
	}
	cmds := plan.Templates[0].WorldPatch.Commands()
	if len(cmds) != 1 || cmds[0] != "setblock 10 64 -5 minecraft:amethyst_block" {
		t.Fatalf("commands: %v", cmds)
	}
	if plan.Confidence < 0.75 {
		t.Fatalf("confidence=%.2f want >= 0.75", plan.Confidence)
	}
}

func TestDeterministic_ComponentCoordinates(t *testing.T) {
	var p Deterministic
	plan := p.Plan(Decision{Slots: map[string]string{"block_id": "minecraft:glass"}},
		"请放在 x=3, y=70, z=-12 的位置")
	if plan == nil {
		t.Fatalf("expected plan")
	}
	cmds := plan.Templates[0].WorldPatch.Commands()
	if cmds[0] != "setblock 3 70 -12 minecraft:glass" {
		t.Fatalf("commands: %v", cmds)
	}
}

func TestDeterministic_DeclinesWithoutCoordinates(t *testing.T) {
	var p Deterministic
	if plan := p.Plan(Decision{}, "放置 minecraft:glass 在广场"); plan != nil {
		t.Fatalf("unexpected plan: %+v", plan)
	}
	if plan := p.Plan(Decision{}, "坐标 1 2 3"); plan != nil {
		t.Fatalf("plan without block id: %+v", plan)
	}
}

func TestCatalogPlanner_ResolvedAndUnresolved(t *testing.T) {
	p := NewCatalog(testCatalog(t))
	plan := p.Plan(Decision{Confidence: 0.5, Materials: []string{"紫水晶", "神秘合金"}}, "")
	if plan == nil {
		t.Fatalf("expected plan")
	}
	if len(plan.Templates) != 2 {
		t.Fatalf("templates: %d", len(plan.Templates))
	}

	resolved := plan.Templates[0]
	if resolved.WorldPatch.Metadata["resource_id"] != "minecraft:amethyst_block" {
		t.Fatalf("resolved: %+v", resolved.WorldPatch.Metadata)
	}
	if got := len(resolved.WorldPatch.Commands()); got != maxCommandsPerStep {
		t.Fatalf("commands clipped to %d, got %d", maxCommandsPerStep, got)
	}

	review := plan.Templates[1]
	if review.Status != model.TemplateNeedsReview || review.StepType != model.StepManualReview {
		t.Fatalf("unresolved template: %+v", review)
	}

	// 0.6*0.5 + 0.4*0.5 = 0.5
	if plan.Confidence != 0.5 {
		t.Fatalf("confidence=%.2f want 0.50", plan.Confidence)
	}
}

func TestCatalogPlanner_ModFunctionStepType(t *testing.T) {
	p := NewCatalog(testCatalog(t))
	plan := p.Plan(Decision{Confidence: 1, Materials: []string{"灯塔核心"}}, "")
	if plan == nil {
		t.Fatalf("expected plan")
	}
	if plan.Templates[0].StepType != model.StepModFunction {
		t.Fatalf("step type: %s", plan.Templates[0].StepType)
	}
}

func TestChain_DeterministicWinsOnCoordinates(t *testing.T) {
	chain := NewChain(Deterministic{}, NewCatalog(testCatalog(t)))

	res, ok := chain.Plan(Decision{Confidence: 0.9, Materials: []string{"紫水晶"}},
		"在 坐标 10 64 -5 放置 minecraft:amethyst_block")
	if !ok || res.Planner != "deterministic" {
		t.Fatalf("result: %+v ok=%v", res, ok)
	}
	if res.Plan.ExecutionTier != model.TierSafeAuto {
		t.Fatalf("tier=%s want safe_auto", res.Plan.ExecutionTier)
	}

	res, ok = chain.Plan(Decision{Confidence: 0.9, Materials: []string{"紫水晶"}}, "帮我装点广场")
	if !ok || res.Planner != "catalog" {
		t.Fatalf("fallback result: %+v ok=%v", res, ok)
	}
}

func TestChain_NoPlan(t *testing.T) {
	chain := NewChain(Deterministic{}, NewCatalog(testCatalog(t)))
	if _, ok := chain.Plan(Decision{}, "随便聊聊"); ok {
		t.Fatalf("expected no plan")
	}
}
