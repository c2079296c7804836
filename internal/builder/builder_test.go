package builder

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"idealcity/internal/model"
	"idealcity/internal/mods"
)

type captureRunner struct {
	batches [][]string
	fail    bool
}

func (r *captureRunner) RunCommands(_ context.Context, commands []string) ([]string, error) {
	if r.fail {
		return nil, errors.New("rcon down")
	}
	r.batches = append(r.batches, commands)
	return make([]string, len(commands)), nil
}

func testRegistry(t *testing.T) *mods.Registry {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "drift_city")
	if err := os.MkdirAll(filepath.Join(dir, "data", "drift_city_beacon", "functions"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	manifest := `{"id":"drift_city","namespace":"drift_city","entry_points":[
	  {"identifier":"teleport","commands":["tp @p {x} {y} {z}"]},
	  {"identifier":"beacon"}
	]}`
	if err := os.WriteFile(filepath.Join(dir, "manifest.json"), []byte(manifest), 0o644); err != nil {
		t.Fatalf("manifest: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "data", "drift_city_beacon", "functions", "init.mcfunction"), []byte("# init\n"), 0o644); err != nil {
		t.Fatalf("function: %v", err)
	}
	reg := mods.NewRegistry(root)
	if err := reg.Refresh(); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	return reg
}

func testScheduler(t *testing.T) *Scheduler {
	t.Helper()
	s, err := NewScheduler(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("scheduler: %v", err)
	}
	return s
}

func TestScheduler_FIFOPop(t *testing.T) {
	s := testScheduler(t)
	for _, id := range []string{"bplan_a", "bplan_b"} {
		if err := s.Enqueue(&model.BuildPlan{PlanID: id}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	first, ok, err := s.PopNext()
	if err != nil || !ok || first.PlanID != "bplan_a" {
		t.Fatalf("first pop: %+v ok=%v err=%v", first, ok, err)
	}
	if first.Status != model.PlanRunning {
		t.Fatalf("status=%s", first.Status)
	}
	second, ok, _ := s.PopNext()
	if !ok || second.PlanID != "bplan_b" {
		t.Fatalf("second pop: %+v", second)
	}
	if _, ok, _ := s.PopNext(); ok {
		t.Fatalf("queue should be empty")
	}
}

func TestScheduler_ArchiveDirectories(t *testing.T) {
	s := testScheduler(t)
	if err := s.Archive(&model.BuildPlan{PlanID: "bplan_done"}, model.PlanCompleted); err != nil {
		t.Fatalf("archive: %v", err)
	}
	if err := s.Archive(&model.BuildPlan{PlanID: "bplan_stuck"}, model.PlanBlocked); err != nil {
		t.Fatalf("archive: %v", err)
	}
	completed, _ := os.ReadDir(filepath.Join(s.dir, "completed"))
	failed, _ := os.ReadDir(filepath.Join(s.dir, "failed"))
	if len(completed) != 1 || len(failed) != 1 {
		t.Fatalf("archives: completed=%d failed=%d", len(completed), len(failed))
	}
}

func TestResolveCommands_PoseSubstitution(t *testing.T) {
	e := NewExecutor(testScheduler(t), testRegistry(t), nil)
	plan := &model.BuildPlan{
		PlanID:     "bplan_tp",
		ModHooks:   []string{"drift_city:teleport"},
		PlayerPose: &model.PlayerPose{World: "world", X: 12.3, Y: 64.0, Z: -7.1},
	}
	cmds, err := e.ResolveCommands(plan)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(cmds) != 1 || cmds[0] != "tp @p 12 64 -7" {
		t.Fatalf("commands: %v", cmds)
	}
}

func TestResolveCommands_MissingPoseDropsCommand(t *testing.T) {
	e := NewExecutor(testScheduler(t), testRegistry(t), nil)
	plan := &model.BuildPlan{PlanID: "bplan_tp", ModHooks: []string{"drift_city:teleport"}}
	if _, err := e.ResolveCommands(plan); err == nil {
		t.Fatalf("expected error once all commands drop")
	}
}

func TestResolveCommands_InitFallbackAndMissingMod(t *testing.T) {
	e := NewExecutor(testScheduler(t), testRegistry(t), nil)

	cmds, err := e.ResolveCommands(&model.BuildPlan{PlanID: "p", ModHooks: []string{"drift_city:beacon"}})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(cmds) != 1 || cmds[0] != "function drift_city_beacon:init" {
		t.Fatalf("commands: %v", cmds)
	}

	if _, err := e.ResolveCommands(&model.BuildPlan{PlanID: "p", ModHooks: []string{"ghost_mod:anything"}}); err == nil {
		t.Fatalf("expected missing-mod error")
	}
}

func TestForwardToken(t *testing.T) {
	// yaw 0 faces +z in game coordinates.
	pose := model.PlayerPose{X: 10, Y: 64, Z: 20, Yaw: 0}
	got, ok := poseToken("forward_z_3", pose)
	if !ok || got != "23" {
		t.Fatalf("forward_z_3: %q ok=%v", got, ok)
	}
	got, ok = poseToken("forward_x_3", pose)
	if !ok || got != "10" {
		t.Fatalf("forward_x_3: %q ok=%v", got, ok)
	}
	// yaw 90 faces -x.
	pose.Yaw = 90
	got, _ = poseToken("forward_x_3", pose)
	if got != "7" {
		t.Fatalf("yaw 90 forward_x_3: %q", got)
	}
	if _, ok := poseToken("forward_w_3", pose); ok {
		t.Fatalf("unknown axis accepted")
	}
}

func TestExecuteNext_BlockedAndCompleted(t *testing.T) {
	sched := testScheduler(t)
	e := NewExecutor(sched, testRegistry(t), nil)
	runner := &captureRunner{}

	// Unresolvable plan archives as blocked without dispatch.
	if err := sched.Enqueue(&model.BuildPlan{PlanID: "bplan_bad", ModHooks: []string{"ghost:hook"}}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	plan, ok, err := e.ExecuteNext(context.Background(), runner)
	if err != nil || !ok || plan.Status != model.PlanBlocked {
		t.Fatalf("blocked: %+v ok=%v err=%v", plan, ok, err)
	}
	if len(runner.batches) != 0 {
		t.Fatalf("dispatched blocked plan: %v", runner.batches)
	}

	// Good plan dispatches and completes.
	good := &model.BuildPlan{
		PlanID:     "bplan_good",
		ModHooks:   []string{"drift_city:teleport"},
		PlayerPose: &model.PlayerPose{World: "world", X: 1, Y: 2, Z: 3},
	}
	if err := sched.Enqueue(good); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	plan, ok, err = e.ExecuteNext(context.Background(), runner)
	if err != nil || !ok || plan.Status != model.PlanCompleted {
		t.Fatalf("completed: %+v ok=%v err=%v", plan, ok, err)
	}
	if len(runner.batches) != 1 || runner.batches[0][0] != "tp @p 1 2 3" {
		t.Fatalf("batches: %v", runner.batches)
	}

	rec, err := sched.Executed("bplan_good")
	if err != nil || len(rec.Commands) != 1 || rec.Status != model.PlanCompleted {
		t.Fatalf("execution record: %+v err=%v", rec, err)
	}
}
