package builder

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"idealcity/internal/model"
	"idealcity/internal/mods"
	"idealcity/internal/patch"
)

var placeholderPattern = regexp.MustCompile(`\{([a-z0-9_.-]+)\}`)

// Executor resolves queued plans' mod hooks into concrete commands and
// dispatches them. Plans with missing mods or nothing to run are archived
// as blocked.
type Executor struct {
	scheduler *Scheduler
	registry  *mods.Registry
	log       *log.Logger
}

func NewExecutor(scheduler *Scheduler, registry *mods.Registry, logger *log.Logger) *Executor {
	return &Executor{scheduler: scheduler, registry: registry, log: logger}
}

// ResolveCommands expands every mod hook of the plan. Hook format is
// "<mod_id>:<identifier>"; manifest commands win, otherwise the datapack
// init function is used when present. Commands whose placeholders cannot
// be bound are dropped.
func (e *Executor) ResolveCommands(plan *model.BuildPlan) ([]string, error) {
	var out []string
	for _, hook := range plan.ModHooks {
		modID, identifier, ok := strings.Cut(hook, ":")
		if !ok {
			return nil, fmt.Errorf("mod hook %q: malformed", hook)
		}
		mod, found := e.registry.Get(modID)
		if !found {
			return nil, fmt.Errorf("mod hook %q: mod not installed", hook)
		}
		cmds := hookCommands(mod, identifier)
		if len(cmds) == 0 && e.registry.HasInitFunction(mod, identifier) {
			cmds = []string{fmt.Sprintf("function %s_%s:init", mod.EffectiveNamespace(), identifier)}
		}
		for _, cmd := range cmds {
			resolved, ok := substitutePlaceholders(cmd, plan.PlayerPose)
			if !ok {
				if e.log != nil {
					e.log.Printf("plan %s: dropping %q (unbound placeholder)", plan.PlanID, cmd)
				}
				continue
			}
			out = append(out, resolved)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("plan %s: no resolvable commands", plan.PlanID)
	}
	return out, nil
}

func hookCommands(mod mods.Mod, identifier string) []string {
	for _, ep := range mod.EntryPoints {
		if ep.Identifier == identifier {
			return ep.Commands
		}
	}
	return nil
}

// ExecuteNext pops one plan, resolves it and dispatches through the
// runner. Returns false when the queue is empty. Resolution failures
// archive the plan as blocked; dispatch failures as failed.
func (e *Executor) ExecuteNext(ctx context.Context, runner patch.CommandRunner) (*model.BuildPlan, bool, error) {
	plan, ok, err := e.scheduler.PopNext()
	if err != nil || !ok {
		return nil, ok, err
	}

	cmds, err := e.ResolveCommands(plan)
	if err != nil {
		if e.log != nil {
			e.log.Printf("plan %s blocked: %v", plan.PlanID, err)
		}
		if aerr := e.scheduler.Archive(plan, model.PlanBlocked); aerr != nil {
			return plan, true, aerr
		}
		return plan, true, nil
	}

	if runner != nil {
		if _, err := runner.RunCommands(ctx, cmds); err != nil {
			if e.log != nil {
				e.log.Printf("plan %s dispatch failed: %v", plan.PlanID, err)
			}
			if aerr := e.scheduler.Archive(plan, model.PlanBlocked); aerr != nil {
				return plan, true, aerr
			}
			return plan, true, nil
		}
	}
	if err := e.scheduler.RecordExecution(plan, cmds, model.PlanCompleted); err != nil {
		return plan, true, err
	}
	if err := e.scheduler.Archive(plan, model.PlanCompleted); err != nil {
		return plan, true, err
	}
	return plan, true, nil
}

var errQueueEmpty = errors.New("queue empty")

// Drain executes plans until the queue stays empty for the backoff's
// max elapsed window or the context ends.
func (e *Executor) Drain(ctx context.Context, runner patch.CommandRunner, maxElapsed time.Duration) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxInterval = 5 * time.Second
	policy.MaxElapsedTime = maxElapsed

	err := backoff.Retry(func() error {
		for {
			if err := ctx.Err(); err != nil {
				return backoff.Permanent(err)
			}
			_, ok, err := e.ExecuteNext(ctx, runner)
			if err != nil {
				return backoff.Permanent(err)
			}
			if !ok {
				return errQueueEmpty
			}
			policy.Reset()
		}
	}, backoff.WithContext(policy, ctx))
	if errors.Is(err, errQueueEmpty) {
		return nil
	}
	return err
}

// substitutePlaceholders binds pose-derived tokens. It reports false when
// the command carries a placeholder that cannot be bound (unknown token
// or nil pose).
func substitutePlaceholders(cmd string, pose *model.PlayerPose) (string, bool) {
	matches := placeholderPattern.FindAllStringSubmatch(cmd, -1)
	if len(matches) == 0 {
		return cmd, true
	}
	if pose == nil {
		return "", false
	}
	out := cmd
	for _, m := range matches {
		value, ok := poseToken(m[1], *pose)
		if !ok {
			return "", false
		}
		out = strings.ReplaceAll(out, m[0], value)
	}
	return out, true
}

func poseToken(name string, pose model.PlayerPose) (string, bool) {
	switch name {
	case "world":
		return pose.World, pose.World != ""
	case "x":
		return formatInt(pose.X), true
	case "y":
		return formatInt(pose.Y), true
	case "z":
		return formatInt(pose.Z), true
	case "x_f":
		return formatFloat(pose.X), true
	case "y_f":
		return formatFloat(pose.Y), true
	case "z_f":
		return formatFloat(pose.Z), true
	case "yaw":
		return formatFloat(pose.Yaw), true
	case "pitch":
		return formatFloat(pose.Pitch), true
	}
	if strings.HasPrefix(name, "forward_") {
		return forwardToken(name, pose)
	}
	return "", false
}

// forwardToken handles forward_<axis>_<distance>[_f]: the pose coordinate
// displaced <distance> blocks along the yaw-derived forward vector.
func forwardToken(name string, pose model.PlayerPose) (string, bool) {
	parts := strings.Split(name, "_")
	if len(parts) != 3 && !(len(parts) == 4 && parts[3] == "f") {
		return "", false
	}
	axis := parts[1]
	dist, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return "", false
	}
	yaw := pose.Yaw * math.Pi / 180
	var v float64
	switch axis {
	case "x":
		v = pose.X - math.Sin(yaw)*dist
	case "y":
		v = pose.Y
	case "z":
		v = pose.Z + math.Cos(yaw)*dist
	default:
		return "", false
	}
	if len(parts) == 4 {
		return formatFloat(v), true
	}
	return formatInt(v), true
}

func formatInt(v float64) string {
	return strconv.Itoa(int(math.Trunc(v)))
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
