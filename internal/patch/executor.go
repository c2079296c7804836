package patch

import (
	"context"
	"log"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"idealcity/internal/model"
	"idealcity/internal/persistence/txlog"
	"idealcity/internal/safety"
)

// Skip reasons recorded by the dry run.
const (
	ReasonNoCommands      = "no_commands"
	ReasonCommandErrors   = "command_errors"
	ReasonCommandWarnings = "command_warnings"
)

type ExecutedTemplate struct {
	TemplateID string   `json:"template_id"`
	StepID     string   `json:"step_id"`
	Commands   []string `json:"commands"`
	Responses  []string `json:"responses,omitempty"`
}

type SkippedTemplate struct {
	TemplateID string   `json:"template_id"`
	StepID     string   `json:"step_id"`
	Reason     string   `json:"reason"`
	Errors     []string `json:"errors,omitempty"`
	Warnings   []string `json:"warnings,omitempty"`
}

type Result struct {
	PatchID  string             `json:"patch_id"`
	Executed []ExecutedTemplate `json:"executed"`
	Skipped  []SkippedTemplate  `json:"skipped"`
	Failed   []SkippedTemplate  `json:"failed,omitempty"`
}

// Executor owns all appends to the transaction log.
type Executor struct {
	txlog *txlog.Log
	log   *log.Logger
	// set on every transaction when the plan came from a fallback path
	aiFallback bool
}

func NewExecutor(l *txlog.Log, logger *log.Logger) *Executor {
	return &Executor{txlog: l, log: logger}
}

// WithAIFallback marks subsequent transactions with the ai_fallback flag.
func (e *Executor) WithAIFallback(on bool) *Executor {
	clone := *e
	clone.aiFallback = on
	return &clone
}

// DryRun filters a validated plan down to dispatchable templates and
// appends a validated transaction per executable template. Nothing is sent
// anywhere.
func (e *Executor) DryRun(plan *model.CreationPlan, patchID string) (Result, error) {
	if patchID == "" {
		patchID = DerivePatchID(plan.Summary)
	}
	res := Result{PatchID: patchID}

	for _, t := range plan.Templates {
		if t.ExecutionTier != model.TierSafeAuto {
			res.Skipped = append(res.Skipped, SkippedTemplate{
				TemplateID: t.TemplateID, StepID: t.StepID,
				Reason: "execution_tier:" + string(t.ExecutionTier),
			})
			continue
		}
		cmds := t.WorldPatch.Commands()
		if len(cmds) == 0 {
			res.Skipped = append(res.Skipped, SkippedTemplate{
				TemplateID: t.TemplateID, StepID: t.StepID, Reason: ReasonNoCommands,
			})
			continue
		}
		errs, warns := safety.ValidateCommands(cmds)
		if len(errs) > 0 {
			res.Skipped = append(res.Skipped, SkippedTemplate{
				TemplateID: t.TemplateID, StepID: t.StepID,
				Reason: ReasonCommandErrors, Errors: errs, Warnings: warns,
			})
			if err := e.append(patchID, t, cmds, model.TxFailed, "dry_run", strings.Join(errs, "; ")); err != nil {
				return res, err
			}
			continue
		}
		if len(warns) > 0 {
			res.Skipped = append(res.Skipped, SkippedTemplate{
				TemplateID: t.TemplateID, StepID: t.StepID,
				Reason: ReasonCommandWarnings, Warnings: warns,
			})
			continue
		}
		res.Executed = append(res.Executed, ExecutedTemplate{
			TemplateID: t.TemplateID, StepID: t.StepID, Commands: cmds,
		})
		if err := e.append(patchID, t, cmds, model.TxValidated, "dry_run", ""); err != nil {
			return res, err
		}
	}
	return res, nil
}

// CommandRunner dispatches a command batch to the game server.
type CommandRunner interface {
	RunCommands(ctx context.Context, commands []string) ([]string, error)
}

// Execute runs the dry run, then dispatches every executable template
// through the runner. A runner failure marks that template failed and
// continues with the rest; the game-side runtime reports completion of
// pending entries out of band.
func (e *Executor) Execute(ctx context.Context, plan *model.CreationPlan, patchID string, runner CommandRunner) (Result, error) {
	res, err := e.DryRun(plan, patchID)
	if err != nil {
		return res, err
	}

	byTemplate := map[string]model.PatchTemplate{}
	for _, t := range plan.Templates {
		byTemplate[t.TemplateID] = t
	}

	executed := res.Executed[:0]
	for _, item := range res.Executed {
		t := byTemplate[item.TemplateID]
		responses, runErr := runner.RunCommands(ctx, item.Commands)
		if runErr != nil {
			if e.log != nil {
				e.log.Printf("dispatch failed template=%s: %v", item.TemplateID, runErr)
			}
			res.Failed = append(res.Failed, SkippedTemplate{
				TemplateID: item.TemplateID, StepID: item.StepID,
				Reason: "runner_error", Errors: []string{runErr.Error()},
			})
			if err := e.append(patchID, t, item.Commands, model.TxFailed, "auto_execute", runErr.Error()); err != nil {
				return res, err
			}
			continue
		}
		item.Responses = responses
		executed = append(executed, item)
		if err := e.append(patchID, t, item.Commands, model.TxPending, "auto_execute", ""); err != nil {
			return res, err
		}
	}
	res.Executed = executed
	return res, nil
}

func (e *Executor) append(patchID string, t model.PatchTemplate, cmds []string, status model.TxStatus, mode, errMsg string) error {
	meta := map[string]string{"mode": mode}
	if e.aiFallback {
		meta["ai_fallback"] = "true"
	}
	if errMsg != "" {
		meta["error"] = errMsg
	}
	return e.txlog.Append(model.PatchTransactionEntry{
		PatchID:    patchID,
		TemplateID: t.TemplateID,
		StepID:     t.StepID,
		Commands:   cmds,
		Status:     status,
		Metadata:   meta,
	})
}

var patchSlugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// DerivePatchID builds a stable, readable patch id from the plan summary
// plus a random suffix.
func DerivePatchID(summary string) string {
	slug := patchSlugPattern.ReplaceAllString(strings.ToLower(summary), "_")
	slug = strings.Trim(slug, "_")
	if slug == "" {
		slug = "patch"
	}
	if len(slug) > 32 {
		slug = slug[:32]
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return slug + "_" + suffix
}
