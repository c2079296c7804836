package model

import "time"

// PlanStatus tracks a build plan through the queue lifecycle.
type PlanStatus string

const (
	PlanPending   PlanStatus = "pending"
	PlanQueued    PlanStatus = "queued"
	PlanRunning   PlanStatus = "running"
	PlanCompleted PlanStatus = "completed"
	PlanBlocked   PlanStatus = "blocked"
)

// BuildStep is one node of a plan's step graph. Dependencies reference
// step ids within the same plan.
type BuildStep struct {
	StepID       string   `json:"step_id"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Dependencies []string `json:"dependencies"`
}

// BuildPlan is an ordered list of build steps bound to mod hooks.
type BuildPlan struct {
	PlanID         string      `json:"plan_id"`
	Summary        string      `json:"summary"`
	Status         PlanStatus  `json:"status"`
	Steps          []BuildStep `json:"steps"`
	ResourceLedger []string    `json:"resource_ledger"`
	RiskNotes      []string    `json:"risk_notes"`
	ModHooks       []string    `json:"mod_hooks"`
	OriginScenario string      `json:"origin_scenario"`
	PlayerPose     *PlayerPose `json:"player_pose,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
}

// ExecutionTier determines whether a patch template may be dispatched
// automatically. blocked > needs_confirm > safe_auto.
type ExecutionTier string

const (
	TierSafeAuto     ExecutionTier = "safe_auto"
	TierNeedsConfirm ExecutionTier = "needs_confirm"
	TierBlocked      ExecutionTier = "blocked"
)

// StrongerTier returns the more restrictive of two tiers.
func StrongerTier(a, b ExecutionTier) ExecutionTier {
	rank := func(t ExecutionTier) int {
		switch t {
		case TierBlocked:
			return 2
		case TierNeedsConfirm:
			return 1
		default:
			return 0
		}
	}
	if rank(b) > rank(a) {
		return b
	}
	return a
}

// StepType classifies what a patch template does to the world.
type StepType string

const (
	StepBlockPlacement StepType = "block_placement"
	StepModFunction    StepType = "mod_function"
	StepEntitySpawn    StepType = "entity_spawn"
	StepManualReview   StepType = "manual_review"
	StepCustomCommand  StepType = "custom_command"
)

func (t StepType) Valid() bool {
	switch t {
	case StepBlockPlacement, StepModFunction, StepEntitySpawn, StepManualReview, StepCustomCommand:
		return true
	}
	return false
}

// TemplateStatus is the authoring state of a patch template.
type TemplateStatus string

const (
	TemplateResolved    TemplateStatus = "resolved"
	TemplateDraft       TemplateStatus = "draft"
	TemplateNeedsReview TemplateStatus = "needs_review"
)

// WorldPatch is a world-effecting payload. MC carries the game-side section
// (commands plus structural keys like fill/clone/setblock); Metadata carries
// validator-required keys such as resource_id.
type WorldPatch struct {
	MC       map[string]any    `json:"mc"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Commands extracts mc.commands as strings, tolerating untyped JSON decode.
func (p WorldPatch) Commands() []string {
	if p.MC == nil {
		return nil
	}
	raw, ok := p.MC["commands"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		out := make([]string, len(v))
		copy(out, v)
		return out
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// ValidationResult is attached to a template by the validator.
type ValidationResult struct {
	Errors        []string      `json:"errors"`
	Warnings      []string      `json:"warnings"`
	MissingFields []string      `json:"missing_fields"`
	Placeholders  []string      `json:"placeholders"`
	Tier          ExecutionTier `json:"tier"`
}

// PatchTemplate is a reusable world-effecting unit inside a creation plan.
type PatchTemplate struct {
	TemplateID    string            `json:"template_id"`
	StepID        string            `json:"step_id"`
	Title         string            `json:"title,omitempty"`
	StepType      StepType          `json:"step_type"`
	Status        TemplateStatus    `json:"status"`
	ExecutionTier ExecutionTier     `json:"execution_tier"`
	WorldPatch    WorldPatch        `json:"world_patch"`
	Validation    *ValidationResult `json:"validation,omitempty"`
}

// CreationPlan owns an ordered list of patch templates.
type CreationPlan struct {
	PlanID        string            `json:"plan_id"`
	Summary       string            `json:"summary"`
	Confidence    float64           `json:"confidence"`
	ExecutionTier ExecutionTier     `json:"execution_tier"`
	Templates     []PatchTemplate   `json:"templates"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// TxStatus is a patch transaction lifecycle state. Transitions are recorded
// as new entries with the same (patch_id, template_id, step_id) key; the
// latest entry wins.
type TxStatus string

const (
	TxValidated TxStatus = "validated"
	TxPending   TxStatus = "pending"
	TxFailed    TxStatus = "failed"
)

// PatchTransactionEntry is one append-only transaction log record.
type PatchTransactionEntry struct {
	PatchID    string            `json:"patch_id"`
	TemplateID string            `json:"template_id"`
	StepID     string            `json:"step_id"`
	Commands   []string          `json:"commands"`
	UndoPatch  map[string]any    `json:"undo_patch,omitempty"`
	Status     TxStatus          `json:"status"`
	CreatedAt  time.Time         `json:"created_at"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}
