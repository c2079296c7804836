package model

import "time"

// Verdict is the deterministic outcome of rule-based adjudication.
type Verdict string

const (
	VerdictAccept         Verdict = "ACCEPT"
	VerdictPartial        Verdict = "PARTIAL"
	VerdictReject         Verdict = "REJECT"
	VerdictReviewRequired Verdict = "REVIEW_REQUIRED"
)

func (v Verdict) Valid() bool {
	switch v {
	case VerdictAccept, VerdictPartial, VerdictReject, VerdictReviewRequired:
		return true
	}
	return false
}

// DeviceSpec is a player-authored civic proposal after normalisation.
// Records are immutable once persisted; a new version gets a new spec_id.
type DeviceSpec struct {
	SpecID        string `json:"spec_id"`
	AuthorRef     string `json:"author_ref"`
	ScenarioID    string `json:"scenario_id"`
	IntentSummary string `json:"intent_summary"`
	IsDraft       bool   `json:"is_draft"`

	WorldConstraints []string `json:"world_constraints"`
	LogicOutline     []string `json:"logic_outline"`
	ResourceLedger   []string `json:"resource_ledger"`
	SuccessCriteria  []string `json:"success_criteria"`
	RiskRegister     []string `json:"risk_register"`

	SubmittedAt  time.Time `json:"submitted_at"`
	RawNarrative string    `json:"raw_narrative"`
}

// AdjudicationRecord is a signed ruling over exactly one DeviceSpec.
type AdjudicationRecord struct {
	RulingID        string    `json:"ruling_id"`
	DeviceSpecID    string    `json:"device_spec_id"`
	Verdict         Verdict   `json:"verdict"`
	Reasoning       []string  `json:"reasoning"`
	Conditions      []string  `json:"conditions"`
	MemoryHooks     []string  `json:"memory_hooks"`
	Timestamp       time.Time `json:"timestamp"`
	RecordSignature string    `json:"record_signature"`
}

// PlayerPose is a world position plus orientation, as reported by the runtime.
type PlayerPose struct {
	World string  `json:"world"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z"`
	Yaw   float64 `json:"yaw"`
	Pitch float64 `json:"pitch"`
}

// Core structured fields whose coverage gates readiness.
const (
	FieldLogicOutline     = "logic_outline"
	FieldWorldConstraints = "world_constraints"
	FieldResourceLedger   = "resource_ledger"
	FieldSuccessCriteria  = "success_criteria"
	FieldRiskRegister     = "risk_register"
)

// CoverageFields lists the core fields in canonical order.
var CoverageFields = []string{
	FieldLogicOutline,
	FieldWorldConstraints,
	FieldResourceLedger,
	FieldSuccessCriteria,
	FieldRiskRegister,
}

// StoryState accumulates per-(player, scenario) conversational context.
// List fields are append-only with order-preserving dedup; version strictly
// increases on every save.
type StoryState struct {
	PlayerID   string `json:"player_id"`
	ScenarioID string `json:"scenario_id"`

	Goals                 []string `json:"goals"`
	LogicOutline          []string `json:"logic_outline"`
	Resources             []string `json:"resources"`
	CommunityRequirements []string `json:"community_requirements"`
	SuccessCriteria       []string `json:"success_criteria"`
	WorldConstraints      []string `json:"world_constraints"`
	RiskRegister          []string `json:"risk_register"`
	Notes                 []string `json:"notes"`
	OpenQuestions         []string `json:"open_questions"`
	Blocking              []string `json:"blocking"`

	MotivationScore int             `json:"motivation_score"`
	LogicScore      int             `json:"logic_score"`
	BuildCapability int             `json:"build_capability"`
	Coverage        map[string]bool `json:"coverage"`
	ReadyForBuild   bool            `json:"ready_for_build"`

	PlayerPose   *PlayerPose `json:"player_pose,omitempty"`
	LocationHint string      `json:"location_hint,omitempty"`

	LastPlanID       string     `json:"last_plan_id,omitempty"`
	LastPlanStatus   string     `json:"last_plan_status,omitempty"`
	LastPlanSyncedAt *time.Time `json:"last_plan_synced_at,omitempty"`

	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NormalizedSpec is the structured projection of a free-form narrative
// before it is frozen into a DeviceSpec.
type NormalizedSpec struct {
	IntentSummary    string   `json:"intent_summary"`
	IsDraft          bool     `json:"is_draft"`
	Goal             []string `json:"goal"`
	WorldConstraints []string `json:"world_constraints"`
	LogicOutline     []string `json:"logic_outline"`
	ResourceLedger   []string `json:"resource_ledger"`
	SuccessCriteria  []string `json:"success_criteria"`
	RiskRegister     []string `json:"risk_register"`
}

// DeviceSpecSubmission is the inbound request. Structural list fields use
// nil to mean "not provided" and an empty non-nil slice to mean the player
// explicitly left the field blank; the adjudicator relies on the difference.
type DeviceSpecSubmission struct {
	PlayerID   string `json:"player_id"`
	ScenarioID string `json:"scenario_id"`
	Narrative  string `json:"narrative"`

	IntentSummary    string   `json:"intent_summary,omitempty"`
	IsDraft          *bool    `json:"is_draft,omitempty"`
	WorldConstraints []string `json:"world_constraints,omitempty"`
	LogicOutline     []string `json:"logic_outline,omitempty"`
	ResourceLedger   []string `json:"resource_ledger,omitempty"`
	SuccessCriteria  []string `json:"success_criteria,omitempty"`
	RiskRegister     []string `json:"risk_register,omitempty"`

	Pose *PlayerPose `json:"pose,omitempty"`
}

// SubmissionHints records, per core field, whether the player set the
// field explicitly and whether they explicitly left it blank. An
// explicitly blank structural field is grounds for rejection even when
// scenario defaults would otherwise fill it.
type SubmissionHints struct {
	Set   map[string]bool `json:"set,omitempty"`
	Blank map[string]bool `json:"blank,omitempty"`
}

// Hints derives SubmissionHints from the nil/non-nil state of the fields:
// nil means not provided, empty non-nil means explicitly blank.
func (s DeviceSpecSubmission) Hints() SubmissionHints {
	h := SubmissionHints{Set: map[string]bool{}, Blank: map[string]bool{}}
	for field, list := range map[string][]string{
		FieldWorldConstraints: s.WorldConstraints,
		FieldLogicOutline:     s.LogicOutline,
		FieldResourceLedger:   s.ResourceLedger,
		FieldSuccessCriteria:  s.SuccessCriteria,
		FieldRiskRegister:     s.RiskRegister,
	} {
		if list == nil {
			continue
		}
		h.Set[field] = true
		if len(list) == 0 {
			h.Blank[field] = true
		}
	}
	return h
}

// ExecutionNotice is the presentation-safe bundle returned per submission.
type ExecutionNotice struct {
	NoticeID   string    `json:"notice_id"`
	SpecID     string    `json:"spec_id"`
	RulingID   string    `json:"ruling_id"`
	PlanID     string    `json:"plan_id,omitempty"`
	Verdict    Verdict   `json:"verdict"`
	Body       []string  `json:"body"`
	Guidance   []string  `json:"guidance"`
	Broadcast  string    `json:"broadcast,omitempty"`
	PlayerID   string    `json:"player_id"`
	ScenarioID string    `json:"scenario_id"`
	CreatedAt  time.Time `json:"created_at"`
}
