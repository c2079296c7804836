package model

import "time"

// ManifestationIntent is the outbound cross-process payload that authorises
// the external runtime to advance a stage.
type ManifestationIntent struct {
	IntentID        string    `json:"intent_id"`
	IntentKind      string    `json:"intent_kind"`
	SchemaVersion   string    `json:"schema_version"`
	ScenarioID      string    `json:"scenario_id"`
	ScenarioVersion string    `json:"scenario_version,omitempty"`
	AllowedStage    int       `json:"allowed_stage"`
	ConfidenceLevel float64   `json:"confidence_level"`
	Constraints     []string  `json:"constraints"`
	ContextNotes    []string  `json:"context_notes"`
	IssuedAt        time.Time `json:"issued_at"`
	ExpiresAt       time.Time `json:"expires_at"`
	Signature       string    `json:"signature"`
}

// IntentEnvelope is the on-disk shape under city-intents/pending/.
type IntentEnvelope struct {
	PlayerID string              `json:"player_id"`
	Intent   ManifestationIntent `json:"intent"`
}

// ExhibitInstance is a snapshot of a world-affecting patch, captured for the
// curatorial archive.
type ExhibitInstance struct {
	InstanceID   string         `json:"instance_id"`
	ScenarioID   string         `json:"scenario_id"`
	ExhibitID    string         `json:"exhibit_id"`
	LevelID      string         `json:"level_id"`
	SnapshotType string         `json:"snapshot_type"`
	Payload      map[string]any `json:"payload"`
	CreatedAt    time.Time      `json:"created_at"`
	CreatedBy    string         `json:"created_by"`
	Title        string         `json:"title,omitempty"`
	Description  string         `json:"description,omitempty"`
}

// TechnologyStatus mirrors technology-status.json written by the runtime.
type TechnologyStatus struct {
	Stage        TechnologyStage   `json:"stage"`
	Energy       TechnologyEnergy  `json:"energy"`
	Risks        []TechnologyRisk  `json:"risks"`
	RecentEvents []TechnologyEvent `json:"recent_events"`
	UpdatedAt    string            `json:"updated_at,omitempty"`
}

type TechnologyStage struct {
	Label    string  `json:"label,omitempty"`
	Level    int     `json:"level,omitempty"`
	Progress float64 `json:"progress,omitempty"`
}

type TechnologyEnergy struct {
	Generation  float64 `json:"generation"`
	Consumption float64 `json:"consumption"`
	Capacity    float64 `json:"capacity"`
	Storage     float64 `json:"storage"`
}

type TechnologyRisk struct {
	RiskID  string `json:"risk_id"`
	Level   string `json:"level,omitempty"`
	Summary string `json:"summary,omitempty"`
}

type TechnologyEvent struct {
	EventID     string `json:"event_id"`
	Category    string `json:"category,omitempty"`
	Description string `json:"description,omitempty"`
	OccurredAt  string `json:"occurred_at,omitempty"`
	Impact      string `json:"impact,omitempty"`
}

// SocialCategory classifies a social-feed event.
type SocialCategory string

const (
	SocialPraise             SocialCategory = "praise"
	SocialConcern            SocialCategory = "concern"
	SocialControversy        SocialCategory = "controversy"
	SocialRegulationProposal SocialCategory = "regulation_proposal"
)

func (c SocialCategory) Valid() bool {
	switch c {
	case SocialPraise, SocialConcern, SocialControversy, SocialRegulationProposal:
		return true
	}
	return false
}

// SocialFeedEvent is one JSONL line under cityphone/social-feed/events.jsonl.
type SocialFeedEvent struct {
	EntryID     string         `json:"entry_id"`
	Category    SocialCategory `json:"category"`
	Title       string         `json:"title"`
	Body        string         `json:"body"`
	IssuedAt    time.Time      `json:"issued_at"`
	Stage       int            `json:"stage,omitempty"`
	TrustDelta  float64        `json:"trust_delta,omitempty"`
	StressDelta float64        `json:"stress_delta,omitempty"`
	Tags        []string       `json:"tags"`
}

// SocialMetrics is the rolling trust/stress pair under metrics.json.
type SocialMetrics struct {
	TrustIndex  float64   `json:"trust_index"`
	StressIndex float64   `json:"stress_index"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SocialAtmosphere is the derived mood plus ambient effect parameters.
type SocialAtmosphere struct {
	Mood          string  `json:"mood"`
	Score         float64 `json:"score"`
	ParticleLevel float64 `json:"particle_level"`
	LightLevel    float64 `json:"light_level"`
}
