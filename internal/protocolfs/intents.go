// Package protocolfs implements the filesystem contract shared with the
// game-side runtime: manifestation intents, the technology status file
// and the social feed. Every write is temp-then-rename; partial files
// must never become visible.
package protocolfs

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"idealcity/internal/model"
)

const (
	intentsDir    = "city-intents"
	auditFileName = "intent_audit.jsonl"
)

// lifecycle directories the runtime moves intent files through.
var intentStages = []string{"pending", "processing", "processed", "failed"}

// IntentWriter publishes manifestation intents under
// <root>/city-intents/pending/ and appends an audit trail.
type IntentWriter struct {
	root  string
	mu    sync.Mutex
	log   *log.Logger
	audit bool
}

func NewIntentWriter(root string, audit bool, logger *log.Logger) (*IntentWriter, error) {
	for _, stage := range intentStages {
		if err := os.MkdirAll(filepath.Join(root, intentsDir, stage), 0o755); err != nil {
			return nil, fmt.Errorf("intents: %w", err)
		}
	}
	return &IntentWriter{root: root, audit: audit, log: logger}, nil
}

// Write lands the envelope in pending/ atomically. The file only appears
// under its final name after a successful rename.
func (w *IntentWriter) Write(envelope model.IntentEnvelope) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	raw, err := json.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return fmt.Errorf("intents: %w", err)
	}
	dir := filepath.Join(w.root, intentsDir, "pending")
	tmp := filepath.Join(dir, "."+uuid.NewString()+".tmp")
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("intents: %w", err)
	}
	if _, err := f.Write(raw); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("intents: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("intents: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("intents: %w", err)
	}
	final := filepath.Join(dir, envelope.Intent.IntentID+".json")
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("intents: %w", err)
	}
	if w.log != nil {
		w.log.Printf("intent %s published (stage %d)", envelope.Intent.IntentID, envelope.Intent.AllowedStage)
	}
	if w.audit {
		return w.appendAudit(envelope)
	}
	return nil
}

func (w *IntentWriter) appendAudit(envelope model.IntentEnvelope) error {
	raw, err := json.Marshal(map[string]any{
		"intent_id":     envelope.Intent.IntentID,
		"player_id":     envelope.PlayerID,
		"scenario_id":   envelope.Intent.ScenarioID,
		"allowed_stage": envelope.Intent.AllowedStage,
		"issued_at":     envelope.Intent.IssuedAt,
	})
	if err != nil {
		return fmt.Errorf("intent audit: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(w.root, intentsDir, auditFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("intent audit: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(raw, '\n')); err != nil {
		return fmt.Errorf("intent audit: %w", err)
	}
	return nil
}

// Pending lists intent files currently awaiting pickup.
func (w *IntentWriter) Pending() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(w.root, intentsDir, "pending"))
	if err != nil {
		return nil, fmt.Errorf("intents: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

// NewIntent assembles a signed stage-advance intent with the standard
// no-stage-skip constraint and a TTL-based expiry.
func NewIntent(scenarioID, scenarioVersion string, stage int, confidence float64, constraints, notes []string, ttl time.Duration) model.ManifestationIntent {
	now := time.Now().UTC()
	return model.ManifestationIntent{
		IntentID:        model.NewID("intent"),
		IntentKind:      "stage_advance",
		SchemaVersion:   "1",
		ScenarioID:      scenarioID,
		ScenarioVersion: scenarioVersion,
		AllowedStage:    stage,
		ConfidenceLevel: confidence,
		Constraints:     model.AppendUnique(model.CloneList(constraints), "no_stage_skip"),
		ContextNotes:    model.CloneList(notes),
		IssuedAt:        now,
		ExpiresAt:       now.Add(ttl),
		Signature:       model.NewSignature(),
	}
}
