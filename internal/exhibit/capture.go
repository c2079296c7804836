// Package exhibit archives world-affecting patches as curatorial
// snapshots and serves the static narrative documents behind the
// CityPhone gallery.
package exhibit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"idealcity/internal/model"
)

// structuralKeys mark an mc payload as world-changing. Presentation-only
// keys (tell, title, actionbar, subtitle, bossbar, sound, particle) never
// trigger a capture.
var structuralKeys = map[string]bool{
	"build":       true,
	"build_multi": true,
	"commands":    true,
	"fill":        true,
	"clone":       true,
	"setblock":    true,
	"nbt":         true,
	"place":       true,
}

// IsStructural reports whether the payload changes the world.
func IsStructural(mc map[string]any) bool {
	for key := range mc {
		if structuralKeys[key] || strings.HasPrefix(key, "structure") {
			return true
		}
	}
	return false
}

// indexEntry is one row of the per-scenario index.json.
type indexEntry struct {
	InstanceID string    `json:"instance_id"`
	ExhibitID  string    `json:"exhibit_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store writes exhibit instances under <root>/<scenario>/ and keeps a
// per-scenario index file.
type Store struct {
	root string
	mu   sync.Mutex
}

func NewStore(root string) *Store {
	return &Store{root: root}
}

// Capture snapshots a structural patch. levelID names the world the patch
// lands in and may be empty when the runtime reported no pose. Returns
// (nil, false, nil) for presentation-only payloads.
func (s *Store) Capture(scenarioID, exhibitID, createdBy, levelID string, patch model.WorldPatch) (*model.ExhibitInstance, bool, error) {
	if !IsStructural(patch.MC) {
		return nil, false, nil
	}
	payload, err := deepCopy(patch.MC)
	if err != nil {
		return nil, false, fmt.Errorf("exhibit capture: %w", err)
	}
	inst := &model.ExhibitInstance{
		InstanceID:   model.NewID("exh"),
		ScenarioID:   scenarioID,
		ExhibitID:    exhibitID,
		LevelID:      levelID,
		SnapshotType: "world_patch",
		Payload:      payload,
		CreatedAt:    time.Now().UTC(),
		CreatedBy:    createdBy,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Join(s.root, scenarioID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, false, fmt.Errorf("exhibit capture: %w", err)
	}
	raw, err := json.MarshalIndent(inst, "", "  ")
	if err != nil {
		return nil, false, fmt.Errorf("exhibit capture: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, inst.InstanceID+".json"), raw, 0o644); err != nil {
		return nil, false, fmt.Errorf("exhibit capture: %w", err)
	}
	if err := s.appendIndex(dir, indexEntry{InstanceID: inst.InstanceID, ExhibitID: exhibitID, CreatedAt: inst.CreatedAt}); err != nil {
		return nil, false, err
	}
	return inst, true, nil
}

// Instances returns the captured instance ids for a scenario in capture
// order.
func (s *Store) Instances(scenarioID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.readIndex(filepath.Join(s.root, scenarioID))
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.InstanceID)
	}
	return ids, nil
}

func (s *Store) appendIndex(dir string, entry indexEntry) error {
	entries, err := s.readIndex(dir)
	if err != nil {
		return err
	}
	entries = append(entries, entry)
	raw, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("exhibit index: %w", err)
	}
	tmp := filepath.Join(dir, ".index.tmp")
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("exhibit index: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(dir, "index.json")); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("exhibit index: %w", err)
	}
	return nil
}

func (s *Store) readIndex(dir string) ([]indexEntry, error) {
	raw, err := os.ReadFile(filepath.Join(dir, "index.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("exhibit index: %w", err)
	}
	var entries []indexEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("exhibit index: %w", err)
	}
	return entries, nil
}

func deepCopy(mc map[string]any) (map[string]any, error) {
	raw, err := json.Marshal(mc)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
