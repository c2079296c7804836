// Package story accumulates per-(player, scenario) proposal context and
// derives the readiness scores that gate building.
package story

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"idealcity/internal/model"
)

var unsafePathChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// Repository persists story states as one JSON document per
// (player, scenario) under <root>/<player>/<scenario>.json. Writes are
// atomic and version is strictly monotonic.
type Repository struct {
	root string
	mu   sync.Mutex
}

func NewRepository(root string) *Repository {
	return &Repository{root: root}
}

func (r *Repository) path(player, scenario string) string {
	clean := func(s string) string {
		out := unsafePathChars.ReplaceAllString(s, "_")
		if out == "" {
			out = "_"
		}
		return out
	}
	return filepath.Join(r.root, clean(player), clean(scenario)+".json")
}

// Load returns the stored state or a fresh zero-version state when none
// exists yet.
func (r *Repository) Load(player, scenario string) (model.StoryState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadLocked(player, scenario)
}

func (r *Repository) loadLocked(player, scenario string) (model.StoryState, error) {
	empty := model.StoryState{
		PlayerID:   player,
		ScenarioID: scenario,
		Coverage:   map[string]bool{},
	}
	raw, err := os.ReadFile(r.path(player, scenario))
	if err != nil {
		if os.IsNotExist(err) {
			return empty, nil
		}
		return empty, fmt.Errorf("story state: %w", err)
	}
	var state model.StoryState
	if err := json.Unmarshal(raw, &state); err != nil {
		return empty, fmt.Errorf("story state: %w", err)
	}
	if state.Coverage == nil {
		state.Coverage = map[string]bool{}
	}
	return state, nil
}

// Save bumps the version, stamps UpdatedAt and writes atomically via a
// temp file and rename.
func (r *Repository) Save(state *model.StoryState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saveLocked(state)
}

func (r *Repository) saveLocked(state *model.StoryState) error {
	state.Version++
	state.UpdatedAt = time.Now().UTC()

	path := r.path(state.PlayerID, state.ScenarioID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("story state: %w", err)
	}
	raw, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("story state: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".state-*.tmp")
	if err != nil {
		return fmt.Errorf("story state: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("story state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("story state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("story state: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("story state: %w", err)
	}
	return nil
}

// Update loads, applies fn and saves under one lock so out-of-band
// writers (pose pushes, plan-status sync) cannot interleave.
func (r *Repository) Update(player, scenario string, fn func(*model.StoryState)) (model.StoryState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, err := r.loadLocked(player, scenario)
	if err != nil {
		return state, err
	}
	fn(&state)
	if err := r.saveLocked(&state); err != nil {
		return state, err
	}
	return state, nil
}
