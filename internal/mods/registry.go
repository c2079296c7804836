// Package mods maintains the installed-mods registry used for build-plan
// hook resolution. The registry is a refreshable cache over the mods root.
package mods

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

type EntryPoint struct {
	Identifier string   `json:"identifier"`
	Commands   []string `json:"commands,omitempty"`
}

type Mod struct {
	ID          string       `json:"id"`
	Namespace   string       `json:"namespace,omitempty"`
	Name        string       `json:"name,omitempty"`
	Version     string       `json:"version,omitempty"`
	EntryPoints []EntryPoint `json:"entry_points,omitempty"`
	Dir         string       `json:"-"`
}

// EffectiveNamespace falls back to the mod id when the manifest omits one.
func (m Mod) EffectiveNamespace() string {
	if m.Namespace != "" {
		return m.Namespace
	}
	return m.ID
}

type Registry struct {
	root string

	mu        sync.RWMutex
	mods      map[string]Mod
	refreshed time.Time
}

func NewRegistry(root string) *Registry {
	return &Registry{root: root, mods: map[string]Mod{}}
}

// Refresh rescans the mods root. A missing root empties the registry
// without error.
func (r *Registry) Refresh() error {
	mods := map[string]Mod{}
	entries, err := os.ReadDir(r.root)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("mods root: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(r.root, e.Name())
		raw, err := os.ReadFile(filepath.Join(dir, "manifest.json"))
		if err != nil {
			continue
		}
		var m Mod
		if err := json.Unmarshal(raw, &m); err != nil {
			return fmt.Errorf("mod %s manifest: %w", e.Name(), err)
		}
		if m.ID == "" {
			m.ID = e.Name()
		}
		m.Dir = dir
		mods[m.ID] = m
	}

	r.mu.Lock()
	r.mods = mods
	r.refreshed = time.Now().UTC()
	r.mu.Unlock()
	return nil
}

func (r *Registry) Get(id string) (Mod, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.mods[id]
	return m, ok
}

// List returns installed mods sorted by id.
func (r *Registry) List() []Mod {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Mod, 0, len(r.mods))
	for _, m := range r.mods {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Registry) RefreshedAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.refreshed
}

// HasInitFunction reports whether the datapack function backing the
// fallback command "function <namespace>_<identifier>:init" exists on disk.
func (r *Registry) HasInitFunction(m Mod, identifier string) bool {
	p := filepath.Join(m.Dir, "data", m.EffectiveNamespace()+"_"+identifier, "functions", "init.mcfunction")
	_, err := os.Stat(p)
	return err == nil
}
