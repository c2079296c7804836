// Package worldview loads the immutable worldview and scenario documents
// that parameterise adjudication. Documents are read once and cached; the
// pipeline never writes them.
package worldview

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Worldview is the city's constitution: banner, ruling templates and
// optional-field advice used verbatim by the adjudicator.
type Worldview struct {
	SpiritBanner         string   `json:"spirit_banner"`
	FollowUpTemplates    []string `json:"follow_up_templates"`
	RejectionTemplates   []string `json:"rejection_templates"`
	AffirmationTemplates []string `json:"affirmation_templates"`
	OptionalFieldAdvice  []string `json:"optional_field_advice"`
}

// Scenario scopes one stage of the ideal-city storyline.
type Scenario struct {
	ScenarioID            string   `json:"scenario_id"`
	Version               string   `json:"version,omitempty"`
	Title                 string   `json:"title"`
	Summary               string   `json:"summary"`
	IntentHint            string   `json:"intent_hint,omitempty"`
	ContextualConstraints []string `json:"contextual_constraints"`
	SuccessMarkers        []string `json:"success_markers"`
	Risks                 []string `json:"risks"`
	Touchstones           []string `json:"touchstones"`
	DefaultModHooks       []string `json:"default_mod_hooks,omitempty"`
}

// FirstTouchstone returns the scenario's leading touchstone, if any.
func (s Scenario) FirstTouchstone() string {
	if len(s.Touchstones) > 0 {
		return s.Touchstones[0]
	}
	return ""
}

type WorldviewStore struct {
	path string

	once sync.Once
	wv   Worldview
	err  error
}

func NewWorldviewStore(path string) *WorldviewStore {
	return &WorldviewStore{path: path}
}

// Load reads worldview.json once. A missing file yields a minimal default
// so adjudication still produces worded rulings.
func (s *WorldviewStore) Load() (Worldview, error) {
	s.once.Do(func() {
		raw, err := os.ReadFile(s.path)
		if err != nil {
			if os.IsNotExist(err) {
				s.wv = defaultWorldview()
				return
			}
			s.err = fmt.Errorf("worldview: %w", err)
			return
		}
		if err := json.Unmarshal(raw, &s.wv); err != nil {
			s.err = fmt.Errorf("worldview: %w", err)
			return
		}
		if s.wv.SpiritBanner == "" {
			s.wv.SpiritBanner = defaultWorldview().SpiritBanner
		}
	})
	return s.wv, s.err
}

func defaultWorldview() Worldview {
	return Worldview{
		SpiritBanner: "理想之城：以公共利益为先的试验场",
		FollowUpTemplates: []string{
			"请补充装置如何服务于公共空间。",
			"请说明装置的维护与退役安排。",
		},
		RejectionTemplates: []string{
			"提案结构不完整，暂缓立项。",
		},
		AffirmationTemplates: []string{
			"提案结构完整，准予进入规划。",
		},
		OptionalFieldAdvice: []string{
			"可补充社区参与方式，以提升方案说服力。",
		},
	}
}

type ScenarioStore struct {
	dir string

	mu    sync.RWMutex
	cache map[string]Scenario
}

func NewScenarioStore(dir string) *ScenarioStore {
	return &ScenarioStore{dir: dir, cache: map[string]Scenario{}}
}

// Get loads scenarios/<id>.json, caching on first read.
func (s *ScenarioStore) Get(id string) (Scenario, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Scenario{}, fmt.Errorf("scenario id empty")
	}
	s.mu.RLock()
	if sc, ok := s.cache[id]; ok {
		s.mu.RUnlock()
		return sc, nil
	}
	s.mu.RUnlock()

	raw, err := os.ReadFile(filepath.Join(s.dir, id+".json"))
	if err != nil {
		return Scenario{}, fmt.Errorf("scenario %s: %w", id, err)
	}
	var sc Scenario
	if err := json.Unmarshal(raw, &sc); err != nil {
		return Scenario{}, fmt.Errorf("scenario %s: %w", id, err)
	}
	if sc.ScenarioID == "" {
		sc.ScenarioID = id
	}

	s.mu.Lock()
	s.cache[id] = sc
	s.mu.Unlock()
	return sc, nil
}

// List returns the ids of all scenario documents on disk, sorted.
func (s *ScenarioStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}
