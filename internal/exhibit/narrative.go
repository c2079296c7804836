package exhibit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Narrative is the curator-authored document behind a scenario's gallery
// view, stored as <root>/<scenario>.json. The facade post-processes it
// into the fixed CityPhone sections.
type Narrative struct {
	Title           string              `json:"title"`
	Timeframe       string              `json:"timeframe"`
	ArchiveLines    []string            `json:"archive_lines"`
	UnresolvedRisks []string            `json:"unresolved_risks"`
	HistoricNotes   []string            `json:"historic_notes"`
	Interpretation  []string            `json:"interpretation"`
	Appendix        map[string][]string `json:"appendix"`
}

// NarrativeStore reads static narratives; it never writes them.
type NarrativeStore struct {
	root string
}

func NewNarrativeStore(root string) *NarrativeStore {
	return &NarrativeStore{root: root}
}

// Load returns the scenario narrative, or a zero value when none has
// been authored yet.
func (s *NarrativeStore) Load(scenarioID string) (Narrative, error) {
	raw, err := os.ReadFile(filepath.Join(s.root, scenarioID+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return Narrative{}, nil
		}
		return Narrative{}, fmt.Errorf("exhibit narrative: %w", err)
	}
	var n Narrative
	if err := json.Unmarshal(raw, &n); err != nil {
		return Narrative{}, fmt.Errorf("exhibit narrative: %w", err)
	}
	return n, nil
}
