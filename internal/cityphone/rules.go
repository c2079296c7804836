// Package cityphone renders the curatorial payload served to the in-game
// CityPhone. The payload's key set is a hard contract; everything else in
// the system stays behind it.
package cityphone

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ArchivalRules are the editorial constraints on archive lines: each line
// must attribute a source and must not editorialise. Loaded from config
// so curators can tune wording without a rebuild.
type ArchivalRules struct {
	SourceTokens    []string `yaml:"source_tokens"`
	ForbiddenTokens []string `yaml:"forbidden_tokens"`
}

// DefaultArchivalRules mirror configs/archival_rules.yaml.
func DefaultArchivalRules() ArchivalRules {
	return ArchivalRules{
		SourceTokens:    []string{"来源", "存档", "附件", "节选", "记录", "标注"},
		ForbiddenTokens: []string{"希望", "期待", "建议", "应当", "需要", "必须", "打算", "未来"},
	}
}

// LoadArchivalRules reads the rules file; a missing file yields the
// built-in defaults.
func LoadArchivalRules(path string) (ArchivalRules, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultArchivalRules(), nil
		}
		return ArchivalRules{}, fmt.Errorf("archival rules: %w", err)
	}
	var rules ArchivalRules
	if err := yaml.Unmarshal(raw, &rules); err != nil {
		return ArchivalRules{}, fmt.Errorf("archival rules: %w", err)
	}
	if len(rules.SourceTokens) == 0 {
		rules.SourceTokens = DefaultArchivalRules().SourceTokens
	}
	return rules, nil
}

// Admissible reports whether one line passes both checks.
func (r ArchivalRules) Admissible(line string) bool {
	attributed := false
	for _, tok := range r.SourceTokens {
		if strings.Contains(line, tok) {
			attributed = true
			break
		}
	}
	if !attributed {
		return false
	}
	for _, tok := range r.ForbiddenTokens {
		if strings.Contains(line, tok) {
			return false
		}
	}
	return true
}

// Sanitize drops inadmissible lines, preserving order.
func (r ArchivalRules) Sanitize(lines []string) []string {
	var out []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || !r.Admissible(line) {
			continue
		}
		out = append(out, line)
	}
	return out
}
