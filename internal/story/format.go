package story

import (
	"regexp"
	"strings"
)

// riskPrefix is the canonical risk marker; entries are stored as
// "风险: topic / mitigation" and resources as "item - owner".
const riskPrefix = "风险:"

var (
	providesPattern = regexp.MustCompile(`^(.+?)\s*提供\s*(.+)$`)
	riskPattern     = regexp.MustCompile(`^(?:风险[:：]\s*)?([^/／]+?)\s*[/／]\s*(.+)$`)

	placeholderTokens = []string{"{", "}", "<", ">", "TBD", "tbd", "???", "placeholder", "填写"}
)

func hasPlaceholder(s string) bool {
	for _, tok := range placeholderTokens {
		if strings.Contains(s, tok) {
			return true
		}
	}
	return false
}

// normalizeResource canonicalises one ledger entry to "item - owner".
// "X 提供 Y" reads as owner X providing item Y. Entries with placeholder
// tokens are dropped (empty return).
func normalizeResource(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || hasPlaceholder(s) {
		return ""
	}
	if m := providesPattern.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[2]) + " - " + strings.TrimSpace(m[1])
	}
	if strings.Contains(s, " - ") {
		return s
	}
	return s + " - 未注明"
}

// normalizeRisk canonicalises one register entry to "风险: topic / mitigation".
func normalizeRisk(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || hasPlaceholder(s) {
		return ""
	}
	if m := riskPattern.FindStringSubmatch(s); m != nil {
		return riskPrefix + " " + strings.TrimSpace(m[1]) + " / " + strings.TrimSpace(m[2])
	}
	topic := strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(s, riskPrefix), "风险："))
	if topic == "" {
		return ""
	}
	return riskPrefix + " " + topic + " / 待评估"
}

func normalizeAll(entries []string, normalize func(string) string) []string {
	var out []string
	for _, e := range entries {
		if n := normalize(e); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// dropPlaceholders filters plain list fields without reformatting.
func dropPlaceholders(entries []string) []string {
	var out []string
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" || hasPlaceholder(e) {
			continue
		}
		out = append(out, e)
	}
	return out
}
