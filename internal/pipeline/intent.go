package pipeline

import (
	"regexp"
	"strings"

	"idealcity/internal/planner"
)

// SystemIntent short-circuits the adjudication flow entirely.
type SystemIntent string

const (
	SystemNone        SystemIntent = ""
	SystemRefreshMods SystemIntent = "refresh_mods"
)

var refreshTokens = []string{"刷新模组", "刷新mod", "refresh mods", "reload mods"}

// RecognizeSystemIntent matches maintenance phrases before any LLM or
// normalisation work happens.
func RecognizeSystemIntent(narrative string) SystemIntent {
	probe := strings.ToLower(strings.TrimSpace(narrative))
	for _, tok := range refreshTokens {
		if probe == tok || strings.Contains(probe, tok) {
			return SystemRefreshMods
		}
	}
	return SystemNone
}

var (
	buildWords       = []string{"放置", "建造", "搭建", "造", "build", "place"}
	materialsPattern = regexp.MustCompile(`(?:用|使用)\s*([\p{Han}A-Za-z0-9_:]+)`)
	coordsHint       = regexp.MustCompile(`坐标|[xX]\s*=`)
)

// Decide projects the narrative onto a planner decision. Confidence is
// keyword-based; the planners themselves decline when the message lacks
// what they need.
func Decide(narrative string) planner.Decision {
	d := planner.Decision{Intent: "chat", Confidence: 0.3}
	for _, w := range buildWords {
		if strings.Contains(strings.ToLower(narrative), w) {
			d.Intent = "build"
			d.Confidence = 0.6
			break
		}
	}
	if d.Intent == "build" && coordsHint.MatchString(narrative) {
		d.Confidence = 0.9
	}
	for _, m := range materialsPattern.FindAllStringSubmatch(narrative, -1) {
		d.Materials = append(d.Materials, m[1])
	}
	return d
}
