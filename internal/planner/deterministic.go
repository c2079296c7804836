package planner

import (
	"fmt"
	"regexp"

	"idealcity/internal/model"
	"idealcity/internal/safety"
)

var (
	blockIDPattern = regexp.MustCompile(`minecraft:[a-z0-9_]+`)
	// 坐标 x y z
	coordPhrasePattern = regexp.MustCompile(`坐标\s+(-?\d+)\s+(-?\d+)\s+(-?\d+)`)
	coordXPattern      = regexp.MustCompile(`[xX]\s*=\s*(-?\d+)`)
	coordYPattern      = regexp.MustCompile(`[yY]\s*=\s*(-?\d+)`)
	coordZPattern      = regexp.MustCompile(`[zZ]\s*=\s*(-?\d+)`)
)

// Deterministic emits a single setblock plan when the message names an
// explicit block id and a coordinate triple. It never guesses.
type Deterministic struct{}

func (Deterministic) Name() string { return "deterministic" }

func (Deterministic) Plan(decision Decision, message string) *model.CreationPlan {
	blockID := decision.Slots["block_id"]
	if blockID == "" {
		blockID = blockIDPattern.FindString(message)
	}
	if blockID == "" {
		return nil
	}
	blockID = safety.SanitizeIdentifier(blockID)

	x, y, z, ok := extractCoords(message)
	if !ok {
		return nil
	}

	cmd := fmt.Sprintf("setblock %s %s %s %s", x, y, z, blockID)
	confidence := planConfidence(decision.Confidence, 1.0)
	if confidence < 0.75 {
		confidence = 0.75
	}
	tpl := newTemplate(0, "放置 "+blockID, model.StepBlockPlacement, model.TemplateResolved,
		[]string{cmd}, map[string]string{"resource_id": blockID})
	return newPlan("放置 "+blockID, confidence, []model.PatchTemplate{tpl},
		map[string]string{"planner": "deterministic"})
}

func extractCoords(message string) (x, y, z string, ok bool) {
	if m := coordPhrasePattern.FindStringSubmatch(message); m != nil {
		return m[1], m[2], m[3], true
	}
	mx := coordXPattern.FindStringSubmatch(message)
	my := coordYPattern.FindStringSubmatch(message)
	mz := coordZPattern.FindStringSubmatch(message)
	if mx == nil || my == nil || mz == nil {
		return "", "", "", false
	}
	return mx[1], my[1], mz[1], true
}
