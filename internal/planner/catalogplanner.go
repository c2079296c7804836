package planner

import (
	"strings"

	"idealcity/internal/catalog"
	"idealcity/internal/model"
)

// maxCommandsPerStep clips a catalog entry's canonical commands.
const maxCommandsPerStep = 3

// Catalog resolves material tokens against the transformer catalog.
// Unresolved materials become needs_review steps instead of failing the
// whole plan.
type Catalog struct {
	cat *catalog.Catalog
}

func NewCatalog(cat *catalog.Catalog) *Catalog {
	return &Catalog{cat: cat}
}

func (*Catalog) Name() string { return "catalog" }

func (p *Catalog) Plan(decision Decision, message string) *model.CreationPlan {
	materials := decision.Materials
	if len(materials) == 0 {
		if m := strings.TrimSpace(decision.Slots["material"]); m != "" {
			materials = []string{m}
		}
	}
	if len(materials) == 0 {
		return nil
	}

	var (
		templates []model.PatchTemplate
		resolved  int
	)
	for i, token := range materials {
		entry, _, ok := p.cat.Match(token)
		if !ok {
			templates = append(templates, newTemplate(i, "待确认材料 "+token,
				model.StepManualReview, model.TemplateNeedsReview, nil,
				map[string]string{"material_token": token}))
			continue
		}
		resolved++
		cmds := entry.Commands
		if len(cmds) > maxCommandsPerStep {
			cmds = cmds[:maxCommandsPerStep]
		}
		status := model.TemplateResolved
		stepType := model.StepBlockPlacement
		if strings.HasPrefix(firstOr(cmds, ""), "function ") {
			stepType = model.StepModFunction
		}
		if len(cmds) == 0 {
			status = model.TemplateNeedsReview
			stepType = model.StepManualReview
		}
		templates = append(templates, newTemplate(i, "部署 "+entry.ResourceID,
			stepType, status, cmds,
			map[string]string{"resource_id": entry.ResourceID}))
	}

	ratio := float64(resolved) / float64(len(materials))
	plan := newPlan("转化器部署计划", planConfidence(decision.Confidence, ratio), templates,
		map[string]string{"planner": "catalog", "catalog_digest": p.cat.Digest()})
	return plan
}

func firstOr(list []string, fallback string) string {
	if len(list) > 0 {
		return list[0]
	}
	return fallback
}
