// Package patch classifies, validates and executes patch templates. A
// template is executable iff its tier is safe_auto, its status is resolved,
// its commands pass the safety whitelist and no placeholders remain.
package patch

import (
	"regexp"
	"sort"

	"idealcity/internal/model"
	"idealcity/internal/safety"
)

var placeholderPattern = regexp.MustCompile(`\{[a-z0-9_]+\}`)

// requiredMetadata lists the metadata keys each step type must carry.
var requiredMetadata = map[model.StepType][]string{
	model.StepBlockPlacement: {"resource_id"},
	model.StepModFunction:    {"resource_id"},
	model.StepEntitySpawn:    {"resource_id"},
	model.StepManualReview:   {},
	model.StepCustomCommand:  {},
}

// ValidateTemplate computes the validation result for one template and
// returns the possibly downgraded step type. An unknown step type is an
// error and downgrades to manual_review.
func ValidateTemplate(t model.PatchTemplate) (model.ValidationResult, model.StepType) {
	var res model.ValidationResult
	stepType := t.StepType

	if !stepType.Valid() {
		res.Errors = append(res.Errors, "unknown_step_type:"+string(stepType))
		stepType = model.StepManualReview
	}

	cmds := t.WorldPatch.Commands()
	errs, warns := safety.ValidateCommands(cmds)
	res.Errors = append(res.Errors, errs...)
	res.Warnings = append(res.Warnings, warns...)
	res.Warnings = append(res.Warnings, safety.ScanPatch(t.WorldPatch.MC)...)

	for _, key := range requiredMetadata[stepType] {
		if t.WorldPatch.Metadata[key] == "" {
			res.MissingFields = append(res.MissingFields, key)
		}
	}

	res.Placeholders = findPlaceholders(cmds)

	switch {
	case len(res.Errors) > 0:
		res.Tier = model.TierBlocked
	case len(res.MissingFields) > 0 || len(res.Placeholders) > 0 ||
		t.Status != model.TemplateResolved || len(res.Warnings) > 0:
		res.Tier = model.TierNeedsConfirm
	default:
		res.Tier = model.TierSafeAuto
	}
	return res, stepType
}

// ValidatePlan validates every template in place and sets the plan tier to
// the strongest template tier.
func ValidatePlan(plan *model.CreationPlan) {
	planTier := model.TierSafeAuto
	for i := range plan.Templates {
		res, stepType := ValidateTemplate(plan.Templates[i])
		plan.Templates[i].Validation = &res
		plan.Templates[i].StepType = stepType
		plan.Templates[i].ExecutionTier = res.Tier
		planTier = model.StrongerTier(planTier, res.Tier)
	}
	plan.ExecutionTier = planTier
}

func findPlaceholders(cmds []string) []string {
	set := map[string]struct{}{}
	for _, c := range cmds {
		for _, m := range placeholderPattern.FindAllString(c, -1) {
			set[m] = struct{}{}
		}
	}
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for m := range set {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}
