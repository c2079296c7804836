// Package adjudicate turns a normalised spec into a signed ruling. The
// rules are deterministic; worldview templates only supply the wording.
package adjudicate

import (
	"strings"
	"time"

	"idealcity/internal/model"
	"idealcity/internal/worldview"
)

// maxFollowUps caps conditions attached to draft and reject rulings.
const maxFollowUps = 2

// fieldLabels maps core field names to the labels used in ruling text.
var fieldLabels = map[string]string{
	model.FieldWorldConstraints: "世界约束",
	model.FieldLogicOutline:     "执行步骤",
	model.FieldResourceLedger:   "资源台账",
	model.FieldSuccessCriteria:  "成功判据",
	model.FieldRiskRegister:     "风险登记",
}

type Adjudicator struct {
	wv worldview.Worldview
}

func New(wv worldview.Worldview) *Adjudicator {
	return &Adjudicator{wv: wv}
}

// Ruling is the adjudication output: the signed record plus worldview
// context notes that go into the notice body.
type Ruling struct {
	Record       model.AdjudicationRecord
	ContextNotes []string
}

func (a *Adjudicator) Adjudicate(specID string, spec model.NormalizedSpec, sc worldview.Scenario, hints model.SubmissionHints) Ruling {
	missing := missingStructure(spec, hints)

	record := model.AdjudicationRecord{
		RulingID:        model.NewID("ruling"),
		DeviceSpecID:    specID,
		Timestamp:       time.Now().UTC(),
		RecordSignature: model.NewSignature(),
	}
	if len(sc.Touchstones) > 0 {
		record.MemoryHooks = model.CloneList(sc.Touchstones)
	}

	switch {
	case spec.IsDraft:
		record.Verdict = model.VerdictReviewRequired
		record.Reasoning = []string{"提案标记为草稿，进入人工复核。"}
		record.Conditions = firstN(a.wv.FollowUpTemplates, maxFollowUps)

	case len(missing) > 0:
		record.Verdict = model.VerdictReject
		record.Reasoning = []string{"missing: " + joinLabels(missing)}
		if len(a.wv.RejectionTemplates) > 0 {
			record.Reasoning = append(record.Reasoning, a.wv.RejectionTemplates[0])
		}
		record.Conditions = firstN(a.wv.FollowUpTemplates, len(missing))

	default:
		record.Verdict = model.VerdictAccept
		if len(a.wv.AffirmationTemplates) > 0 {
			record.Reasoning = []string{a.wv.AffirmationTemplates[0]}
		}
		record.Reasoning = append(record.Reasoning, a.wv.OptionalFieldAdvice...)
	}

	return Ruling{Record: record, ContextNotes: a.contextNotes(sc)}
}

// missingStructure applies the structural rules: a field is missing when
// the player explicitly blanked it or the normalised value is absent;
// logic_outline additionally needs at least two entries.
func missingStructure(spec model.NormalizedSpec, hints model.SubmissionHints) []string {
	var missing []string
	if hints.Blank[model.FieldWorldConstraints] || len(spec.WorldConstraints) == 0 {
		missing = append(missing, model.FieldWorldConstraints)
	}
	if hints.Blank[model.FieldLogicOutline] || len(spec.LogicOutline) < 2 {
		missing = append(missing, model.FieldLogicOutline)
	}
	if hints.Blank[model.FieldRiskRegister] || len(spec.RiskRegister) == 0 {
		missing = append(missing, model.FieldRiskRegister)
	}
	return missing
}

func (a *Adjudicator) contextNotes(sc worldview.Scenario) []string {
	var notes []string
	if a.wv.SpiritBanner != "" {
		notes = append(notes, a.wv.SpiritBanner)
	}
	if sc.Summary != "" {
		notes = append(notes, sc.Summary)
	}
	if t := sc.FirstTouchstone(); t != "" {
		notes = append(notes, t)
	}
	return notes
}

func joinLabels(fields []string) string {
	labels := make([]string, 0, len(fields))
	for _, f := range fields {
		labels = append(labels, fieldLabels[f])
	}
	return strings.Join(labels, "、")
}

func firstN(list []string, n int) []string {
	if n > len(list) {
		n = len(list)
	}
	if n <= 0 {
		return nil
	}
	return model.CloneList(list[:n])
}
