// Package normalize projects a free-form proposal narrative into the
// structured fields adjudication works on. The LLM path is best-effort;
// a deterministic heuristic projection always exists and merge order is
// player-provided > LLM > heuristic.
package normalize

import (
	"context"
	"encoding/json"
	"log"
	"strings"

	"idealcity/internal/model"
	"idealcity/internal/oracle"
	"idealcity/internal/worldview"
)

const systemPrompt = `你是理想之城的提案整理员。阅读玩家的装置提案叙述，输出且仅输出一个 JSON 对象，键为：
intent_summary (string), is_draft (bool), goal, world_constraints, logic_outline, resource_ledger, success_criteria, risk_register (均为 string 数组)。
不要输出任何解释文字。条目保持玩家原意，不要杜撰具体数值。`

// maxOutlineLines caps the heuristic execution outline.
const maxOutlineLines = 2

type Normaliser struct {
	oracle *oracle.Oracle
	log    *log.Logger
}

func New(o *oracle.Oracle, logger *log.Logger) *Normaliser {
	return &Normaliser{oracle: o, log: logger}
}

// Normalise never fails: LLM or JSON errors fall back to the heuristic
// projection silently.
func (n *Normaliser) Normalise(ctx context.Context, sub model.DeviceSpecSubmission, sc worldview.Scenario) model.NormalizedSpec {
	heuristic := heuristicSpec(sub.Narrative, sc)
	llm, llmOK := n.llmSpec(ctx, sub, sc)

	spec := model.NormalizedSpec{
		IntentSummary:    pickString(sub.IntentSummary, llm.IntentSummary, heuristic.IntentSummary),
		Goal:             pickList(nil, llm.Goal, heuristic.Goal),
		WorldConstraints: pickList(sub.WorldConstraints, llm.WorldConstraints, heuristic.WorldConstraints),
		LogicOutline:     pickList(sub.LogicOutline, llm.LogicOutline, heuristic.LogicOutline),
		ResourceLedger:   pickList(sub.ResourceLedger, llm.ResourceLedger, heuristic.ResourceLedger),
		SuccessCriteria:  pickList(sub.SuccessCriteria, llm.SuccessCriteria, heuristic.SuccessCriteria),
		RiskRegister:     pickList(sub.RiskRegister, llm.RiskRegister, heuristic.RiskRegister),
	}

	switch {
	case sub.IsDraft != nil:
		spec.IsDraft = *sub.IsDraft
	case llmOK && llm.IsDraft:
		spec.IsDraft = true
	default:
		spec.IsDraft = containsDraftToken(sub.Narrative)
	}
	return spec
}

func (n *Normaliser) llmSpec(ctx context.Context, sub model.DeviceSpecSubmission, sc worldview.Scenario) (model.NormalizedSpec, bool) {
	if !n.oracle.Enabled() {
		return model.NormalizedSpec{}, false
	}
	payload, err := json.Marshal(map[string]any{
		"narrative":    sub.Narrative,
		"given_fields": givenFields(sub),
		"scenario": map[string]any{
			"summary":                sc.Summary,
			"contextual_constraints": sc.ContextualConstraints,
			"success_markers":        sc.SuccessMarkers,
			"risks":                  sc.Risks,
		},
		"intent_hint": sc.IntentHint,
	})
	if err != nil {
		return model.NormalizedSpec{}, false
	}
	reply, err := n.oracle.Complete(ctx, systemPrompt, string(payload))
	if err != nil {
		return model.NormalizedSpec{}, false
	}
	raw, ok := oracle.ExtractJSON(reply)
	if !ok {
		if n.log != nil {
			n.log.Printf("normalise: no JSON in oracle reply")
		}
		return model.NormalizedSpec{}, false
	}
	var spec model.NormalizedSpec
	if err := json.Unmarshal([]byte(raw), &spec); err != nil {
		if n.log != nil {
			n.log.Printf("normalise: bad oracle JSON: %v", err)
		}
		return model.NormalizedSpec{}, false
	}
	return spec, true
}

func givenFields(sub model.DeviceSpecSubmission) map[string][]string {
	fields := map[string][]string{}
	for key, list := range map[string][]string{
		model.FieldWorldConstraints: sub.WorldConstraints,
		model.FieldLogicOutline:     sub.LogicOutline,
		model.FieldResourceLedger:   sub.ResourceLedger,
		model.FieldSuccessCriteria:  sub.SuccessCriteria,
		model.FieldRiskRegister:     sub.RiskRegister,
	} {
		if len(list) > 0 {
			fields[key] = list
		}
	}
	return fields
}

// heuristicSpec is the zero-dependency projection: first sentence is the
// goal, the following sentences sketch the execution, scenario defaults
// fill constraints, success markers and risks.
func heuristicSpec(narrative string, sc worldview.Scenario) model.NormalizedSpec {
	sentences := splitSentences(narrative)
	spec := model.NormalizedSpec{
		WorldConstraints: model.CloneList(sc.ContextualConstraints),
		SuccessCriteria:  model.CloneList(sc.SuccessMarkers),
		RiskRegister:     model.CloneList(sc.Risks),
	}
	if len(sentences) > 0 {
		spec.Goal = []string{sentences[0]}
		spec.IntentSummary = truncateRunes(sentences[0], 60)
	}
	for _, s := range sentences[min(1, len(sentences)):] {
		if len(spec.LogicOutline) >= maxOutlineLines {
			break
		}
		spec.LogicOutline = append(spec.LogicOutline, s)
	}
	return spec
}

func splitSentences(narrative string) []string {
	var (
		out []string
		cur strings.Builder
	)
	flush := func() {
		s := strings.TrimSpace(cur.String())
		cur.Reset()
		if s != "" {
			out = append(out, s)
		}
	}
	for _, r := range narrative {
		switch r {
		case '。', '！', '？', '.', '!', '?', ';', '；', '\n':
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return out
}

func containsDraftToken(narrative string) bool {
	lower := strings.ToLower(narrative)
	return strings.Contains(lower, "draft") || strings.Contains(narrative, "草稿")
}

func pickString(player, llm, heuristic string) string {
	if s := strings.TrimSpace(player); s != "" {
		return s
	}
	if s := strings.TrimSpace(llm); s != "" {
		return s
	}
	return heuristic
}

func pickList(player, llm, heuristic []string) []string {
	if len(player) > 0 {
		return model.CloneList(player)
	}
	if len(llm) > 0 {
		return model.CloneList(llm)
	}
	return model.CloneList(heuristic)
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
