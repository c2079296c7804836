package pipeline

import (
	"context"
	"fmt"
	"strings"

	"idealcity/internal/model"
)

const narrationSystemPrompt = `你是理想之城的城市广播员。用一句不超过 60 字的中文播报这份提案的裁定结果。
只输出播报正文，不要引号，不要解释。`

var verdictBroadcast = map[model.Verdict]string{
	model.VerdictAccept:         "已获立项",
	model.VerdictPartial:        "部分通过",
	model.VerdictReject:         "暂缓立项",
	model.VerdictReviewRequired: "进入复核",
}

// narrate produces the world broadcast line. LLM wording when available,
// fixed template otherwise.
func (p *Pipeline) narrate(ctx context.Context, sub model.DeviceSpecSubmission, spec model.NormalizedSpec, verdict model.Verdict) string {
	fallback := fmt.Sprintf("城市公报：%s 的提案「%s」%s。", sub.PlayerID, summaryOr(spec), verdictBroadcast[verdict])
	if !p.deps.Oracle.Enabled() {
		return fallback
	}
	prompt := fmt.Sprintf("提案人: %s\n提案: %s\n裁定: %s", sub.PlayerID, summaryOr(spec), verdict)
	reply, err := p.deps.Oracle.Complete(ctx, narrationSystemPrompt, prompt)
	if err != nil {
		return fallback
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return fallback
	}
	return reply
}

func summaryOr(spec model.NormalizedSpec) string {
	if spec.IntentSummary != "" {
		return spec.IntentSummary
	}
	return "未命名提案"
}
