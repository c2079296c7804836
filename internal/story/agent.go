package story

import (
	"context"
	"encoding/json"
	"log"
	"regexp"
	"strings"

	"idealcity/internal/model"
	"idealcity/internal/oracle"
)

// Patch is a sparse story-state delta. Only additions; the manager owns
// the merge and the scores. MotivationScore can only raise the computed
// value, never lower it.
type Patch struct {
	Goals                 []string `json:"goals,omitempty"`
	LogicOutline          []string `json:"logic_outline,omitempty"`
	Resources             []string `json:"resources,omitempty"`
	CommunityRequirements []string `json:"community_requirements,omitempty"`
	SuccessCriteria       []string `json:"success_criteria,omitempty"`
	WorldConstraints      []string `json:"world_constraints,omitempty"`
	RiskRegister          []string `json:"risk_register,omitempty"`
	Notes                 []string `json:"notes,omitempty"`
	OpenQuestions         []string `json:"open_questions,omitempty"`
	Blocking              []string `json:"blocking,omitempty"`

	MotivationScore *int `json:"motivation_score,omitempty"`
}

const agentSystemPrompt = `你是理想之城的故事档案员。根据玩家最新叙述与既有档案，输出且仅输出一个 JSON 对象，
键为 goals, logic_outline, resources, community_requirements, success_criteria, world_constraints,
risk_register, notes, open_questions, blocking（string 数组，只写新增条目）以及可选 motivation_score (int)。
资源写成 "物品 - 提供方"，风险写成 "风险: 主题 / 缓解"。没有新增就输出 {}。`

var (
	fallbackProvides = regexp.MustCompile(`(\p{Han}[\p{Han}\w]*)\s*提供\s*([\p{Han}\w]+)`)
	fallbackRisk     = regexp.MustCompile(`风险[:：]\s*([^/／\n]+?)\s*[/／]\s*([^\n。；;]+)`)
	expectationWords = []string{"希望", "期待", "能", "让"}
)

// Agent proposes a story patch for one submission. The LLM path is
// optional; the regex fallback is always available.
type Agent struct {
	oracle *oracle.Oracle
	log    *log.Logger
}

func NewAgent(o *oracle.Oracle, logger *log.Logger) *Agent {
	return &Agent{oracle: o, log: logger}
}

func (a *Agent) Propose(ctx context.Context, narrative string, spec model.NormalizedSpec, state model.StoryState) Patch {
	if patch, ok := a.llmPatch(ctx, narrative, spec, state); ok {
		return patch
	}
	return FallbackPatch(narrative)
}

func (a *Agent) llmPatch(ctx context.Context, narrative string, spec model.NormalizedSpec, state model.StoryState) (Patch, bool) {
	if !a.oracle.Enabled() {
		return Patch{}, false
	}
	payload, err := json.Marshal(map[string]any{
		"narrative": narrative,
		"spec":      spec,
		"state":     state,
	})
	if err != nil {
		return Patch{}, false
	}
	reply, err := a.oracle.Complete(ctx, agentSystemPrompt, string(payload))
	if err != nil {
		return Patch{}, false
	}
	raw, ok := oracle.ExtractJSON(reply)
	if !ok {
		return Patch{}, false
	}
	var patch Patch
	if err := json.Unmarshal([]byte(raw), &patch); err != nil {
		if a.log != nil {
			a.log.Printf("story agent: bad patch JSON: %v", err)
		}
		return Patch{}, false
	}
	return patch, true
}

// FallbackPatch extracts resources, risks and community expectations from
// the narrative with fixed patterns. It never invents entries.
func FallbackPatch(narrative string) Patch {
	var patch Patch

	for _, m := range fallbackProvides.FindAllStringSubmatch(narrative, -1) {
		patch.Resources = append(patch.Resources, m[1]+" 提供 "+m[2])
	}
	for _, m := range fallbackRisk.FindAllStringSubmatch(narrative, -1) {
		patch.RiskRegister = append(patch.RiskRegister, "风险: "+strings.TrimSpace(m[1])+" / "+strings.TrimSpace(m[2]))
	}
	for _, sentence := range splitClauses(narrative) {
		if !strings.Contains(sentence, "居民") {
			continue
		}
		for _, w := range expectationWords {
			if strings.Contains(sentence, w) {
				patch.CommunityRequirements = append(patch.CommunityRequirements, sentence)
				break
			}
		}
	}
	return patch
}

func splitClauses(narrative string) []string {
	var (
		out []string
		cur strings.Builder
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			out = append(out, s)
		}
		cur.Reset()
	}
	for _, r := range narrative {
		switch r {
		case '。', '！', '？', '；', ';', '\n':
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return out
}
