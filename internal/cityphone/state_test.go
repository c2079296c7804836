package cityphone

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"idealcity/internal/builder"
	"idealcity/internal/exhibit"
	"idealcity/internal/model"
)

func TestArchivalRules_Admissible(t *testing.T) {
	rules := DefaultArchivalRules()
	cases := []struct {
		line string
		want bool
	}{
		{"来源: 港务档案第12卷", true},
		{"记录: 灯塔于第一纪点亮", true},
		{"灯塔于第一纪点亮", false},               // no source token
		{"来源: 档案, 希望后人继续维护", false},      // forbidden token
		{"节选: 居民需要更多照明", false},          // forbidden token
		{"", false},
	}
	for _, c := range cases {
		if got := rules.Admissible(c.line); got != c.want {
			t.Fatalf("Admissible(%q) = %v", c.line, got)
		}
	}
}

func TestLoadArchivalRules_FileAndDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "archival_rules.yaml")
	body := "source_tokens: [来源]\nforbidden_tokens: [希望]\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	rules, err := LoadArchivalRules(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(rules.SourceTokens) != 1 || rules.SourceTokens[0] != "来源" {
		t.Fatalf("rules: %+v", rules)
	}

	rules, err = LoadArchivalRules(filepath.Join(dir, "absent.yaml"))
	if err != nil || len(rules.SourceTokens) == 0 {
		t.Fatalf("default rules: %+v err=%v", rules, err)
	}
}

func testNarrative() exhibit.Narrative {
	return exhibit.Narrative{
		Title:           "灯塔季特展",
		Timeframe:       "第一纪",
		ArchiveLines:    []string{"来源: 港务档案第12卷", "无出处的一句话"},
		UnresolvedRisks: []string{"标注: 能源缺口尚未闭合"},
		HistoricNotes:   []string{"记录: 灯塔于第一纪点亮"},
		Interpretation:  []string{"节选: 灯塔成为夜航坐标"},
		Appendix:        map[string][]string{"附录A": {"节选: 施工日志第3页"}},
	}
}

func TestRender_ContractKeysAndSlotOrder(t *testing.T) {
	r := NewRenderer(DefaultArchivalRules())
	state := r.Render(RenderInput{
		Narrative: testNarrative(),
		Instances: []string{"exh_1"},
		Execution: &builder.ExecutionRecord{PlanID: "bplan_1", Commands: []string{"setblock 0 64 0 stone"}},
		Technology: model.TechnologyStatus{RecentEvents: []model.TechnologyEvent{
			{EventID: "e1", Description: "电网并入"},
		}},
	})

	raw, err := json.Marshal(state)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	allowed := map[string]bool{
		"city_interpretation": true, "unknowns": true, "history_entries": true,
		"narrative": true, "exhibit_mode": true, "exhibits": true,
	}
	if len(payload) != len(allowed) {
		t.Fatalf("key count: %d (%v)", len(payload), payload)
	}
	for key := range payload {
		if !allowed[key] {
			t.Fatalf("forbidden key %q", key)
		}
	}

	want := []string{
		SlotGalleryStatus, SlotCityInterpretation, SlotOpenQuestions,
		SlotHistoryLog, SlotArchiveAppendix,
	}
	if len(state.Narrative.Sections) != len(want) {
		t.Fatalf("sections: %+v", state.Narrative.Sections)
	}
	for i, slot := range want {
		if state.Narrative.Sections[i].Slot != slot {
			t.Fatalf("slot[%d]=%s want %s", i, state.Narrative.Sections[i].Slot, slot)
		}
	}

	// Unattributed archive line was dropped.
	if len(state.Narrative.Sections[0].Body) != 1 {
		t.Fatalf("gallery body: %v", state.Narrative.Sections[0].Body)
	}
	// Execution record surfaces in the history log.
	history := state.Narrative.Sections[3].Body
	if history[len(history)-1] != "记录: 方案 bplan_1 已执行 1 条指令" {
		t.Fatalf("history: %v", history)
	}
	if state.Narrative.LastEvent != "电网并入" {
		t.Fatalf("last event: %q", state.Narrative.LastEvent)
	}
}

func TestRender_EmptySlotsOmitted(t *testing.T) {
	r := NewRenderer(DefaultArchivalRules())
	state := r.Render(RenderInput{Narrative: exhibit.Narrative{Title: "空展"}})

	if len(state.Narrative.Sections) != 0 {
		t.Fatalf("sections: %+v", state.Narrative.Sections)
	}
	// Top-level lists stay as empty arrays, never null.
	raw, _ := json.Marshal(state)
	for _, key := range []string{`"unknowns":[]`, `"history_entries":[]`, `"city_interpretation":[]`} {
		if !strings.Contains(string(raw), key) {
			t.Fatalf("missing %s in %s", key, raw)
		}
	}
	if state.ExhibitMode.Label != "布展中" || state.Narrative.Mode != "preparation" {
		t.Fatalf("mode: %+v", state)
	}
}

func TestResolveMode(t *testing.T) {
	m := resolveMode(RenderInput{Instances: []string{"a"}, Ready: true, Atmosphere: model.SocialAtmosphere{Mood: "optimistic"}})
	if m.mode != "active" || m.label != "常设展" {
		t.Fatalf("mode: %+v", m)
	}
	if m.description[len(m.description)-1] != "城市氛围: optimistic" {
		t.Fatalf("description: %v", m.description)
	}
	if m := resolveMode(RenderInput{Instances: []string{"a"}}); m.mode != "archive" {
		t.Fatalf("mode: %+v", m)
	}
}
