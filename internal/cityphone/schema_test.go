package cityphone_test

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"idealcity/internal/builder"
	"idealcity/internal/cityphone"
	"idealcity/internal/exhibit"
	"idealcity/internal/model"
)

func TestRenderedState_ValidatesSchema(t *testing.T) {
	schema, err := jsonschema.Compile(filepath.Join("..", "..", "schemas", "cityphone_state.schema.json"))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	r := cityphone.NewRenderer(cityphone.DefaultArchivalRules())
	inputs := []cityphone.RenderInput{
		{},
		{
			Narrative: exhibit.Narrative{
				Title:          "灯塔档案",
				Timeframe:      "第三季",
				ArchiveLines:   []string{"记录: 灯塔基座完工", "无出处的一句话"},
				Interpretation: []string{"来源: 城市志 第4卷"},
				HistoricNotes:  []string{"存档: 第一盏灯点亮"},
				Appendix:       map[string][]string{"航道": {"附件: 浮标坐标表"}},
			},
			Instances: []string{"exh_1", "exh_2"},
			Execution: &builder.ExecutionRecord{
				PlanID:     "bplan_1",
				Commands:   []string{"setblock 1 64 2 minecraft:glowstone"},
				Status:     model.PlanCompleted,
				ExecutedAt: time.Now().UTC(),
			},
			Atmosphere: model.SocialAtmosphere{Mood: "optimistic"},
			Ready:      true,
		},
	}

	for i, in := range inputs {
		raw, err := json.Marshal(r.Render(in))
		if err != nil {
			t.Fatalf("case %d: marshal: %v", i, err)
		}
		var doc any
		if err := json.Unmarshal(raw, &doc); err != nil {
			t.Fatalf("case %d: unmarshal: %v", i, err)
		}
		if err := schema.Validate(doc); err != nil {
			t.Fatalf("case %d: validate: %v\npayload: %s", i, err, raw)
		}
	}
}
