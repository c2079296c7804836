package adjudicate

import (
	"idealcity/internal/model"
	"idealcity/internal/worldview"
)

// maxGuidanceLines keeps the prompt list short enough for chat delivery.
const maxGuidanceLines = 4

// Guide emits next-step prompts keyed off the verdict and the story
// state's coverage gaps.
type Guide struct {
	wv worldview.Worldview
}

func NewGuide(wv worldview.Worldview) *Guide {
	return &Guide{wv: wv}
}

func (g *Guide) Guidance(record model.AdjudicationRecord, story model.StoryState) []string {
	var lines []string

	switch record.Verdict {
	case model.VerdictReviewRequired:
		lines = append(lines, "草稿已登记，补全结构字段后可正式提交。")
	case model.VerdictReject:
		if len(g.wv.FollowUpTemplates) > 0 {
			lines = append(lines, g.wv.FollowUpTemplates[0])
		}
	}

	for _, field := range model.CoverageFields {
		if story.Coverage[field] {
			continue
		}
		lines = append(lines, "请补充"+fieldLabels[field]+"。")
		if len(lines) >= maxGuidanceLines {
			return lines
		}
	}

	if record.Verdict == model.VerdictAccept && story.ReadyForBuild {
		lines = append(lines, "条件已具备，提案将进入建造排期。")
	}
	if len(lines) > maxGuidanceLines {
		lines = lines[:maxGuidanceLines]
	}
	return lines
}
