package cityphone

import (
	"fmt"
	"sort"

	"idealcity/internal/builder"
	"idealcity/internal/exhibit"
	"idealcity/internal/model"
)

// Slot names, in the only order the client accepts.
const (
	SlotGalleryStatus      = "gallery_status"
	SlotCityInterpretation = "city_interpretation"
	SlotOpenQuestions      = "open_questions"
	SlotHistoryLog         = "history_log"
	SlotArchiveAppendix    = "archive_appendix"
)

var slotOrder = []string{
	SlotGalleryStatus,
	SlotCityInterpretation,
	SlotOpenQuestions,
	SlotHistoryLog,
	SlotArchiveAppendix,
}

var slotTitles = map[string]string{
	SlotGalleryStatus:      "馆况",
	SlotCityInterpretation: "城市解读",
	SlotOpenQuestions:      "未决问题",
	SlotHistoryLog:         "历史记事",
	SlotArchiveAppendix:    "档案附录",
}

var slotAccents = map[string]string{
	SlotGalleryStatus:      "gold",
	SlotCityInterpretation: "azure",
	SlotOpenQuestions:      "ash",
	SlotHistoryLog:         "sepia",
	SlotArchiveAppendix:    "slate",
}

// State is the full CityPhone payload. The JSON key set is exact: the
// client rejects extra keys, and player-identifying fields never appear.
type State struct {
	CityInterpretation []string      `json:"city_interpretation"`
	Unknowns           []string      `json:"unknowns"`
	HistoryEntries     []string      `json:"history_entries"`
	Narrative          NarrativeView `json:"narrative"`
	ExhibitMode        ModeView      `json:"exhibit_mode"`
	Exhibits           ExhibitsView  `json:"exhibits"`
}

type NarrativeView struct {
	Mode      string    `json:"mode"`
	Title     string    `json:"title"`
	Timeframe string    `json:"timeframe"`
	LastEvent string    `json:"last_event"`
	Sections  []Section `json:"sections"`
}

type Section struct {
	Slot   string   `json:"slot"`
	Title  string   `json:"title"`
	Body   []string `json:"body"`
	Accent string   `json:"accent"`
}

type ModeView struct {
	Label       string   `json:"label"`
	Description []string `json:"description"`
}

type ExhibitsView struct {
	Instances []string `json:"instances"`
}

// RenderInput bundles everything the renderer may draw on.
type RenderInput struct {
	Narrative  exhibit.Narrative
	Instances  []string
	Execution  *builder.ExecutionRecord
	Technology model.TechnologyStatus
	Atmosphere model.SocialAtmosphere
	Ready      bool
}

type Renderer struct {
	rules ArchivalRules
}

func NewRenderer(rules ArchivalRules) *Renderer {
	return &Renderer{rules: rules}
}

// Render builds the payload. Sections with empty bodies are omitted but
// the relative order of the remaining slots never changes.
func (r *Renderer) Render(in RenderInput) State {
	bodies := map[string][]string{
		SlotGalleryStatus:      r.rules.Sanitize(in.Narrative.ArchiveLines),
		SlotCityInterpretation: r.rules.Sanitize(in.Narrative.Interpretation),
		SlotOpenQuestions:      r.rules.Sanitize(in.Narrative.UnresolvedRisks),
		SlotHistoryLog:         r.historyLog(in),
		SlotArchiveAppendix:    r.appendix(in.Narrative),
	}

	sections := []Section{}
	for _, slot := range slotOrder {
		body := bodies[slot]
		if len(body) == 0 {
			continue
		}
		sections = append(sections, Section{
			Slot:   slot,
			Title:  slotTitles[slot],
			Body:   body,
			Accent: slotAccents[slot],
		})
	}

	mode := resolveMode(in)
	return State{
		CityInterpretation: orEmpty(bodies[SlotCityInterpretation]),
		Unknowns:           orEmpty(bodies[SlotOpenQuestions]),
		HistoryEntries:     orEmpty(bodies[SlotHistoryLog]),
		Narrative: NarrativeView{
			Mode:      mode.mode,
			Title:     in.Narrative.Title,
			Timeframe: in.Narrative.Timeframe,
			LastEvent: lastEvent(in.Technology),
			Sections:  sections,
		},
		ExhibitMode: ModeView{Label: mode.label, Description: mode.description},
		Exhibits:    ExhibitsView{Instances: orEmpty(in.Instances)},
	}
}

func (r *Renderer) historyLog(in RenderInput) []string {
	lines := r.rules.Sanitize(in.Narrative.HistoricNotes)
	if in.Execution != nil {
		lines = append(lines, fmt.Sprintf("记录: 方案 %s 已执行 %d 条指令", in.Execution.PlanID, len(in.Execution.Commands)))
	}
	return lines
}

// appendix flattens the by-section appendix in stable key order.
func (r *Renderer) appendix(n exhibit.Narrative) []string {
	keys := make([]string, 0, len(n.Appendix))
	for k := range n.Appendix {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var lines []string
	for _, k := range keys {
		lines = append(lines, r.rules.Sanitize(n.Appendix[k])...)
	}
	return lines
}

type resolvedMode struct {
	mode        string
	label       string
	description []string
}

// resolveMode picks the gallery presentation mode from the archive depth
// and the city's social mood.
func resolveMode(in RenderInput) resolvedMode {
	var m resolvedMode
	switch {
	case len(in.Instances) == 0:
		m = resolvedMode{mode: "preparation", label: "布展中", description: []string{"展区尚未收到结构快照"}}
	case in.Ready:
		m = resolvedMode{mode: "active", label: "常设展", description: []string{"展区随建造进度持续更新"}}
	default:
		m = resolvedMode{mode: "archive", label: "档案展", description: []string{"展区以既有快照为准"}}
	}
	if in.Atmosphere.Mood != "" {
		m.description = append(m.description, "城市氛围: "+in.Atmosphere.Mood)
	}
	return m
}

func lastEvent(status model.TechnologyStatus) string {
	if n := len(status.RecentEvents); n > 0 {
		return status.RecentEvents[n-1].Description
	}
	return ""
}

// orEmpty keeps list keys present (empty array, not null) in the JSON.
func orEmpty(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}
