package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"idealcity/internal/builder"
	"idealcity/internal/buildplan"
	"idealcity/internal/catalog"
	"idealcity/internal/cityphone"
	"idealcity/internal/exhibit"
	"idealcity/internal/model"
	"idealcity/internal/mods"
	"idealcity/internal/normalize"
	"idealcity/internal/oracle"
	"idealcity/internal/patch"
	"idealcity/internal/persistence/repo"
	"idealcity/internal/persistence/txlog"
	"idealcity/internal/pipeline"
	"idealcity/internal/planner"
	"idealcity/internal/protocolfs"
	"idealcity/internal/story"
	"idealcity/internal/tuning"
	"idealcity/internal/worldview"
)

func newTestServer(t *testing.T) (*httptest.Server, *Server) {
	t.Helper()
	root := t.TempDir()

	scenarioDir := filepath.Join(root, "scenarios")
	if err := os.MkdirAll(scenarioDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	scenario := `{"title":"广场季","summary":"修复中央广场",
	  "contextual_constraints":["保留原有喷泉"],
	  "success_markers":["广场重新开放"],"risks":["施工扰民"],
	  "touchstones":["广场的钟声"]}`
	if err := os.WriteFile(filepath.Join(scenarioDir, "plaza.json"), []byte(scenario), 0o644); err != nil {
		t.Fatalf("scenario: %v", err)
	}

	cfg := tuning.Default()
	cfg.AI.Disable = true

	o := oracle.New(cfg, nil)
	txl, err := txlog.Open(root)
	if err != nil {
		t.Fatalf("txlog: %v", err)
	}
	store, err := repo.Open(root, nil)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	sched, err := builder.NewScheduler(filepath.Join(root, "build_queue"), nil)
	if err != nil {
		t.Fatalf("scheduler: %v", err)
	}
	intents, err := protocolfs.NewIntentWriter(root, false, nil)
	if err != nil {
		t.Fatalf("intents: %v", err)
	}
	social, err := protocolfs.NewSocialFeed(root)
	if err != nil {
		t.Fatalf("social: %v", err)
	}
	cat, err := catalog.Load("", "")
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	wv, err := worldview.NewWorldviewStore(filepath.Join(root, "worldview.json")).Load()
	if err != nil {
		t.Fatalf("worldview: %v", err)
	}
	registry := mods.NewRegistry(filepath.Join(root, "mods"))

	pipe := pipeline.New(pipeline.Deps{
		Config:          cfg,
		Oracle:          o,
		Scenarios:       worldview.NewScenarioStore(scenarioDir),
		Worldview:       wv,
		Normaliser:      normalize.New(o, nil),
		Story:           story.NewManager(story.NewRepository(filepath.Join(root, "story_state")), story.NewAgent(o, nil), cfg.ReadyBuildCapability, nil),
		Plans:           buildplan.New(o, nil),
		Planner:         planner.NewChain(planner.Deterministic{}, planner.NewCatalog(cat)),
		PatchExec:       patch.NewExecutor(txl, nil),
		Scheduler:       sched,
		Registry:        registry,
		Store:           store,
		Intents:         intents,
		Technology:      protocolfs.NewTechnologyReader(root),
		Social:          social,
		Exhibits:        exhibit.NewStore(filepath.Join(root, "exhibit_instances")),
		Narratives:      exhibit.NewNarrativeStore(filepath.Join(root, "exhibits")),
		Renderer:        cityphone.NewRenderer(cityphone.DefaultArchivalRules()),
		DefaultScenario: "plaza",
	})

	srv := NewServer(pipe, store, sched, registry, nil)
	mux := http.NewServeMux()
	srv.Routes(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts, srv
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return out
}

func submission() model.DeviceSpecSubmission {
	return model.DeviceSpecSubmission{
		PlayerID:         "alice",
		ScenarioID:       "plaza",
		Narrative:        strings.Repeat("修复中央广场的喷泉，让市集重新聚拢人气。", 10),
		WorldConstraints: []string{"保留原有喷泉"},
		LogicOutline:     []string{"清理场地", "修复喷泉管线"},
		ResourceLedger:   []string{"石匠行会 提供 石板"},
		SuccessCriteria:  []string{"广场重新开放"},
		RiskRegister:     []string{"风险: 施工扰民 / 分时段施工"},
	}
}

func TestSubmitAndLookup(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/ideal-city/device-specs", submission())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	res := decode[pipeline.SubmitResult](t, resp)
	if res.Ruling.Verdict != model.VerdictAccept {
		t.Fatalf("verdict=%s (%v)", res.Ruling.Verdict, res.Ruling.Reasoning)
	}
	if res.Spec.SpecID == "" {
		t.Fatalf("no spec id")
	}

	get, err := http.Get(ts.URL + "/ideal-city/device-specs/" + res.Spec.SpecID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if get.StatusCode != http.StatusOK {
		t.Fatalf("get status=%d", get.StatusCode)
	}
	lookup := decode[struct {
		Spec   model.DeviceSpec          `json:"spec"`
		Ruling *model.AdjudicationRecord `json:"ruling"`
	}](t, get)
	if lookup.Spec.SpecID != res.Spec.SpecID {
		t.Fatalf("spec id mismatch: %s", lookup.Spec.SpecID)
	}
	if lookup.Ruling == nil || lookup.Ruling.RulingID != res.Ruling.RulingID {
		t.Fatalf("ruling: %+v", lookup.Ruling)
	}
}

func TestLatestRuling(t *testing.T) {
	ts, _ := newTestServer(t)

	if resp, err := http.Get(ts.URL + "/ideal-city/players/alice/latest-ruling"); err != nil {
		t.Fatalf("get: %v", err)
	} else if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 before any submission, got %d", resp.StatusCode)
	}

	postJSON(t, ts.URL+"/ideal-city/device-specs", submission()).Body.Close()

	resp, err := http.Get(ts.URL + "/ideal-city/players/alice/latest-ruling")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	out := decode[struct {
		Notice model.ExecutionNotice     `json:"notice"`
		Ruling *model.AdjudicationRecord `json:"ruling"`
	}](t, resp)
	if out.Notice.PlayerID != "alice" || out.Ruling == nil {
		t.Fatalf("latest ruling: %+v", out)
	}
}

func TestSubmitValidationError(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/ideal-city/device-specs", model.DeviceSpecSubmission{PlayerID: "alice"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status=%d", resp.StatusCode)
	}
}

func TestCityphoneStateRoute(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/ideal-city/cityphone/state/alice?scenario_id=plaza")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	state := decode[map[string]json.RawMessage](t, resp)
	for _, key := range []string{"city_interpretation", "unknowns", "history_entries", "narrative", "exhibit_mode", "exhibits"} {
		if _, ok := state[key]; !ok {
			t.Fatalf("missing key %q in %v", key, state)
		}
	}
	if len(state) != 6 {
		t.Fatalf("extra keys: %v", state)
	}
}

func TestCityphoneActionRoute(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/ideal-city/cityphone/action", pipeline.Action{
		Action: "push_pose", PlayerID: "alice",
		Pose: &model.PlayerPose{World: "world", X: 3, Y: 70, Z: -2},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	out := decode[pipeline.ActionResult](t, resp)
	if out.Status != "pose_recorded" {
		t.Fatalf("status=%q", out.Status)
	}

	bad := postJSON(t, ts.URL+"/ideal-city/cityphone/action", pipeline.Action{Action: "detonate", PlayerID: "alice"})
	defer bad.Body.Close()
	if bad.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad action status=%d", bad.StatusCode)
	}
}

func TestNarrativeIngestRoute(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/ideal-city/narrative/ingest", ingestRequest{
		PlayerID: "alice", ScenarioID: "plaza", Message: "今天天气不错",
	})
	out := decode[ingestResponse](t, resp)
	if out.Handled {
		t.Fatalf("plain chat handled")
	}

	resp = postJSON(t, ts.URL+"/ideal-city/narrative/ingest", ingestRequest{
		PlayerID: "alice", ScenarioID: "plaza", Message: "提案: 修复广场喷泉。先清理场地。再接管线。",
	})
	out = decode[ingestResponse](t, resp)
	if !out.Handled || out.Submission == nil {
		t.Fatalf("proposal not handled: %+v", out)
	}
}

func TestExecutedPlanRoute(t *testing.T) {
	ts, srv := newTestServer(t)

	if resp, err := http.Get(ts.URL + "/ideal-city/build-plans/executed/bplan_missing"); err != nil {
		t.Fatalf("get: %v", err)
	} else if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}

	plan := &model.BuildPlan{PlanID: "bplan_1", Summary: "测试"}
	if err := srv.scheduler.RecordExecution(plan, []string{"say 广场施工开始"}, model.PlanCompleted); err != nil {
		t.Fatalf("record: %v", err)
	}
	resp, err := http.Get(ts.URL + "/ideal-city/build-plans/executed/bplan_1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	got := decode[builder.ExecutionRecord](t, resp)
	if got.PlanID != "bplan_1" || len(got.Commands) != 1 {
		t.Fatalf("record: %+v", got)
	}
}

func TestModsRoutes(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/ideal-city/mods/refresh", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh status=%d", resp.StatusCode)
	}
	resp.Body.Close()

	list, err := http.Get(ts.URL + "/ideal-city/mods")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	out := decode[struct {
		Mods []mods.Mod `json:"mods"`
	}](t, list)
	if out.Mods == nil {
		t.Fatalf("mods must be an array")
	}
}

func TestCityphoneWS(t *testing.T) {
	ts, _ := newTestServer(t)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ideal-city/cityphone/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(pipeline.Action{Action: "request_state", PlayerID: "alice"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	var res pipeline.ActionResult
	if err := conn.ReadJSON(&res); err != nil {
		t.Fatalf("read: %v", err)
	}
	if res.Status != "ok" || res.State == nil {
		t.Fatalf("result: %+v", res)
	}

	if err := conn.WriteJSON(pipeline.Action{Action: "request_state"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	var wsErr wsError
	if err := conn.ReadJSON(&wsErr); err != nil {
		t.Fatalf("read: %v", err)
	}
	if wsErr.Error == "" {
		t.Fatalf("expected error for missing player id")
	}
}
