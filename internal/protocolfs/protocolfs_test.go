package protocolfs

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"idealcity/internal/model"
)

func TestIntentWriter_AtomicPublish(t *testing.T) {
	root := t.TempDir()
	w, err := NewIntentWriter(root, true, nil)
	if err != nil {
		t.Fatalf("writer: %v", err)
	}

	// Lifecycle siblings exist up front.
	for _, stage := range intentStages {
		if _, err := os.Stat(filepath.Join(root, intentsDir, stage)); err != nil {
			t.Fatalf("stage dir %s: %v", stage, err)
		}
	}

	intent := NewIntent("lighthouse", "2", 1, 0.9, []string{"不得遮挡航道"}, []string{"港口记忆"}, 30*time.Minute)
	if !intent.ExpiresAt.After(intent.IssuedAt) {
		t.Fatalf("expiry: %+v", intent)
	}
	if intent.Constraints[len(intent.Constraints)-1] != "no_stage_skip" {
		t.Fatalf("constraints: %v", intent.Constraints)
	}

	if err := w.Write(model.IntentEnvelope{PlayerID: "p1", Intent: intent}); err != nil {
		t.Fatalf("write: %v", err)
	}

	names, err := w.Pending()
	if err != nil || len(names) != 1 || names[0] != intent.IntentID+".json" {
		t.Fatalf("pending: %v err=%v", names, err)
	}
	// No temp file leaked.
	entries, _ := os.ReadDir(filepath.Join(root, intentsDir, "pending"))
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Fatalf("temp file visible: %s", e.Name())
		}
	}
	if _, err := os.Stat(filepath.Join(root, intentsDir, auditFileName)); err != nil {
		t.Fatalf("audit log: %v", err)
	}
}

func TestTechnologyReader_AlternateKeys(t *testing.T) {
	root := t.TempDir()
	r := NewTechnologyReader(root)

	// Missing file is a zero status.
	status, err := r.Read()
	if err != nil || status.UpdatedAt != "" {
		t.Fatalf("zero status: %+v err=%v", status, err)
	}

	body := `{"stage":{"label":"起步","level":1},
	  "alerts":[{"risk_id":"r1","level":"high"}],
	  "event_log":[{"event_id":"e1","description":"电网波动"}],
	  "timestamp":"2026-08-29T10:00:00Z"}`
	if err := os.WriteFile(filepath.Join(root, technologyFile), []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	status, err = r.Read()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(status.Risks) != 1 || status.Risks[0].RiskID != "r1" {
		t.Fatalf("alerts not mapped: %+v", status)
	}
	if len(status.RecentEvents) != 1 || status.RecentEvents[0].EventID != "e1" {
		t.Fatalf("event_log not mapped: %+v", status)
	}
	if status.UpdatedAt != "2026-08-29T10:00:00Z" {
		t.Fatalf("timestamp not mapped: %q", status.UpdatedAt)
	}
}

func TestSocialFeed_AppendAndMetrics(t *testing.T) {
	feed, err := NewSocialFeed(t.TempDir())
	if err != nil {
		t.Fatalf("feed: %v", err)
	}

	if err := feed.Append(model.SocialFeedEvent{Category: "gossip"}); err == nil {
		t.Fatalf("unknown category accepted")
	}

	if err := feed.Append(model.SocialFeedEvent{
		Category: model.SocialPraise, Title: "灯塔点亮", TrustDelta: 0.2, StressDelta: -0.1,
	}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := feed.Append(model.SocialFeedEvent{
		Category: model.SocialConcern, Title: "噪音投诉", StressDelta: 0.05,
	}); err != nil {
		t.Fatalf("append: %v", err)
	}

	events, err := feed.Events(10)
	if err != nil || len(events) != 2 {
		t.Fatalf("events: %v err=%v", events, err)
	}
	if events[0].EntryID == "" || events[0].IssuedAt.IsZero() {
		t.Fatalf("event not stamped: %+v", events[0])
	}

	m, err := feed.Metrics()
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	// 0.5+0.2, 0.5-0.1+0.05
	if math.Abs(m.TrustIndex-0.7) > 1e-9 || math.Abs(m.StressIndex-0.45) > 1e-9 {
		t.Fatalf("metrics: %+v", m)
	}

	last, err := feed.Events(1)
	if err != nil || len(last) != 1 || last[0].Title != "噪音投诉" {
		t.Fatalf("limit: %+v err=%v", last, err)
	}
}

func TestAtmosphereThresholds(t *testing.T) {
	cases := []struct {
		trust, stress float64
		mood          string
	}{
		{0.9, 0.1, "celebration"},
		{0.7, 0.5, "optimistic"},
		{0.5, 0.5, "balanced"},
		{0.4, 0.6, "uneasy"},
		{0.1, 0.9, "crisis"},
	}
	for _, c := range cases {
		got := Atmosphere(model.SocialMetrics{TrustIndex: c.trust, StressIndex: c.stress})
		if got.Mood != c.mood {
			t.Fatalf("trust=%.2f stress=%.2f mood=%s want %s", c.trust, c.stress, got.Mood, c.mood)
		}
	}
}
