package worldview

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWorldviewStore_LoadAndDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "worldview.json")
	body := `{"spirit_banner":"共建之城","follow_up_templates":["请补充运营安排"]}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	wv, err := NewWorldviewStore(path).Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if wv.SpiritBanner != "共建之城" || len(wv.FollowUpTemplates) != 1 {
		t.Fatalf("worldview: %+v", wv)
	}

	// Missing file falls back to the built-in banner.
	wv, err = NewWorldviewStore(filepath.Join(dir, "absent.json")).Load()
	if err != nil {
		t.Fatalf("default load: %v", err)
	}
	if wv.SpiritBanner == "" || len(wv.RejectionTemplates) == 0 {
		t.Fatalf("default worldview incomplete: %+v", wv)
	}
}

func TestScenarioStore_GetCachesAndLists(t *testing.T) {
	dir := t.TempDir()
	body := `{"title":"灯塔季","summary":"为港口立起灯塔","contextual_constraints":["不得遮挡航道"],"success_markers":["灯塔点亮"],"risks":["能源不足"],"touchstones":["港口记忆"]}`
	if err := os.WriteFile(filepath.Join(dir, "lighthouse.json"), []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	store := NewScenarioStore(dir)
	sc, err := store.Get("lighthouse")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if sc.ScenarioID != "lighthouse" || sc.Title != "灯塔季" {
		t.Fatalf("scenario: %+v", sc)
	}
	if sc.FirstTouchstone() != "港口记忆" {
		t.Fatalf("touchstone: %q", sc.FirstTouchstone())
	}

	// Cached copy survives file removal.
	if err := os.Remove(filepath.Join(dir, "lighthouse.json")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := store.Get("lighthouse"); err != nil {
		t.Fatalf("cached get: %v", err)
	}

	if _, err := store.Get("missing"); err == nil {
		t.Fatalf("expected error for missing scenario")
	}
}

func TestScenarioStore_List(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.json", "a.json", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(`{}`), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	ids, err := NewScenarioStore(dir).List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Fatalf("ids: %v", ids)
	}
}
