package mods

import (
	"os"
	"path/filepath"
	"testing"
)

func seedMod(t *testing.T, root, dirName, manifest string) {
	t.Helper()
	dir := filepath.Join(root, dirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "manifest.json"), []byte(manifest), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
}

func TestRefreshAndList(t *testing.T) {
	root := t.TempDir()
	seedMod(t, root, "drift_city", `{"id":"drift_city","namespace":"drift_city","version":"1.2.0",
	  "entry_points":[{"identifier":"beacon","commands":["function drift_city:beacon_up"]}]}`)
	seedMod(t, root, "plain", `{"version":"0.1.0"}`)
	// Directory without a manifest is skipped.
	if err := os.MkdirAll(filepath.Join(root, "junk"), 0o755); err != nil {
		t.Fatalf("mkdir junk: %v", err)
	}

	r := NewRegistry(root)
	if err := r.Refresh(); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	list := r.List()
	if len(list) != 2 {
		t.Fatalf("len=%d want 2", len(list))
	}
	if list[0].ID != "drift_city" || list[1].ID != "plain" {
		t.Fatalf("order: %v, %v", list[0].ID, list[1].ID)
	}

	m, ok := r.Get("drift_city")
	if !ok {
		t.Fatalf("missing drift_city")
	}
	if len(m.EntryPoints) != 1 || m.EntryPoints[0].Identifier != "beacon" {
		t.Fatalf("entry points: %+v", m.EntryPoints)
	}
	// Manifest without id takes the directory name.
	if _, ok := r.Get("plain"); !ok {
		t.Fatalf("missing plain")
	}
}

func TestRefresh_MissingRootIsEmpty(t *testing.T) {
	r := NewRegistry(filepath.Join(t.TempDir(), "absent"))
	if err := r.Refresh(); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if len(r.List()) != 0 {
		t.Fatalf("expected empty registry")
	}
}

func TestHasInitFunction(t *testing.T) {
	root := t.TempDir()
	seedMod(t, root, "drift_city", `{"id":"drift_city","namespace":"drift_city"}`)
	fn := filepath.Join(root, "drift_city", "data", "drift_city_beacon", "functions", "init.mcfunction")
	if err := os.MkdirAll(filepath.Dir(fn), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(fn, []byte("say hello\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	r := NewRegistry(root)
	if err := r.Refresh(); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	m, _ := r.Get("drift_city")
	if !r.HasInitFunction(m, "beacon") {
		t.Fatalf("expected init function")
	}
	if r.HasInitFunction(m, "other") {
		t.Fatalf("unexpected init function")
	}
}
