// Package txlog is the append-only patch transaction log. Entries are never
// rewritten; status transitions append new entries for the same
// (patch_id, template_id, step_id) key and the latest entry wins.
package txlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"idealcity/internal/model"
)

type Key struct {
	PatchID    string
	TemplateID string
	StepID     string
}

type Log struct {
	path string
	mu   sync.Mutex
}

// Open prepares the transaction log under <dataRoot>/patch_logs.
func Open(dataRoot string) (*Log, error) {
	dir := filepath.Join(dataRoot, "patch_logs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: txlog dir: %v", model.ErrStorage, err)
	}
	return &Log{path: filepath.Join(dir, "transactions.log")}, nil
}

func (l *Log) Path() string { return l.path }

// Append writes one entry. A zero CreatedAt is stamped here.
func (l *Log) Append(e model.PatchTransactionEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("txlog marshal: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("%w: txlog open: %v", model.ErrStorage, err)
	}
	defer f.Close()
	if _, err := f.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("%w: txlog write: %v", model.ErrStorage, err)
	}
	return nil
}

// Entries scans the whole log in order. A trailing partial line (crash
// mid-append) is ignored.
func (l *Log) Entries() ([]model.PatchTransactionEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: txlog open: %v", model.ErrStorage, err)
	}
	defer f.Close()

	var out []model.PatchTransactionEntry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var e model.PatchTransactionEntry
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	if err := sc.Err(); err != nil {
		return out, fmt.Errorf("%w: txlog scan: %v", model.ErrStorage, err)
	}
	return out, nil
}

// LatestByKey reconstructs current state: last entry per key wins.
func (l *Log) LatestByKey() (map[Key]model.PatchTransactionEntry, error) {
	entries, err := l.Entries()
	if err != nil {
		return nil, err
	}
	out := make(map[Key]model.PatchTransactionEntry, len(entries))
	for _, e := range entries {
		out[Key{e.PatchID, e.TemplateID, e.StepID}] = e
	}
	return out, nil
}

// ForPatch returns the latest entry per template key for one patch id, in
// first-seen order.
func (l *Log) ForPatch(patchID string) ([]model.PatchTransactionEntry, error) {
	entries, err := l.Entries()
	if err != nil {
		return nil, err
	}
	idx := map[Key]int{}
	var out []model.PatchTransactionEntry
	for _, e := range entries {
		if e.PatchID != patchID {
			continue
		}
		k := Key{e.PatchID, e.TemplateID, e.StepID}
		if i, ok := idx[k]; ok {
			out[i] = e
			continue
		}
		idx[k] = len(out)
		out = append(out, e)
	}
	return out, nil
}
