// Package repo persists specs, rulings, notices and plans as append-only
// JSONL streams with frozen snapshot metadata. The facade is the only
// writer; a single mutex serialises appends across players.
package repo

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

// Envelope wraps every persisted record. snapshot_id and frozen_at are
// write-time metadata and excluded from structural equality.
type Envelope struct {
	SnapshotID string          `json:"snapshot_id"`
	FrozenAt   time.Time       `json:"frozen_at"`
	Kind       string          `json:"kind"`
	Record     json.RawMessage `json:"record"`
}

// Indexer receives best-effort notifications after a successful append.
// Implementations must not block; the JSONL stream stays canonical.
type Indexer interface {
	IndexSpec(model.DeviceSpec)
	IndexRuling(model.AdjudicationRecord)
	IndexNotice(model.ExecutionNotice)
	IndexPlan(model.BuildPlan)
}

type Store struct {
	mu    sync.Mutex
	root  string
	index Indexer

	specsPath   string
	rulingsPath string
	noticesPath string
	plansPath   string
}

func Open(dataRoot string, index Indexer) (*Store, error) {
	if err := os.MkdirAll(dataRoot, 0o755); err != nil {
		return nil, fmt.Errorf("%w: data root: %v", model.ErrStorage, err)
	}
	return &Store{
		root:        dataRoot,
		index:       index,
		specsPath:   filepath.Join(dataRoot, "device_specs.jsonl"),
		rulingsPath: filepath.Join(dataRoot, "adjudication_rulings.jsonl"),
		noticesPath: filepath.Join(dataRoot, "execution_notices.jsonl"),
		plansPath:   filepath.Join(dataRoot, "build_plans.jsonl"),
	}, nil
}

func (s *Store) appendRecord(path, kind string, record any) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("repo marshal %s: %w", kind, err)
	}
	env := Envelope{
		SnapshotID: model.NewID("snap"),
		FrozenAt:   time.Now().UTC(),
		Kind:       kind,
		Record:     raw,
	}
	line, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("repo marshal envelope: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("%w: repo open %s: %v", model.ErrStorage, kind, err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("%w: repo write %s: %v", model.ErrStorage, kind, err)
	}
	return nil
}

// scan walks a JSONL stream, decoding each envelope's record into a fresh
// value from mk and handing it to fn; fn returns false to stop early.
func scan[T any](path string, fn func(T) bool) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("%w: repo open: %v", model.ErrStorage, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var env Envelope
		if err := json.Unmarshal(line, &env); err != nil {
			continue
		}
		var rec T
		if err := json.Unmarshal(env.Record, &rec); err != nil {
			continue
		}
		if !fn(rec) {
			return nil
		}
	}
	return sc.Err()
}

func (s *Store) AppendSpec(spec model.DeviceSpec) error {
	if err := s.appendRecord(s.specsPath, "device_spec", spec); err != nil {
		return err
	}
	if s.index != nil {
		s.index.IndexSpec(spec)
	}
	return nil
}

func (s *Store) GetSpec(specID string) (model.DeviceSpec, bool, error) {
	var out model.DeviceSpec
	found := false
	err := scan(s.specsPath, func(rec model.DeviceSpec) bool {
		if rec.SpecID == specID {
			out, found = rec, true
			return false
		}
		return true
	})
	return out, found, err
}

func (s *Store) AppendRuling(r model.AdjudicationRecord) error {
	if err := s.appendRecord(s.rulingsPath, "adjudication_ruling", r); err != nil {
		return err
	}
	if s.index != nil {
		s.index.IndexRuling(r)
	}
	return nil
}

func (s *Store) GetRuling(rulingID string) (model.AdjudicationRecord, bool, error) {
	var out model.AdjudicationRecord
	found := false
	err := scan(s.rulingsPath, func(rec model.AdjudicationRecord) bool {
		if rec.RulingID == rulingID {
			out, found = rec, true
			return false
		}
		return true
	})
	return out, found, err
}

// RulingForSpec returns the latest ruling for a spec (re-adjudication
// appends a new ruling, so last wins).
func (s *Store) RulingForSpec(specID string) (model.AdjudicationRecord, bool, error) {
	var out model.AdjudicationRecord
	found := false
	err := scan(s.rulingsPath, func(rec model.AdjudicationRecord) bool {
		if rec.DeviceSpecID == specID {
			out, found = rec, true
		}
		return true
	})
	return out, found, err
}

func (s *Store) AppendNotice(n model.ExecutionNotice) error {
	if err := s.appendRecord(s.noticesPath, "execution_notice", n); err != nil {
		return err
	}
	if s.index != nil {
		s.index.IndexNotice(n)
	}
	return nil
}

// LatestNoticeForPlayer scans for the most recent notice of a player.
func (s *Store) LatestNoticeForPlayer(playerID string) (model.ExecutionNotice, bool, error) {
	var out model.ExecutionNotice
	found := false
	err := scan(s.noticesPath, func(rec model.ExecutionNotice) bool {
		if rec.PlayerID == playerID {
			out, found = rec, true
		}
		return true
	})
	return out, found, err
}

func (s *Store) AppendPlan(p model.BuildPlan) error {
	if err := s.appendRecord(s.plansPath, "build_plan", p); err != nil {
		return err
	}
	if s.index != nil {
		s.index.IndexPlan(p)
	}
	return nil
}

func (s *Store) GetPlan(planID string) (model.BuildPlan, bool, error) {
	var out model.BuildPlan
	found := false
	err := scan(s.plansPath, func(rec model.BuildPlan) bool {
		if rec.PlanID == planID {
			out, found = rec, true
		}
		return true
	})
	return out, found, err
}
