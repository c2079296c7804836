// Package indexdb keeps a sqlite lookup index beside the JSONL streams.
// The JSONL logs stay canonical; rows here are a best-effort acceleration
// for admin queries and can be rebuilt by replaying the logs.
package indexdb

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	_ "modernc.org/sqlite"

	"idealcity/internal/model"
)

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed  atomic.Bool
	dropped atomic.Uint64
}

type reqKind int

const (
	reqSpec reqKind = iota + 1
	reqRuling
	reqNotice
	reqPlan
	reqFlush
)

type req struct {
	kind   reqKind
	spec   model.DeviceSpec
	ruling model.AdjudicationRecord
	notice model.ExecutionNotice
	plan   model.BuildPlan
	done   chan struct{}
}

func Open(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	idx := &SQLiteIndex{
		db: db,
		ch: make(chan req, 1024),
	}
	idx.wg.Add(1)
	go idx.writer()
	return idx, nil
}

func migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS specs (
			spec_id TEXT PRIMARY KEY,
			author_ref TEXT NOT NULL,
			scenario_id TEXT NOT NULL,
			is_draft INTEGER NOT NULL,
			submitted_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS rulings (
			ruling_id TEXT PRIMARY KEY,
			spec_id TEXT NOT NULL,
			verdict TEXT NOT NULL,
			ts TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS notices (
			notice_id TEXT PRIMARY KEY,
			player_id TEXT NOT NULL,
			spec_id TEXT NOT NULL,
			plan_id TEXT,
			verdict TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS plans (
			plan_id TEXT PRIMARY KEY,
			scenario_id TEXT,
			status TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rulings_spec ON rulings(spec_id)`,
		`CREATE INDEX IF NOT EXISTS idx_notices_player ON notices(player_id)`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return fmt.Errorf("indexdb migrate: %w", err)
		}
	}
	return nil
}

const tsFormat = "2006-01-02T15:04:05Z"

func (x *SQLiteIndex) writer() {
	defer x.wg.Done()
	for r := range x.ch {
		var err error
		switch r.kind {
		case reqSpec:
			_, err = x.db.Exec(
				`INSERT OR REPLACE INTO specs (spec_id, author_ref, scenario_id, is_draft, submitted_at) VALUES (?,?,?,?,?)`,
				r.spec.SpecID, r.spec.AuthorRef, r.spec.ScenarioID, boolInt(r.spec.IsDraft), r.spec.SubmittedAt.UTC().Format(tsFormat))
		case reqRuling:
			_, err = x.db.Exec(
				`INSERT OR REPLACE INTO rulings (ruling_id, spec_id, verdict, ts) VALUES (?,?,?,?)`,
				r.ruling.RulingID, r.ruling.DeviceSpecID, string(r.ruling.Verdict), r.ruling.Timestamp.UTC().Format(tsFormat))
		case reqNotice:
			_, err = x.db.Exec(
				`INSERT OR REPLACE INTO notices (notice_id, player_id, spec_id, plan_id, verdict, created_at) VALUES (?,?,?,?,?,?)`,
				r.notice.NoticeID, r.notice.PlayerID, r.notice.SpecID, r.notice.PlanID, string(r.notice.Verdict), r.notice.CreatedAt.UTC().Format(tsFormat))
		case reqPlan:
			_, err = x.db.Exec(
				`INSERT OR REPLACE INTO plans (plan_id, scenario_id, status, created_at) VALUES (?,?,?,?)`,
				r.plan.PlanID, r.plan.OriginScenario, string(r.plan.Status), r.plan.CreatedAt.UTC().Format(tsFormat))
		case reqFlush:
			close(r.done)
			continue
		}
		if err != nil {
			x.dropped.Add(1)
		}
	}
}

// enqueue never blocks the pipeline; on a full channel the row is dropped
// and counted, the canonical JSONL already has it.
func (x *SQLiteIndex) enqueue(r req) {
	if x.closed.Load() {
		return
	}
	select {
	case x.ch <- r:
	default:
		x.dropped.Add(1)
	}
}

func (x *SQLiteIndex) IndexSpec(s model.DeviceSpec) { x.enqueue(req{kind: reqSpec, spec: s}) }
func (x *SQLiteIndex) IndexRuling(r model.AdjudicationRecord) {
	x.enqueue(req{kind: reqRuling, ruling: r})
}
func (x *SQLiteIndex) IndexNotice(n model.ExecutionNotice) { x.enqueue(req{kind: reqNotice, notice: n}) }
func (x *SQLiteIndex) IndexPlan(p model.BuildPlan)         { x.enqueue(req{kind: reqPlan, plan: p}) }

// Dropped reports rows lost to backpressure or write errors.
func (x *SQLiteIndex) Dropped() uint64 { return x.dropped.Load() }

// Flush blocks until previously queued writes have landed.
func (x *SQLiteIndex) Flush() {
	if x.closed.Load() {
		return
	}
	done := make(chan struct{})
	x.ch <- req{kind: reqFlush, done: done}
	<-done
}

// Stats returns row counts per table.
func (x *SQLiteIndex) Stats() (map[string]int, error) {
	out := map[string]int{}
	for _, table := range []string{"specs", "rulings", "notices", "plans"} {
		var n int
		if err := x.db.QueryRow(`SELECT COUNT(*) FROM ` + table).Scan(&n); err != nil {
			return nil, err
		}
		out[table] = n
	}
	return out, nil
}

// VerdictCounts aggregates rulings by verdict.
func (x *SQLiteIndex) VerdictCounts() (map[string]int, error) {
	rows, err := x.db.Query(`SELECT verdict, COUNT(*) FROM rulings GROUP BY verdict`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var v string
		var n int
		if err := rows.Scan(&v, &n); err != nil {
			return nil, err
		}
		out[v] = n
	}
	return out, rows.Err()
}

func (x *SQLiteIndex) Close() error {
	var err error
	x.once.Do(func() {
		x.closed.Store(true)
		close(x.ch)
		x.wg.Wait()
		err = x.db.Close()
	})
	return err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
