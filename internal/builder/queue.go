// Package builder owns the build queue and the mod-hook executor that
// turns queued plans into dispatchable command batches.
package builder

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"idealcity/internal/model"
)

const queueFile = "build_queue.jsonl"

// Scheduler is an append-only JSONL queue with atomic pops. Archived
// plans land in completed/ or failed/ as standalone JSON snapshots.
type Scheduler struct {
	dir string
	mu  sync.Mutex
	log *log.Logger
}

func NewScheduler(dir string, logger *log.Logger) (*Scheduler, error) {
	for _, sub := range []string{"", "completed", "failed", "executed"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("build queue: %w", err)
		}
	}
	return &Scheduler{dir: dir, log: logger}, nil
}

// Enqueue marks the plan queued and appends it to the queue file.
func (s *Scheduler) Enqueue(plan *model.BuildPlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	plan.Status = model.PlanQueued
	raw, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("build queue: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(s.dir, queueFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("build queue: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(raw, '\n')); err != nil {
		return fmt.Errorf("build queue: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("build queue: %w", err)
	}
	if s.log != nil {
		s.log.Printf("enqueued plan %s (%s)", plan.PlanID, plan.Summary)
	}
	return nil
}

// PopNext removes and returns the first valid queued plan. The remainder
// is rewritten through a temp file so a crash mid-pop loses nothing.
func (s *Scheduler) PopNext() (*model.BuildPlan, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	plans, err := s.readQueue()
	if err != nil {
		return nil, false, err
	}
	if len(plans) == 0 {
		return nil, false, nil
	}
	head := plans[0]
	if err := s.rewriteQueue(plans[1:]); err != nil {
		return nil, false, err
	}
	head.Status = model.PlanRunning
	return &head, true, nil
}

// Pending returns the queued plans in order without consuming them.
func (s *Scheduler) Pending() ([]model.BuildPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readQueue()
}

// Archive writes a JSON snapshot of the plan under completed/ or
// failed/ (blocked plans count as failures).
func (s *Scheduler) Archive(plan *model.BuildPlan, status model.PlanStatus) error {
	plan.Status = status
	sub := "failed"
	if status == model.PlanCompleted {
		sub = "completed"
	}
	raw, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return fmt.Errorf("archive plan: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, sub, plan.PlanID+".json"), raw, 0o644); err != nil {
		return fmt.Errorf("archive plan: %w", err)
	}
	if s.log != nil {
		s.log.Printf("archived plan %s as %s", plan.PlanID, status)
	}
	return nil
}

// ExecutionRecord is the per-plan dispatch log under executed/.
type ExecutionRecord struct {
	PlanID     string           `json:"plan_id"`
	Summary    string           `json:"summary"`
	Commands   []string         `json:"commands"`
	Status     model.PlanStatus `json:"status"`
	ExecutedAt time.Time        `json:"executed_at"`
}

// RecordExecution snapshots the resolved command batch for a plan.
func (s *Scheduler) RecordExecution(plan *model.BuildPlan, commands []string, status model.PlanStatus) error {
	rec := ExecutionRecord{
		PlanID:     plan.PlanID,
		Summary:    plan.Summary,
		Commands:   commands,
		Status:     status,
		ExecutedAt: time.Now().UTC(),
	}
	raw, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("execution record: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, "executed", plan.PlanID+".json"), raw, 0o644); err != nil {
		return fmt.Errorf("execution record: %w", err)
	}
	return nil
}

// Executed loads the dispatch log for one plan.
func (s *Scheduler) Executed(planID string) (ExecutionRecord, error) {
	var rec ExecutionRecord
	raw, err := os.ReadFile(filepath.Join(s.dir, "executed", planID+".json"))
	if err != nil {
		return rec, fmt.Errorf("execution record: %w", err)
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		return rec, fmt.Errorf("execution record: %w", err)
	}
	return rec, nil
}

func (s *Scheduler) readQueue() ([]model.BuildPlan, error) {
	f, err := os.Open(filepath.Join(s.dir, queueFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("build queue: %w", err)
	}
	defer f.Close()

	var plans []model.BuildPlan
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var plan model.BuildPlan
		if err := json.Unmarshal(line, &plan); err != nil {
			// Corrupt entries are skipped, not fatal.
			if s.log != nil {
				s.log.Printf("skipping corrupt queue entry: %v", err)
			}
			continue
		}
		plans = append(plans, plan)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("build queue: %w", err)
	}
	return plans, nil
}

func (s *Scheduler) rewriteQueue(plans []model.BuildPlan) error {
	tmp, err := os.CreateTemp(s.dir, ".queue-*.tmp")
	if err != nil {
		return fmt.Errorf("build queue: %w", err)
	}
	w := bufio.NewWriter(tmp)
	for _, plan := range plans {
		raw, err := json.Marshal(plan)
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
			return fmt.Errorf("build queue: %w", err)
		}
		w.Write(raw)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("build queue: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("build queue: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("build queue: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, queueFile)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("build queue: %w", err)
	}
	return nil
}
