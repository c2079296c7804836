package protocolfs

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

const (
	socialDir   = "cityphone/social-feed"
	eventsFile  = "events.jsonl"
	metricsFile = "metrics.json"
)

// Atmosphere thresholds on score = trust − stress.
const (
	celebrationAt = 0.35
	optimisticAt  = 0.15
)

// SocialFeed appends feed events as JSONL and maintains the rolling
// trust/stress metrics next to them.
type SocialFeed struct {
	dir string
	mu  sync.Mutex
}

func NewSocialFeed(root string) (*SocialFeed, error) {
	dir := filepath.Join(root, socialDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("social feed: %w", err)
	}
	return &SocialFeed{dir: dir}, nil
}

// Append records the event and folds its deltas into metrics.json.
func (s *SocialFeed) Append(ev model.SocialFeedEvent) error {
	if !ev.Category.Valid() {
		return fmt.Errorf("social feed: unknown category %q", ev.Category)
	}
	if ev.EntryID == "" {
		ev.EntryID = model.NewID("feed")
	}
	if ev.IssuedAt.IsZero() {
		ev.IssuedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("social feed: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(s.dir, eventsFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("social feed: %w", err)
	}
	if _, err := f.Write(append(raw, '\n')); err != nil {
		f.Close()
		return fmt.Errorf("social feed: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("social feed: %w", err)
	}

	metrics, err := s.readMetrics()
	if err != nil {
		return err
	}
	metrics.TrustIndex = clampUnit(metrics.TrustIndex + ev.TrustDelta)
	metrics.StressIndex = clampUnit(metrics.StressIndex + ev.StressDelta)
	metrics.UpdatedAt = time.Now().UTC()
	return s.writeMetrics(metrics)
}

// Events returns up to limit most recent events, oldest first.
func (s *SocialFeed) Events(limit int) ([]model.SocialFeedEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(filepath.Join(s.dir, eventsFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("social feed: %w", err)
	}
	defer f.Close()

	var events []model.SocialFeedEvent
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		var ev model.SocialFeedEvent
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("social feed: %w", err)
	}
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	return events, nil
}

func (s *SocialFeed) Metrics() (model.SocialMetrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readMetrics()
}

func (s *SocialFeed) readMetrics() (model.SocialMetrics, error) {
	raw, err := os.ReadFile(filepath.Join(s.dir, metricsFile))
	if err != nil {
		if os.IsNotExist(err) {
			return model.SocialMetrics{TrustIndex: 0.5, StressIndex: 0.5}, nil
		}
		return model.SocialMetrics{}, fmt.Errorf("social metrics: %w", err)
	}
	var m model.SocialMetrics
	if err := json.Unmarshal(raw, &m); err != nil {
		return model.SocialMetrics{}, fmt.Errorf("social metrics: %w", err)
	}
	return m, nil
}

func (s *SocialFeed) writeMetrics(m model.SocialMetrics) error {
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("social metrics: %w", err)
	}
	tmp := filepath.Join(s.dir, ".metrics.tmp")
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("social metrics: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(s.dir, metricsFile)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("social metrics: %w", err)
	}
	return nil
}

// Atmosphere classifies the city mood from trust − stress.
func Atmosphere(m model.SocialMetrics) model.SocialAtmosphere {
	score := m.TrustIndex - m.StressIndex
	a := model.SocialAtmosphere{Score: score}
	switch {
	case score >= celebrationAt:
		a.Mood, a.ParticleLevel, a.LightLevel = "celebration", 1.0, 1.0
	case score >= optimisticAt:
		a.Mood, a.ParticleLevel, a.LightLevel = "optimistic", 0.7, 0.9
	case score <= -celebrationAt:
		a.Mood, a.ParticleLevel, a.LightLevel = "crisis", 0.1, 0.4
	case score <= -optimisticAt:
		a.Mood, a.ParticleLevel, a.LightLevel = "uneasy", 0.25, 0.6
	default:
		a.Mood, a.ParticleLevel, a.LightLevel = "balanced", 0.4, 0.8
	}
	return a
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
