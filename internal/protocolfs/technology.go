package protocolfs

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"idealcity/internal/model"
)

const technologyFile = "technology-status.json"

// TechnologyReader reads technology-status.json written by the runtime.
// It never writes the file and tolerates partial or renamed keys.
type TechnologyReader struct {
	root string
}

func NewTechnologyReader(root string) *TechnologyReader {
	return &TechnologyReader{root: root}
}

// rawStatus accepts both the canonical key names and the legacy
// alternates (alerts, event_log, timestamp).
type rawStatus struct {
	Stage        model.TechnologyStage   `json:"stage"`
	Energy       model.TechnologyEnergy  `json:"energy"`
	Risks        []model.TechnologyRisk  `json:"risks"`
	Alerts       []model.TechnologyRisk  `json:"alerts"`
	RecentEvents []model.TechnologyEvent `json:"recent_events"`
	EventLog     []model.TechnologyEvent `json:"event_log"`
	UpdatedAt    string                  `json:"updated_at"`
	Timestamp    string                  `json:"timestamp"`
}

// Read returns the normalised status. A missing file yields a zero
// status without error; the runtime may simply not have started yet.
func (r *TechnologyReader) Read() (model.TechnologyStatus, error) {
	raw, err := os.ReadFile(filepath.Join(r.root, technologyFile))
	if err != nil {
		if os.IsNotExist(err) {
			return model.TechnologyStatus{}, nil
		}
		return model.TechnologyStatus{}, fmt.Errorf("technology status: %w", err)
	}
	var in rawStatus
	if err := json.Unmarshal(raw, &in); err != nil {
		return model.TechnologyStatus{}, fmt.Errorf("technology status: %w", err)
	}
	out := model.TechnologyStatus{
		Stage:        in.Stage,
		Energy:       in.Energy,
		Risks:        in.Risks,
		RecentEvents: in.RecentEvents,
		UpdatedAt:    in.UpdatedAt,
	}
	if len(out.Risks) == 0 {
		out.Risks = in.Alerts
	}
	if len(out.RecentEvents) == 0 {
		out.RecentEvents = in.EventLog
	}
	if out.UpdatedAt == "" {
		out.UpdatedAt = in.Timestamp
	}
	return out, nil
}

// Watcher pushes a fresh status to the callback whenever the runtime
// rewrites the file. Rename events matter: the runtime replaces the file
// atomically rather than writing in place.
type Watcher struct {
	reader  *TechnologyReader
	watcher *fsnotify.Watcher
	log     *log.Logger

	once sync.Once
	done chan struct{}
}

func NewWatcher(reader *TechnologyReader, logger *log.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("technology watcher: %w", err)
	}
	if err := fw.Add(reader.root); err != nil {
		fw.Close()
		return nil, fmt.Errorf("technology watcher: %w", err)
	}
	return &Watcher{reader: reader, watcher: fw, log: logger, done: make(chan struct{})}, nil
}

// Run blocks, invoking onChange for each rewrite until Close.
func (w *Watcher) Run(onChange func(model.TechnologyStatus)) {
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != technologyFile {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			status, err := w.reader.Read()
			if err != nil {
				if w.log != nil {
					w.log.Printf("technology watcher: %v", err)
				}
				continue
			}
			onChange(status)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if w.log != nil {
				w.log.Printf("technology watcher: %v", err)
			}
		}
	}
}

func (w *Watcher) Close() error {
	w.once.Do(func() { close(w.done) })
	return w.watcher.Close()
}
