// Package httpapi exposes the adjudication pipeline over HTTP. Handlers
// decode, call the facade and encode; nothing here touches storage
// directly except the read-only lookup routes.
package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"idealcity/internal/builder"
	"idealcity/internal/model"
	"idealcity/internal/mods"
	"idealcity/internal/persistence/repo"
	"idealcity/internal/pipeline"
)

type Server struct {
	pipe      *pipeline.Pipeline
	store     *repo.Store
	scheduler *builder.Scheduler
	registry  *mods.Registry
	log       *log.Logger
}

func NewServer(pipe *pipeline.Pipeline, store *repo.Store, scheduler *builder.Scheduler, registry *mods.Registry, logger *log.Logger) *Server {
	return &Server{pipe: pipe, store: store, scheduler: scheduler, registry: registry, log: logger}
}

// Routes registers every endpoint on the mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/ideal-city/device-specs", s.handleSubmit)
	mux.HandleFunc("/ideal-city/device-specs/", s.handleGetSpec)
	mux.HandleFunc("/ideal-city/players/", s.handleLatestRuling)
	mux.HandleFunc("/ideal-city/cityphone/state/", s.handleCityphoneState)
	mux.HandleFunc("/ideal-city/cityphone/action", s.handleCityphoneAction)
	mux.HandleFunc("/ideal-city/cityphone/ws", s.handleCityphoneWS)
	mux.HandleFunc("/ideal-city/narrative/ingest", s.handleNarrativeIngest)
	mux.HandleFunc("/ideal-city/build-plans/executed/", s.handleExecutedPlan)
	mux.HandleFunc("/ideal-city/mods", s.handleMods)
	mux.HandleFunc("/ideal-city/mods/refresh", s.handleModsRefresh)
}

func (s *Server) handleSubmit(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var sub model.DeviceSpecSubmission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		writeError(rw, model.NewValidationError("bad request body"))
		return
	}
	res, err := s.pipe.Submit(r.Context(), sub)
	if err != nil {
		writeError(rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, res)
}

func (s *Server) handleGetSpec(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	specID := strings.TrimPrefix(r.URL.Path, "/ideal-city/device-specs/")
	if specID == "" || strings.Contains(specID, "/") {
		http.NotFound(rw, r)
		return
	}
	spec, found, err := s.store.GetSpec(specID)
	if err != nil {
		writeError(rw, err)
		return
	}
	if !found {
		http.NotFound(rw, r)
		return
	}
	ruling, hasRuling, err := s.store.RulingForSpec(specID)
	if err != nil {
		writeError(rw, err)
		return
	}
	resp := struct {
		Spec   model.DeviceSpec          `json:"spec"`
		Ruling *model.AdjudicationRecord `json:"ruling,omitempty"`
	}{Spec: spec}
	if hasRuling {
		resp.Ruling = &ruling
	}
	writeJSON(rw, http.StatusOK, resp)
}

// GET /ideal-city/players/{player_id}/latest-ruling
func (s *Server) handleLatestRuling(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/ideal-city/players/")
	playerID, op, ok := strings.Cut(rest, "/")
	if !ok || playerID == "" || op != "latest-ruling" {
		http.NotFound(rw, r)
		return
	}
	notice, found, err := s.store.LatestNoticeForPlayer(playerID)
	if err != nil {
		writeError(rw, err)
		return
	}
	if !found {
		http.NotFound(rw, r)
		return
	}
	resp := struct {
		Notice model.ExecutionNotice     `json:"notice"`
		Ruling *model.AdjudicationRecord `json:"ruling,omitempty"`
	}{Notice: notice}
	if ruling, hasRuling, err := s.store.GetRuling(notice.RulingID); err == nil && hasRuling {
		resp.Ruling = &ruling
	}
	writeJSON(rw, http.StatusOK, resp)
}

// GET /ideal-city/cityphone/state/{player_id}?scenario_id=...
func (s *Server) handleCityphoneState(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	playerID := strings.TrimPrefix(r.URL.Path, "/ideal-city/cityphone/state/")
	if playerID == "" || strings.Contains(playerID, "/") {
		http.NotFound(rw, r)
		return
	}
	state, err := s.pipe.CityphoneState(playerID, r.URL.Query().Get("scenario_id"))
	if err != nil {
		writeError(rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, state)
}

func (s *Server) handleCityphoneAction(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var action pipeline.Action
	if err := json.NewDecoder(r.Body).Decode(&action); err != nil {
		writeError(rw, model.NewValidationError("bad request body"))
		return
	}
	res, err := s.pipe.HandleCityphoneAction(r.Context(), action)
	if err != nil {
		writeError(rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, res)
}

type ingestRequest struct {
	PlayerID   string `json:"player_id"`
	ScenarioID string `json:"scenario_id,omitempty"`
	Message    string `json:"message"`
}

type ingestResponse struct {
	Handled    bool                   `json:"handled"`
	Submission *pipeline.SubmitResult `json:"submission,omitempty"`
}

// POST /ideal-city/narrative/ingest bridges chat lines; non-proposal
// lines return handled=false.
func (s *Server) handleNarrativeIngest(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(rw, model.NewValidationError("bad request body"))
		return
	}
	res, handled, err := s.pipe.IngestChat(r.Context(), req.PlayerID, req.ScenarioID, req.Message)
	if err != nil {
		writeError(rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, ingestResponse{Handled: handled, Submission: res})
}

func (s *Server) handleExecutedPlan(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	planID := strings.TrimPrefix(r.URL.Path, "/ideal-city/build-plans/executed/")
	if planID == "" || strings.Contains(planID, "/") {
		http.NotFound(rw, r)
		return
	}
	rec, err := s.scheduler.Executed(planID)
	if err != nil {
		http.NotFound(rw, r)
		return
	}
	writeJSON(rw, http.StatusOK, rec)
}

func (s *Server) handleMods(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	resp := struct {
		Mods        []mods.Mod `json:"mods"`
		RefreshedAt string     `json:"refreshed_at,omitempty"`
	}{Mods: s.registry.List()}
	if ts := s.registry.RefreshedAt(); !ts.IsZero() {
		resp.RefreshedAt = ts.Format("2006-01-02T15:04:05Z07:00")
	}
	if resp.Mods == nil {
		resp.Mods = []mods.Mod{}
	}
	writeJSON(rw, http.StatusOK, resp)
}

func (s *Server) handleModsRefresh(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := s.registry.Refresh(); err != nil {
		writeError(rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]int{"mods": len(s.registry.List())})
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

// writeError maps the error taxonomy onto status codes. Unknown errors
// stay opaque 500s.
func writeError(rw http.ResponseWriter, err error) {
	var coded *model.CodedError
	if errors.As(err, &coded) {
		status := http.StatusInternalServerError
		switch coded.Code {
		case model.ErrCodeValidation:
			status = http.StatusBadRequest
		case model.ErrCodeSafety:
			status = http.StatusUnprocessableEntity
		}
		writeJSON(rw, status, map[string]any{"error": coded})
		return
	}
	status := http.StatusInternalServerError
	if errors.Is(err, model.ErrValidation) {
		status = http.StatusBadRequest
	}
	writeJSON(rw, status, map[string]any{
		"error": map[string]string{"code": model.ErrCodeStorage, "message": err.Error()},
	})
}
