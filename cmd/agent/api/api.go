// Package api exposes the agent's control surface over HTTP: lifecycle
// start/stop, country updates, external recording control, status, the
// recording catalog, and a websocket feed of sync pipeline events.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"

	"github.com/visiondrive/agent/lib/logger"
	"github.com/visiondrive/agent/lib/region"
	"github.com/visiondrive/agent/lib/store"
	"github.com/visiondrive/agent/lib/syncer"
	"github.com/visiondrive/agent/lib/vision"
)

type ApiService struct {
	manager *vision.Manager
	catalog *store.Store
	events  *syncer.Broadcaster
}

func New(manager *vision.Manager, catalog *store.Store, events *syncer.Broadcaster) *ApiService {
	return &ApiService{
		manager: manager,
		catalog: catalog,
		events:  events,
	}
}

// Register mounts all handlers on r.
func (s *ApiService) Register(r chi.Router) {
	r.Post("/lifecycle/start", s.StartLifecycle)
	r.Post("/lifecycle/stop", s.StopLifecycle)
	r.Put("/country", s.UpdateCountry)
	r.Post("/recording/start", s.StartRecording)
	r.Post("/recording/stop", s.StopRecording)
	r.Get("/status", s.GetStatus)
	r.Get("/recordings", s.ListRecordings)
	r.Get("/events", s.HandleEventsSocket)
}

// Shutdown releases the vision subsystem.
func (s *ApiService) Shutdown(ctx context.Context) error {
	return s.manager.Destroy(ctx)
}

type errorResponse struct {
	Error string `json:"error"`
}

type updateCountryRequest struct {
	Country string `json:"country"`
}

type startRecordingRequest struct {
	Path string `json:"path"`
}

type recordingDTO struct {
	ID         string     `json:"id"`
	Path       string     `json:"path"`
	Bucket     string     `json:"bucket"`
	SizeBytes  int64      `json:"size_bytes"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    time.Time  `json:"ended_at"`
	Uploaded   bool       `json:"uploaded"`
	UploadedAt *time.Time `json:"uploaded_at,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeManagerError maps the vision sentinel errors onto HTTP statuses.
func writeManagerError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContext(r.Context())
	switch {
	case errors.Is(err, vision.ErrDestroyed):
		writeJSON(w, http.StatusGone, errorResponse{Error: err.Error()})
	case errors.Is(err, vision.ErrNotRunning):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, vision.ErrInvalidPath):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	default:
		log.Error("control operation failed", "path", r.URL.Path, "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
}

// StartLifecycle endpoint
// (POST /lifecycle/start)
func (s *ApiService) StartLifecycle(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.Start(r.Context()); err != nil {
		writeManagerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.manager.Status())
}

// StopLifecycle endpoint
// (POST /lifecycle/stop)
func (s *ApiService) StopLifecycle(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.Stop(r.Context()); err != nil {
		writeManagerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.manager.Status())
}

// UpdateCountry endpoint
// (PUT /country)
func (s *ApiService) UpdateCountry(w http.ResponseWriter, r *http.Request) {
	var req updateCountryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if err := s.manager.OnCountryUpdated(r.Context(), region.CountryCode(req.Country)); err != nil {
		writeManagerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.manager.Status())
}

// StartRecording endpoint
// (POST /recording/start)
func (s *ApiService) StartRecording(w http.ResponseWriter, r *http.Request) {
	var req startRecordingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if err := s.manager.StartRecording(r.Context(), req.Path); err != nil {
		writeManagerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.manager.Status())
}

// StopRecording endpoint
// (POST /recording/stop)
func (s *ApiService) StopRecording(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.StopRecording(r.Context()); err != nil {
		writeManagerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.manager.Status())
}

// GetStatus endpoint
// (GET /status)
func (s *ApiService) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.Status())
}

// ListRecordings endpoint
// (GET /recordings)
func (s *ApiService) ListRecordings(w http.ResponseWriter, r *http.Request) {
	recs, err := s.catalog.List(r.Context())
	if err != nil {
		writeManagerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lo.Map(recs, func(rec store.Recording, _ int) recordingDTO {
		return recordingDTO{
			ID:         rec.ID,
			Path:       rec.Path,
			Bucket:     rec.Bucket,
			SizeBytes:  rec.SizeBytes,
			StartedAt:  rec.StartedAt,
			EndedAt:    rec.EndedAt,
			Uploaded:   rec.Uploaded,
			UploadedAt: rec.UploadedAt,
		}
	}))
}
