// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/whenworks/whenworks/internal/model"
	"github.com/whenworks/whenworks/internal/repository"
	"github.com/whenworks/whenworks/internal/service"
)

// EventHandler holds all HTTP handlers for the date poll API.
type EventHandler struct {
	svc *service.SchedulerService
	log zerolog.Logger
}

// NewEventHandler constructs an EventHandler.
func NewEventHandler(svc *service.SchedulerService, log zerolog.Logger) *EventHandler {
	return &EventHandler{svc: svc, log: log}
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}

func decodeJSON(r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// ─── Handlers ─────────────────────────────────────────────────────────────────

// CreateEvent handles POST /events
// Creates a new event with its organizer-suggested candidate dates.
func (h *EventHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req model.CreateEventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	event, err := h.svc.CreateEvent(r.Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.log.Error().Err(err).Msg("create event failed")
		writeError(w, http.StatusInternalServerError, "failed to create event")
		return
	}

	writeJSON(w, http.StatusCreated, event)
}

// ListEvents handles GET /events?organizer_id=...
// Returns the organizer's events with their candidate dates.
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	organizerID := r.URL.Query().Get("organizer_id")

	events, err := h.svc.GetEventsByOrganizer(r.Context(), organizerID)
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.log.Error().Err(err).Msg("list events failed")
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}

	writeJSON(w, http.StatusOK, events)
}

// GetEventAvailability handles GET /events/{id}/availability
// Returns the per-date aggregate dashboard for an event.
func (h *EventHandler) GetEventAvailability(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	availability, err := h.svc.GetEventAvailability(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			writeError(w, http.StatusNotFound, "event not found")
		case errors.Is(err, service.ErrValidation):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.log.Error().Err(err).Msg("get availability failed")
			writeError(w, http.StatusInternalServerError, "failed to get availability")
		}
		return
	}

	writeJSON(w, http.StatusOK, availability)
}

// GetEventByToken handles GET /p/{token}
// Resolves an event through its secret sharing link.
func (h *EventHandler) GetEventByToken(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	event, err := h.svc.GetEventByToken(r.Context(), token)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			writeError(w, http.StatusNotFound, "event not found")
		case errors.Is(err, service.ErrValidation):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.log.Error().Err(err).Msg("get event by token failed")
			writeError(w, http.StatusInternalServerError, "failed to get event")
		}
		return
	}

	writeJSON(w, http.StatusOK, event)
}

// CreateResponse handles POST /p/{token}/responses
// Records one attendee submission: availability scores plus any newly
// suggested dates.
func (h *EventHandler) CreateResponse(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	var req model.CreateResponseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	resp, err := h.svc.CreateAttendeeResponse(r.Context(), token, req)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			writeError(w, http.StatusNotFound, "event not found")
		case errors.Is(err, service.ErrValidation):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.log.Error().Err(err).Msg("create response failed")
			writeError(w, http.StatusInternalServerError, "failed to record response")
		}
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
