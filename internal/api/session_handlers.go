package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/starfield/server/internal/procedural"
	"github.com/starfield/server/internal/session"
	"github.com/starfield/server/internal/streaming"
)

// SessionHandlers exposes the session bridge over HTTP
type SessionHandlers struct {
	bridge    *session.Bridge
	validator *validator.Validate
	logger    *slog.Logger
}

// NewSessionHandlers creates a new SessionHandlers instance
func NewSessionHandlers(bridge *session.Bridge, logger *slog.Logger) *SessionHandlers {
	return &SessionHandlers{
		bridge:    bridge,
		validator: validator.New(),
		logger:    logger.With("component", "sessions"),
	}
}

// SaveSessionRequest is the body of POST /api/sessions
type SaveSessionRequest struct {
	Name     string                `json:"name" validate:"required,max=256"`
	Pose     *streaming.CameraPose `json:"pose" validate:"required"`
	Selected *procedural.Star      `json:"selected,omitempty"`
}

// SessionNotFoundResponse carries an optional "did you mean" hint.
type SessionNotFoundResponse struct {
	Error      string `json:"error"`
	Suggestion string `json:"suggestion,omitempty"`
}

// SaveSession handles POST /api/sessions
func (h *SessionHandlers) SaveSession(w http.ResponseWriter, r *http.Request) {
	var req SaveSessionRequest
	if !decodeAndValidate(w, r, h.validator, &req) {
		return
	}

	rec, err := h.bridge.Capture(r.Context(), req.Name, *req.Pose, req.Selected)
	switch {
	case errors.Is(err, session.ErrInvalidName), errors.Is(err, session.ErrInvalidPose):
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		h.logger.Error("failed to save session", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to save session")
		return
	}
	respondJSON(w, http.StatusCreated, rec)
}

// ListSessions handles GET /api/sessions
func (h *SessionHandlers) ListSessions(w http.ResponseWriter, r *http.Request) {
	records, err := h.bridge.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list sessions", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to list sessions")
		return
	}
	if records == nil {
		records = []session.Record{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"sessions": records,
		"count":    len(records),
	})
}

// RestoreSession handles GET /api/sessions/{query}. A hit switches the
// universe to the stored seed.
func (h *SessionHandlers) RestoreSession(w http.ResponseWriter, r *http.Request) {
	query := r.PathValue("query")
	rec, err := h.bridge.Restore(r.Context(), query)
	if err != nil {
		h.logger.Error("failed to restore session", "query", query, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to restore session")
		return
	}
	if rec == nil {
		suggestion, err := h.bridge.Suggest(r.Context(), query)
		if err != nil {
			h.logger.Warn("failed to compute session suggestion", "error", err)
		}
		respondJSON(w, http.StatusNotFound, SessionNotFoundResponse{
			Error:      "Session not found",
			Suggestion: suggestion,
		})
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

// DeleteSession handles DELETE /api/sessions/{name}
func (h *SessionHandlers) DeleteSession(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	deleted, err := h.bridge.Delete(r.Context(), name)
	if err != nil {
		h.logger.Error("failed to delete session", "name", name, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to delete session")
		return
	}
	if !deleted {
		respondWithError(w, http.StatusNotFound, "Session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
