// SoraFeed - Multi-Display Video Playlist Orchestrator
// Copyright 2026 fourtytwo42
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fourtytwo42/soraFeed-sub001

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fourtytwo42/soraFeed-sub001/internal/config"
	"github.com/fourtytwo42/soraFeed-sub001/internal/database"
	"github.com/fourtytwo42/soraFeed-sub001/internal/hub"
	"github.com/fourtytwo42/soraFeed-sub001/internal/logging"
	"github.com/fourtytwo42/soraFeed-sub001/internal/models"
	"github.com/fourtytwo42/soraFeed-sub001/internal/playback"
	"github.com/fourtytwo42/soraFeed-sub001/internal/playlist"
	"github.com/fourtytwo42/soraFeed-sub001/internal/timeline"
)

// TokenIssuer mints display ownership tokens on display creation.
type TokenIssuer interface {
	IssueDisplayToken(adminID, code string) (string, error)
}

// Bus is the slice of the event bus the API publishes to.
type Bus interface {
	PublishCommandStatus(evt models.CommandStatusEvent)
}

// Handler carries the dependencies of the HTTP surface.
//
// Handler methods are split across files:
//   - handlers.go: struct, constructor, display and command endpoints
//   - handlers_playlists.go: playlist import/export and block editing
//   - handlers_content.go: content index reads, stats, health
type Handler struct {
	db        *database.DB
	playlists *playlist.Store
	timeline  *timeline.Manager
	machine   *playback.Machine
	queue     *playback.CommandQueue
	wsHub     *hub.Hub
	bus       Bus
	tokens    TokenIssuer
	config    *config.Config
	startTime time.Time
}

// NewHandler creates the API handler. queue, wsHub, bus and tokens may be
// nil; the affected endpoints degrade (commands are applied but not
// journaled for delivery, no websocket upgrade, no ownership token in the
// create response).
func NewHandler(db *database.DB, playlists *playlist.Store, tl *timeline.Manager, machine *playback.Machine, queue *playback.CommandQueue, wsHub *hub.Hub, bus Bus, tokens TokenIssuer, cfg *config.Config) *Handler {
	return &Handler{
		db:        db,
		playlists: playlists,
		timeline:  tl,
		machine:   machine,
		queue:     queue,
		wsHub:     wsHub,
		bus:       bus,
		tokens:    tokens,
		config:    cfg,
		startTime: time.Now(),
	}
}

// requireDB checks database availability and returns true if available.
func (h *Handler) requireDB(w http.ResponseWriter) bool {
	if h.db == nil {
		respondError(w, http.StatusServiceUnavailable, "SERVICE_ERROR", "Database not available", nil)
		return false
	}
	return true
}

// createDisplayResponse is the POST /displays payload: the display plus
// the ownership token guarding its destructive routes.
type createDisplayResponse struct {
	models.DisplayResponse
	Token string `json:"token,omitempty"`
}

// CreateDisplay registers a new display endpoint.
//
// Method: POST
// Path: /displays
func (h *Handler) CreateDisplay(w http.ResponseWriter, r *http.Request) {
	if !h.requireDB(w) {
		return
	}

	var req models.CreateDisplayRequest
	if err := decodeBody(r, &req); err != nil {
		respondAppError(w, err)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondJSON(w, http.StatusBadRequest, &models.APIResponse{
			Status:   "error",
			Metadata: models.Metadata{Timestamp: time.Now().UTC()},
			Error:    apiErr,
		})
		return
	}

	display := &models.Display{Code: req.Code, Name: req.Name}
	if err := h.db.CreateDisplay(r.Context(), display); err != nil {
		respondAppError(w, err)
		return
	}

	resp := createDisplayResponse{
		DisplayResponse: models.DisplayResponse{Display: *display},
	}
	if h.tokens != nil {
		token, err := h.tokens.IssueDisplayToken(r.Header.Get("X-Admin-ID"), display.Code)
		if err != nil {
			logging.Warn().Err(err).Str("code", display.Code).Msg("failed to issue display token")
		} else {
			resp.Token = token
		}
	}

	logging.Info().Str("code", sanitizeLogValue(display.Code)).Msg("Display created")
	respondOK(w, http.StatusCreated, resp)
}

// GetDisplay returns one display with its derived liveness.
//
// Method: GET
// Path: /displays/{code}
func (h *Handler) GetDisplay(w http.ResponseWriter, r *http.Request) {
	if !h.requireDB(w) {
		return
	}

	code := chi.URLParam(r, "code")
	display, err := h.db.GetDisplay(r.Context(), code)
	if err != nil {
		respondAppError(w, err)
		return
	}

	respondOK(w, http.StatusOK, models.DisplayResponse{
		Display:  *display,
		IsOnline: display.IsOnline(time.Now().UTC()),
	})
}

// ListDisplays returns all displays with derived liveness.
//
// Method: GET
// Path: /displays
func (h *Handler) ListDisplays(w http.ResponseWriter, r *http.Request) {
	if !h.requireDB(w) {
		return
	}

	displays, err := h.db.ListDisplays(r.Context())
	if err != nil {
		respondAppError(w, err)
		return
	}

	now := time.Now().UTC()
	resp := make([]models.DisplayResponse, 0, len(displays))
	for i := range displays {
		resp = append(resp, models.DisplayResponse{
			Display:  displays[i],
			IsOnline: displays[i].IsOnline(now),
		})
	}
	respondOK(w, http.StatusOK, resp)
}

// DeleteDisplay hard-deletes a display and cascades its playlists,
// timeline entries and history.
//
// Method: DELETE
// Path: /displays/{code}
func (h *Handler) DeleteDisplay(w http.ResponseWriter, r *http.Request) {
	if !h.requireDB(w) {
		return
	}

	code := chi.URLParam(r, "code")
	if err := h.db.DeleteDisplay(r.Context(), code); err != nil {
		respondAppError(w, err)
		return
	}

	logging.Info().Str("code", sanitizeLogValue(code)).Msg("Display deleted")
	respondOK(w, http.StatusOK, map[string]string{"code": code})
}

// EnqueueCommand applies a command to the display's state machine and
// journals it for delivery to the live display session. The server-side
// transition happens first; a rejected transition (409) never reaches the
// journal.
//
// Method: POST
// Path: /displays/{code}/commands
func (h *Handler) EnqueueCommand(w http.ResponseWriter, r *http.Request) {
	if !h.requireDB(w) {
		return
	}

	code := chi.URLParam(r, "code")
	if _, err := h.db.GetDisplay(r.Context(), code); err != nil {
		respondAppError(w, err)
		return
	}

	var req models.CommandRequest
	if err := decodeBody(r, &req); err != nil {
		respondAppError(w, err)
		return
	}
	if !req.Type.Valid() {
		respondError(w, http.StatusUnprocessableEntity, "INVARIANT_VIOLATION",
			"unknown command type", nil)
		return
	}

	if err := h.machine.Apply(r.Context(), code, req.Type, req.Payload); err != nil {
		if h.bus != nil {
			h.bus.PublishCommandStatus(models.CommandStatusEvent{
				Code:   code,
				Type:   req.Type,
				Status: models.CommandFailed,
				At:     time.Now().UTC(),
			})
		}
		respondAppError(w, err)
		return
	}

	var cmd *models.Command
	if h.queue != nil {
		var err error
		cmd, err = h.queue.Enqueue(code, req.Type, req.Payload)
		if err != nil {
			respondAppError(w, err)
			return
		}
		if h.wsHub != nil {
			h.wsHub.WakeDisplay(code)
		}
	}

	respondOK(w, http.StatusAccepted, cmd)
}

// Timeline returns the display's progress and upcoming queue.
//
// Method: GET
// Path: /timeline/{code}
func (h *Handler) Timeline(w http.ResponseWriter, r *http.Request) {
	if !h.requireDB(w) {
		return
	}

	start := time.Now()
	code := chi.URLParam(r, "code")
	display, err := h.db.GetDisplay(r.Context(), code)
	if err != nil {
		respondAppError(w, err)
		return
	}

	limit := parseIntParam(r.URL.Query().Get("limit"), 50)
	if limit < 1 || limit > 500 {
		limit = 50
	}
	snapshot, err := h.timeline.Snapshot(r.Context(), display, limit)
	if err != nil {
		respondAppError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data:   snapshot,
		Metadata: models.Metadata{
			Timestamp:   time.Now().UTC(),
			QueryTimeMS: time.Since(start).Milliseconds(),
		},
	})
}

// WebSocket upgrades the connection and hands it to the realtime hub.
//
// Method: GET
// Path: /ws
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	if h.wsHub == nil {
		respondError(w, http.StatusServiceUnavailable, "SERVICE_ERROR", "Realtime hub not available", nil)
		return
	}
	h.wsHub.ServeWS(w, r)
}
