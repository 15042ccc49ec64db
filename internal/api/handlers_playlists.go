// SoraFeed - Multi-Display Video Playlist Orchestrator
// Copyright 2026 fourtytwo42
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fourtytwo42/soraFeed-sub001

package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fourtytwo42/soraFeed-sub001/internal/logging"
	"github.com/fourtytwo42/soraFeed-sub001/internal/models"
)

// ImportPlaylist creates or replaces a display's active playlist from
// either inline block rows or a CSV document. The new playlist becomes
// active; the display's previous playlists are deactivated in the same
// transaction.
//
// Method: POST
// Path: /playlists/import
func (h *Handler) ImportPlaylist(w http.ResponseWriter, r *http.Request) {
	if !h.requireDB(w) {
		return
	}

	var req models.ImportPlaylistRequest
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
	if len(req.Blocks) == 0 && req.CSV == "" {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR",
			"either blocks or csv must be provided", nil)
		return
	}

	var (
		created *models.PlaylistResponse
		err     error
	)
	if req.CSV != "" {
		created, err = h.playlists.ImportCSV(r.Context(), req.DisplayID, req.PlaylistName, []byte(req.CSV))
	} else {
		created, err = h.playlists.CreatePlaylist(r.Context(), req.DisplayID, req.PlaylistName, req.Blocks)
	}
	if err != nil {
		respondAppError(w, err)
		return
	}

	logging.Info().
		Str("display", sanitizeLogValue(req.DisplayID)).
		Str("playlist_id", created.ID).
		Int("blocks", len(created.Blocks)).
		Msg("Playlist imported")
	respondOK(w, http.StatusCreated, created)
}

// ExportPlaylist streams a playlist as CSV in the import shape.
//
// Method: GET
// Path: /playlists/{id}/export
func (h *Handler) ExportPlaylist(w http.ResponseWriter, r *http.Request) {
	if !h.requireDB(w) {
		return
	}

	id := chi.URLParam(r, "id")
	data, err := h.playlists.ExportCSV(r.Context(), id)
	if err != nil {
		respondAppError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "playlist-"+id+".csv"))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("Failed to write CSV response")
	}
}

// GetPlaylist returns a playlist with its blocks.
//
// Method: GET
// Path: /playlists/{id}
func (h *Handler) GetPlaylist(w http.ResponseWriter, r *http.Request) {
	if !h.requireDB(w) {
		return
	}

	resp, err := h.playlists.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondOK(w, http.StatusOK, resp)
}

// ReorderBlocks atomically reassigns block order within a playlist. The
// requested order must be a dense 0..N-1 permutation; queued timeline
// entries are invalidated so the next refill rebuilds them in the new
// order.
//
// Method: PUT
// Path: /playlists/blocks/reorder
func (h *Handler) ReorderBlocks(w http.ResponseWriter, r *http.Request) {
	if !h.requireDB(w) {
		return
	}

	var req models.ReorderBlocksRequest
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

	if err := h.playlists.ReorderBlocks(r.Context(), req.PlaylistID, req.BlockOrders); err != nil {
		respondAppError(w, err)
		return
	}

	resp, err := h.playlists.Get(r.Context(), req.PlaylistID)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondOK(w, http.StatusOK, resp)
}

// UpdateBlock edits a block. Search term, video count and format are
// rejected with 409 while the owning display is not idle.
//
// Method: PUT
// Path: /playlists/blocks/{id}
func (h *Handler) UpdateBlock(w http.ResponseWriter, r *http.Request) {
	if !h.requireDB(w) {
		return
	}

	var req models.UpdateBlockRequest
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

	block, err := h.playlists.UpdateBlock(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondOK(w, http.StatusOK, block)
}

// DeleteBlock removes a block and renumbers the remaining blocks to keep
// the order dense.
//
// Method: DELETE
// Path: /playlists/blocks/{id}
func (h *Handler) DeleteBlock(w http.ResponseWriter, r *http.Request) {
	if !h.requireDB(w) {
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.playlists.DeleteBlock(r.Context(), id); err != nil {
		respondAppError(w, err)
		return
	}
	respondOK(w, http.StatusOK, map[string]string{"id": id})
}
