// SoraFeed - Multi-Display Video Playlist Orchestrator
// Copyright 2026 fourtytwo42
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fourtytwo42/soraFeed-sub001

package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/fourtytwo42/soraFeed-sub001/internal/models"
)

// latestPage is the GET /api/latest payload.
type latestPage struct {
	Videos     []models.Video `json:"videos"`
	NextCursor string         `json:"next_cursor,omitempty"`
	HasMore    bool           `json:"has_more"`
}

// Latest returns recently indexed videos for the public viewer, newest
// first. Pagination is cursor-based; the legacy offset parameter is
// accepted when no cursor is supplied.
//
// Method: GET
// Path: /api/latest
func (h *Handler) Latest(w http.ResponseWriter, r *http.Request) {
	if !h.requireDB(w) {
		return
	}

	start := time.Now()
	q := r.URL.Query()
	limit := parseIntParam(q.Get("limit"), 20)
	if limit < 1 || limit > 200 {
		limit = 20
	}

	offset := parseIntParam(q.Get("offset"), 0)
	if token := q.Get("cursor"); token != "" {
		cursor, err := decodeCursor(token)
		if err != nil {
			respondAppError(w, err)
			return
		}
		offset = cursor.OffsetFromStart
	}
	if offset < 0 {
		offset = 0
	}

	// Fetch one extra row to detect whether another page exists.
	videos, err := h.db.LatestVideosPage(r.Context(), limit+1, offset)
	if err != nil {
		respondAppError(w, err)
		return
	}

	page := latestPage{Videos: videos}
	if len(videos) > limit {
		page.Videos = videos[:limit]
		page.HasMore = true
		page.NextCursor = encodeCursor(&latestCursor{OffsetFromStart: offset + limit})
	}

	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data:   page,
		Metadata: models.Metadata{
			Timestamp:   time.Now().UTC(),
			QueryTimeMS: time.Since(start).Milliseconds(),
		},
	})
}

// Search runs a keyword search over video descriptions, blending
// substring and fuzzy matching.
//
// Method: GET
// Path: /api/search
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	if !h.requireDB(w) {
		return
	}

	start := time.Now()
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "query parameter q is required", nil)
		return
	}
	limit := parseIntParam(r.URL.Query().Get("limit"), 20)
	if limit < 1 || limit > 200 {
		limit = 20
	}

	videos, err := h.db.FuzzyVideos(r.Context(), q, limit, nil)
	if err != nil {
		respondAppError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data:   map[string]interface{}{"query": q, "videos": videos},
		Metadata: models.Metadata{
			Timestamp:   time.Now().UTC(),
			QueryTimeMS: time.Since(start).Milliseconds(),
		},
	})
}

// ingestionSnapshot augments the persisted counters with index totals.
type ingestionSnapshot struct {
	models.IngestionStats
	TotalVideos   int64 `json:"total_videos"`
	TotalCreators int64 `json:"total_creators"`
}

// Stats returns the ingestion counters and content index totals.
//
// Method: GET
// Path: /api/stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	if !h.requireDB(w) {
		return
	}

	start := time.Now()
	stats, err := h.db.GetIngestionStats(r.Context())
	if err != nil {
		respondAppError(w, err)
		return
	}

	snapshot := ingestionSnapshot{IngestionStats: *stats}
	if n, err := h.db.CountVideos(r.Context()); err == nil {
		snapshot.TotalVideos = n
	}
	if n, err := h.db.CountCreators(r.Context()); err == nil {
		snapshot.TotalCreators = n
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

// Health reports process liveness, database reachability and hub load.
//
// Method: GET
// Path: /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	httpStatus := http.StatusOK
	components := map[string]interface{}{
		"uptime_seconds": int64(time.Since(h.startTime).Seconds()),
	}

	if h.db != nil {
		if err := h.db.Ping(r.Context()); err != nil {
			status = "unhealthy"
			httpStatus = http.StatusServiceUnavailable
			components["database"] = "unreachable"
		} else {
			components["database"] = "ok"
		}
	} else {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
		components["database"] = "not configured"
	}

	if h.wsHub != nil {
		components["hub_clients"] = h.wsHub.GetClientCount()
	}

	respondJSON(w, httpStatus, &models.APIResponse{
		Status: "success",
		Data: map[string]interface{}{
			"status":     status,
			"components": components,
		},
		Metadata: models.Metadata{Timestamp: time.Now().UTC()},
	})
}
