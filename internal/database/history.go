// SoraFeed - Multi-Display Video Playlist Orchestrator
// Copyright 2026 fourtytwo42
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fourtytwo42/soraFeed-sub001

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fourtytwo42/soraFeed-sub001/internal/models"
)

// InsertHistory appends one playback completion to the history log.
func (db *DB) InsertHistory(ctx context.Context, h *models.VideoHistory) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	if h.PlayedAt.IsZero() {
		h.PlayedAt = time.Now().UTC()
	}

	query := `INSERT INTO video_history (id, display_code, block_id, video_id, search_term, played_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := db.conn.ExecContext(ctx, query,
		h.ID, h.DisplayCode, h.BlockID, h.VideoID, h.SearchTerm, h.PlayedAt); err != nil {
		return fmt.Errorf("failed to insert history row: %w", err)
	}
	return nil
}

// HistoryVideoIDs returns the distinct video ids a display has completed
// for a search term. Exhaustion arithmetic compares this set against the
// index population for the term.
func (db *DB) HistoryVideoIDs(ctx context.Context, displayCode, searchTerm string) (map[string]bool, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx,
		`SELECT DISTINCT video_id FROM video_history WHERE display_code = ? AND search_term = ?`,
		displayCode, searchTerm)
	if err != nil {
		return nil, fmt.Errorf("failed to get history video ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan history video id: %w", err)
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

// ClearHistoryForTerm forgets a display's completions for a search term.
// Exhaustion recovery calls this so the term's videos become eligible
// again.
func (db *DB) ClearHistoryForTerm(ctx context.Context, displayCode, searchTerm string) (int64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM video_history WHERE display_code = ? AND search_term = ?`, displayCode, searchTerm)
	if err != nil {
		return 0, fmt.Errorf("failed to clear history for term: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected, nil
}

// ClearHistory forgets all of a display's completions.
func (db *DB) ClearHistory(ctx context.Context, displayCode string) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if _, err := db.conn.ExecContext(ctx,
		`DELETE FROM video_history WHERE display_code = ?`, displayCode); err != nil {
		return fmt.Errorf("failed to clear history for %s: %w", displayCode, err)
	}
	return nil
}

// RecentHistory returns a display's most recent completions.
func (db *DB) RecentHistory(ctx context.Context, displayCode string, limit int) ([]models.VideoHistory, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, display_code, block_id, video_id, search_term, played_at
		FROM video_history WHERE display_code = ? ORDER BY played_at DESC LIMIT ?`,
		displayCode, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent history: %w", err)
	}
	defer rows.Close()

	var history []models.VideoHistory
	for rows.Next() {
		var h models.VideoHistory
		if err := rows.Scan(&h.ID, &h.DisplayCode, &h.BlockID, &h.VideoID, &h.SearchTerm, &h.PlayedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		history = append(history, h)
	}
	return history, rows.Err()
}
