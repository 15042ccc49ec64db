// SoraFeed - Multi-Display Video Playlist Orchestrator
// Copyright 2026 fourtytwo42
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fourtytwo42/soraFeed-sub001

package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fourtytwo42/soraFeed-sub001/internal/apperr"
	"github.com/fourtytwo42/soraFeed-sub001/internal/models"
)

// QueuedEntriesForBlock returns a block's queued entries in timeline
// order, across loop iterations.
func (db *DB) QueuedEntriesForBlock(ctx context.Context, blockID string) ([]models.TimelineEntry, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `SELECT ` + timelineColumns + ` FROM timeline_entries
		WHERE block_id = ? AND status = 'queued'
		ORDER BY timeline_position`
	rows, err := db.conn.QueryContext(ctx, query, blockID)
	if err != nil {
		return nil, fmt.Errorf("failed to get queued entries for block %s: %w", blockID, err)
	}
	defer rows.Close()

	var entries []models.TimelineEntry
	for rows.Next() {
		e, err := scanTimelineEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan timeline row: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// CountBlockEntriesForLoop returns how many live (non-skipped) entries a
// block has in one loop iteration. Queued and played both count against
// the block's quota.
func (db *DB) CountBlockEntriesForLoop(ctx context.Context, blockID string, loopIteration int) (int, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var count int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM timeline_entries
		WHERE block_id = ? AND loop_iteration = ? AND status != 'skipped'`,
		blockID, loopIteration).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count block loop entries: %w", err)
	}
	return count, nil
}

// CountEntriesForLoop returns how many timeline entries a playlist has in
// one loop iteration, regardless of status.
func (db *DB) CountEntriesForLoop(ctx context.Context, playlistID string, loopIteration int) (int, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var count int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM timeline_entries WHERE playlist_id = ? AND loop_iteration = ?`,
		playlistID, loopIteration).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count loop entries: %w", err)
	}
	return count, nil
}

// RecoverTermGroup resets an exhausted search-term group in a single
// transaction: the display's history for the term and the group blocks'
// queued entries are deleted, and the playlist's loop counter advances so
// subsequent materialization starts a fresh dedup scope. Returns the new
// loop count.
func (db *DB) RecoverTermGroup(ctx context.Context, displayCode, playlistID, searchTerm string, blockIDs []string) (int, error) {
	if len(blockIDs) == 0 {
		return 0, apperr.New(apperr.KindBadInput, "database.RecoverTermGroup", "no blocks in term group")
	}

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM video_history WHERE display_code = ? AND search_term = ?`,
		displayCode, searchTerm); err != nil {
		return 0, fmt.Errorf("failed to clear term history: %w", err)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(blockIDs)), ",")
	args := make([]interface{}, 0, len(blockIDs))
	for _, id := range blockIDs {
		args = append(args, id)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM timeline_entries WHERE status = 'queued' AND block_id IN (`+placeholders+`)`,
		args...); err != nil {
		return 0, fmt.Errorf("failed to drop queued group entries: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE playlists SET loop_count = loop_count + 1, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), playlistID); err != nil {
		return 0, fmt.Errorf("failed to advance loop count: %w", err)
	}

	var loopCount int
	if err := tx.QueryRowContext(ctx,
		`SELECT loop_count FROM playlists WHERE id = ?`, playlistID).Scan(&loopCount); err != nil {
		return 0, fmt.Errorf("failed to read loop count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit term recovery: %w", err)
	}
	return loopCount, nil
}

// ResetPlaylistState wipes a playlist's runtime state in one transaction:
// timeline entries and history go, block play counters zero out, and the
// display returns to idle with no current video or position.
func (db *DB) ResetPlaylistState(ctx context.Context, displayCode, playlistID string) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM timeline_entries WHERE playlist_id = ?`, playlistID); err != nil {
		return fmt.Errorf("failed to clear timeline: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM video_history WHERE display_code = ?`, displayCode); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE blocks SET times_played = 0, last_played_at = NULL WHERE playlist_id = ?`, playlistID); err != nil {
		return fmt.Errorf("failed to reset block counters: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE displays SET playback_state = 'idle', current_playlist_id = NULL,
			current_video_id = NULL, current_block_id = NULL, timeline_position = 0, updated_at = ?
		WHERE code = ?`, time.Now().UTC(), displayCode)
	if err != nil {
		return fmt.Errorf("failed to reset display state: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return apperr.Newf(apperr.KindNotFound, "database.ResetPlaylistState", "display %s not found", displayCode)
	}

	return tx.Commit()
}
