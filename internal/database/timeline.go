// SoraFeed - Multi-Display Video Playlist Orchestrator
// Copyright 2026 fourtytwo42
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fourtytwo42/soraFeed-sub001

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fourtytwo42/soraFeed-sub001/internal/apperr"
	"github.com/fourtytwo42/soraFeed-sub001/internal/models"
)

const timelineColumns = `id, display_code, playlist_id, block_id, video_id, timeline_position, status, block_position, loop_iteration, created_at`

// InsertTimelineEntries appends entries in a single transaction. IDs and
// creation timestamps are assigned when missing.
func (db *DB) InsertTimelineEntries(ctx context.Context, entries []models.TimelineEntry) error {
	if len(entries) == 0 {
		return nil
	}

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `INSERT INTO timeline_entries (` + timelineColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now().UTC()
	for i := range entries {
		e := &entries[i]
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		if e.Status == "" {
			e.Status = models.EntryQueued
		}
		if _, err := tx.ExecContext(ctx, query,
			e.ID, e.DisplayCode, e.PlaylistID, e.BlockID, e.VideoID,
			e.TimelinePosition, e.Status, e.BlockPosition, e.LoopIteration, e.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert timeline entry at position %d: %w", e.TimelinePosition, err)
		}
	}

	return tx.Commit()
}

// GetEntryAt returns the live entry at a timeline position for a display.
func (db *DB) GetEntryAt(ctx context.Context, displayCode string, position int) (*models.TimelineEntry, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `SELECT ` + timelineColumns + ` FROM timeline_entries
		WHERE display_code = ? AND timeline_position = ? AND status != 'skipped'`
	row := db.conn.QueryRowContext(ctx, query, displayCode, position)
	e, err := scanTimelineEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.Newf(apperr.KindNotFound, "database.GetEntryAt", "no timeline entry at position %d for %s", position, displayCode)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get timeline entry: %w", err)
	}
	return e, nil
}

// GetQueuedEntries returns up to limit queued entries for a display in
// timeline order, starting at fromPosition.
func (db *DB) GetQueuedEntries(ctx context.Context, displayCode string, fromPosition, limit int) ([]models.TimelineEntry, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `SELECT ` + timelineColumns + ` FROM timeline_entries
		WHERE display_code = ? AND status = 'queued' AND timeline_position >= ?
		ORDER BY timeline_position LIMIT ?`
	rows, err := db.conn.QueryContext(ctx, query, displayCode, fromPosition, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get queued entries: %w", err)
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

// CountQueued returns how many queued entries the playlist has left.
func (db *DB) CountQueued(ctx context.Context, playlistID string) (int, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var count int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM timeline_entries WHERE playlist_id = ? AND status = 'queued'`, playlistID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count queued entries: %w", err)
	}
	return count, nil
}

// MaxTimelinePosition returns the highest timeline position currently
// assigned for a playlist, or -1 when the timeline is empty.
func (db *DB) MaxTimelinePosition(ctx context.Context, playlistID string) (int, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var max int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(timeline_position), -1) FROM timeline_entries WHERE playlist_id = ?`, playlistID).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("failed to read max timeline position: %w", err)
	}
	return max, nil
}

// UsedVideoIDs returns the video ids already bound to the playlist's
// timeline, regardless of entry status. The dedup invariant forbids
// re-queueing any of them within the same loop iteration.
func (db *DB) UsedVideoIDs(ctx context.Context, playlistID string, loopIteration int) (map[string]bool, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx,
		`SELECT DISTINCT video_id FROM timeline_entries WHERE playlist_id = ? AND loop_iteration = ?`,
		playlistID, loopIteration)
	if err != nil {
		return nil, fmt.Errorf("failed to get used video ids: %w", err)
	}
	defer rows.Close()

	used := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan video id: %w", err)
		}
		used[id] = true
	}
	return used, rows.Err()
}

// MarkEntryStatus transitions a timeline entry's status.
func (db *DB) MarkEntryStatus(ctx context.Context, entryID string, status models.EntryStatus) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	res, err := db.conn.ExecContext(ctx,
		`UPDATE timeline_entries SET status = ? WHERE id = ?`, status, entryID)
	if err != nil {
		return fmt.Errorf("failed to mark entry %s %s: %w", entryID, status, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return apperr.Newf(apperr.KindNotFound, "database.MarkEntryStatus", "timeline entry %s not found", entryID)
	}
	return nil
}

// ClearTimeline removes all timeline entries of a playlist.
func (db *DB) ClearTimeline(ctx context.Context, playlistID string) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if _, err := db.conn.ExecContext(ctx,
		`DELETE FROM timeline_entries WHERE playlist_id = ?`, playlistID); err != nil {
		return fmt.Errorf("failed to clear timeline for %s: %w", playlistID, err)
	}
	return nil
}

// CompactPositions renumbers the playlist's live (non-skipped) entries
// into a dense 0..K-1 sequence preserving relative order, and returns the
// new position of the entry that previously sat at oldPosition (-1 when
// that entry no longer exists).
func (db *DB) CompactPositions(ctx context.Context, playlistID string, oldPosition int) (int, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return -1, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	rows, err := tx.QueryContext(ctx,
		`SELECT id, timeline_position FROM timeline_entries
		WHERE playlist_id = ? AND status != 'skipped'
		ORDER BY timeline_position`, playlistID)
	if err != nil {
		return -1, fmt.Errorf("failed to list live entries: %w", err)
	}

	type slot struct {
		id  string
		pos int
	}
	var slots []slot
	for rows.Next() {
		var s slot
		if err := rows.Scan(&s.id, &s.pos); err != nil {
			closeQuietly(rows)
			return -1, fmt.Errorf("failed to scan entry: %w", err)
		}
		slots = append(slots, s)
	}
	if err := rows.Err(); err != nil {
		closeQuietly(rows)
		return -1, fmt.Errorf("entry iteration failed: %w", err)
	}
	closeQuietly(rows)

	newPosition := -1
	for i, s := range slots {
		if s.pos == oldPosition {
			newPosition = i
		}
		if s.pos == i {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE timeline_entries SET timeline_position = ? WHERE id = ?`, i, s.id); err != nil {
			return -1, fmt.Errorf("failed to renumber entry %s: %w", s.id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return -1, fmt.Errorf("failed to commit compaction: %w", err)
	}
	return newPosition, nil
}

func scanTimelineEntry(row scanner) (*models.TimelineEntry, error) {
	var e models.TimelineEntry
	if err := row.Scan(
		&e.ID, &e.DisplayCode, &e.PlaylistID, &e.BlockID, &e.VideoID,
		&e.TimelinePosition, &e.Status, &e.BlockPosition, &e.LoopIteration, &e.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &e, nil
}
