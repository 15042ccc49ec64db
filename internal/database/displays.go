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

	"github.com/fourtytwo42/soraFeed-sub001/internal/apperr"
	"github.com/fourtytwo42/soraFeed-sub001/internal/models"
)

const displayColumns = `code, name, playback_state, current_playlist_id, current_video_id, current_block_id, timeline_position, last_ping_at, muted, created_at, updated_at`

// CreateDisplay registers a new display. The code must be unique.
func (db *DB) CreateDisplay(ctx context.Context, display *models.Display) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if !models.ValidDisplayCode(display.Code) {
		return apperr.Newf(apperr.KindBadInput, "database.CreateDisplay", "invalid display code %q", display.Code)
	}

	now := time.Now().UTC()
	display.PlaybackState = models.StateIdle
	display.CreatedAt = now
	display.UpdatedAt = now

	query := `INSERT INTO displays (code, name, playback_state, timeline_position, muted, created_at, updated_at)
		VALUES (?, ?, ?, 0, FALSE, ?, ?)
		ON CONFLICT (code) DO NOTHING`
	res, err := db.conn.ExecContext(ctx, query, display.Code, display.Name, display.PlaybackState, now, now)
	if err != nil {
		return fmt.Errorf("failed to create display %s: %w", display.Code, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return apperr.Newf(apperr.KindConflict, "database.CreateDisplay", "display %s already exists", display.Code)
	}
	return nil
}

// GetDisplay returns the display with the given code.
func (db *DB) GetDisplay(ctx context.Context, code string) (*models.Display, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	row := db.conn.QueryRowContext(ctx, `SELECT `+displayColumns+` FROM displays WHERE code = ?`, code)
	d, err := scanDisplay(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.Newf(apperr.KindNotFound, "database.GetDisplay", "display %s not found", code)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get display %s: %w", code, err)
	}
	return d, nil
}

// ListDisplays returns all displays ordered by creation time.
func (db *DB) ListDisplays(ctx context.Context) ([]models.Display, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx, `SELECT `+displayColumns+` FROM displays ORDER BY created_at, code`)
	if err != nil {
		return nil, fmt.Errorf("failed to list displays: %w", err)
	}
	defer rows.Close()

	var displays []models.Display
	for rows.Next() {
		d, err := scanDisplay(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan display row: %w", err)
		}
		displays = append(displays, *d)
	}
	return displays, rows.Err()
}

// UpdateDisplayState persists a playback-state transition: the state, the
// playback pointers, and the timeline position, atomically.
func (db *DB) UpdateDisplayState(ctx context.Context, display *models.Display) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	display.UpdatedAt = time.Now().UTC()
	query := `UPDATE displays SET
			playback_state = ?, current_playlist_id = ?, current_video_id = ?, current_block_id = ?,
			timeline_position = ?, muted = ?, updated_at = ?
		WHERE code = ?`
	res, err := db.conn.ExecContext(ctx, query,
		display.PlaybackState, display.CurrentPlaylistID, display.CurrentVideoID, display.CurrentBlockID,
		display.TimelinePosition, display.Muted, display.UpdatedAt, display.Code)
	if err != nil {
		return fmt.Errorf("failed to update display %s: %w", display.Code, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return apperr.Newf(apperr.KindNotFound, "database.UpdateDisplayState", "display %s not found", display.Code)
	}
	return nil
}

// TouchPing records a heartbeat for the display.
func (db *DB) TouchPing(ctx context.Context, code string, at time.Time) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	res, err := db.conn.ExecContext(ctx, `UPDATE displays SET last_ping_at = ? WHERE code = ?`, at.UTC(), code)
	if err != nil {
		return fmt.Errorf("failed to record ping for %s: %w", code, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return apperr.Newf(apperr.KindNotFound, "database.TouchPing", "display %s not found", code)
	}
	return nil
}

// RenameDisplay updates the display's human-readable name.
func (db *DB) RenameDisplay(ctx context.Context, code, name string) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	res, err := db.conn.ExecContext(ctx,
		`UPDATE displays SET name = ?, updated_at = ? WHERE code = ?`, name, time.Now().UTC(), code)
	if err != nil {
		return fmt.Errorf("failed to rename display %s: %w", code, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return apperr.Newf(apperr.KindNotFound, "database.RenameDisplay", "display %s not found", code)
	}
	return nil
}

// DeleteDisplay removes a display and everything it owns: playlists,
// blocks, timeline entries, and history.
func (db *DB) DeleteDisplay(ctx context.Context, code string) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	res, err := tx.ExecContext(ctx, `DELETE FROM displays WHERE code = ?`, code)
	if err != nil {
		return fmt.Errorf("failed to delete display %s: %w", code, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return apperr.Newf(apperr.KindNotFound, "database.DeleteDisplay", "display %s not found", code)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM blocks WHERE playlist_id IN (SELECT id FROM playlists WHERE display_code = ?)`, code); err != nil {
		return fmt.Errorf("failed to delete blocks for %s: %w", code, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM playlists WHERE display_code = ?`, code); err != nil {
		return fmt.Errorf("failed to delete playlists for %s: %w", code, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM timeline_entries WHERE display_code = ?`, code); err != nil {
		return fmt.Errorf("failed to delete timeline for %s: %w", code, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM video_history WHERE display_code = ?`, code); err != nil {
		return fmt.Errorf("failed to delete history for %s: %w", code, err)
	}

	return tx.Commit()
}

// scanner abstracts sql.Row and sql.Rows for shared scan helpers.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanDisplay(row scanner) (*models.Display, error) {
	var d models.Display
	var playlistID, videoID, blockID sql.NullString
	var lastPing sql.NullTime
	if err := row.Scan(
		&d.Code, &d.Name, &d.PlaybackState, &playlistID, &videoID, &blockID,
		&d.TimelinePosition, &lastPing, &d.Muted, &d.CreatedAt, &d.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if playlistID.Valid {
		d.CurrentPlaylistID = &playlistID.String
	}
	if videoID.Valid {
		d.CurrentVideoID = &videoID.String
	}
	if blockID.Valid {
		d.CurrentBlockID = &blockID.String
	}
	if lastPing.Valid {
		t := lastPing.Time
		d.LastPingAt = &t
	}
	return &d, nil
}
