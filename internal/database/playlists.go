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
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/fourtytwo42/soraFeed-sub001/internal/apperr"
	"github.com/fourtytwo42/soraFeed-sub001/internal/models"
)

// CreatePlaylistWithBlocks atomically replaces the display's active
// playlist: the previous active playlist (with its blocks and queued
// timeline entries) is removed and the new playlist becomes active.
// Block orders are assigned densely in input order.
func (db *DB) CreatePlaylistWithBlocks(ctx context.Context, displayCode, name string, blocks []models.BlockInput) (*models.Playlist, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if len(blocks) == 0 {
		return nil, apperr.New(apperr.KindBadInput, "database.CreatePlaylistWithBlocks", "playlist must have at least one block")
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// The display must exist.
	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM displays WHERE code = ?`, displayCode).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check display: %w", err)
	}
	if exists == 0 {
		return nil, apperr.Newf(apperr.KindNotFound, "database.CreatePlaylistWithBlocks", "display %s not found", displayCode)
	}

	// Drop the previous active playlist and its dependents.
	if _, err := tx.ExecContext(ctx, `DELETE FROM blocks WHERE playlist_id IN (SELECT id FROM playlists WHERE display_code = ? AND is_active)`, displayCode); err != nil {
		return nil, fmt.Errorf("failed to delete old blocks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM timeline_entries WHERE playlist_id IN (SELECT id FROM playlists WHERE display_code = ? AND is_active)`, displayCode); err != nil {
		return nil, fmt.Errorf("failed to delete old timeline entries: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM playlists WHERE display_code = ? AND is_active`, displayCode); err != nil {
		return nil, fmt.Errorf("failed to delete old playlist: %w", err)
	}

	now := time.Now().UTC()
	playlist := &models.Playlist{
		ID:          uuid.NewString(),
		DisplayCode: displayCode,
		Name:        name,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO playlists (id, display_code, name, is_active, loop_count, created_at, updated_at) VALUES (?, ?, ?, TRUE, 0, ?, ?)`,
		playlist.ID, displayCode, name, now, now); err != nil {
		return nil, fmt.Errorf("failed to insert playlist: %w", err)
	}

	for i, in := range blocks {
		fetchMode := in.FetchMode
		if fetchMode == "" {
			fetchMode = models.FetchNewest
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO blocks (id, playlist_id, block_order, search_term, video_count, format, fetch_mode, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			uuid.NewString(), playlist.ID, i, in.SearchTerm, in.VideoCount, in.Format, fetchMode, now); err != nil {
			return nil, fmt.Errorf("failed to insert block %d: %w", i, err)
		}
		playlist.TotalBlocks++
		playlist.TotalVideos += in.VideoCount
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit playlist: %w", err)
	}
	return playlist, nil
}

// GetPlaylist returns a playlist with its derived totals.
func (db *DB) GetPlaylist(ctx context.Context, id string) (*models.Playlist, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `SELECT p.id, p.display_code, p.name, p.is_active, p.loop_count, p.created_at, p.updated_at,
			COUNT(b.id), COALESCE(SUM(b.video_count), 0)
		FROM playlists p LEFT JOIN blocks b ON b.playlist_id = p.id
		WHERE p.id = ?
		GROUP BY p.id, p.display_code, p.name, p.is_active, p.loop_count, p.created_at, p.updated_at`

	var p models.Playlist
	err := db.conn.QueryRowContext(ctx, query, id).Scan(
		&p.ID, &p.DisplayCode, &p.Name, &p.IsActive, &p.LoopCount, &p.CreatedAt, &p.UpdatedAt,
		&p.TotalBlocks, &p.TotalVideos,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.Newf(apperr.KindNotFound, "database.GetPlaylist", "playlist %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get playlist %s: %w", id, err)
	}
	return &p, nil
}

// GetActivePlaylist returns the display's active playlist, or a NotFound
// error when the display has none.
func (db *DB) GetActivePlaylist(ctx context.Context, displayCode string) (*models.Playlist, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `SELECT p.id, p.display_code, p.name, p.is_active, p.loop_count, p.created_at, p.updated_at,
			COUNT(b.id), COALESCE(SUM(b.video_count), 0)
		FROM playlists p LEFT JOIN blocks b ON b.playlist_id = p.id
		WHERE p.display_code = ? AND p.is_active
		GROUP BY p.id, p.display_code, p.name, p.is_active, p.loop_count, p.created_at, p.updated_at`

	var p models.Playlist
	err := db.conn.QueryRowContext(ctx, query, displayCode).Scan(
		&p.ID, &p.DisplayCode, &p.Name, &p.IsActive, &p.LoopCount, &p.CreatedAt, &p.UpdatedAt,
		&p.TotalBlocks, &p.TotalVideos,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.Newf(apperr.KindNotFound, "database.GetActivePlaylist", "display %s has no active playlist", displayCode)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active playlist for %s: %w", displayCode, err)
	}
	return &p, nil
}

// GetBlocks returns a playlist's blocks in block order.
func (db *DB) GetBlocks(ctx context.Context, playlistID string) ([]models.Block, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `SELECT id, playlist_id, block_order, search_term, video_count, format, fetch_mode, times_played, last_played_at, created_at
		FROM blocks WHERE playlist_id = ? ORDER BY block_order`
	rows, err := db.conn.QueryContext(ctx, query, playlistID)
	if err != nil {
		return nil, fmt.Errorf("failed to get blocks for %s: %w", playlistID, err)
	}
	defer rows.Close()

	var blocks []models.Block
	for rows.Next() {
		var b models.Block
		var lastPlayed sql.NullTime
		if err := rows.Scan(&b.ID, &b.PlaylistID, &b.BlockOrder, &b.SearchTerm, &b.VideoCount,
			&b.Format, &b.FetchMode, &b.TimesPlayed, &lastPlayed, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan block row: %w", err)
		}
		if lastPlayed.Valid {
			t := lastPlayed.Time
			b.LastPlayedAt = &t
		}
		blocks = append(blocks, b)
	}
	return blocks, rows.Err()
}

// GetBlock returns one block by id.
func (db *DB) GetBlock(ctx context.Context, id string) (*models.Block, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `SELECT id, playlist_id, block_order, search_term, video_count, format, fetch_mode, times_played, last_played_at, created_at
		FROM blocks WHERE id = ?`
	var b models.Block
	var lastPlayed sql.NullTime
	err := db.conn.QueryRowContext(ctx, query, id).Scan(
		&b.ID, &b.PlaylistID, &b.BlockOrder, &b.SearchTerm, &b.VideoCount,
		&b.Format, &b.FetchMode, &b.TimesPlayed, &lastPlayed, &b.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.Newf(apperr.KindNotFound, "database.GetBlock", "block %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get block %s: %w", id, err)
	}
	if lastPlayed.Valid {
		t := lastPlayed.Time
		b.LastPlayedAt = &t
	}
	return &b, nil
}

// UpdateBlock applies non-nil fields of the update to a block. Queued
// timeline entries for the block are invalidated when the search
// specification changed, so the next refill re-materializes them.
func (db *DB) UpdateBlock(ctx context.Context, blockID string, update models.UpdateBlockRequest) (*models.Block, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	block, err := db.GetBlock(ctx, blockID)
	if err != nil {
		return nil, err
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	specChanged := false
	if update.SearchTerm != nil && *update.SearchTerm != block.SearchTerm {
		block.SearchTerm = *update.SearchTerm
		specChanged = true
	}
	if update.VideoCount != nil && *update.VideoCount != block.VideoCount {
		block.VideoCount = *update.VideoCount
		specChanged = true
	}
	if update.Format != nil && *update.Format != block.Format {
		block.Format = *update.Format
		specChanged = true
	}
	if update.FetchMode != nil {
		block.FetchMode = *update.FetchMode
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE blocks SET search_term = ?, video_count = ?, format = ?, fetch_mode = ? WHERE id = ?`,
		block.SearchTerm, block.VideoCount, block.Format, block.FetchMode, blockID); err != nil {
		return nil, fmt.Errorf("failed to update block %s: %w", blockID, err)
	}

	if specChanged {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM timeline_entries WHERE block_id = ? AND status = 'queued'`, blockID); err != nil {
			return nil, fmt.Errorf("failed to invalidate queued entries for block %s: %w", blockID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit block update: %w", err)
	}
	return block, nil
}

// DeleteBlock removes a block, renumbers the remaining blocks densely,
// and drops the block's queued timeline entries. Deleting the last block
// of a playlist is rejected.
func (db *DB) DeleteBlock(ctx context.Context, blockID string) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	block, err := db.GetBlock(ctx, blockID)
	if err != nil {
		return err
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var remaining int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM blocks WHERE playlist_id = ?`, block.PlaylistID).Scan(&remaining); err != nil {
		return fmt.Errorf("failed to count blocks: %w", err)
	}
	if remaining <= 1 {
		return apperr.New(apperr.KindConflict, "database.DeleteBlock", "cannot delete the last block of a playlist")
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM blocks WHERE id = ?`, blockID); err != nil {
		return fmt.Errorf("failed to delete block %s: %w", blockID, err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE blocks SET block_order = block_order - 1 WHERE playlist_id = ? AND block_order > ?`,
		block.PlaylistID, block.BlockOrder); err != nil {
		return fmt.Errorf("failed to renumber blocks: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM timeline_entries WHERE block_id = ? AND status = 'queued'`, blockID); err != nil {
		return fmt.Errorf("failed to delete queued entries for block %s: %w", blockID, err)
	}

	return tx.Commit()
}

// ReorderBlocks atomically applies a new block ordering. The submitted
// orders must cover exactly the playlist's blocks and form a dense
// 0..N-1 permutation. Queued timeline entries of the playlist are
// dropped so the timeline re-materializes in the new order.
func (db *DB) ReorderBlocks(ctx context.Context, playlistID string, orders []models.BlockOrderInput) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	blocks, err := db.GetBlocks(ctx, playlistID)
	if err != nil {
		return err
	}
	if len(blocks) == 0 {
		return apperr.Newf(apperr.KindNotFound, "database.ReorderBlocks", "playlist %s not found or empty", playlistID)
	}
	if len(orders) != len(blocks) {
		return apperr.Newf(apperr.KindInvariantViolation, "database.ReorderBlocks",
			"reorder must cover all %d blocks, got %d", len(blocks), len(orders))
	}

	known := make(map[string]bool, len(blocks))
	for _, b := range blocks {
		known[b.ID] = true
	}

	seen := make(map[string]bool, len(orders))
	positions := make([]int, 0, len(orders))
	for _, o := range orders {
		if !known[o.BlockID] {
			return apperr.Newf(apperr.KindInvariantViolation, "database.ReorderBlocks", "block %s does not belong to playlist %s", o.BlockID, playlistID)
		}
		if seen[o.BlockID] {
			return apperr.Newf(apperr.KindInvariantViolation, "database.ReorderBlocks", "block %s listed twice", o.BlockID)
		}
		seen[o.BlockID] = true
		positions = append(positions, o.Order)
	}
	sort.Ints(positions)
	for i, pos := range positions {
		if pos != i {
			return apperr.New(apperr.KindInvariantViolation, "database.ReorderBlocks", "block orders must form a dense 0..N-1 permutation")
		}
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, o := range orders {
		if _, err := tx.ExecContext(ctx, `UPDATE blocks SET block_order = ? WHERE id = ?`, o.Order, o.BlockID); err != nil {
			return fmt.Errorf("failed to reorder block %s: %w", o.BlockID, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM timeline_entries WHERE playlist_id = ? AND status = 'queued'`, playlistID); err != nil {
		return fmt.Errorf("failed to drop queued entries for %s: %w", playlistID, err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE playlists SET updated_at = ? WHERE id = ?`, time.Now().UTC(), playlistID); err != nil {
		return fmt.Errorf("failed to touch playlist %s: %w", playlistID, err)
	}

	return tx.Commit()
}

// MarkBlockPlayed bumps a block's play counter.
func (db *DB) MarkBlockPlayed(ctx context.Context, blockID string, at time.Time) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if _, err := db.conn.ExecContext(ctx,
		`UPDATE blocks SET times_played = times_played + 1, last_played_at = ? WHERE id = ?`, at.UTC(), blockID); err != nil {
		return fmt.Errorf("failed to mark block %s played: %w", blockID, err)
	}
	return nil
}

// IncrementLoopCount bumps a playlist's completed loop counter and
// returns the new value.
func (db *DB) IncrementLoopCount(ctx context.Context, playlistID string) (int, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if _, err := db.conn.ExecContext(ctx,
		`UPDATE playlists SET loop_count = loop_count + 1, updated_at = ? WHERE id = ?`, time.Now().UTC(), playlistID); err != nil {
		return 0, fmt.Errorf("failed to increment loop count for %s: %w", playlistID, err)
	}

	var count int
	if err := db.conn.QueryRowContext(ctx, `SELECT loop_count FROM playlists WHERE id = ?`, playlistID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to read loop count for %s: %w", playlistID, err)
	}
	return count, nil
}
