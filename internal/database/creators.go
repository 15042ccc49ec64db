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

// UpsertCreator inserts a creator on first sighting and refreshes the
// mutable fields on every re-sighting. first_seen_at is preserved.
func (db *DB) UpsertCreator(ctx context.Context, creator *models.Creator) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	now := time.Now().UTC()
	if creator.FirstSeenAt.IsZero() {
		creator.FirstSeenAt = now
	}
	creator.LastSeenAt = now

	query := `INSERT INTO creators (id, username, profile_url, follower_count, post_count, verified, first_seen_at, last_seen_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			username = excluded.username,
			profile_url = excluded.profile_url,
			follower_count = excluded.follower_count,
			post_count = excluded.post_count,
			verified = excluded.verified,
			last_seen_at = excluded.last_seen_at`

	stmt, err := db.getStmt(ctx, query)
	if err != nil {
		return err
	}
	if _, err := stmt.ExecContext(ctx,
		creator.ID, creator.Username, creator.ProfileURL,
		creator.FollowerCount, creator.PostCount, creator.Verified,
		creator.FirstSeenAt, creator.LastSeenAt,
	); err != nil {
		return fmt.Errorf("failed to upsert creator %s: %w", creator.ID, err)
	}
	return nil
}

// GetCreator returns the creator with the given id.
func (db *DB) GetCreator(ctx context.Context, id string) (*models.Creator, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `SELECT id, username, profile_url, follower_count, post_count, verified, first_seen_at, last_seen_at
		FROM creators WHERE id = ?`

	var c models.Creator
	var profileURL sql.NullString
	err := db.conn.QueryRowContext(ctx, query, id).Scan(
		&c.ID, &c.Username, &profileURL,
		&c.FollowerCount, &c.PostCount, &c.Verified,
		&c.FirstSeenAt, &c.LastSeenAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.Newf(apperr.KindNotFound, "database.GetCreator", "creator %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get creator %s: %w", id, err)
	}
	c.ProfileURL = profileURL.String
	return &c, nil
}

// CountCreators returns the total number of indexed creators.
func (db *DB) CountCreators(ctx context.Context) (int64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var count int64
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM creators`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count creators: %w", err)
	}
	return count, nil
}
