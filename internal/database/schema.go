// SoraFeed - Multi-Display Video Playlist Orchestrator
// Copyright 2026 fourtytwo42
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fourtytwo42/soraFeed-sub001

/*
schema.go - Database Schema Management

Tables:
  - creators: upstream user identities, updated in place on re-sighting
  - videos: the append-mostly content index keyed by upstream post id
  - displays: remote playback endpoints keyed by 6-char code
  - playlists: named block collections, at most one active per display
  - blocks: search specifications with a dense per-playlist ordering
  - timeline_entries: materialized (display, video) slots with status
  - video_history: append-only playback completion log
  - ingestion_stats: single-row scanner counters snapshot (id = 1)

Schema Strategy:
All columns are defined in the initial CREATE TABLE statements. Versioned
migrations in migrations.go exist for post-release schema changes.
*/

//nolint:staticcheck // File documentation, not package doc
package database

import (
	"context"
	"fmt"
	"time"
)

// schemaContext returns a context with timeout for schema operations.
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// createTables creates the core database tables.
func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range db.getTableCreationQueries() {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %s: %w", query, err)
		}
	}
	return nil
}

// getTableCreationQueries returns the table creation SQL statements.
func (db *DB) getTableCreationQueries() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS creators (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL,
			profile_url TEXT,
			follower_count INTEGER DEFAULT 0,
			post_count INTEGER DEFAULT 0,
			verified BOOLEAN DEFAULT FALSE,
			first_seen_at TIMESTAMP NOT NULL,
			last_seen_at TIMESTAMP NOT NULL
		);`,

		`CREATE TABLE IF NOT EXISTS videos (
			id TEXT PRIMARY KEY,
			creator_id TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			posted_at BIGINT NOT NULL,
			permalink TEXT,
			source_url TEXT NOT NULL,
			md_url TEXT,
			thumbnail_url TEXT,
			gif_url TEXT,
			width INTEGER DEFAULT 0,
			height INTEGER DEFAULT 0,
			like_count INTEGER DEFAULT 0,
			comment_count INTEGER DEFAULT 0,
			indexed_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,

		`CREATE TABLE IF NOT EXISTS displays (
			code TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			playback_state TEXT NOT NULL DEFAULT 'idle',
			current_playlist_id TEXT,
			current_video_id TEXT,
			current_block_id TEXT,
			timeline_position INTEGER NOT NULL DEFAULT 0,
			last_ping_at TIMESTAMP,
			muted BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,

		`CREATE TABLE IF NOT EXISTS playlists (
			id UUID PRIMARY KEY,
			display_code TEXT NOT NULL,
			name TEXT NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT FALSE,
			loop_count INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,

		`CREATE TABLE IF NOT EXISTS blocks (
			id UUID PRIMARY KEY,
			playlist_id UUID NOT NULL,
			block_order INTEGER NOT NULL,
			search_term TEXT NOT NULL DEFAULT '',
			video_count INTEGER NOT NULL,
			format TEXT NOT NULL DEFAULT 'mixed',
			fetch_mode TEXT NOT NULL DEFAULT 'newest',
			times_played INTEGER NOT NULL DEFAULT 0,
			last_played_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,

		`CREATE TABLE IF NOT EXISTS timeline_entries (
			id UUID PRIMARY KEY,
			display_code TEXT NOT NULL,
			playlist_id UUID NOT NULL,
			block_id UUID NOT NULL,
			video_id TEXT NOT NULL,
			timeline_position INTEGER NOT NULL,
			status TEXT NOT NULL DEFAULT 'queued',
			block_position INTEGER NOT NULL DEFAULT 0,
			loop_iteration INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,

		`CREATE TABLE IF NOT EXISTS video_history (
			id UUID PRIMARY KEY,
			display_code TEXT NOT NULL,
			block_id UUID NOT NULL,
			video_id TEXT NOT NULL,
			search_term TEXT NOT NULL DEFAULT '',
			played_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,

		// Single-row counters snapshot. The row is created on first
		// update with id = 1.
		`CREATE TABLE IF NOT EXISTS ingestion_stats (
			id INTEGER PRIMARY KEY,
			total_scanned BIGINT NOT NULL DEFAULT 0,
			total_new BIGINT NOT NULL DEFAULT 0,
			total_duplicates BIGINT NOT NULL DEFAULT 0,
			total_errors BIGINT NOT NULL DEFAULT 0,
			current_interval_ms BIGINT NOT NULL DEFAULT 0,
			avg_throughput DOUBLE NOT NULL DEFAULT 0,
			avg_unique_per_second DOUBLE NOT NULL DEFAULT 0,
			avg_overlap DOUBLE NOT NULL DEFAULT 0,
			last_scan_at TIMESTAMP,
			last_error_at TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
	}
}

// createIndexes creates database indexes for query optimization.
func (db *DB) createIndexes() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range db.getIndexQueries() {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute index query: %s: %w", query, err)
		}
	}
	return nil
}

// getIndexQueries returns index creation SQL statements.
func (db *DB) getIndexQueries() []string {
	return []string{
		// Content index lookups
		`CREATE INDEX IF NOT EXISTS idx_videos_creator ON videos(creator_id);`,
		`CREATE INDEX IF NOT EXISTS idx_videos_posted_at ON videos(posted_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_videos_dimensions ON videos(width, height);`,

		// Playlist ownership and activation
		`CREATE INDEX IF NOT EXISTS idx_playlists_display ON playlists(display_code, is_active);`,
		`CREATE INDEX IF NOT EXISTS idx_blocks_playlist_order ON blocks(playlist_id, block_order);`,

		// Timeline scans by display and position
		`CREATE INDEX IF NOT EXISTS idx_timeline_display_pos ON timeline_entries(display_code, timeline_position);`,
		`CREATE INDEX IF NOT EXISTS idx_timeline_playlist_status ON timeline_entries(playlist_id, status);`,
		`CREATE INDEX IF NOT EXISTS idx_timeline_video ON timeline_entries(playlist_id, video_id);`,

		// Exhaustion arithmetic groups history by display and term
		`CREATE INDEX IF NOT EXISTS idx_history_display_term ON video_history(display_code, search_term);`,
		`CREATE INDEX IF NOT EXISTS idx_history_played_at ON video_history(played_at DESC);`,
	}
}
