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

	"github.com/fourtytwo42/soraFeed-sub001/internal/models"
)

// GetIngestionStats returns the scanner counters snapshot. A zero-valued
// snapshot is returned when no scan has completed yet.
func (db *DB) GetIngestionStats(ctx context.Context) (*models.IngestionStats, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `SELECT total_scanned, total_new, total_duplicates, total_errors,
			current_interval_ms, avg_throughput, avg_unique_per_second, avg_overlap,
			last_scan_at, last_error_at, updated_at
		FROM ingestion_stats WHERE id = 1`

	var s models.IngestionStats
	var lastScan, lastError sql.NullTime
	err := db.conn.QueryRowContext(ctx, query).Scan(
		&s.TotalScanned, &s.TotalNew, &s.TotalDuplicates, &s.TotalErrors,
		&s.CurrentIntervalMS, &s.AvgThroughput, &s.AvgUniquePerSecond, &s.AvgOverlap,
		&lastScan, &lastError, &s.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return &models.IngestionStats{UpdatedAt: time.Now().UTC()}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ingestion stats: %w", err)
	}
	if lastScan.Valid {
		t := lastScan.Time
		s.LastScanAt = &t
	}
	if lastError.Valid {
		t := lastError.Time
		s.LastErrorAt = &t
	}
	return &s, nil
}

// UpdateIngestionStats replaces the single-row counters snapshot.
func (db *DB) UpdateIngestionStats(ctx context.Context, s *models.IngestionStats) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	s.UpdatedAt = time.Now().UTC()
	query := `INSERT INTO ingestion_stats (id, total_scanned, total_new, total_duplicates, total_errors,
			current_interval_ms, avg_throughput, avg_unique_per_second, avg_overlap,
			last_scan_at, last_error_at, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			total_scanned = excluded.total_scanned,
			total_new = excluded.total_new,
			total_duplicates = excluded.total_duplicates,
			total_errors = excluded.total_errors,
			current_interval_ms = excluded.current_interval_ms,
			avg_throughput = excluded.avg_throughput,
			avg_unique_per_second = excluded.avg_unique_per_second,
			avg_overlap = excluded.avg_overlap,
			last_scan_at = excluded.last_scan_at,
			last_error_at = excluded.last_error_at,
			updated_at = excluded.updated_at`

	var lastScan, lastError interface{}
	if s.LastScanAt != nil {
		lastScan = s.LastScanAt.UTC()
	}
	if s.LastErrorAt != nil {
		lastError = s.LastErrorAt.UTC()
	}

	if _, err := db.conn.ExecContext(ctx, query,
		s.TotalScanned, s.TotalNew, s.TotalDuplicates, s.TotalErrors,
		s.CurrentIntervalMS, s.AvgThroughput, s.AvgUniquePerSecond, s.AvgOverlap,
		lastScan, lastError, s.UpdatedAt,
	); err != nil {
		return fmt.Errorf("failed to update ingestion stats: %w", err)
	}
	return nil
}
