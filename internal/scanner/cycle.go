// SoraFeed - Multi-Display Video Playlist Orchestrator
// Copyright 2026 fourtytwo42
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fourtytwo42/soraFeed-sub001

package scanner

import (
	"context"
	"fmt"
	"time"

	"github.com/fourtytwo42/soraFeed-sub001/internal/apperr"
	"github.com/fourtytwo42/soraFeed-sub001/internal/feed"
	"github.com/fourtytwo42/soraFeed-sub001/internal/logging"
	"github.com/fourtytwo42/soraFeed-sub001/internal/metrics"
	"github.com/fourtytwo42/soraFeed-sub001/internal/models"
)

const (
	fetchRetryAttempts  = 3
	fetchRetryBaseDelay = time.Second

	// authFailureThreshold is how many consecutive auth-looking failures
	// force an out-of-schedule credential refresh.
	authFailureThreshold = 2

	// errorEscalation thresholds: at escalateAfter consecutive failures
	// the interval doubles per failure; at clampAfter it clamps to the
	// error cap and the counter resets.
	escalateAfter = 3
	clampAfter    = 10
)

// fetchWithRetry requests the newest feed page, retrying transient
// transport failures in-cycle with doubling backoff.
func (s *Scanner) fetchWithRetry(ctx context.Context) (*feed.FeedPage, error) {
	var lastErr error
	delay := s.retryBaseDelay

	for attempt := 0; attempt < fetchRetryAttempts; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		page, err := s.client.FetchPage(ctx, s.cfg.BatchSize, "")
		if err == nil {
			return page, nil
		}
		lastErr = err

		if !apperr.Is(err, apperr.KindTransient) {
			break
		}
		if attempt < fetchRetryAttempts-1 {
			logging.Warn().Err(err).Int("attempt", attempt+1).Dur("delay", delay).Msg("feed fetch retry")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			delay *= 2
		}
	}

	return nil, lastErr
}

// ingestPage writes a page into the index and computes the overlap ratio
// against the previous page. Overlap is 0 on the first page.
func (s *Scanner) ingestPage(ctx context.Context, page *feed.FeedPage) (scanned, inserted, duplicates int, overlap float64, err error) {
	scanned = len(page.Items)
	now := time.Now().UTC()

	currentIDs := make(map[string]bool, scanned)
	seenCreators := make(map[string]bool)
	videos := make([]*models.Video, 0, scanned)

	for i := range page.Items {
		item := &page.Items[i]
		v := item.ToVideo(now)
		if v == nil {
			continue
		}
		currentIDs[v.ID] = true
		videos = append(videos, v)

		if !seenCreators[item.Profile.ID] {
			seenCreators[item.Profile.ID] = true
			if err := s.index.UpsertCreator(ctx, item.ToCreator(now)); err != nil {
				return scanned, 0, 0, 0, fmt.Errorf("failed to upsert creator %s: %w", item.Profile.ID, err)
			}
		}
	}

	s.mu.Lock()
	if len(currentIDs) > 0 && len(s.prevPageIDs) > 0 {
		shared := 0
		for id := range currentIDs {
			if s.prevPageIDs[id] {
				shared++
			}
		}
		overlap = float64(shared) / float64(len(currentIDs))
	}
	s.prevPageIDs = currentIDs
	s.mu.Unlock()

	inserted, duplicates, err = s.index.InsertVideosBatch(ctx, videos)
	if err != nil {
		return scanned, 0, 0, overlap, fmt.Errorf("failed to insert video batch: %w", err)
	}
	return scanned, inserted, duplicates, overlap, nil
}

// recordCycleSuccess tunes the interval from the overlap ratio, rolls the
// moving-average window forward, and persists the counters snapshot.
func (s *Scanner) recordCycleSuccess(ctx context.Context, start time.Time, scanned, inserted, duplicates int, overlap float64) {
	duration := time.Since(start)
	now := time.Now().UTC()

	s.mu.Lock()
	s.consecutiveErrors = 0
	s.authLikeFailures = 0

	switch {
	case overlap < s.cfg.OverlapLow:
		s.interval -= s.cfg.StepDown
	case overlap > s.cfg.OverlapHigh:
		s.interval += s.cfg.StepUp
	}
	s.interval = clampInterval(s.interval.Round(100*time.Millisecond), s.cfg.MinInterval, s.cfg.MaxInterval)
	interval := s.interval

	cycle := models.ScanCycle{
		Scanned:     scanned,
		New:         inserted,
		Duplicates:  duplicates,
		Overlap:     overlap,
		Duration:    duration,
		Interval:    interval,
		CompletedAt: now,
	}
	if seconds := duration.Seconds(); seconds > 0 {
		cycle.Throughput = float64(scanned) / seconds
		cycle.UniquePerSecond = float64(inserted) / seconds
	}

	s.window = append(s.window, cycle)
	if len(s.window) > s.cfg.WindowSize {
		s.window = s.window[len(s.window)-s.cfg.WindowSize:]
	}
	avgThroughput, avgUnique, avgOverlap := windowAverages(s.window)

	s.totalScanned += int64(scanned)
	s.totalNew += int64(inserted)
	s.totalDuplicates += int64(duplicates)
	s.lastScanAt = &now

	snapshot := s.statsSnapshotLocked(avgThroughput, avgUnique, avgOverlap)
	callback := s.onCycleCompleted
	s.mu.Unlock()

	metrics.RecordScanCycle(duration, inserted, duplicates, overlap, interval, nil)
	metrics.ScanConsecutiveErrors.Set(0)

	if err := s.stats.UpdateIngestionStats(ctx, snapshot); err != nil {
		logging.Warn().Err(err).Msg("failed to persist ingestion stats")
	}
	if s.bus != nil {
		s.bus.PublishScanCycle(cycle)
	}
	if callback != nil {
		callback(CycleResult{
			Scanned: scanned, New: inserted, Duplicates: duplicates,
			Overlap: overlap, Duration: duration, Interval: interval,
		})
	}

	logging.Info().
		Int("scanned", scanned).
		Int("new", inserted).
		Int("duplicates", duplicates).
		Float64("overlap", overlap).
		Dur("duration", duration).
		Dur("next_interval", interval).
		Msg("scan cycle completed")
}

// recordCycleError escalates the interval on repeated failures and forces
// a credential refresh after repeated auth-looking ones.
func (s *Scanner) recordCycleError(ctx context.Context, start time.Time, cycleErr error) {
	duration := time.Since(start)
	now := time.Now().UTC()

	forceRefresh := false

	s.mu.Lock()
	s.consecutiveErrors++
	s.totalErrors++
	s.lastErrorAt = &now

	if feed.IsAuthLike(cycleErr) {
		s.authLikeFailures++
		if s.authLikeFailures >= authFailureThreshold {
			forceRefresh = true
			s.authLikeFailures = 0
		}
	}

	switch {
	case s.consecutiveErrors >= clampAfter:
		s.interval = s.cfg.ErrorMaxCap
		s.consecutiveErrors = 0
	case s.consecutiveErrors >= escalateAfter:
		s.interval *= 2
		if s.interval > s.cfg.ErrorMaxCap {
			s.interval = s.cfg.ErrorMaxCap
		}
	}
	interval := s.interval
	consecutive := s.consecutiveErrors

	avgThroughput, avgUnique, avgOverlap := windowAverages(s.window)
	snapshot := s.statsSnapshotLocked(avgThroughput, avgUnique, avgOverlap)
	callback := s.onCycleCompleted
	s.mu.Unlock()

	metrics.RecordScanCycle(duration, 0, 0, 0, interval, cycleErr)
	metrics.ScanConsecutiveErrors.Set(float64(consecutive))
	metrics.ScanInterval.Set(interval.Seconds())

	if forceRefresh && s.refresher != nil {
		logging.Warn().Err(cycleErr).Msg("repeated auth-looking failures, forcing credential refresh")
		if err := s.refresher.Refresh(ctx); err != nil {
			logging.Error().Err(err).Msg("forced credential refresh failed")
		}
	}

	if err := s.stats.UpdateIngestionStats(ctx, snapshot); err != nil {
		logging.Warn().Err(err).Msg("failed to persist ingestion stats")
	}
	if callback != nil {
		callback(CycleResult{Duration: duration, Interval: interval, Err: cycleErr})
	}

	logging.Warn().
		Err(cycleErr).
		Int("consecutive_errors", consecutive).
		Dur("next_interval", interval).
		Msg("scan cycle failed")
}

// statsSnapshotLocked builds the persistence snapshot. Callers hold mu.
func (s *Scanner) statsSnapshotLocked(avgThroughput, avgUnique, avgOverlap float64) *models.IngestionStats {
	return &models.IngestionStats{
		TotalScanned:       s.totalScanned,
		TotalNew:           s.totalNew,
		TotalDuplicates:    s.totalDuplicates,
		TotalErrors:        s.totalErrors,
		CurrentIntervalMS:  s.interval.Milliseconds(),
		AvgThroughput:      avgThroughput,
		AvgUniquePerSecond: avgUnique,
		AvgOverlap:         avgOverlap,
		LastScanAt:         s.lastScanAt,
		LastErrorAt:        s.lastErrorAt,
	}
}

func windowAverages(window []models.ScanCycle) (throughput, uniquePerSecond, overlap float64) {
	if len(window) == 0 {
		return 0, 0, 0
	}
	for _, c := range window {
		throughput += c.Throughput
		uniquePerSecond += c.UniquePerSecond
		overlap += c.Overlap
	}
	n := float64(len(window))
	return throughput / n, uniquePerSecond / n, overlap / n
}

func clampInterval(d, min, max time.Duration) time.Duration {
	if d < min {
		return min
	}
	if d > max {
		return max
	}
	return d
}
