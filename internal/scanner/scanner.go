// SoraFeed - Multi-Display Video Playlist Orchestrator
// Copyright 2026 fourtytwo42
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fourtytwo42/soraFeed-sub001

// Package scanner polls the upstream feed into the content index with an
// adaptive interval: low page overlap speeds polling up, high overlap
// slows it down, and consecutive errors escalate it toward a hard cap.
package scanner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fourtytwo42/soraFeed-sub001/internal/config"
	"github.com/fourtytwo42/soraFeed-sub001/internal/feed"
	"github.com/fourtytwo42/soraFeed-sub001/internal/logging"
	"github.com/fourtytwo42/soraFeed-sub001/internal/models"
)

// Index is the content-index surface the scanner writes to.
type Index interface {
	UpsertCreator(ctx context.Context, creator *models.Creator) error
	InsertVideosBatch(ctx context.Context, videos []*models.Video) (inserted, duplicates int, err error)
}

// StatsSink persists the scanner counters snapshot.
type StatsSink interface {
	UpdateIngestionStats(ctx context.Context, stats *models.IngestionStats) error
}

// CredentialRefresher renews feed credentials out of process.
type CredentialRefresher interface {
	Refresh(ctx context.Context) error
	Due(interval time.Duration) bool
}

// Bus receives completed cycle summaries for realtime fan-out.
type Bus interface {
	PublishScanCycle(cycle models.ScanCycle)
}

// CycleResult summarizes one scan cycle for the completion callback.
type CycleResult struct {
	Scanned    int
	New        int
	Duplicates int
	Overlap    float64
	Duration   time.Duration
	Interval   time.Duration
	Err        error
}

// Scanner runs the adaptive ingestion loop. mu guards lifecycle and
// tunable state; scanMu serializes cycle execution so TriggerScan and the
// loop never overlap.
type Scanner struct {
	index     Index
	client    feed.PageFetcher
	refresher CredentialRefresher
	stats     StatsSink
	bus       Bus
	cfg       *config.ScannerConfig
	feedCfg   *config.FeedConfig

	mu       sync.RWMutex
	scanMu   sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup

	interval          time.Duration
	retryBaseDelay    time.Duration
	consecutiveErrors int
	authLikeFailures  int
	prevPageIDs       map[string]bool
	window            []models.ScanCycle

	totalScanned    int64
	totalNew        int64
	totalDuplicates int64
	totalErrors     int64
	lastScanAt      *time.Time
	lastErrorAt     *time.Time

	onCycleCompleted func(CycleResult)
}

// New creates a scanner. refresher and bus may be nil.
func New(index Index, client feed.PageFetcher, refresher CredentialRefresher, stats StatsSink, bus Bus, cfg *config.ScannerConfig, feedCfg *config.FeedConfig) *Scanner {
	return &Scanner{
		index:       index,
		client:      client,
		refresher:   refresher,
		stats:       stats,
		bus:         bus,
		cfg:         cfg,
		feedCfg:     feedCfg,
		stopChan:       make(chan struct{}),
		interval:       cfg.MinInterval,
		retryBaseDelay: fetchRetryBaseDelay,
		prevPageIDs:    make(map[string]bool),
	}
}

// SetOnCycleCompleted sets the callback invoked after every cycle,
// successful or not.
func (s *Scanner) SetOnCycleCompleted(callback func(CycleResult)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onCycleCompleted = callback
}

// Start launches the scan loop.
func (s *Scanner) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scanner is already running")
	}
	s.running = true
	s.mu.Unlock()

	logging.Info().
		Int("batch_size", s.cfg.BatchSize).
		Dur("min_interval", s.cfg.MinInterval).
		Dur("max_interval", s.cfg.MaxInterval).
		Msg("starting ingestion scanner")

	s.wg.Add(1)
	go s.scanLoop(ctx)
	return nil
}

// Stop halts the loop and waits for an in-flight cycle to finish.
func (s *Scanner) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("scanner is not running")
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopChan)
	s.wg.Wait()
	logging.Info().Msg("ingestion scanner stopped")
	return nil
}

// TriggerScan runs one cycle synchronously, for the scan-once subcommand
// and the admin API.
func (s *Scanner) TriggerScan(ctx context.Context) error {
	s.scanMu.Lock()
	defer s.scanMu.Unlock()
	return s.runCycle(ctx)
}

// Interval returns the current polling interval.
func (s *Scanner) Interval() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.interval
}

// scanLoop sleeps the adaptive interval between cycles. A timer rather
// than a ticker, because the interval changes every cycle.
func (s *Scanner) scanLoop(ctx context.Context) {
	defer s.wg.Done()

	for {
		timer := time.NewTimer(s.Interval())
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.stopChan:
			timer.Stop()
			return
		case <-timer.C:
		}

		s.scanMu.Lock()
		err := s.runCycle(ctx)
		s.scanMu.Unlock()

		if err != nil {
			logging.Error().Err(err).Msg("scan cycle failed")
		}
	}
}

// runCycle executes one scan cycle under the watchdog deadline. Callers
// must hold scanMu.
func (s *Scanner) runCycle(ctx context.Context) error {
	cycleCtx, cancel := context.WithTimeout(ctx, s.cfg.CycleTimeout)
	defer cancel()

	start := time.Now()

	s.maybeRefreshCredentials(cycleCtx)

	page, err := s.fetchWithRetry(cycleCtx)
	if err != nil {
		s.recordCycleError(cycleCtx, start, err)
		return err
	}

	scanned, inserted, duplicates, overlap, err := s.ingestPage(cycleCtx, page)
	if err != nil {
		s.recordCycleError(cycleCtx, start, err)
		return err
	}

	s.recordCycleSuccess(cycleCtx, start, scanned, inserted, duplicates, overlap)
	return nil
}

// maybeRefreshCredentials runs the scheduled credential refresh when the
// configured interval has elapsed. A refresh failure is logged but does
// not abort the cycle; the fetch will surface the real state.
func (s *Scanner) maybeRefreshCredentials(ctx context.Context) {
	if s.refresher == nil || s.feedCfg.RefreshInterval <= 0 {
		return
	}
	if !s.refresher.Due(s.feedCfg.RefreshInterval) {
		return
	}
	if err := s.refresher.Refresh(ctx); err != nil {
		logging.Warn().Err(err).Msg("scheduled credential refresh failed")
	}
}
