// SoraFeed - Multi-Display Video Playlist Orchestrator
// Copyright 2026 fourtytwo42
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fourtytwo42/soraFeed-sub001

package scanner

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/fourtytwo42/soraFeed-sub001/internal/apperr"
	"github.com/fourtytwo42/soraFeed-sub001/internal/config"
	"github.com/fourtytwo42/soraFeed-sub001/internal/feed"
	"github.com/fourtytwo42/soraFeed-sub001/internal/logging"
	"github.com/fourtytwo42/soraFeed-sub001/internal/models"
)

func init() {
	logging.Init(logging.Config{Level: "disabled", Output: io.Discard})
}

type fakeIndex struct {
	mu       sync.Mutex
	creators []*models.Creator
	videos   []*models.Video
	// seen simulates the index: re-inserted ids count as duplicates.
	seen map[string]bool
}

func (f *fakeIndex) UpsertCreator(_ context.Context, c *models.Creator) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creators = append(f.creators, c)
	return nil
}

func (f *fakeIndex) InsertVideosBatch(_ context.Context, videos []*models.Video) (int, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seen == nil {
		f.seen = make(map[string]bool)
	}
	inserted, duplicates := 0, 0
	for _, v := range videos {
		if f.seen[v.ID] {
			duplicates++
			continue
		}
		f.seen[v.ID] = true
		f.videos = append(f.videos, v)
		inserted++
	}
	return inserted, duplicates, nil
}

type fakeFetcher struct {
	mu    sync.Mutex
	pages []*feed.FeedPage
	errs  []error
	calls int
}

func (f *fakeFetcher) FetchPage(context.Context, int, string) (*feed.FeedPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	var page *feed.FeedPage
	switch {
	case len(f.pages) == 0:
	case i >= len(f.pages):
		page = f.pages[len(f.pages)-1]
	default:
		page = f.pages[i]
	}
	if page == nil {
		page = &feed.FeedPage{}
	}
	return page, nil
}

type fakeStats struct {
	mu   sync.Mutex
	last *models.IngestionStats
}

func (f *fakeStats) UpdateIngestionStats(_ context.Context, s *models.IngestionStats) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.last = s
	return nil
}

func (f *fakeStats) snapshot() *models.IngestionStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

type fakeRefresher struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeRefresher) Refresh(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return nil
}

func (f *fakeRefresher) Due(time.Duration) bool { return false }

func (f *fakeRefresher) refreshCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeBus struct {
	mu     sync.Mutex
	cycles []models.ScanCycle
}

func (f *fakeBus) PublishScanCycle(c models.ScanCycle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cycles = append(f.cycles, c)
}

func testScannerConfig() *config.ScannerConfig {
	return &config.ScannerConfig{
		Enabled:      true,
		BatchSize:    200,
		MinInterval:  6 * time.Second,
		MaxInterval:  30 * time.Second,
		StepUp:       time.Second,
		StepDown:     500 * time.Millisecond,
		ErrorMaxCap:  120 * time.Second,
		CycleTimeout: 300 * time.Second,
		OverlapLow:   0.25,
		OverlapHigh:  0.40,
		WindowSize:   6,
	}
}

func pageOf(ids ...string) *feed.FeedPage {
	page := &feed.FeedPage{}
	for _, id := range ids {
		page.Items = append(page.Items, feed.FeedItem{
			Post: feed.FeedPost{
				ID:       id,
				Text:     "clip " + id,
				PostedAt: 100,
				Attachments: []feed.FeedAttachment{{
					Width: 1920, Height: 1080,
					Encodings: feed.FeedEncodings{Source: feed.FeedEncoding{Path: "https://cdn.example/" + id + ".mp4"}},
				}},
			},
			Profile: feed.FeedProfile{ID: "creator-" + id, Username: "u-" + id},
		})
	}
	return page
}

func newTestScanner(fetcher feed.PageFetcher, index *fakeIndex, stats *fakeStats, bus Bus, refresher CredentialRefresher) *Scanner {
	s := New(index, fetcher, refresher, stats, bus, testScannerConfig(), &config.FeedConfig{})
	s.retryBaseDelay = time.Millisecond
	return s
}

func TestTriggerScanIngestsPage(t *testing.T) {
	index := &fakeIndex{}
	stats := &fakeStats{}
	bus := &fakeBus{}
	s := newTestScanner(&fakeFetcher{pages: []*feed.FeedPage{pageOf("a", "b", "c")}}, index, stats, bus, nil)

	var result CycleResult
	s.SetOnCycleCompleted(func(r CycleResult) { result = r })

	if err := s.TriggerScan(context.Background()); err != nil {
		t.Fatalf("TriggerScan() error: %v", err)
	}

	if len(index.videos) != 3 || len(index.creators) != 3 {
		t.Errorf("indexed %d videos / %d creators, want 3/3", len(index.videos), len(index.creators))
	}
	if result.Scanned != 3 || result.New != 3 || result.Duplicates != 0 {
		t.Errorf("result = %+v", result)
	}
	if result.Overlap != 0 {
		t.Errorf("first page overlap = %f, want 0", result.Overlap)
	}

	snap := stats.snapshot()
	if snap == nil || snap.TotalScanned != 3 || snap.TotalNew != 3 {
		t.Errorf("stats snapshot = %+v", snap)
	}
	if len(bus.cycles) != 1 {
		t.Errorf("bus cycles = %d, want 1", len(bus.cycles))
	}
}

func TestOverlapDrivesInterval(t *testing.T) {
	// Identical consecutive pages: overlap 1.0 on the second cycle.
	fetcher := &fakeFetcher{pages: []*feed.FeedPage{pageOf("a", "b"), pageOf("a", "b")}}
	s := newTestScanner(fetcher, &fakeIndex{}, &fakeStats{}, nil, nil)

	if err := s.TriggerScan(context.Background()); err != nil {
		t.Fatal(err)
	}
	// Low overlap would step down, but the interval is already at floor.
	if got := s.Interval(); got != 6*time.Second {
		t.Errorf("interval after first cycle = %v, want floor 6s", got)
	}

	if err := s.TriggerScan(context.Background()); err != nil {
		t.Fatal(err)
	}
	// High overlap steps up by one second.
	if got := s.Interval(); got != 7*time.Second {
		t.Errorf("interval after overlap = %v, want 7s", got)
	}
}

func TestDuplicateCountsFromIndex(t *testing.T) {
	// Second page shares one id with the first.
	fetcher := &fakeFetcher{pages: []*feed.FeedPage{pageOf("a", "b"), pageOf("b", "c")}}
	index := &fakeIndex{}
	s := newTestScanner(fetcher, index, &fakeStats{}, nil, nil)

	var results []CycleResult
	s.SetOnCycleCompleted(func(r CycleResult) { results = append(results, r) })

	for i := 0; i < 2; i++ {
		if err := s.TriggerScan(context.Background()); err != nil {
			t.Fatal(err)
		}
	}

	if results[1].New != 1 || results[1].Duplicates != 1 {
		t.Errorf("second cycle = %+v, want 1 new / 1 duplicate", results[1])
	}
	if results[1].Overlap != 0.5 {
		t.Errorf("second cycle overlap = %f, want 0.5", results[1].Overlap)
	}
}

func TestTransientFetchRetriedInCycle(t *testing.T) {
	transient := apperr.New(apperr.KindTransient, "feed.fetch", "connection reset")
	fetcher := &fakeFetcher{
		errs:  []error{transient, transient},
		pages: []*feed.FeedPage{nil, nil, pageOf("a")},
	}
	s := newTestScanner(fetcher, &fakeIndex{}, &fakeStats{}, nil, nil)

	if err := s.TriggerScan(context.Background()); err != nil {
		t.Fatalf("TriggerScan() error after retries: %v", err)
	}
	if fetcher.calls != 3 {
		t.Errorf("fetch calls = %d, want 3", fetcher.calls)
	}
}

func TestErrorEscalation(t *testing.T) {
	upstream := apperr.New(apperr.KindUpstream, "feed.fetch", "status 502")
	errs := make([]error, 20)
	for i := range errs {
		errs[i] = upstream
	}
	s := newTestScanner(&fakeFetcher{errs: errs}, &fakeIndex{}, &fakeStats{}, nil, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_ = s.TriggerScan(ctx)
	}
	if got := s.Interval(); got != 6*time.Second {
		t.Errorf("interval after 2 errors = %v, want unchanged 6s", got)
	}

	// Third consecutive error starts doubling.
	_ = s.TriggerScan(ctx)
	if got := s.Interval(); got != 12*time.Second {
		t.Errorf("interval after 3 errors = %v, want 12s", got)
	}
	_ = s.TriggerScan(ctx)
	if got := s.Interval(); got != 24*time.Second {
		t.Errorf("interval after 4 errors = %v, want 24s", got)
	}

	// Doubling caps at the error ceiling.
	for i := 0; i < 4; i++ {
		_ = s.TriggerScan(ctx)
	}
	if got := s.Interval(); got != 120*time.Second {
		t.Errorf("interval after 8 errors = %v, want capped 120s", got)
	}

	// The tenth clamps and resets the counter, so the next error does not
	// double again from the cap.
	for i := 0; i < 2; i++ {
		_ = s.TriggerScan(ctx)
	}
	if got := s.Interval(); got != 120*time.Second {
		t.Errorf("interval after clamp = %v, want 120s", got)
	}
}

func TestAuthFailuresForceRefresh(t *testing.T) {
	denied := apperr.New(apperr.KindCredentials, "feed.fetch", "401")
	refresher := &fakeRefresher{}
	s := newTestScanner(&fakeFetcher{errs: []error{denied, denied, denied, denied}}, &fakeIndex{}, &fakeStats{}, nil, refresher)
	ctx := context.Background()

	_ = s.TriggerScan(ctx)
	if refresher.refreshCalls() != 0 {
		t.Error("one auth failure should not refresh yet")
	}
	_ = s.TriggerScan(ctx)
	if refresher.refreshCalls() != 1 {
		t.Errorf("refresh calls after 2 auth failures = %d, want 1", refresher.refreshCalls())
	}
	// Counter reset: two more failures trigger one more refresh.
	_ = s.TriggerScan(ctx)
	_ = s.TriggerScan(ctx)
	if refresher.refreshCalls() != 2 {
		t.Errorf("refresh calls after 4 auth failures = %d, want 2", refresher.refreshCalls())
	}
}

func TestRecoveryResetsInterval(t *testing.T) {
	upstream := apperr.New(apperr.KindUpstream, "feed.fetch", "status 502")
	fetcher := &fakeFetcher{
		errs:  []error{upstream, upstream, upstream},
		pages: []*feed.FeedPage{nil, nil, nil, pageOf("a")},
	}
	s := newTestScanner(fetcher, &fakeIndex{}, &fakeStats{}, nil, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = s.TriggerScan(ctx)
	}
	if got := s.Interval(); got != 12*time.Second {
		t.Fatalf("interval after errors = %v, want 12s", got)
	}

	// A successful cycle resets the error counter; the overlap rule then
	// steps the escalated interval back down.
	if err := s.TriggerScan(ctx); err != nil {
		t.Fatalf("recovery cycle error: %v", err)
	}
	if got := s.Interval(); got != 11500*time.Millisecond {
		t.Errorf("interval after recovery = %v, want 11.5s", got)
	}
}

func TestStartStop(t *testing.T) {
	cfg := testScannerConfig()
	cfg.MinInterval = 5 * time.Millisecond
	cfg.MaxInterval = 10 * time.Millisecond

	s := New(&fakeIndex{}, &fakeFetcher{pages: []*feed.FeedPage{pageOf("a")}}, nil, &fakeStats{}, nil, cfg, &config.FeedConfig{})
	s.retryBaseDelay = time.Millisecond

	done := make(chan struct{}, 16)
	s.SetOnCycleCompleted(func(CycleResult) {
		select {
		case done <- struct{}{}:
		default:
		}
	})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if err := s.Start(context.Background()); err == nil {
		t.Error("second Start should fail")
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("no cycle completed before timeout")
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
	if err := s.Stop(); err == nil {
		t.Error("second Stop should fail")
	}
}

func TestWindowAverages(t *testing.T) {
	window := []models.ScanCycle{
		{Throughput: 10, UniquePerSecond: 4, Overlap: 0.2},
		{Throughput: 20, UniquePerSecond: 6, Overlap: 0.4},
	}
	throughput, unique, overlap := windowAverages(window)
	if throughput != 15 || unique != 5 {
		t.Errorf("averages = %f/%f, want 15/5", throughput, unique)
	}
	if fmt.Sprintf("%.2f", overlap) != "0.30" {
		t.Errorf("overlap average = %f, want 0.30", overlap)
	}
}
