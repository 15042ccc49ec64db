// SoraFeed - Multi-Display Video Playlist Orchestrator
// Copyright 2026 fourtytwo42
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fourtytwo42/soraFeed-sub001

package feed

import (
	"context"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/fourtytwo42/soraFeed-sub001/internal/apperr"
	"github.com/fourtytwo42/soraFeed-sub001/internal/config"
	"github.com/fourtytwo42/soraFeed-sub001/internal/logging"
)

// Refresher renews the feed credentials by invoking an out-of-process
// command (typically a headless browser script) that rewrites the
// credentials file, then reloads the store.
type Refresher struct {
	argv    []string
	timeout time.Duration
	store   *config.CredentialStore

	mu          sync.Mutex
	lastRefresh time.Time
}

// NewRefresher builds a refresher from configuration. An empty refresh
// command yields a refresher whose Refresh is a no-op.
func NewRefresher(cfg *config.FeedConfig, store *config.CredentialStore) *Refresher {
	timeout := cfg.RefreshTimeout
	if timeout == 0 {
		timeout = 2 * time.Minute
	}
	return &Refresher{
		argv:    strings.Fields(cfg.RefreshCommand),
		timeout: timeout,
		store:   store,
	}
}

// Refresh runs the refresh command and reloads the credential store.
// Serialized so concurrent triggers (timer plus auth-failure escalation)
// run the command once at a time.
func (r *Refresher) Refresh(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.argv) == 0 {
		logging.Debug().Msg("no refresh command configured, skipping credential refresh")
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(ctx, r.argv[0], r.argv[1:]...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		logging.Error().Err(err).
			Str("command", r.argv[0]).
			Str("output", truncateOutput(output)).
			Msg("credential refresh command failed")
		return apperr.Wrap(apperr.KindCredentials, "feed.refresh", err)
	}

	reloaded, err := r.store.ReloadIfChanged()
	if err != nil {
		return apperr.Wrap(apperr.KindCredentials, "feed.refresh", err)
	}

	r.lastRefresh = time.Now()
	logging.Info().
		Bool("credentials_changed", reloaded).
		Dur("duration", time.Since(start)).
		Str("credentials", r.store.Masked()).
		Msg("credential refresh completed")
	return nil
}

// Due reports whether interval has elapsed since the last successful
// refresh. A refresher that has never run is always due.
func (r *Refresher) Due(interval time.Duration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return time.Since(r.lastRefresh) >= interval
}

// LastRefresh returns when the last successful refresh completed.
func (r *Refresher) LastRefresh() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastRefresh
}

func truncateOutput(output []byte) string {
	const maxLen = 512
	s := strings.TrimSpace(string(output))
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	return s
}
