// SoraFeed - Multi-Display Video Playlist Orchestrator
// Copyright 2026 fourtytwo42
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fourtytwo42/soraFeed-sub001

package feed

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/fourtytwo42/soraFeed-sub001/internal/apperr"
	"github.com/fourtytwo42/soraFeed-sub001/internal/config"
	"github.com/fourtytwo42/soraFeed-sub001/internal/logging"
	"github.com/fourtytwo42/soraFeed-sub001/internal/metrics"
)

const breakerName = "sora-feed"

// CircuitBreakerClient wraps a PageFetcher with a circuit breaker so a
// dead upstream stops consuming scan cycles.
//
// The breaker uses real time for its interval and timeout calculations.
// Tests should exercise the wrapped client directly or accept the waits.
type CircuitBreakerClient struct {
	fetcher PageFetcher
	cb      *gobreaker.CircuitBreaker[*FeedPage]
	name    string
}

// NewCircuitBreakerClient wraps fetcher with breaker thresholds from
// configuration. The circuit opens after BreakerMaxFailures consecutive
// failures and probes again after BreakerTimeout.
func NewCircuitBreakerClient(fetcher PageFetcher, cfg *config.FeedConfig) *CircuitBreakerClient {
	maxFailures := cfg.BreakerMaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	timeout := cfg.BreakerTimeout
	if timeout == 0 {
		timeout = time.Minute
	}

	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0) // 0 = closed

	cb := gobreaker.NewCircuitBreaker[*FeedPage](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 3, // concurrent probes in half-open state
		Interval:    time.Minute,
		Timeout:     timeout,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			shouldTrip := counts.ConsecutiveFailures >= maxFailures
			if shouldTrip {
				logging.Warn().
					Uint32("consecutive_failures", counts.ConsecutiveFailures).
					Msg("opening feed circuit")
			}
			return shouldTrip
		},

		// Credential rejections open the circuit like any other failure,
		// but context cancellation is the caller's doing, not upstream's.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr := stateToString(from)
			toStr := stateToString(to)
			logging.Info().Str("from", fromStr).Str("to", toStr).Msg("feed circuit state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
		},
	})

	return &CircuitBreakerClient{fetcher: fetcher, cb: cb, name: breakerName}
}

// FetchPage fetches a feed page through the breaker. An open circuit
// returns a Transient error so the scanner backs off instead of counting
// it as an upstream fault.
func (cbc *CircuitBreakerClient) FetchPage(ctx context.Context, limit int, cursor string) (*FeedPage, error) {
	page, err := cbc.cb.Execute(func() (*FeedPage, error) {
		return cbc.fetcher.FetchPage(ctx, limit, cursor)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(cbc.name, "rejected").Inc()
			return nil, apperr.Wrap(apperr.KindTransient, "feed.breaker", err)
		}
		metrics.CircuitBreakerRequests.WithLabelValues(cbc.name, "failure").Inc()
		return nil, err
	}
	metrics.CircuitBreakerRequests.WithLabelValues(cbc.name, "success").Inc()
	return page, nil
}

// State exposes the breaker state for the stats endpoint.
func (cbc *CircuitBreakerClient) State() string {
	return stateToString(cbc.cb.State())
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
