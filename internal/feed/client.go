// SoraFeed - Multi-Display Video Playlist Orchestrator
// Copyright 2026 fourtytwo42
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fourtytwo42/soraFeed-sub001

// Package feed talks to the upstream Sora-style public feed: a resilient
// HTTP client with rate limiting and 429 backoff, a circuit breaker
// wrapper, and the out-of-process credential refresher.
package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/fourtytwo42/soraFeed-sub001/internal/apperr"
	"github.com/fourtytwo42/soraFeed-sub001/internal/config"
)

// maxErrorBodySize limits how much of an error response body is read back
// for diagnostics.
const maxErrorBodySize = 64 * 1024 // 64KB

// PageFetcher is the feed surface the scanner depends on. Implemented by
// Client and CircuitBreakerClient.
type PageFetcher interface {
	FetchPage(ctx context.Context, limit int, cursor string) (*FeedPage, error)
}

// Client fetches pages from the upstream feed. Each request carries the
// bearer token and cookie jar from the credential store, so a refresh
// takes effect on the next call without recreating the client.
//
// Thread safety: safe for concurrent use.
type Client struct {
	baseURL   string
	userAgent string
	creds     *config.CredentialStore
	client    *http.Client
	limiter   *rate.Limiter

	maxRetries     int
	retryBaseDelay time.Duration
}

// NewClient creates a feed client from configuration. The rate limiter
// caps outbound request rate across retries and callers.
func NewClient(cfg *config.FeedConfig, creds *config.CredentialStore) *Client {
	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	return &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:      cfg.UserAgent,
		creds:          creds,
		client:         &http.Client{Timeout: cfg.Timeout},
		limiter:        limiter,
		maxRetries:     5,
		retryBaseDelay: time.Second,
	}
}

// FetchPage requests one feed page. cursor is the pagination token from a
// previous page; empty requests the newest page.
func (c *Client) FetchPage(ctx context.Context, limit int, cursor string) (*FeedPage, error) {
	reqURL := fmt.Sprintf("%s?limit=%d", c.baseURL, limit)
	if cursor != "" {
		reqURL += "&cursor=" + cursor
	}

	resp, err := c.doRequestWithRateLimit(ctx, reqURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, apperr.Newf(apperr.KindCredentials, "feed.fetch",
			"feed rejected credentials with status %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		body := readBodyForError(resp.Body)
		return nil, apperr.Newf(apperr.KindUpstream, "feed.fetch",
			"feed request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var page FeedPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		// A non-JSON body with status 200 is the challenge page the feed
		// serves when the session has gone stale.
		return nil, apperr.Wrap(apperr.KindUpstream, "feed.fetch",
			fmt.Errorf("failed to decode feed page: %w", err)).
			WithDetail("parse_failure", true)
	}
	return &page, nil
}

// doRequestWithRateLimit performs the request with limiter admission and
// automatic HTTP 429 handling: exponential backoff (1s, 2s, 4s, 8s, 16s)
// honoring Retry-After, cancellable through the context.
func (c *Client) doRequestWithRateLimit(ctx context.Context, reqURL string) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
		if err != nil {
			return nil, fmt.Errorf("failed to create feed request: %w", err)
		}
		c.setHeaders(req)

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindTransient, "feed.fetch", err)
		}

		if resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}
		_ = resp.Body.Close()

		if attempt == c.maxRetries {
			lastErr = apperr.Newf(apperr.KindUpstream, "feed.fetch",
				"rate limit exceeded after %d retries (HTTP 429)", c.maxRetries)
			break
		}

		delay := c.retryBaseDelay * time.Duration(1<<uint(attempt))
		if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
			if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds >= 0 {
				delay = time.Duration(seconds) * time.Second
			}
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, lastErr
}

// setHeaders attaches the current credentials and user agent. Cookies are
// emitted in sorted key order so request signatures stay stable.
func (c *Client) setHeaders(req *http.Request) {
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	req.Header.Set("Accept", "application/json")

	if c.creds == nil {
		return
	}
	current := c.creds.Current()
	if current.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+current.BearerToken)
	}
	if len(current.Cookies) > 0 {
		names := make([]string, 0, len(current.Cookies))
		for name := range current.Cookies {
			names = append(names, name)
		}
		sort.Strings(names)
		pairs := make([]string, 0, len(names))
		for _, name := range names {
			pairs = append(pairs, name+"="+current.Cookies[name])
		}
		req.Header.Set("Cookie", strings.Join(pairs, "; "))
	}
}

// IsAuthLike reports whether the error looks like stale credentials: an
// outright credential rejection or a parse failure on what should have
// been a JSON page. The scanner forces a refresh after two of these in a
// row.
func IsAuthLike(err error) bool {
	if apperr.Is(err, apperr.KindCredentials) {
		return true
	}
	if detail := apperr.DetailOf(err); detail != nil {
		if parseFailure, ok := detail["parse_failure"].(bool); ok && parseFailure {
			return true
		}
	}
	return false
}

// readBodyForError reads at most maxErrorBodySize bytes of a response
// body for diagnostics.
func readBodyForError(r io.Reader) []byte {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil {
		return []byte("(failed to read response body)")
	}
	if len(body) == maxErrorBodySize {
		return append(body, []byte("\n... (truncated)")...)
	}
	return body
}
