// SoraFeed - Multi-Display Video Playlist Orchestrator
// Copyright 2026 fourtytwo42
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fourtytwo42/soraFeed-sub001

package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Validate checks that the resolved configuration is internally
// consistent. It returns the first violation found.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateFeed(); err != nil {
		return err
	}
	if err := c.validateScanner(); err != nil {
		return err
	}
	if err := c.validateTimeline(); err != nil {
		return err
	}
	if err := c.validateHub(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive")
	}
	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.Path == "" {
		return fmt.Errorf("DUCKDB_PATH must not be empty")
	}
	if c.Database.Threads < 0 {
		return fmt.Errorf("DUCKDB_THREADS must not be negative")
	}
	return nil
}

func (c *Config) validateFeed() error {
	if c.Feed.BaseURL == "" {
		return fmt.Errorf("FEED_BASE_URL must not be empty")
	}
	if err := validateHTTPURL(c.Feed.BaseURL, "FEED_BASE_URL"); err != nil {
		return err
	}
	if c.Feed.RateLimitRPS <= 0 {
		return fmt.Errorf("FEED_RATE_LIMIT_RPS must be positive")
	}
	if c.Feed.RateLimitBurst < 1 {
		return fmt.Errorf("FEED_RATE_LIMIT_BURST must be at least 1")
	}
	if c.Feed.RefreshCommand != "" && c.Feed.RefreshInterval <= 0 {
		return fmt.Errorf("FEED_REFRESH_INTERVAL must be positive when a refresh command is set")
	}
	return nil
}

func (c *Config) validateScanner() error {
	if !c.Scanner.Enabled {
		return nil
	}
	if c.Scanner.BatchSize < 1 || c.Scanner.BatchSize > 1000 {
		return fmt.Errorf("SCAN_BATCH_SIZE must be between 1 and 1000, got %d", c.Scanner.BatchSize)
	}
	if c.Scanner.MinInterval <= 0 {
		return fmt.Errorf("SCAN_MIN_INTERVAL must be positive")
	}
	if c.Scanner.MaxInterval < c.Scanner.MinInterval {
		return fmt.Errorf("SCAN_MAX_INTERVAL must not be below SCAN_MIN_INTERVAL")
	}
	if c.Scanner.ErrorMaxCap < c.Scanner.MaxInterval {
		return fmt.Errorf("SCAN_ERROR_MAX_CAP must not be below SCAN_MAX_INTERVAL")
	}
	if c.Scanner.OverlapLow < 0 || c.Scanner.OverlapHigh > 1 || c.Scanner.OverlapLow >= c.Scanner.OverlapHigh {
		return fmt.Errorf("scanner overlap bounds must satisfy 0 <= low < high <= 1")
	}
	if c.Scanner.WindowSize < 1 {
		return fmt.Errorf("SCAN_WINDOW_SIZE must be at least 1")
	}
	return nil
}

func (c *Config) validateTimeline() error {
	if c.Timeline.RefillThreshold < 1 {
		return fmt.Errorf("TIMELINE_REFILL_THRESHOLD must be at least 1")
	}
	if c.Timeline.FetchBuffer < 0 {
		return fmt.Errorf("TIMELINE_FETCH_BUFFER must not be negative")
	}
	return nil
}

func (c *Config) validateHub() error {
	if c.Hub.HeartbeatInterval <= 0 {
		return fmt.Errorf("HUB_HEARTBEAT_INTERVAL must be positive")
	}
	if c.Hub.OfflineAfter < c.Hub.HeartbeatInterval {
		return fmt.Errorf("HUB_OFFLINE_AFTER must not be below HUB_HEARTBEAT_INTERVAL")
	}
	if c.Hub.CommandTTL < time.Second {
		return fmt.Errorf("HUB_COMMAND_TTL must be at least 1s")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "panic", "disabled":
	default:
		return fmt.Errorf("LOG_LEVEL %q is not a recognized level", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}
	return nil
}

// validateHTTPURL checks that raw is an absolute http(s) URL.
func validateHTTPURL(raw, name string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is invalid: %w", name, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https scheme, got %q", name, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%s must include a host", name)
	}
	return nil
}
