// SoraFeed - Multi-Display Video Playlist Orchestrator
// Copyright 2026 fourtytwo42
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fourtytwo42/soraFeed-sub001

// Package config provides layered configuration management for SoraFeed.
//
// Configuration is resolved from three sources, highest priority last:
//  1. Built-in defaults
//  2. An optional YAML config file
//  3. Environment variables
package config

import "time"

// Config is the root configuration structure.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Feed     FeedConfig     `koanf:"feed"`
	Scanner  ScannerConfig  `koanf:"scanner"`
	Timeline TimelineConfig `koanf:"timeline"`
	Hub      HubConfig      `koanf:"hub"`
	Events   EventsConfig   `koanf:"events"`
	Security SecurityConfig `koanf:"security"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	Timeout         time.Duration `koanf:"timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// DatabaseConfig configures the embedded DuckDB content index.
type DatabaseConfig struct {
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	// Threads is the DuckDB worker thread count. 0 means runtime.NumCPU().
	Threads int `koanf:"threads"`
}

// FeedConfig configures the upstream feed client.
type FeedConfig struct {
	BaseURL string `koanf:"base_url"`
	// CredentialsPath is the JSON file holding the bearer token and cookies.
	// The scanner re-reads it after each credential refresh.
	CredentialsPath string        `koanf:"credentials_path"`
	UserAgent       string        `koanf:"user_agent"`
	Timeout         time.Duration `koanf:"timeout"`

	// RefreshCommand is an external command that renews the credentials
	// file. Empty disables scheduled refresh.
	RefreshCommand  string        `koanf:"refresh_command"`
	RefreshInterval time.Duration `koanf:"refresh_interval"`
	RefreshTimeout  time.Duration `koanf:"refresh_timeout"`

	// Rate limiting for outbound feed requests.
	RateLimitRPS   float64 `koanf:"rate_limit_rps"`
	RateLimitBurst int     `koanf:"rate_limit_burst"`

	// Circuit breaker thresholds.
	BreakerMaxFailures uint32        `koanf:"breaker_max_failures"`
	BreakerTimeout     time.Duration `koanf:"breaker_timeout"`
}

// ScannerConfig configures the adaptive ingestion scanner.
type ScannerConfig struct {
	Enabled   bool `koanf:"enabled"`
	BatchSize int  `koanf:"batch_size"`

	// Adaptive polling interval bounds and step sizes.
	MinInterval  time.Duration `koanf:"min_interval"`
	MaxInterval  time.Duration `koanf:"max_interval"`
	StepUp       time.Duration `koanf:"step_up"`
	StepDown     time.Duration `koanf:"step_down"`
	ErrorMaxCap  time.Duration `koanf:"error_max_cap"`
	CycleTimeout time.Duration `koanf:"cycle_timeout"`

	// Overlap targets: below Low the scanner speeds up, above High it
	// slows down.
	OverlapLow  float64 `koanf:"overlap_low"`
	OverlapHigh float64 `koanf:"overlap_high"`

	// WindowSize is how many recent cycles feed the moving averages.
	WindowSize int `koanf:"window_size"`
}

// TimelineConfig configures timeline materialization.
type TimelineConfig struct {
	// RefillThreshold is the queued-entry floor below which the timeline
	// is topped up, capped by the playlist's smallest block size.
	RefillThreshold int `koanf:"refill_threshold"`
	// FetchBuffer is the extra candidate headroom requested per block so
	// dedup losses do not starve a block.
	FetchBuffer int `koanf:"fetch_buffer"`
}

// HubConfig configures the realtime websocket hub.
type HubConfig struct {
	HeartbeatInterval time.Duration `koanf:"heartbeat_interval"`
	OfflineAfter      time.Duration `koanf:"offline_after"`
	// CommandTTL is how long a delivered command may stay unconfirmed
	// before it is swept to undelivered.
	CommandTTL time.Duration `koanf:"command_ttl"`
	// CommandQueuePath is the on-disk journal directory for pending
	// display commands.
	CommandQueuePath string `koanf:"command_queue_path"`
}

// EventsConfig configures the internal event bus and the optional NATS
// relay.
type EventsConfig struct {
	NATSEnabled bool   `koanf:"nats_enabled"`
	NATSURL     string `koanf:"nats_url"`
	// NATSEmbedded runs an in-process NATS server instead of dialing out.
	NATSEmbedded bool   `koanf:"nats_embedded"`
	NATSStoreDir string `koanf:"nats_store_dir"`
	TopicPrefix  string `koanf:"topic_prefix"`
}

// SecurityConfig configures API authentication and rate limiting.
type SecurityConfig struct {
	// JWTSecret signs display ownership tokens and derives the
	// credential-file encryption key. Required in production.
	JWTSecret    string        `koanf:"jwt_secret"`
	TokenTTL     time.Duration `koanf:"token_ttl"`
	AdminAPIKey  string        `koanf:"admin_api_key"`
	RateLimitReq int           `koanf:"rate_limit_requests"`
	RateLimitWin time.Duration `koanf:"rate_limit_window"`
	CORSOrigins  []string      `koanf:"cors_origins"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns a Config with all defaults applied. Defaults are
// loaded first and overridden by the config file and environment.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            4242,
			Timeout:         30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Path:      "/data/sorafeed.duckdb",
			MaxMemory: "1GB",
			Threads:   0,
		},
		Feed: FeedConfig{
			BaseURL:            "https://sora.chatgpt.com/backend/public_feed",
			CredentialsPath:    "/data/feed-credentials.json",
			UserAgent:          "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36",
			Timeout:            30 * time.Second,
			RefreshCommand:     "",
			RefreshInterval:    12 * time.Hour,
			RefreshTimeout:     2 * time.Minute,
			RateLimitRPS:       2,
			RateLimitBurst:     4,
			BreakerMaxFailures: 5,
			BreakerTimeout:     60 * time.Second,
		},
		Scanner: ScannerConfig{
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
		},
		Timeline: TimelineConfig{
			RefillThreshold: 8,
			FetchBuffer:     10,
		},
		Hub: HubConfig{
			HeartbeatInterval: 5 * time.Second,
			OfflineAfter:      10 * time.Second,
			CommandTTL:        10 * time.Second,
			CommandQueuePath:  "/data/commands",
		},
		Events: EventsConfig{
			NATSEnabled:  false,
			NATSURL:      "nats://127.0.0.1:4222",
			NATSEmbedded: true,
			NATSStoreDir: "/data/nats",
			TopicPrefix:  "sorafeed",
		},
		Security: SecurityConfig{
			JWTSecret:    "",
			TokenTTL:     30 * 24 * time.Hour,
			AdminAPIKey:  "",
			RateLimitReq: 300,
			RateLimitWin: time.Minute,
			CORSOrigins:  []string{"*"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}
