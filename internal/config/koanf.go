// SoraFeed - Multi-Display Video Playlist Orchestrator
// Copyright 2026 fourtytwo42
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fourtytwo42/soraFeed-sub001

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, in priority
// order. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/sorafeed/config.yaml",
	"/etc/sorafeed/config.yml",
}

// ConfigPathEnvVar overrides the config file search path.
const ConfigPathEnvVar = "CONFIG_PATH"

// Load resolves the configuration from defaults, an optional YAML file,
// and environment variables, in that precedence order (env highest).
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first existing config file path, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths are the config paths parsed as comma-separated slices
// when they arrive as strings from the environment.
var sliceConfigPaths = []string{
	"security.cors_origins",
}

// processSliceFields converts comma-separated strings into slices for the
// known slice-valued paths. YAML-sourced slices pass through untouched.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}
		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps environment variable names to koanf config paths.
// Unmapped variables are skipped so stray environment noise cannot leak
// into the configuration.
//
// Examples:
//   - HTTP_PORT -> server.port
//   - FEED_BASE_URL -> feed.base_url
//   - SCAN_MIN_INTERVAL -> scanner.min_interval
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Server mappings
		"http_host":             "server.host",
		"http_port":             "server.port",
		"http_timeout":          "server.timeout",
		"http_shutdown_timeout": "server.shutdown_timeout",

		// Database mappings
		"duckdb_path":       "database.path",
		"duckdb_max_memory": "database.max_memory",
		"duckdb_threads":    "database.threads",

		// Feed mappings
		"feed_base_url":             "feed.base_url",
		"feed_credentials_path":     "feed.credentials_path",
		"feed_user_agent":           "feed.user_agent",
		"feed_timeout":              "feed.timeout",
		"feed_refresh_command":      "feed.refresh_command",
		"feed_refresh_interval":     "feed.refresh_interval",
		"feed_refresh_timeout":      "feed.refresh_timeout",
		"feed_rate_limit_rps":       "feed.rate_limit_rps",
		"feed_rate_limit_burst":     "feed.rate_limit_burst",
		"feed_breaker_max_failures": "feed.breaker_max_failures",
		"feed_breaker_timeout":      "feed.breaker_timeout",

		// Scanner mappings
		"scan_enabled":       "scanner.enabled",
		"scan_batch_size":    "scanner.batch_size",
		"scan_min_interval":  "scanner.min_interval",
		"scan_max_interval":  "scanner.max_interval",
		"scan_step_up":       "scanner.step_up",
		"scan_step_down":     "scanner.step_down",
		"scan_error_max_cap": "scanner.error_max_cap",
		"scan_cycle_timeout": "scanner.cycle_timeout",
		"scan_overlap_low":   "scanner.overlap_low",
		"scan_overlap_high":  "scanner.overlap_high",
		"scan_window_size":   "scanner.window_size",

		// Timeline mappings
		"timeline_refill_threshold": "timeline.refill_threshold",
		"timeline_fetch_buffer":     "timeline.fetch_buffer",

		// Hub mappings
		"hub_heartbeat_interval": "hub.heartbeat_interval",
		"hub_offline_after":      "hub.offline_after",
		"hub_command_ttl":        "hub.command_ttl",
		"hub_command_queue_path": "hub.command_queue_path",

		// Events mappings
		"nats_enabled":   "events.nats_enabled",
		"nats_url":       "events.nats_url",
		"nats_embedded":  "events.nats_embedded",
		"nats_store_dir": "events.nats_store_dir",
		"topic_prefix":   "events.topic_prefix",

		// Security mappings
		"jwt_secret":          "security.jwt_secret",
		"token_ttl":           "security.token_ttl",
		"admin_api_key":       "security.admin_api_key",
		"rate_limit_requests": "security.rate_limit_requests",
		"rate_limit_window":   "security.rate_limit_window",
		"cors_origins":        "security.cors_origins",

		// Logging mappings
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return ""
}

// WatchConfigFile invokes callback whenever the config file changes. The
// caller is responsible for mutex protection around reloads.
func WatchConfigFile(path string, callback func()) error {
	provider := file.Provider(path)
	return provider.Watch(func(event interface{}, err error) {
		if err != nil {
			return
		}
		callback()
	})
}
