// SoraFeed - Multi-Display Video Playlist Orchestrator
// Copyright 2026 fourtytwo42
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fourtytwo42/soraFeed-sub001

// Package middleware provides http.HandlerFunc middleware shared by the
// API layer: Prometheus instrumentation and response compression.
// Chi-native middleware (CORS, rate limiting, request IDs) lives in
// internal/api.
package middleware
