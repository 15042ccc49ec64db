// SoraFeed - Multi-Display Video Playlist Orchestrator
// Copyright 2026 fourtytwo42
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fourtytwo42/soraFeed-sub001

// Package metrics provides Prometheus instrumentation for SoraFeed:
// scanner ingestion throughput, database query performance, API latency,
// websocket hub activity, timeline materialization, and circuit breaker
// state for the upstream feed client.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Database metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckdb_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation", "table"},
	)

	// Scanner metrics
	ScanCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scanner_cycles_total",
			Help: "Total number of scan cycles by outcome",
		},
		[]string{"outcome"}, // "success", "error"
	)

	ScanCycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scanner_cycle_duration_seconds",
			Help:    "Duration of scan cycles in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	ScanVideosIndexed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scanner_videos_indexed_total",
			Help: "Total number of new videos added to the content index",
		},
	)

	ScanVideosDuplicate = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scanner_videos_duplicate_total",
			Help: "Total number of already-indexed videos seen during scans",
		},
	)

	ScanOverlapRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scanner_overlap_ratio",
			Help: "Fraction of the last scanned batch already present in the index",
		},
	)

	ScanInterval = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scanner_poll_interval_seconds",
			Help: "Current adaptive polling interval in seconds",
		},
	)

	ScanConsecutiveErrors = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scanner_consecutive_errors",
			Help: "Current count of consecutive scan cycle failures",
		},
	)

	// API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of in-flight API requests",
		},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_rate_limit_hits_total",
			Help: "Total number of rate limit rejections",
		},
		[]string{"endpoint"},
	)

	// Hub metrics
	HubConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hub_connections",
			Help: "Current number of websocket connections by role",
		},
		[]string{"role"}, // "display", "admin"
	)

	HubMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hub_messages_sent_total",
			Help: "Total number of websocket messages sent",
		},
	)

	HubMessagesReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hub_messages_received_total",
			Help: "Total number of websocket messages received",
		},
	)

	HubDisplaysOnline = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hub_displays_online",
			Help: "Current number of displays with a fresh heartbeat",
		},
	)

	HubErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hub_errors_total",
			Help: "Total number of websocket errors",
		},
		[]string{"error_type"},
	)

	// Timeline metrics
	TimelineMaterializations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timeline_materializations_total",
			Help: "Total number of timeline materialization runs by outcome",
		},
		[]string{"outcome"}, // "success", "partial", "failed"
	)

	TimelineEntriesQueued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "timeline_entries_queued_total",
			Help: "Total number of timeline entries created",
		},
	)

	TimelineExhaustionRecoveries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "timeline_exhaustion_recoveries_total",
			Help: "Total number of playlist exhaustion recoveries",
		},
	)

	// Command queue metrics
	CommandsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commands_enqueued_total",
			Help: "Total number of commands enqueued for displays",
		},
		[]string{"type"},
	)

	CommandsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commands_delivered_total",
			Help: "Total number of commands delivered by outcome",
		},
		[]string{"outcome"}, // "confirmed", "undelivered", "failed"
	)

	// Circuit breaker metrics for the upstream feed client
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through the circuit breaker",
		},
		[]string{"name", "result"}, // "success", "failure", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Event bus metrics
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_published_total",
			Help: "Total number of events published to the internal bus",
		},
		[]string{"topic"},
	)

	EventsRelayed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "events_relayed_total",
			Help: "Total number of events relayed to NATS",
		},
	)

	// System metrics
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_info",
			Help: "Application version and build information",
		},
		[]string{"version", "go_version"},
	)

	AppUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "app_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)
)

// RecordDBQuery records a database query metric.
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation, table).Inc()
	}
}

// RecordAPIRequest records an API request metric.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordScanCycle records the outcome of one scan cycle.
func RecordScanCycle(duration time.Duration, newVideos, duplicates int, overlap float64, interval time.Duration, err error) {
	if err != nil {
		ScanCycles.WithLabelValues("error").Inc()
		return
	}
	ScanCycles.WithLabelValues("success").Inc()
	ScanCycleDuration.Observe(duration.Seconds())
	ScanVideosIndexed.Add(float64(newVideos))
	ScanVideosDuplicate.Add(float64(duplicates))
	ScanOverlapRatio.Set(overlap)
	ScanInterval.Set(interval.Seconds())
}

// TrackActiveRequest adjusts the in-flight request gauge.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}
