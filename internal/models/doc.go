// SoraFeed - Multi-Display Video Playlist Orchestrator
// Copyright 2026 fourtytwo42
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fourtytwo42/soraFeed-sub001

// Package models defines the core data structures shared across SoraFeed:
// content index entities (Creator, Video), orchestration entities (Display,
// Playlist, Block, TimelineEntry, VideoHistory), ingestion statistics, and
// the request/response types of the HTTP API.
//
// All structs carry json tags for the goccy/go-json codec and validate tags
// where they cross the API boundary.
package models
