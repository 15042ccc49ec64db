// SoraFeed - Multi-Display Video Playlist Orchestrator
// Copyright 2026 fourtytwo42
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fourtytwo42/soraFeed-sub001

// Package services adapts SoraFeed components to suture.Service through
// narrow local interfaces, keeping the supervisor free of component
// imports.
package services
