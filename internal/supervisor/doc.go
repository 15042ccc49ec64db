// SoraFeed - Multi-Display Video Playlist Orchestrator
// Copyright 2026 fourtytwo42
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fourtytwo42/soraFeed-sub001

// Package supervisor builds the suture supervision tree that keeps the
// long-lived SoraFeed components running.
//
// The tree has three child layers under one root:
//
//	sorafeed
//	├── ingest      the adaptive feed scanner
//	├── messaging   realtime hub, event relay
//	└── api         HTTP server
//
// Layers isolate failures: a crashing scanner is restarted with backoff
// without touching the hub's websocket sessions or the HTTP listener.
// Services are wrapped through the narrow interfaces in the services
// subpackage so this package never imports the component packages.
package supervisor
