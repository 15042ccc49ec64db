// SoraFeed - Multi-Display Video Playlist Orchestrator
// Copyright 2026 fourtytwo42
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fourtytwo42/soraFeed-sub001

package services

import (
	"context"
)

// ContextHub matches *hub.Hub's RunWithContext method without importing
// the hub package.
type ContextHub interface {
	RunWithContext(ctx context.Context) error
}

// HubService wraps the realtime hub as a supervised service. The hub's
// RunWithContext already follows the suture.Service pattern, so the
// wrapper only supplies the service name.
type HubService struct {
	hub  ContextHub
	name string
}

// NewHubService creates a hub service wrapper.
func NewHubService(h ContextHub) *HubService {
	return &HubService{hub: h, name: "realtime-hub"}
}

// Serve implements suture.Service. Returns ctx.Err() on normal shutdown
// after every session has been closed.
func (s *HubService) Serve(ctx context.Context) error {
	return s.hub.RunWithContext(ctx)
}

// String implements fmt.Stringer for supervisor logging.
func (s *HubService) String() string {
	return s.name
}
