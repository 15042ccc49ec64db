// SoraFeed - Multi-Display Video Playlist Orchestrator
// Copyright 2026 fourtytwo42
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fourtytwo42/soraFeed-sub001

//go:build !nats

package events

import (
	"context"
	"fmt"

	"github.com/fourtytwo42/soraFeed-sub001/internal/config"
)

// Relay is a stub when NATS support is compiled out. Build with
// -tags=nats to enable the multi-instance relay.
type Relay struct{}

// NewRelay returns an error when NATS support is compiled out.
func NewRelay(bus *Bus, cfg *config.EventsConfig) (*Relay, error) {
	return nil, fmt.Errorf("NATS relay not available: build with -tags=nats")
}

// Start is a stub that returns an error.
func (r *Relay) Start(ctx context.Context) error {
	return fmt.Errorf("NATS relay not available: build with -tags=nats")
}

// Stop is a stub that returns an error.
func (r *Relay) Stop() error {
	return fmt.Errorf("NATS relay not available: build with -tags=nats")
}
