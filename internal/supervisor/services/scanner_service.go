// SoraFeed - Multi-Display Video Playlist Orchestrator
// Copyright 2026 fourtytwo42
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fourtytwo42/soraFeed-sub001

package services

import (
	"context"
	"fmt"
)

// StartStopManager matches the Start/Stop lifecycle the scanner and the
// event relay expose.
type StartStopManager interface {
	Start(ctx context.Context) error
	Stop() error
}

// ScannerService wraps the ingestion scanner as a supervised service,
// adapting its Start/Stop lifecycle to suture's blocking Serve:
//
//  1. Start spawns the scan loop and returns
//  2. Serve blocks until the context is canceled
//  3. Stop waits for the loop's goroutines to drain
type ScannerService struct {
	manager StartStopManager
	name    string
}

// NewScannerService creates a scanner service wrapper.
func NewScannerService(manager StartStopManager) *ScannerService {
	return &ScannerService{manager: manager, name: "ingest-scanner"}
}

// Serve implements suture.Service. A failed Start is returned so suture
// restarts the scanner with backoff.
func (s *ScannerService) Serve(ctx context.Context) error {
	if err := s.manager.Start(ctx); err != nil {
		return fmt.Errorf("scanner start failed: %w", err)
	}

	<-ctx.Done()

	if err := s.manager.Stop(); err != nil {
		return fmt.Errorf("scanner stop failed: %w", err)
	}
	return ctx.Err()
}

// String implements fmt.Stringer for supervisor logging.
func (s *ScannerService) String() string {
	return s.name
}

// RelayService wraps the optional NATS event relay as a supervised
// service with the same Start/Stop adaptation as the scanner.
type RelayService struct {
	relay StartStopManager
	name  string
}

// NewRelayService creates a relay service wrapper.
func NewRelayService(relay StartStopManager) *RelayService {
	return &RelayService{relay: relay, name: "event-relay"}
}

// Serve implements suture.Service.
func (s *RelayService) Serve(ctx context.Context) error {
	if err := s.relay.Start(ctx); err != nil {
		return fmt.Errorf("relay start failed: %w", err)
	}

	<-ctx.Done()

	if err := s.relay.Stop(); err != nil {
		return fmt.Errorf("relay stop failed: %w", err)
	}
	return ctx.Err()
}

// String implements fmt.Stringer for supervisor logging.
func (s *RelayService) String() string {
	return s.name
}
