// SoraFeed - Multi-Display Video Playlist Orchestrator
// Copyright 2026 fourtytwo42
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fourtytwo42/soraFeed-sub001

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fourtytwo42/soraFeed-sub001/internal/api"
	"github.com/fourtytwo42/soraFeed-sub001/internal/auth"
	"github.com/fourtytwo42/soraFeed-sub001/internal/config"
	"github.com/fourtytwo42/soraFeed-sub001/internal/database"
	"github.com/fourtytwo42/soraFeed-sub001/internal/events"
	"github.com/fourtytwo42/soraFeed-sub001/internal/feed"
	"github.com/fourtytwo42/soraFeed-sub001/internal/hub"
	"github.com/fourtytwo42/soraFeed-sub001/internal/logging"
	"github.com/fourtytwo42/soraFeed-sub001/internal/playback"
	"github.com/fourtytwo42/soraFeed-sub001/internal/playlist"
	"github.com/fourtytwo42/soraFeed-sub001/internal/scanner"
	"github.com/fourtytwo42/soraFeed-sub001/internal/supervisor"
	"github.com/fourtytwo42/soraFeed-sub001/internal/supervisor/services"
	"github.com/fourtytwo42/soraFeed-sub001/internal/timeline"
)

// runServe assembles the component graph, hands long-running pieces to
// the supervisor tree and blocks until shutdown.
//
//nolint:gocyclo // sequential startup wiring
func runServe() int {
	cfg, err := config.Load()
	if err != nil {
		logging.Error().Err(err).Msg("failed to load configuration")
		return exitRuntime
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("db_path", cfg.Database.Path).
		Bool("scanner_enabled", cfg.Scanner.Enabled).
		Bool("nats_enabled", cfg.Events.NATSEnabled).
		Msg("starting sorafeedd")

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Error().Err(err).Msg("failed to initialize database")
		return exitRuntime
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("error closing database")
		}
	}()

	// Feed credentials. A missing file is tolerated at startup: the
	// refresher can materialize it on the first scheduled refresh.
	creds, err := openCredentialStore(cfg)
	if err != nil {
		logging.Error().Err(err).Msg("failed to open credential store")
		return exitRuntime
	}
	if err := creds.Load(); err != nil {
		logging.Warn().Err(err).Str("path", cfg.Feed.CredentialsPath).
			Msg("feed credentials not loaded; scanner will retry after refresh")
	}

	feedClient := feed.NewCircuitBreakerClient(feed.NewClient(&cfg.Feed, creds), &cfg.Feed)
	refresher := feed.NewRefresher(&cfg.Feed, creds)

	bus := events.NewBus(cfg.Events.TopicPrefix)
	defer func() {
		if err := bus.Close(); err != nil {
			logging.Error().Err(err).Msg("error closing event bus")
		}
	}()

	tokens, err := auth.NewTokenManager(&cfg.Security)
	if err != nil {
		logging.Error().Err(err).Msg("failed to initialize token manager")
		return exitRuntime
	}

	queue, err := playback.OpenCommandQueue(cfg.Hub.CommandQueuePath, cfg.Hub.CommandTTL)
	if err != nil {
		logging.Error().Err(err).Msg("failed to open command journal")
		return exitRuntime
	}
	defer func() {
		if err := queue.Close(); err != nil {
			logging.Error().Err(err).Msg("error closing command journal")
		}
	}()

	tl := timeline.NewManager(db, bus, &cfg.Timeline)
	machine := playback.NewMachine(db, tl, bus)
	playlists := playlist.NewStore(db)
	wsHub := hub.NewHub(db, machine, queue, bus, tokens, &cfg.Hub)

	feedScanner := scanner.New(db, feedClient, refresher, db, bus, &cfg.Scanner, &cfg.Feed)

	handler := api.NewHandler(db, playlists, tl, machine, queue, wsHub, bus, tokens, cfg)
	router := api.NewRouter(handler, api.NewChiMiddleware(&api.ChiMiddlewareConfig{
		CORSAllowedOrigins: cfg.Security.CORSOrigins,
		CORSAllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		CORSAllowedHeaders: []string{"Content-Type", "Authorization", "X-Admin-ID"},
		CORSMaxAge:         86400,
		RateLimitRequests:  cfg.Security.RateLimitReq,
		RateLimitWindow:    cfg.Security.RateLimitWin,
	}))

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.SetupChi(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	tree, err := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		logging.Error().Err(err).Msg("failed to create supervisor tree")
		return exitRuntime
	}

	tree.AddMessagingService(services.NewHubService(wsHub))

	if cfg.Scanner.Enabled {
		tree.AddIngestService(services.NewScannerService(feedScanner))
	} else {
		logging.Info().Msg("ingestion scanner disabled")
	}

	if cfg.Events.NATSEnabled {
		relay, err := events.NewRelay(bus, &cfg.Events)
		if err != nil {
			logging.Warn().Err(err).Msg("event relay unavailable; continuing single-instance")
		} else {
			tree.AddMessagingService(services.NewRelayService(relay))
		}
	}

	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		cancel()
	}()

	errCh := tree.ServeBackground(ctx)

	exit := exitOK
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("supervisor tree error")
			exit = exitRuntime
		}
	}

	// Drain until the supervisor finishes shutting everything down.
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("supervisor shutdown error")
			exit = exitRuntime
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("service failed to stop within timeout")
	}

	logging.Info().Msg("sorafeedd stopped")
	return exit
}

// openCredentialStore builds the encrypted credential store for the feed
// client. Encryption is skipped when no JWT secret is configured (dev
// mode), leaving the store plaintext-only.
func openCredentialStore(cfg *config.Config) (*config.CredentialStore, error) {
	var encryptor *config.CredentialEncryptor
	if cfg.Security.JWTSecret != "" {
		var err error
		encryptor, err = config.NewCredentialEncryptor(cfg.Security.JWTSecret)
		if err != nil {
			return nil, err
		}
	}
	return config.NewCredentialStore(cfg.Feed.CredentialsPath, encryptor), nil
}
