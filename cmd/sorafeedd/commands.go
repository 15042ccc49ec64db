// SoraFeed - Multi-Display Video Playlist Orchestrator
// Copyright 2026 fourtytwo42
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fourtytwo42/soraFeed-sub001

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/fourtytwo42/soraFeed-sub001/internal/config"
	"github.com/fourtytwo42/soraFeed-sub001/internal/database"
	"github.com/fourtytwo42/soraFeed-sub001/internal/feed"
	"github.com/fourtytwo42/soraFeed-sub001/internal/logging"
	"github.com/fourtytwo42/soraFeed-sub001/internal/models"
	"github.com/fourtytwo42/soraFeed-sub001/internal/playback"
	"github.com/fourtytwo42/soraFeed-sub001/internal/playlist"
	"github.com/fourtytwo42/soraFeed-sub001/internal/scanner"
	"github.com/fourtytwo42/soraFeed-sub001/internal/timeline"
)

// bootstrap loads configuration, initializes logging and opens the
// database for the one-shot subcommands.
func bootstrap() (*config.Config, *database.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load configuration: %w", err)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	return cfg, db, nil
}

// scanSummary is the scan-once stdout report.
type scanSummary struct {
	Scanned      int     `json:"scanned"`
	New          int     `json:"new"`
	Duplicates   int     `json:"duplicates"`
	Overlap      float64 `json:"overlap"`
	DurationMs   int64   `json:"duration_ms"`
	NextInterval string  `json:"next_interval"`
}

// runScanOnce executes a single ingestion cycle against the upstream
// feed and prints a JSON summary to stdout.
func runScanOnce() int {
	cfg, db, err := bootstrap()
	if err != nil {
		logging.Error().Err(err).Msg("scan-once bootstrap failed")
		return exitRuntime
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("error closing database")
		}
	}()

	creds, err := openCredentialStore(cfg)
	if err != nil {
		logging.Error().Err(err).Msg("failed to open credential store")
		return exitRuntime
	}
	if err := creds.Load(); err != nil {
		logging.Warn().Err(err).Msg("feed credentials not loaded; the request may be rejected upstream")
	}

	client := feed.NewCircuitBreakerClient(feed.NewClient(&cfg.Feed, creds), &cfg.Feed)
	refresher := feed.NewRefresher(&cfg.Feed, creds)
	sc := scanner.New(db, client, refresher, db, nil, &cfg.Scanner, &cfg.Feed)

	var summary scanSummary
	sc.SetOnCycleCompleted(func(res scanner.CycleResult) {
		summary = scanSummary{
			Scanned:      res.Scanned,
			New:          res.New,
			Duplicates:   res.Duplicates,
			Overlap:      res.Overlap,
			DurationMs:   res.Duration.Milliseconds(),
			NextInterval: res.Interval.String(),
		}
	})

	if err := sc.TriggerScan(context.Background()); err != nil {
		logging.Error().Err(err).Msg("scan cycle failed")
		return exitRuntime
	}

	out, err := json.Marshal(summary)
	if err != nil {
		logging.Error().Err(err).Msg("failed to encode scan summary")
		return exitRuntime
	}
	fmt.Println(string(out))
	return exitOK
}

// runResetDisplay stops playback on the display and clears its timeline,
// position and history, exactly as an admin stop command would.
func runResetDisplay(code string) int {
	cfg, db, err := bootstrap()
	if err != nil {
		logging.Error().Err(err).Msg("reset-display bootstrap failed")
		return exitRuntime
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("error closing database")
		}
	}()

	ctx := context.Background()
	tl := timeline.NewManager(db, nil, &cfg.Timeline)
	machine := playback.NewMachine(db, tl, nil)

	if err := machine.Apply(ctx, code, models.CommandStop, nil); err != nil {
		logging.Error().Err(err).Str("display", code).Msg("reset failed")
		return exitRuntime
	}
	fmt.Printf("display %s reset\n", code)
	return exitOK
}

// runExportPlaylist writes the display's active playlist as CSV to
// stdout. Logs go to stderr, so the output can be piped to a file.
func runExportPlaylist(code string) int {
	_, db, err := bootstrap()
	if err != nil {
		logging.Error().Err(err).Msg("export-playlist bootstrap failed")
		return exitRuntime
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("error closing database")
		}
	}()

	ctx := context.Background()
	store := playlist.NewStore(db)

	active, err := store.GetActiveForDisplay(ctx, code)
	if err != nil {
		logging.Error().Err(err).Str("display", code).Msg("no active playlist")
		return exitRuntime
	}

	data, err := store.ExportCSV(ctx, active.ID)
	if err != nil {
		logging.Error().Err(err).Str("playlist_id", active.ID).Msg("export failed")
		return exitRuntime
	}

	if _, err := os.Stdout.Write(data); err != nil {
		logging.Error().Err(err).Msg("write to stdout failed")
		return exitRuntime
	}
	return exitOK
}

// runImportPlaylist installs a playlist for the display from a CSV file.
// The new playlist becomes active; the file's base name becomes the
// playlist name.
func runImportPlaylist(code, path string) int {
	_, db, err := bootstrap()
	if err != nil {
		logging.Error().Err(err).Msg("import-playlist bootstrap failed")
		return exitRuntime
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("error closing database")
		}
	}()

	data, err := os.ReadFile(path)
	if err != nil {
		logging.Error().Err(err).Str("file", path).Msg("cannot read CSV file")
		return exitRuntime
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	ctx := context.Background()
	store := playlist.NewStore(db)
	created, err := store.ImportCSV(ctx, code, name, data)
	if err != nil {
		logging.Error().Err(err).Str("display", code).Msg("import failed")
		return exitRuntime
	}

	fmt.Printf("playlist %s (%d blocks) installed for display %s\n",
		created.ID, len(created.Blocks), code)
	return exitOK
}
