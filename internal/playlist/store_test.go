// SoraFeed - Multi-Display Video Playlist Orchestrator
// Copyright 2026 fourtytwo42
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fourtytwo42/soraFeed-sub001

package playlist

import (
	"context"
	"io"
	"testing"

	"github.com/fourtytwo42/soraFeed-sub001/internal/apperr"
	"github.com/fourtytwo42/soraFeed-sub001/internal/config"
	"github.com/fourtytwo42/soraFeed-sub001/internal/database"
	"github.com/fourtytwo42/soraFeed-sub001/internal/logging"
	"github.com/fourtytwo42/soraFeed-sub001/internal/models"
)

func init() {
	logging.Init(logging.Config{Level: "disabled", Output: io.Discard})
}

func newTestStore(t *testing.T) (*Store, *database.DB) {
	t.Helper()
	db, err := database.New(&config.DatabaseConfig{Path: ":memory:", MaxMemory: "256MB", Threads: 2})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("failed to close test database: %v", err)
		}
	})
	if err := db.CreateDisplay(context.Background(), &models.Display{Code: "ABC123", Name: "Lobby"}); err != nil {
		t.Fatal(err)
	}
	return NewStore(db), db
}

func sampleBlocks() []models.BlockInput {
	return []models.BlockInput{
		{SearchTerm: "sunrise", VideoCount: 3, Format: models.BlockFormatMixed},
		{SearchTerm: "coffee", VideoCount: 2, Format: models.BlockFormatWide},
	}
}

func TestCreatePlaylistValidation(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	resp, err := store.CreatePlaylist(ctx, "ABC123", "Morning", sampleBlocks())
	if err != nil {
		t.Fatalf("CreatePlaylist() error: %v", err)
	}
	if resp.TotalBlocks != 2 || resp.TotalVideos != 5 {
		t.Errorf("totals = %d/%d, want 2/5", resp.TotalBlocks, resp.TotalVideos)
	}
	if len(resp.Blocks) != 2 {
		t.Fatalf("got %d blocks", len(resp.Blocks))
	}
	if resp.Blocks[0].FetchMode != models.FetchNewest {
		t.Errorf("default fetch mode = %s", resp.Blocks[0].FetchMode)
	}

	cases := []struct {
		name   string
		pname  string
		blocks []models.BlockInput
	}{
		{"empty name", "", sampleBlocks()},
		{"no blocks", "Empty", nil},
		{"zero count", "Bad", []models.BlockInput{{SearchTerm: "x", VideoCount: 0, Format: models.BlockFormatMixed}}},
		{"bad format", "Bad", []models.BlockInput{{SearchTerm: "x", VideoCount: 1, Format: "square"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := store.CreatePlaylist(ctx, "ABC123", tc.pname, tc.blocks); apperr.KindOf(err) != apperr.KindBadInput {
				t.Errorf("kind = %v, want BadInput", apperr.KindOf(err))
			}
		})
	}
}

func TestGetActiveForDisplay(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := store.GetActiveForDisplay(ctx, "ABC123"); apperr.KindOf(err) != apperr.KindNotFound {
		t.Errorf("no-playlist kind = %v, want NotFound", apperr.KindOf(err))
	}

	created, err := store.CreatePlaylist(ctx, "ABC123", "Morning", sampleBlocks())
	if err != nil {
		t.Fatal(err)
	}
	active, err := store.GetActiveForDisplay(ctx, "ABC123")
	if err != nil {
		t.Fatalf("GetActiveForDisplay() error: %v", err)
	}
	if active.ID != created.ID || !active.IsActive {
		t.Errorf("active playlist = %+v", active.Playlist)
	}

	got, err := store.Get(ctx, created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "Morning" || len(got.Blocks) != 2 {
		t.Errorf("Get() = %+v with %d blocks", got.Playlist, len(got.Blocks))
	}
}

func TestUpdateBlockIdleGate(t *testing.T) {
	store, db := newTestStore(t)
	ctx := context.Background()

	resp, err := store.CreatePlaylist(ctx, "ABC123", "Morning", sampleBlocks())
	if err != nil {
		t.Fatal(err)
	}
	block := resp.Blocks[0]

	// Put the display into playing state.
	display, err := db.GetDisplay(ctx, "ABC123")
	if err != nil {
		t.Fatal(err)
	}
	display.PlaybackState = models.StatePlaying
	if err := db.UpdateDisplayState(ctx, display); err != nil {
		t.Fatal(err)
	}

	term := "sunset"
	if _, err := store.UpdateBlock(ctx, block.ID, models.UpdateBlockRequest{SearchTerm: &term}); apperr.KindOf(err) != apperr.KindConflict {
		t.Errorf("spec change while playing kind = %v, want Conflict", apperr.KindOf(err))
	}

	// Fetch mode edits are allowed in any state.
	mode := models.FetchRandom
	updated, err := store.UpdateBlock(ctx, block.ID, models.UpdateBlockRequest{FetchMode: &mode})
	if err != nil {
		t.Fatalf("fetch mode update while playing: %v", err)
	}
	if updated.FetchMode != models.FetchRandom {
		t.Errorf("fetch mode = %s", updated.FetchMode)
	}

	// Back to idle, spec changes go through.
	display.PlaybackState = models.StateIdle
	if err := db.UpdateDisplayState(ctx, display); err != nil {
		t.Fatal(err)
	}
	updated, err = store.UpdateBlock(ctx, block.ID, models.UpdateBlockRequest{SearchTerm: &term})
	if err != nil {
		t.Fatalf("spec change while idle: %v", err)
	}
	if updated.SearchTerm != "sunset" {
		t.Errorf("search term = %s", updated.SearchTerm)
	}
}

func TestReorderBlocksValidation(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	resp, err := store.CreatePlaylist(ctx, "ABC123", "Morning", sampleBlocks())
	if err != nil {
		t.Fatal(err)
	}

	orders := []models.BlockOrderInput{
		{BlockID: resp.Blocks[0].ID, Order: 1},
		{BlockID: resp.Blocks[1].ID, Order: 0},
	}
	if err := store.ReorderBlocks(ctx, resp.ID, orders); err != nil {
		t.Fatalf("ReorderBlocks() error: %v", err)
	}
	after, err := store.Get(ctx, resp.ID)
	if err != nil {
		t.Fatal(err)
	}
	if after.Blocks[0].SearchTerm != "coffee" || after.Blocks[1].SearchTerm != "sunrise" {
		t.Errorf("order after reorder = %s,%s", after.Blocks[0].SearchTerm, after.Blocks[1].SearchTerm)
	}

	// Non-UUID block id is rejected before hitting the database.
	bad := []models.BlockOrderInput{{BlockID: "not-a-uuid", Order: 0}}
	if err := store.ReorderBlocks(ctx, resp.ID, bad); apperr.KindOf(err) != apperr.KindBadInput {
		t.Errorf("bad id kind = %v, want BadInput", apperr.KindOf(err))
	}

	// Sparse permutation is an invariant violation from the database.
	sparse := []models.BlockOrderInput{
		{BlockID: after.Blocks[0].ID, Order: 0},
		{BlockID: after.Blocks[1].ID, Order: 2},
	}
	if err := store.ReorderBlocks(ctx, resp.ID, sparse); apperr.KindOf(err) != apperr.KindInvariantViolation {
		t.Errorf("sparse kind = %v, want InvariantViolation", apperr.KindOf(err))
	}
}

func TestDeleteBlockThroughStore(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	resp, err := store.CreatePlaylist(ctx, "ABC123", "Morning", sampleBlocks())
	if err != nil {
		t.Fatal(err)
	}
	if err := store.DeleteBlock(ctx, resp.Blocks[0].ID); err != nil {
		t.Fatalf("DeleteBlock() error: %v", err)
	}
	after, err := store.Get(ctx, resp.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(after.Blocks) != 1 || after.Blocks[0].BlockOrder != 0 {
		t.Errorf("blocks after delete = %+v", after.Blocks)
	}

	// The last block cannot be deleted.
	if err := store.DeleteBlock(ctx, after.Blocks[0].ID); apperr.KindOf(err) != apperr.KindConflict {
		t.Errorf("last block delete kind = %v, want Conflict", apperr.KindOf(err))
	}
}
