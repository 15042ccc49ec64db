// SoraFeed - Multi-Display Video Playlist Orchestrator
// Copyright 2026 fourtytwo42
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fourtytwo42/soraFeed-sub001

package database

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/fourtytwo42/soraFeed-sub001/internal/apperr"
	"github.com/fourtytwo42/soraFeed-sub001/internal/models"
)

// seedVideos inserts a creator plus a deterministic set of videos.
func seedVideos(t *testing.T, db *DB, videos []*models.Video) {
	t.Helper()
	ctx := context.Background()

	creator := &models.Creator{ID: "creator-1", Username: "alice"}
	if err := db.UpsertCreator(ctx, creator); err != nil {
		t.Fatalf("UpsertCreator() error: %v", err)
	}
	for _, v := range videos {
		if v.CreatorID == "" {
			v.CreatorID = "creator-1"
		}
		if v.SourceURL == "" {
			v.SourceURL = "https://cdn.example/" + v.ID + ".mp4"
		}
	}
	inserted, _, err := db.InsertVideosBatch(ctx, videos)
	if err != nil {
		t.Fatalf("InsertVideosBatch() error: %v", err)
	}
	if inserted != len(videos) {
		t.Fatalf("inserted %d videos, want %d", inserted, len(videos))
	}
}

func TestInsertVideosBatchDeduplication(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	batch := []*models.Video{
		{ID: "v1", Description: "sunset beach", PostedAt: 100, Width: 1920, Height: 1080},
		{ID: "v2", Description: "city night", PostedAt: 200, Width: 1080, Height: 1920},
	}
	seedVideos(t, db, batch)

	// Re-scan the same posts plus one new.
	again := []*models.Video{
		{ID: "v1", CreatorID: "creator-1", SourceURL: "s", Description: "sunset beach", PostedAt: 100, LikeCount: 50},
		{ID: "v2", CreatorID: "creator-1", SourceURL: "s", Description: "city night", PostedAt: 200},
		{ID: "v3", CreatorID: "creator-1", SourceURL: "s", Description: "forest trail", PostedAt: 300},
	}
	inserted, duplicates, err := db.InsertVideosBatch(ctx, again)
	if err != nil {
		t.Fatalf("InsertVideosBatch() error: %v", err)
	}
	if inserted != 1 || duplicates != 2 {
		t.Errorf("inserted=%d duplicates=%d, want 1/2", inserted, duplicates)
	}

	// Engagement counters refresh on re-sighting.
	v1, err := db.GetVideo(ctx, "v1")
	if err != nil {
		t.Fatal(err)
	}
	if v1.LikeCount != 50 {
		t.Errorf("like count = %d, want refreshed to 50", v1.LikeCount)
	}
	// Immutable fields are untouched.
	if v1.Description != "sunset beach" || v1.Width != 1920 {
		t.Errorf("immutable fields changed: %+v", v1)
	}
}

func TestSearchVideosTokens(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	seedVideos(t, db, []*models.Video{
		{ID: "v1", Description: "Sunset over the beach", PostedAt: 100},
		{ID: "v2", Description: "sunset in the city", PostedAt: 200},
		{ID: "v3", Description: "beach volleyball", PostedAt: 300},
		{ID: "v4", Description: "mountain sunrise", PostedAt: 400},
	})

	// Single token, case-insensitive.
	got, err := db.SearchVideos(ctx, SearchSpec{Term: "SUNSET", Mode: models.FetchNewest, Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("sunset matches = %d, want 2", len(got))
	}
	// Newest first.
	if got[0].ID != "v2" || got[1].ID != "v1" {
		t.Errorf("order = %s,%s, want v2,v1", got[0].ID, got[1].ID)
	}

	// Conjunction of tokens.
	got, err = db.SearchVideos(ctx, SearchSpec{Term: "sunset beach", Mode: models.FetchNewest, Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "v1" {
		t.Errorf("sunset beach = %v, want just v1", ids(got))
	}

	// Negative token.
	got, err = db.SearchVideos(ctx, SearchSpec{Term: "sunset -city", Mode: models.FetchNewest, Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "v1" {
		t.Errorf("sunset -city = %v, want just v1", ids(got))
	}

	// Empty term matches everything.
	got, err = db.SearchVideos(ctx, SearchSpec{Mode: models.FetchNewest, Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 4 {
		t.Errorf("empty term matches = %d, want 4", len(got))
	}

	// Exclusions.
	got, err = db.SearchVideos(ctx, SearchSpec{Mode: models.FetchNewest, Limit: 10, ExcludeIDs: []string{"v1", "v4"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("excluded search = %v, want v2,v3", ids(got))
	}
}

func TestSearchVideosFormatFilters(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	seedVideos(t, db, []*models.Video{
		{ID: "wide", Description: "clip", PostedAt: 1, Width: 1920, Height: 1080},
		{ID: "tall", Description: "clip", PostedAt: 2, Width: 1080, Height: 1920},
		{ID: "square", Description: "clip", PostedAt: 3, Width: 720, Height: 720},
		{ID: "nodims", Description: "clip", PostedAt: 4},
	})

	tests := []struct {
		format models.BlockFormat
		want   []string
	}{
		{models.BlockFormatWide, []string{"wide"}},
		{models.BlockFormatTall, []string{"tall"}},
		{models.BlockFormatMixed, []string{"nodims", "square", "tall", "wide"}},
	}
	for _, tt := range tests {
		got, err := db.SearchVideos(ctx, SearchSpec{Format: tt.format, Mode: models.FetchNewest, Limit: 10})
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != len(tt.want) {
			t.Errorf("%s matches = %v, want %v", tt.format, ids(got), tt.want)
		}
	}
}

func TestSearchVideosRandomSeed(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	var batch []*models.Video
	for i := 0; i < 20; i++ {
		batch = append(batch, &models.Video{
			ID:          fmt.Sprintf("v%02d", i),
			Description: "clip",
			PostedAt:    int64(i),
		})
	}
	seedVideos(t, db, batch)

	first, err := db.SearchVideos(ctx, SearchSpec{Mode: models.FetchRandom, Seed: "seed-a", Limit: 20})
	if err != nil {
		t.Fatal(err)
	}
	second, err := db.SearchVideos(ctx, SearchSpec{Mode: models.FetchRandom, Seed: "seed-a", Limit: 20})
	if err != nil {
		t.Fatal(err)
	}
	if fmt.Sprint(ids(first)) != fmt.Sprint(ids(second)) {
		t.Error("same seed should produce the same order")
	}

	other, err := db.SearchVideos(ctx, SearchSpec{Mode: models.FetchRandom, Seed: "seed-b", Limit: 20})
	if err != nil {
		t.Fatal(err)
	}
	if fmt.Sprint(ids(first)) == fmt.Sprint(ids(other)) {
		t.Error("different seeds should produce different orders")
	}
}

func TestCountByTerm(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	seedVideos(t, db, []*models.Video{
		{ID: "v1", Description: "ocean waves", PostedAt: 1, Width: 1920, Height: 1080},
		{ID: "v2", Description: "ocean sunset", PostedAt: 2, Width: 1080, Height: 1920},
		{ID: "v3", Description: "desert dunes", PostedAt: 3, Width: 1920, Height: 1080},
	})

	n, err := db.CountByTerm(ctx, "ocean", models.BlockFormatMixed)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("ocean count = %d, want 2", n)
	}

	n, err = db.CountByTerm(ctx, "ocean", models.BlockFormatWide)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("ocean wide count = %d, want 1", n)
	}

	n, err = db.CountByTerm(ctx, "", models.BlockFormatMixed)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("empty term count = %d, want 3", n)
	}
}

func TestGetVideosByIDs(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	seedVideos(t, db, []*models.Video{
		{ID: "v1", Description: "a", PostedAt: 1},
		{ID: "v2", Description: "b", PostedAt: 2},
	})

	got, err := db.GetVideosByIDs(ctx, []string{"v1", "v2", "missing"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("got %d videos, want 2", len(got))
	}
	if got["v1"] == nil || got["v1"].Description != "a" {
		t.Errorf("v1 = %+v", got["v1"])
	}

	if _, err := db.GetVideo(ctx, "missing"); apperr.KindOf(err) != apperr.KindNotFound {
		t.Errorf("missing video kind = %v, want NotFound", apperr.KindOf(err))
	}
}

func TestUpsertCreatorPreservesFirstSeen(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	first := time.Now().UTC().Add(-time.Hour).Truncate(time.Millisecond)
	c := &models.Creator{ID: "c1", Username: "bob", FirstSeenAt: first}
	if err := db.UpsertCreator(ctx, c); err != nil {
		t.Fatal(err)
	}

	// Re-sighting with changed mutable fields.
	again := &models.Creator{ID: "c1", Username: "bob-renamed", FollowerCount: 10, FirstSeenAt: first}
	if err := db.UpsertCreator(ctx, again); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetCreator(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Username != "bob-renamed" || got.FollowerCount != 10 {
		t.Errorf("mutable fields not updated: %+v", got)
	}
	if !got.FirstSeenAt.Equal(first) {
		t.Errorf("first_seen_at = %v, want preserved %v", got.FirstSeenAt, first)
	}
	if !got.LastSeenAt.After(got.FirstSeenAt) {
		t.Error("last_seen_at should advance on re-sighting")
	}
}

func ids(videos []models.Video) []string {
	out := make([]string, len(videos))
	for i, v := range videos {
		out[i] = v.ID
	}
	return out
}
