// SoraFeed - Multi-Display Video Playlist Orchestrator
// Copyright 2026 fourtytwo42
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fourtytwo42/soraFeed-sub001

package database

import (
	"context"
	"testing"

	"github.com/fourtytwo42/soraFeed-sub001/internal/apperr"
	"github.com/fourtytwo42/soraFeed-sub001/internal/models"
)

// seedTimeline materializes five entries into the playlist's timeline.
func seedTimeline(t *testing.T, db *DB, p *models.Playlist, blockID string) []models.TimelineEntry {
	t.Helper()
	entries := make([]models.TimelineEntry, 5)
	for i := range entries {
		entries[i] = models.TimelineEntry{
			DisplayCode:      "ABC123",
			PlaylistID:       p.ID,
			BlockID:          blockID,
			VideoID:          "vid-" + string(rune('a'+i)),
			TimelinePosition: i,
			BlockPosition:    i,
		}
	}
	if err := db.InsertTimelineEntries(context.Background(), entries); err != nil {
		t.Fatalf("InsertTimelineEntries() error: %v", err)
	}
	return entries
}

func TestTimelineEntriesLifecycle(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	p := newTestPlaylist(t, db)
	blocks, err := db.GetBlocks(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	entries := seedTimeline(t, db, p, blocks[0].ID)

	// Defaults were assigned in place.
	if entries[0].ID == "" || entries[0].Status != models.EntryQueued || entries[0].CreatedAt.IsZero() {
		t.Errorf("insert defaults not applied: %+v", entries[0])
	}

	e, err := db.GetEntryAt(ctx, "ABC123", 2)
	if err != nil {
		t.Fatalf("GetEntryAt() error: %v", err)
	}
	if e.VideoID != "vid-c" {
		t.Errorf("entry at 2 = %s, want vid-c", e.VideoID)
	}
	if _, err := db.GetEntryAt(ctx, "ABC123", 99); apperr.KindOf(err) != apperr.KindNotFound {
		t.Errorf("missing entry kind = %v, want NotFound", apperr.KindOf(err))
	}

	queued, err := db.GetQueuedEntries(ctx, "ABC123", 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(queued) != 2 || queued[0].TimelinePosition != 1 || queued[1].TimelinePosition != 2 {
		t.Errorf("queued window = %+v", queued)
	}

	count, err := db.CountQueued(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if count != 5 {
		t.Errorf("queued count = %d, want 5", count)
	}

	max, err := db.MaxTimelinePosition(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if max != 4 {
		t.Errorf("max position = %d, want 4", max)
	}
	if max, err = db.MaxTimelinePosition(ctx, "no-such-playlist"); err != nil || max != -1 {
		t.Errorf("empty timeline max = %d/%v, want -1/nil", max, err)
	}

	// Status transitions.
	if err := db.MarkEntryStatus(ctx, entries[0].ID, models.EntryPlayed); err != nil {
		t.Fatal(err)
	}
	if err := db.MarkEntryStatus(ctx, "missing", models.EntryPlayed); apperr.KindOf(err) != apperr.KindNotFound {
		t.Errorf("missing entry mark kind = %v, want NotFound", apperr.KindOf(err))
	}
	count, err = db.CountQueued(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if count != 4 {
		t.Errorf("queued count after play = %d, want 4", count)
	}

	// A skipped entry is invisible to position lookup.
	if err := db.MarkEntryStatus(ctx, entries[3].ID, models.EntrySkipped); err != nil {
		t.Fatal(err)
	}
	if _, err := db.GetEntryAt(ctx, "ABC123", 3); apperr.KindOf(err) != apperr.KindNotFound {
		t.Error("skipped entry should not resolve at its position")
	}

	if err := db.ClearTimeline(ctx, p.ID); err != nil {
		t.Fatal(err)
	}
	count, err = db.CountQueued(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("queued count after clear = %d, want 0", count)
	}
}

func TestUsedVideoIDsPerLoop(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	p := newTestPlaylist(t, db)
	blocks, err := db.GetBlocks(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}

	err = db.InsertTimelineEntries(ctx, []models.TimelineEntry{
		{DisplayCode: "ABC123", PlaylistID: p.ID, BlockID: blocks[0].ID, VideoID: "v1", TimelinePosition: 0, LoopIteration: 0},
		{DisplayCode: "ABC123", PlaylistID: p.ID, BlockID: blocks[0].ID, VideoID: "v2", TimelinePosition: 1, LoopIteration: 0, Status: models.EntryPlayed},
		{DisplayCode: "ABC123", PlaylistID: p.ID, BlockID: blocks[0].ID, VideoID: "v3", TimelinePosition: 2, LoopIteration: 1},
	})
	if err != nil {
		t.Fatal(err)
	}

	loop0, err := db.UsedVideoIDs(ctx, p.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	// Played entries still count toward dedup within the iteration.
	if len(loop0) != 2 || !loop0["v1"] || !loop0["v2"] {
		t.Errorf("loop 0 used = %v, want v1,v2", loop0)
	}

	loop1, err := db.UsedVideoIDs(ctx, p.ID, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(loop1) != 1 || !loop1["v3"] {
		t.Errorf("loop 1 used = %v, want v3", loop1)
	}
}

func TestCompactPositions(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	p := newTestPlaylist(t, db)
	blocks, err := db.GetBlocks(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	entries := seedTimeline(t, db, p, blocks[0].ID)

	// Skip positions 1 and 3; the display currently sits at position 4.
	if err := db.MarkEntryStatus(ctx, entries[1].ID, models.EntrySkipped); err != nil {
		t.Fatal(err)
	}
	if err := db.MarkEntryStatus(ctx, entries[3].ID, models.EntrySkipped); err != nil {
		t.Fatal(err)
	}

	newPos, err := db.CompactPositions(ctx, p.ID, 4)
	if err != nil {
		t.Fatalf("CompactPositions() error: %v", err)
	}
	// Live order was a,c,e so e moves from 4 to 2.
	if newPos != 2 {
		t.Errorf("new position = %d, want 2", newPos)
	}

	live, err := db.GetQueuedEntries(ctx, "ABC123", 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(live) != 3 {
		t.Fatalf("live entries = %d, want 3", len(live))
	}
	for i, e := range live {
		if e.TimelinePosition != i {
			t.Errorf("entry %s at position %d, want %d", e.VideoID, e.TimelinePosition, i)
		}
	}
	if live[0].VideoID != "vid-a" || live[1].VideoID != "vid-c" || live[2].VideoID != "vid-e" {
		t.Errorf("compacted order = %s,%s,%s", live[0].VideoID, live[1].VideoID, live[2].VideoID)
	}

	// Compacting again with a vanished old position reports -1.
	newPos, err = db.CompactPositions(ctx, p.ID, 42)
	if err != nil {
		t.Fatal(err)
	}
	if newPos != -1 {
		t.Errorf("vanished position = %d, want -1", newPos)
	}
}

func TestHistoryRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	p := newTestPlaylist(t, db)
	blocks, err := db.GetBlocks(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}

	for _, rec := range []struct{ video, term string }{
		{"v1", "sunrise"},
		{"v2", "sunrise"},
		{"v3", "coffee"},
	} {
		err := db.InsertHistory(ctx, &models.VideoHistory{
			DisplayCode: "ABC123",
			BlockID:     blocks[0].ID,
			VideoID:     rec.video,
			SearchTerm:  rec.term,
		})
		if err != nil {
			t.Fatalf("InsertHistory() error: %v", err)
		}
	}

	seen, err := db.HistoryVideoIDs(ctx, "ABC123", "sunrise")
	if err != nil {
		t.Fatal(err)
	}
	if len(seen) != 2 || !seen["v1"] || !seen["v2"] {
		t.Errorf("sunrise history = %v, want v1,v2", seen)
	}

	recent, err := db.RecentHistory(ctx, "ABC123", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 3 {
		t.Errorf("recent history = %d rows, want 3", len(recent))
	}

	cleared, err := db.ClearHistoryForTerm(ctx, "ABC123", "sunrise")
	if err != nil {
		t.Fatal(err)
	}
	if cleared != 2 {
		t.Errorf("cleared = %d rows, want 2", cleared)
	}
	seen, err = db.HistoryVideoIDs(ctx, "ABC123", "coffee")
	if err != nil {
		t.Fatal(err)
	}
	if len(seen) != 1 {
		t.Error("other terms should survive a per-term clear")
	}

	if err := db.ClearHistory(ctx, "ABC123"); err != nil {
		t.Fatal(err)
	}
	recent, err = db.RecentHistory(ctx, "ABC123", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 0 {
		t.Errorf("history after full clear = %d rows, want 0", len(recent))
	}
}
