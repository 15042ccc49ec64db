// SoraFeed - Multi-Display Video Playlist Orchestrator
// Copyright 2026 fourtytwo42
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fourtytwo42/soraFeed-sub001

package playlist

import (
	"context"
	"strings"
	"testing"

	"github.com/fourtytwo42/soraFeed-sub001/internal/apperr"
	"github.com/fourtytwo42/soraFeed-sub001/internal/models"
)

func TestImportCSV(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	csvData := "Search Term,Video Count,Format\n" +
		"sunrise,3,mixed\n" +
		"\"city, night\",2,wide\n" +
		"news,4,tall\n"

	resp, err := store.ImportCSV(ctx, "ABC123", "Imported", []byte(csvData))
	if err != nil {
		t.Fatalf("ImportCSV() error: %v", err)
	}
	if resp.TotalBlocks != 3 || resp.TotalVideos != 9 {
		t.Errorf("totals = %d/%d, want 3/9", resp.TotalBlocks, resp.TotalVideos)
	}
	if resp.Blocks[1].SearchTerm != "city, night" {
		t.Errorf("quoted term = %q", resp.Blocks[1].SearchTerm)
	}
	if resp.Blocks[2].BlockOrder != 2 || resp.Blocks[2].Format != models.BlockFormatTall {
		t.Errorf("row order not preserved: %+v", resp.Blocks[2])
	}
	for _, b := range resp.Blocks {
		if b.FetchMode != models.FetchNewest {
			t.Errorf("imported fetch mode = %s, want newest", b.FetchMode)
		}
	}
}

func TestImportCSVHeaderHandling(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	// Case-insensitive headers, extra columns ignored.
	csvData := "SEARCH TERM,Notes,video count,FORMAT\n" +
		"ocean,extra stuff,5,mixed\n"
	resp, err := store.ImportCSV(ctx, "ABC123", "Loose", []byte(csvData))
	if err != nil {
		t.Fatalf("ImportCSV() with loose headers: %v", err)
	}
	if resp.Blocks[0].SearchTerm != "ocean" || resp.Blocks[0].VideoCount != 5 {
		t.Errorf("block = %+v", resp.Blocks[0])
	}
}

func TestImportCSVMalformed(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	cases := []struct {
		name string
		data string
	}{
		{"empty", ""},
		{"missing column", "Search Term,Video Count\nsunrise,3\n"},
		{"no data rows", "Search Term,Video Count,Format\n"},
		{"non-numeric count", "Search Term,Video Count,Format\nsunrise,lots,mixed\n"},
		{"zero count", "Search Term,Video Count,Format\nsunrise,0,mixed\n"},
		{"bad format", "Search Term,Video Count,Format\nsunrise,3,square\n"},
		{"short row", "Search Term,Video Count,Format\nsunrise\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := store.ImportCSV(ctx, "ABC123", "Bad", []byte(tc.data))
			if apperr.KindOf(err) != apperr.KindBadInput {
				t.Errorf("kind = %v, want BadInput (err=%v)", apperr.KindOf(err), err)
			}
		})
	}
}

func TestExportCSVRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	original := "Search Term,Video Count,Format\n" +
		"sunrise,3,mixed\n" +
		"\"city, night\",2,wide\n"
	resp, err := store.ImportCSV(ctx, "ABC123", "RoundTrip", []byte(original))
	if err != nil {
		t.Fatal(err)
	}

	out, err := store.ExportCSV(ctx, resp.ID)
	if err != nil {
		t.Fatalf("ExportCSV() error: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) != 3 {
		t.Fatalf("export has %d lines, want 3", len(lines))
	}
	if lines[0] != "Search Term,Video Count,Format" {
		t.Errorf("header = %q", lines[0])
	}
	if lines[2] != "\"city, night\",2,wide" {
		t.Errorf("quoted row = %q", lines[2])
	}

	// An export is importable as-is.
	again, err := store.ImportCSV(ctx, "ABC123", "Again", out)
	if err != nil {
		t.Fatalf("re-import of export failed: %v", err)
	}
	if again.TotalBlocks != 2 || again.TotalVideos != 5 {
		t.Errorf("re-imported totals = %d/%d", again.TotalBlocks, again.TotalVideos)
	}
}
