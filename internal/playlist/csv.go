// SoraFeed - Multi-Display Video Playlist Orchestrator
// Copyright 2026 fourtytwo42
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fourtytwo42/soraFeed-sub001

package playlist

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/fourtytwo42/soraFeed-sub001/internal/apperr"
	"github.com/fourtytwo42/soraFeed-sub001/internal/models"
)

// CSV column headers, matched case-insensitively on import.
const (
	colSearchTerm = "search term"
	colVideoCount = "video count"
	colFormat     = "format"
)

// ImportCSV parses a playlist definition from CSV and replaces the
// display's active playlist with it. The header row is required and must
// contain the Search Term, Video Count and Format columns; extra columns
// are ignored. Row order becomes block order.
func (s *Store) ImportCSV(ctx context.Context, displayCode, name string, data []byte) (*models.PlaylistResponse, error) {
	const op = "playlist.ImportCSV"

	blocks, err := parseCSVBlocks(op, data)
	if err != nil {
		return nil, err
	}
	return s.CreatePlaylist(ctx, displayCode, name, blocks)
}

// ExportCSV renders a playlist's blocks in the same shape ImportCSV
// accepts, so an export re-imports losslessly.
func (s *Store) ExportCSV(ctx context.Context, playlistID string) ([]byte, error) {
	blocks, err := s.db.GetBlocks(ctx, playlistID)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"Search Term", "Video Count", "Format"}); err != nil {
		return nil, err
	}
	for _, b := range blocks {
		record := []string{b.SearchTerm, strconv.Itoa(b.VideoCount), string(b.Format)}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// parseCSVBlocks turns CSV bytes into ordered block inputs. All structural
// failures map to BadInput so the API reports them as 400s.
func parseCSVBlocks(op string, data []byte) ([]models.BlockInput, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1 // extra columns are tolerated
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err == io.EOF {
		return nil, apperr.New(apperr.KindBadInput, op, "csv is empty")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindBadInput, op, err)
	}

	cols := map[string]int{}
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	termIdx, okTerm := cols[colSearchTerm]
	countIdx, okCount := cols[colVideoCount]
	formatIdx, okFormat := cols[colFormat]
	if !okTerm || !okCount || !okFormat {
		return nil, apperr.New(apperr.KindBadInput, op,
			"csv header must contain Search Term, Video Count and Format columns")
	}

	var blocks []models.BlockInput
	row := 1
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, apperr.Wrap(apperr.KindBadInput, op, err).WithDetail("row", row)
		}
		row++

		if countIdx >= len(record) || formatIdx >= len(record) || termIdx >= len(record) {
			return nil, apperr.Newf(apperr.KindBadInput, op, "row %d has too few columns", row)
		}

		count, err := strconv.Atoi(strings.TrimSpace(record[countIdx]))
		if err != nil || count < 1 {
			return nil, apperr.Newf(apperr.KindBadInput, op,
				"row %d: video count must be a positive integer, got %q", row, record[countIdx])
		}

		format := models.BlockFormat(strings.ToLower(strings.TrimSpace(record[formatIdx])))
		if !format.Valid() {
			return nil, apperr.Newf(apperr.KindBadInput, op,
				"row %d: format must be mixed, wide or tall, got %q", row, record[formatIdx])
		}

		blocks = append(blocks, models.BlockInput{
			SearchTerm: strings.TrimSpace(record[termIdx]),
			VideoCount: count,
			Format:     format,
			FetchMode:  models.FetchNewest,
		})
	}

	if len(blocks) == 0 {
		return nil, apperr.New(apperr.KindBadInput, op, "csv has no data rows")
	}
	return blocks, nil
}
