// SoraFeed - Multi-Display Video Playlist Orchestrator
// Copyright 2026 fourtytwo42
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fourtytwo42/soraFeed-sub001

// Package playlist is the playlist management layer: validated create and
// edit operations over the database, plus CSV import/export.
package playlist

import (
	"context"

	"github.com/fourtytwo42/soraFeed-sub001/internal/apperr"
	"github.com/fourtytwo42/soraFeed-sub001/internal/logging"
	"github.com/fourtytwo42/soraFeed-sub001/internal/models"
	"github.com/fourtytwo42/soraFeed-sub001/internal/validation"
)

// DB is the database surface the store operates on.
type DB interface {
	GetDisplay(ctx context.Context, code string) (*models.Display, error)
	CreatePlaylistWithBlocks(ctx context.Context, displayCode, name string, blocks []models.BlockInput) (*models.Playlist, error)
	GetPlaylist(ctx context.Context, id string) (*models.Playlist, error)
	GetActivePlaylist(ctx context.Context, displayCode string) (*models.Playlist, error)
	GetBlocks(ctx context.Context, playlistID string) ([]models.Block, error)
	GetBlock(ctx context.Context, id string) (*models.Block, error)
	UpdateBlock(ctx context.Context, blockID string, update models.UpdateBlockRequest) (*models.Block, error)
	DeleteBlock(ctx context.Context, blockID string) error
	ReorderBlocks(ctx context.Context, playlistID string, orders []models.BlockOrderInput) error
}

// Store validates and executes playlist operations.
type Store struct {
	db DB
}

// NewStore creates a playlist store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

// CreatePlaylist validates the block definitions and atomically replaces
// the display's active playlist with a new one.
func (s *Store) CreatePlaylist(ctx context.Context, displayCode, name string, blocks []models.BlockInput) (*models.PlaylistResponse, error) {
	const op = "playlist.Create"

	if name == "" {
		return nil, apperr.New(apperr.KindBadInput, op, "playlist name is required")
	}
	if len(blocks) == 0 {
		return nil, apperr.New(apperr.KindBadInput, op, "playlist must have at least one block")
	}
	for i := range blocks {
		if blocks[i].FetchMode == "" {
			blocks[i].FetchMode = models.FetchNewest
		}
		if verr := validation.ValidateStruct(&blocks[i]); verr != nil {
			return nil, apperr.Newf(apperr.KindBadInput, op, "block %d: %s", i, verr.Error())
		}
	}

	p, err := s.db.CreatePlaylistWithBlocks(ctx, displayCode, name, blocks)
	if err != nil {
		return nil, err
	}

	logging.Info().
		Str("display", displayCode).
		Str("playlist_id", p.ID).
		Int("blocks", p.TotalBlocks).
		Int("videos", p.TotalVideos).
		Msg("playlist created")

	return s.withBlocks(ctx, p)
}

// Get returns a playlist with its blocks.
func (s *Store) Get(ctx context.Context, playlistID string) (*models.PlaylistResponse, error) {
	p, err := s.db.GetPlaylist(ctx, playlistID)
	if err != nil {
		return nil, err
	}
	return s.withBlocks(ctx, p)
}

// GetActiveForDisplay returns the display's active playlist with blocks.
func (s *Store) GetActiveForDisplay(ctx context.Context, displayCode string) (*models.PlaylistResponse, error) {
	p, err := s.db.GetActivePlaylist(ctx, displayCode)
	if err != nil {
		return nil, err
	}
	return s.withBlocks(ctx, p)
}

// UpdateBlock edits a block. Changes to the block's search specification
// (search term, video count, format) are only allowed while the owning
// display is idle; fetch mode may change at any time.
func (s *Store) UpdateBlock(ctx context.Context, blockID string, update models.UpdateBlockRequest) (*models.Block, error) {
	const op = "playlist.UpdateBlock"

	if verr := validation.ValidateStruct(&update); verr != nil {
		return nil, apperr.New(apperr.KindBadInput, op, verr.Error())
	}

	if update.SearchTerm != nil || update.VideoCount != nil || update.Format != nil {
		block, err := s.db.GetBlock(ctx, blockID)
		if err != nil {
			return nil, err
		}
		p, err := s.db.GetPlaylist(ctx, block.PlaylistID)
		if err != nil {
			return nil, err
		}
		display, err := s.db.GetDisplay(ctx, p.DisplayCode)
		if err != nil {
			return nil, err
		}
		if display.PlaybackState != models.StateIdle {
			return nil, apperr.New(apperr.KindConflict, op,
				"search term, video count and format can only change while the display is idle").
				WithDetail("display", display.Code).
				WithDetail("playback_state", string(display.PlaybackState))
		}
	}

	return s.db.UpdateBlock(ctx, blockID, update)
}

// DeleteBlock removes a block and renumbers the remainder densely. The
// last block of a playlist cannot be deleted.
func (s *Store) DeleteBlock(ctx context.Context, blockID string) error {
	return s.db.DeleteBlock(ctx, blockID)
}

// ReorderBlocks atomically applies a new block ordering. The orders must
// form a dense 0..N-1 permutation over exactly the playlist's blocks.
func (s *Store) ReorderBlocks(ctx context.Context, playlistID string, orders []models.BlockOrderInput) error {
	const op = "playlist.ReorderBlocks"

	for i := range orders {
		if verr := validation.ValidateStruct(&orders[i]); verr != nil {
			return apperr.Newf(apperr.KindBadInput, op, "order %d: %s", i, verr.Error())
		}
	}
	return s.db.ReorderBlocks(ctx, playlistID, orders)
}

func (s *Store) withBlocks(ctx context.Context, p *models.Playlist) (*models.PlaylistResponse, error) {
	blocks, err := s.db.GetBlocks(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	return &models.PlaylistResponse{Playlist: *p, Blocks: blocks}, nil
}
