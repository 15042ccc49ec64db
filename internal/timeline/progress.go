// SoraFeed - Multi-Display Video Playlist Orchestrator
// Copyright 2026 fourtytwo42
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fourtytwo42/soraFeed-sub001

package timeline

import (
	"context"

	"github.com/fourtytwo42/soraFeed-sub001/internal/apperr"
	"github.com/fourtytwo42/soraFeed-sub001/internal/models"
)

// Progress reports where the display sits inside its current block and
// the overall playlist loop.
func (m *Manager) Progress(ctx context.Context, display *models.Display) (*models.ProgressInfo, error) {
	playlist, err := m.store.GetActivePlaylist(ctx, display.Code)
	if err != nil {
		return nil, err
	}

	totalInLoop, err := m.store.CountEntriesForLoop(ctx, playlist.ID, playlist.LoopCount)
	if err != nil {
		return nil, err
	}

	info := &models.ProgressInfo{
		Overall: models.OverallProgress{
			CurrentPosition:    display.TimelinePosition,
			TotalInCurrentLoop: totalInLoop,
			LoopCount:          playlist.LoopCount,
		},
	}

	entry, err := m.store.GetEntryAt(ctx, display.Code, display.TimelinePosition)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return info, nil
		}
		return nil, err
	}
	block, err := m.store.GetBlock(ctx, entry.BlockID)
	if err != nil {
		return nil, err
	}

	current := entry.BlockPosition + 1
	progress := 0.0
	if block.VideoCount > 0 {
		progress = float64(current) / float64(block.VideoCount) * 100
	}
	info.CurrentBlock = &models.BlockProgress{
		BlockID:      block.ID,
		Name:         block.SearchTerm,
		CurrentVideo: current,
		TotalVideos:  block.VideoCount,
		Progress:     progress,
	}
	return info, nil
}

// Snapshot builds the timeline API payload: progress plus up to limit
// queued entries with their resolved videos.
func (m *Manager) Snapshot(ctx context.Context, display *models.Display, limit int) (*models.TimelineResponse, error) {
	progress, err := m.Progress(ctx, display)
	if err != nil {
		return nil, err
	}

	entries, err := m.store.GetQueuedEntries(ctx, display.Code, display.TimelinePosition, limit)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.VideoID)
	}
	videos, err := m.store.GetVideosByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	queued := make([]models.QueuedVideo, 0, len(entries))
	for _, e := range entries {
		queued = append(queued, models.QueuedVideo{
			EntryID:          e.ID,
			TimelinePosition: e.TimelinePosition,
			BlockID:          e.BlockID,
			Video:            videos[e.VideoID],
			Status:           e.Status,
		})
	}

	return &models.TimelineResponse{Progress: *progress, QueuedVideos: queued}, nil
}
