// SoraFeed - Multi-Display Video Playlist Orchestrator
// Copyright 2026 fourtytwo42
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fourtytwo42/soraFeed-sub001

// Package timeline materializes playlists into ordered, deduplicated,
// format-filtered per-display video queues and keeps them topped up ahead
// of playback.
package timeline

import (
	"context"
	"fmt"

	"github.com/fourtytwo42/soraFeed-sub001/internal/apperr"
	"github.com/fourtytwo42/soraFeed-sub001/internal/config"
	"github.com/fourtytwo42/soraFeed-sub001/internal/database"
	"github.com/fourtytwo42/soraFeed-sub001/internal/logging"
	"github.com/fourtytwo42/soraFeed-sub001/internal/metrics"
	"github.com/fourtytwo42/soraFeed-sub001/internal/models"
)

// Store is the database surface the manager operates on.
type Store interface {
	GetDisplay(ctx context.Context, code string) (*models.Display, error)
	UpdateDisplayState(ctx context.Context, display *models.Display) error
	GetActivePlaylist(ctx context.Context, displayCode string) (*models.Playlist, error)
	GetPlaylist(ctx context.Context, id string) (*models.Playlist, error)
	GetBlocks(ctx context.Context, playlistID string) ([]models.Block, error)
	GetBlock(ctx context.Context, id string) (*models.Block, error)

	SearchVideos(ctx context.Context, spec database.SearchSpec) ([]models.Video, error)
	GetVideosByIDs(ctx context.Context, ids []string) (map[string]*models.Video, error)

	InsertTimelineEntries(ctx context.Context, entries []models.TimelineEntry) error
	GetEntryAt(ctx context.Context, displayCode string, position int) (*models.TimelineEntry, error)
	GetQueuedEntries(ctx context.Context, displayCode string, fromPosition, limit int) ([]models.TimelineEntry, error)
	QueuedEntriesForBlock(ctx context.Context, blockID string) ([]models.TimelineEntry, error)
	CountBlockEntriesForLoop(ctx context.Context, blockID string, loopIteration int) (int, error)
	CountQueued(ctx context.Context, playlistID string) (int, error)
	CountEntriesForLoop(ctx context.Context, playlistID string, loopIteration int) (int, error)
	MaxTimelinePosition(ctx context.Context, playlistID string) (int, error)
	UsedVideoIDs(ctx context.Context, playlistID string, loopIteration int) (map[string]bool, error)
	CompactPositions(ctx context.Context, playlistID string, oldPosition int) (int, error)

	HistoryVideoIDs(ctx context.Context, displayCode, searchTerm string) (map[string]bool, error)
	RecoverTermGroup(ctx context.Context, displayCode, playlistID, searchTerm string, blockIDs []string) (int, error)
	ResetPlaylistState(ctx context.Context, displayCode, playlistID string) error
}

// Bus receives timeline lifecycle events for realtime fan-out.
type Bus interface {
	PublishTimelineReset(displayCode string)
}

// Manager builds and maintains per-display timelines.
type Manager struct {
	store Store
	bus   Bus
	cfg   *config.TimelineConfig
}

// NewManager creates a timeline manager. bus may be nil.
func NewManager(store Store, bus Bus, cfg *config.TimelineConfig) *Manager {
	return &Manager{store: store, bus: bus, cfg: cfg}
}

// Materialize fills every block of the playlist up to its video count for
// the current loop iteration. Each block's fill is one transaction; a
// failing block is reported without touching the other blocks' fills.
func (m *Manager) Materialize(ctx context.Context, display *models.Display, playlist *models.Playlist) error {
	const op = "timeline.Materialize"

	blocks, err := m.store.GetBlocks(ctx, playlist.ID)
	if err != nil {
		return err
	}

	loop := playlist.LoopCount
	used, err := m.store.UsedVideoIDs(ctx, playlist.ID, loop)
	if err != nil {
		return err
	}
	maxPos, err := m.store.MaxTimelinePosition(ctx, playlist.ID)
	if err != nil {
		return err
	}
	nextPos := maxPos + 1

	var firstErr error
	totalQueued := 0
	for i := range blocks {
		n, err := m.fillBlock(ctx, display, playlist, blocks, &blocks[i], &loop, used, &nextPos)
		if err != nil {
			if firstErr == nil {
				firstErr = apperr.Wrap(apperr.KindInvariantViolation, op, err).
					WithDetail("block_id", blocks[i].ID).
					WithDetail("reason", err.Error())
			}
			continue
		}
		totalQueued += n
	}

	switch {
	case firstErr == nil:
		metrics.TimelineMaterializations.WithLabelValues("success").Inc()
	case totalQueued > 0:
		metrics.TimelineMaterializations.WithLabelValues("partial").Inc()
	default:
		metrics.TimelineMaterializations.WithLabelValues("failed").Inc()
	}
	if totalQueued > 0 {
		metrics.TimelineEntriesQueued.Add(float64(totalQueued))
		logging.Info().
			Str("display", display.Code).
			Str("playlist_id", playlist.ID).
			Int("queued", totalQueued).
			Int("loop", loop).
			Msg("timeline materialized")
	}
	return firstErr
}

// fillBlock queues up to the block's still-needed slot count. When the
// candidate pool runs dry it attempts one exhaustion recovery for the
// block's search-term group and retries once.
func (m *Manager) fillBlock(ctx context.Context, display *models.Display, playlist *models.Playlist, allBlocks []models.Block, block *models.Block, loop *int, used map[string]bool, nextPos *int) (int, error) {
	needed, queuedIDs, err := m.blockNeed(ctx, block, *loop)
	if err != nil {
		return 0, err
	}
	if needed <= 0 {
		return 0, nil
	}

	candidates, err := m.searchCandidates(ctx, display, block, *loop, needed, queuedIDs, used)
	if err != nil {
		return 0, err
	}

	if len(candidates) < needed {
		recovered, newLoop, err := m.recoverTermGroup(ctx, display, playlist, allBlocks, block.SearchTerm)
		if err != nil {
			return 0, err
		}
		if recovered {
			*loop = newLoop
			fresh, err := m.store.UsedVideoIDs(ctx, playlist.ID, newLoop)
			if err != nil {
				return 0, err
			}
			for k := range used {
				delete(used, k)
			}
			for k := range fresh {
				used[k] = true
			}
			maxPos, err := m.store.MaxTimelinePosition(ctx, playlist.ID)
			if err != nil {
				return 0, err
			}
			*nextPos = maxPos + 1

			needed, queuedIDs, err = m.blockNeed(ctx, block, *loop)
			if err != nil {
				return 0, err
			}
			candidates, err = m.searchCandidates(ctx, display, block, *loop, needed, queuedIDs, used)
			if err != nil {
				return 0, err
			}
		}
	}

	take := needed
	if take > len(candidates) {
		take = len(candidates)
	}
	if take == 0 {
		return 0, nil
	}

	entries := make([]models.TimelineEntry, 0, take)
	blockPos := block.VideoCount - needed
	for i := 0; i < take; i++ {
		entries = append(entries, models.TimelineEntry{
			DisplayCode:      display.Code,
			PlaylistID:       playlist.ID,
			BlockID:          block.ID,
			VideoID:          candidates[i].ID,
			TimelinePosition: *nextPos + i,
			Status:           models.EntryQueued,
			BlockPosition:    blockPos + i,
			LoopIteration:    *loop,
		})
	}
	if err := m.store.InsertTimelineEntries(ctx, entries); err != nil {
		return 0, err
	}
	for i := 0; i < take; i++ {
		used[candidates[i].ID] = true
	}
	*nextPos += take
	return take, nil
}

// blockNeed computes the block's still-needed slot count for the loop and
// the video ids it already has queued. Played entries count against the
// quota so a block never exceeds its video count within one loop.
func (m *Manager) blockNeed(ctx context.Context, block *models.Block, loop int) (int, map[string]bool, error) {
	filled, err := m.store.CountBlockEntriesForLoop(ctx, block.ID, loop)
	if err != nil {
		return 0, nil, err
	}
	queued, err := m.store.QueuedEntriesForBlock(ctx, block.ID)
	if err != nil {
		return 0, nil, err
	}
	queuedIDs := make(map[string]bool, len(queued))
	for _, e := range queued {
		queuedIDs[e.VideoID] = true
	}
	return block.VideoCount - filled, queuedIDs, nil
}

// searchCandidates queries the content index excluding everything the
// dedup invariants forbid: played ids for the block, its queued ids, and
// ids used anywhere in the playlist this loop.
func (m *Manager) searchCandidates(ctx context.Context, display *models.Display, block *models.Block, loop, needed int, queuedIDs, used map[string]bool) ([]models.Video, error) {
	played, err := m.store.HistoryVideoIDs(ctx, display.Code, block.SearchTerm)
	if err != nil {
		return nil, err
	}

	exclude := make([]string, 0, len(played)+len(queuedIDs)+len(used))
	seen := make(map[string]bool, len(played)+len(queuedIDs)+len(used))
	for _, set := range []map[string]bool{played, queuedIDs, used} {
		for id := range set {
			if !seen[id] {
				seen[id] = true
				exclude = append(exclude, id)
			}
		}
	}

	return m.store.SearchVideos(ctx, database.SearchSpec{
		Term:       block.SearchTerm,
		Format:     block.Format,
		Mode:       block.FetchMode,
		Seed:       fmt.Sprintf("%s:%d", block.ID, loop),
		ExcludeIDs: exclude,
		Limit:      needed + m.cfg.FetchBuffer,
	})
}

// recoverTermGroup checks whether the search-term group is exhausted and,
// if so, resets it: the term's history and the group's queued entries are
// dropped in one transaction and the loop counter advances. Positions are
// re-compacted afterwards so the dense ordering survives the deletion.
func (m *Manager) recoverTermGroup(ctx context.Context, display *models.Display, playlist *models.Playlist, allBlocks []models.Block, searchTerm string) (bool, int, error) {
	var groupIDs []string
	totalNeeded := 0
	for _, b := range allBlocks {
		if b.SearchTerm == searchTerm {
			groupIDs = append(groupIDs, b.ID)
			totalNeeded += b.VideoCount
		}
	}

	played, err := m.store.HistoryVideoIDs(ctx, display.Code, searchTerm)
	if err != nil {
		return false, 0, err
	}
	usedIDs := make(map[string]bool, len(played))
	for id := range played {
		usedIDs[id] = true
	}
	for _, id := range groupIDs {
		queued, err := m.store.QueuedEntriesForBlock(ctx, id)
		if err != nil {
			return false, 0, err
		}
		for _, e := range queued {
			usedIDs[e.VideoID] = true
		}
	}
	if len(usedIDs) < totalNeeded {
		return false, 0, nil
	}

	newLoop, err := m.store.RecoverTermGroup(ctx, display.Code, playlist.ID, searchTerm, groupIDs)
	if err != nil {
		return false, 0, err
	}
	metrics.TimelineExhaustionRecoveries.Inc()

	newPos, err := m.store.CompactPositions(ctx, playlist.ID, display.TimelinePosition)
	if err != nil {
		return false, 0, err
	}
	if newPos >= 0 && newPos != display.TimelinePosition {
		display.TimelinePosition = newPos
		if err := m.store.UpdateDisplayState(ctx, display); err != nil {
			return false, 0, err
		}
	}

	logging.Info().
		Str("display", display.Code).
		Str("search_term", searchTerm).
		Int("group_blocks", len(groupIDs)).
		Int("new_loop", newLoop).
		Msg("exhausted search-term group recovered")
	return true, newLoop, nil
}

// RefillIfLow materializes when fewer queued entries remain ahead of the
// display's position than the low watermark.
func (m *Manager) RefillIfLow(ctx context.Context, display *models.Display) error {
	playlist, err := m.store.GetActivePlaylist(ctx, display.Code)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil
		}
		return err
	}

	queued, err := m.store.CountQueued(ctx, playlist.ID)
	if err != nil {
		return err
	}
	watermark := m.cfg.RefillThreshold
	if playlist.TotalVideos < watermark {
		watermark = playlist.TotalVideos
	}
	if queued >= watermark {
		return nil
	}
	return m.Materialize(ctx, display, playlist)
}

// ResetTimeline wipes the display's active playlist runtime state. The
// display must be idle.
func (m *Manager) ResetTimeline(ctx context.Context, displayCode string) error {
	const op = "timeline.Reset"

	display, err := m.store.GetDisplay(ctx, displayCode)
	if err != nil {
		return err
	}
	if display.PlaybackState != models.StateIdle {
		return apperr.New(apperr.KindConflict, op, "timeline can only be reset while the display is idle").
			WithDetail("playback_state", string(display.PlaybackState))
	}

	playlist, err := m.store.GetActivePlaylist(ctx, displayCode)
	if err != nil {
		return err
	}
	if err := m.store.ResetPlaylistState(ctx, displayCode, playlist.ID); err != nil {
		return err
	}

	if m.bus != nil {
		m.bus.PublishTimelineReset(displayCode)
	}
	logging.Info().Str("display", displayCode).Str("playlist_id", playlist.ID).Msg("timeline reset")
	return nil
}

// CompactPositions renumbers the playlist's live entries densely after a
// skip invalidation and returns the display position's new value.
func (m *Manager) CompactPositions(ctx context.Context, playlistID string, oldPosition int) (int, error) {
	return m.store.CompactPositions(ctx, playlistID, oldPosition)
}
