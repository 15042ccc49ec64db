// SoraFeed - Multi-Display Video Playlist Orchestrator
// Copyright 2026 fourtytwo42
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fourtytwo42/soraFeed-sub001

// Package playback owns the per-display state machine and the durable
// command queue feeding it. All mutations for one display are serialized
// under a per-display lock, so commands apply in FIFO order.
package playback

import (
	"context"
	"sync"
	"time"

	"github.com/fourtytwo42/soraFeed-sub001/internal/apperr"
	"github.com/fourtytwo42/soraFeed-sub001/internal/logging"
	"github.com/fourtytwo42/soraFeed-sub001/internal/models"
)

// Store is the database surface the machine mutates.
type Store interface {
	GetDisplay(ctx context.Context, code string) (*models.Display, error)
	UpdateDisplayState(ctx context.Context, display *models.Display) error
	GetActivePlaylist(ctx context.Context, displayCode string) (*models.Playlist, error)
	GetBlock(ctx context.Context, id string) (*models.Block, error)
	GetEntryAt(ctx context.Context, displayCode string, position int) (*models.TimelineEntry, error)
	GetQueuedEntries(ctx context.Context, displayCode string, fromPosition, limit int) ([]models.TimelineEntry, error)
	MarkEntryStatus(ctx context.Context, entryID string, status models.EntryStatus) error
	MarkBlockPlayed(ctx context.Context, blockID string, at time.Time) error
	IncrementLoopCount(ctx context.Context, playlistID string) (int, error)
	InsertHistory(ctx context.Context, h *models.VideoHistory) error
}

// Timeline is the materializer surface the machine drives.
type Timeline interface {
	Materialize(ctx context.Context, display *models.Display, playlist *models.Playlist) error
	RefillIfLow(ctx context.Context, display *models.Display) error
	ResetTimeline(ctx context.Context, displayCode string) error
	CompactPositions(ctx context.Context, playlistID string, oldPosition int) (int, error)
}

// Bus receives playback events for realtime fan-out.
type Bus interface {
	PublishStateDelta(delta models.StateDelta)
	PublishPlaylistEmpty(evt models.PlaylistEmptyEvent)
}

// Machine applies commands and playback events to displays.
type Machine struct {
	store    Store
	timeline Timeline
	bus      Bus

	mu       sync.Mutex
	locks    map[string]*sync.Mutex
	progress map[string]float64 // display code -> reported video fraction
}

// NewMachine creates a playback state machine. bus may be nil.
func NewMachine(store Store, timeline Timeline, bus Bus) *Machine {
	return &Machine{
		store:    store,
		timeline: timeline,
		bus:      bus,
		locks:    make(map[string]*sync.Mutex),
		progress: make(map[string]float64),
	}
}

// displayLock returns the mutex serializing one display's mutations.
func (m *Machine) displayLock(code string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[code]
	if !ok {
		l = &sync.Mutex{}
		m.locks[code] = l
	}
	return l
}

// Apply executes one command against the display's state machine.
func (m *Machine) Apply(ctx context.Context, code string, cmdType models.CommandType, payload map[string]interface{}) error {
	const op = "playback.Apply"

	lock := m.displayLock(code)
	lock.Lock()
	defer lock.Unlock()

	switch cmdType {
	case models.CommandPlay:
		return m.play(ctx, code)
	case models.CommandPause:
		return m.pause(ctx, code)
	case models.CommandStop:
		return m.stop(ctx, code)
	case models.CommandNext:
		return m.advance(ctx, code, models.EntrySkipped)
	case models.CommandSetMuted:
		muted, _ := payload["muted"].(bool)
		return m.setMuted(ctx, code, muted)
	default:
		return apperr.Newf(apperr.KindBadInput, op, "unknown command type %q", cmdType)
	}
}

// VideoEnded handles a playback completion reported by the display.
func (m *Machine) VideoEnded(ctx context.Context, code string) error {
	lock := m.displayLock(code)
	lock.Lock()
	defer lock.Unlock()
	return m.advance(ctx, code, models.EntryPlayed)
}

// ReportProgress merges the display's video fraction into broadcast state.
// It is never persisted and never advances the timeline.
func (m *Machine) ReportProgress(ctx context.Context, code string, fraction float64) {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	m.mu.Lock()
	m.progress[code] = fraction
	m.mu.Unlock()

	if display, err := m.store.GetDisplay(ctx, code); err == nil {
		m.publishDelta(ctx, display)
	}
}

func (m *Machine) play(ctx context.Context, code string) error {
	const op = "playback.play"

	display, err := m.store.GetDisplay(ctx, code)
	if err != nil {
		return err
	}

	switch display.PlaybackState {
	case models.StatePlaying:
		return nil // idempotent
	case models.StatePaused:
		display.PlaybackState = models.StatePlaying
		if err := m.store.UpdateDisplayState(ctx, display); err != nil {
			return err
		}
		m.publishDelta(ctx, display)
		return nil
	}

	// idle -> playing: needs a queued entry at or past the position.
	entry, err := m.firstQueued(ctx, display)
	if err != nil {
		return err
	}
	if entry == nil {
		playlist, err := m.store.GetActivePlaylist(ctx, code)
		if err != nil {
			return err
		}
		if err := m.timeline.Materialize(ctx, display, playlist); err != nil {
			return err
		}
		if entry, err = m.firstQueued(ctx, display); err != nil {
			return err
		}
	}
	if entry == nil {
		return apperr.New(apperr.KindConflict, op, "no queued videos to play")
	}

	display.PlaybackState = models.StatePlaying
	display.CurrentPlaylistID = &entry.PlaylistID
	display.CurrentVideoID = &entry.VideoID
	display.CurrentBlockID = &entry.BlockID
	display.TimelinePosition = entry.TimelinePosition
	if err := m.store.UpdateDisplayState(ctx, display); err != nil {
		return err
	}
	m.setProgress(code, 0)
	m.publishDelta(ctx, display)
	logging.Info().Str("display", code).Str("video", entry.VideoID).Msg("playback started")
	return nil
}

func (m *Machine) pause(ctx context.Context, code string) error {
	const op = "playback.pause"

	display, err := m.store.GetDisplay(ctx, code)
	if err != nil {
		return err
	}
	switch display.PlaybackState {
	case models.StatePaused:
		return nil // idempotent
	case models.StateIdle:
		return apperr.New(apperr.KindConflict, op, "nothing is playing")
	}

	display.PlaybackState = models.StatePaused
	if err := m.store.UpdateDisplayState(ctx, display); err != nil {
		return err
	}
	m.publishDelta(ctx, display)
	return nil
}

// stop returns the display to idle and wipes its timeline.
func (m *Machine) stop(ctx context.Context, code string) error {
	display, err := m.store.GetDisplay(ctx, code)
	if err != nil {
		return err
	}

	if display.PlaybackState != models.StateIdle {
		display.PlaybackState = models.StateIdle
		display.CurrentVideoID = nil
		display.CurrentBlockID = nil
		display.CurrentPlaylistID = nil
		if err := m.store.UpdateDisplayState(ctx, display); err != nil {
			return err
		}
	}

	if err := m.timeline.ResetTimeline(ctx, code); err != nil && !apperr.Is(err, apperr.KindNotFound) {
		return err
	}

	display.TimelinePosition = 0
	m.setProgress(code, 0)
	m.publishDelta(ctx, display)
	logging.Info().Str("display", code).Msg("playback stopped")
	return nil
}

func (m *Machine) setMuted(ctx context.Context, code string, muted bool) error {
	display, err := m.store.GetDisplay(ctx, code)
	if err != nil {
		return err
	}
	if display.Muted == muted {
		return nil // idempotent
	}
	display.Muted = muted
	if err := m.store.UpdateDisplayState(ctx, display); err != nil {
		return err
	}
	m.publishDelta(ctx, display)
	return nil
}

// advance closes out the current entry and moves to the next queued one.
// Played entries append history and keep their position; skipped entries
// are compacted out of the dense numbering.
func (m *Machine) advance(ctx context.Context, code string, status models.EntryStatus) error {
	display, err := m.store.GetDisplay(ctx, code)
	if err != nil {
		return err
	}
	if display.PlaybackState == models.StateIdle && status == models.EntryPlayed {
		// A late videoEnded after stop; nothing to advance.
		return nil
	}

	entry, err := m.store.GetEntryAt(ctx, code, display.TimelinePosition)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return m.runOut(ctx, display)
		}
		return err
	}

	block, err := m.store.GetBlock(ctx, entry.BlockID)
	if err != nil {
		return err
	}

	if err := m.store.MarkEntryStatus(ctx, entry.ID, status); err != nil {
		return err
	}

	nextPosition := display.TimelinePosition
	if status == models.EntryPlayed {
		if err := m.store.InsertHistory(ctx, &models.VideoHistory{
			DisplayCode: code,
			BlockID:     entry.BlockID,
			VideoID:     entry.VideoID,
			SearchTerm:  block.SearchTerm,
			PlayedAt:    time.Now().UTC(),
		}); err != nil {
			return err
		}
		if entry.BlockPosition == block.VideoCount-1 {
			if err := m.store.MarkBlockPlayed(ctx, entry.BlockID, time.Now().UTC()); err != nil {
				return err
			}
		}
		nextPosition++
	} else {
		// The skipped entry leaves the dense numbering; its successor
		// slides into the current position.
		if _, err := m.timeline.CompactPositions(ctx, entry.PlaylistID, display.TimelinePosition); err != nil {
			return err
		}
	}

	next, err := m.queuedAt(ctx, display, nextPosition)
	if err != nil {
		return err
	}
	if next == nil {
		playlist, perr := m.store.GetActivePlaylist(ctx, code)
		if perr != nil {
			return perr
		}
		if entry.BlockPosition == block.VideoCount-1 {
			// Full pass completed; the next fill starts a new loop.
			if _, err := m.store.IncrementLoopCount(ctx, playlist.ID); err != nil {
				return err
			}
			if playlist, perr = m.store.GetActivePlaylist(ctx, code); perr != nil {
				return perr
			}
		}
		if err := m.timeline.Materialize(ctx, display, playlist); err != nil {
			return err
		}
		if next, err = m.queuedAt(ctx, display, nextPosition); err != nil {
			return err
		}
	}

	if next == nil {
		return m.runOut(ctx, display)
	}

	display.TimelinePosition = next.TimelinePosition
	display.CurrentVideoID = &next.VideoID
	display.CurrentBlockID = &next.BlockID
	display.CurrentPlaylistID = &next.PlaylistID
	if err := m.store.UpdateDisplayState(ctx, display); err != nil {
		return err
	}
	m.setProgress(code, 0)

	if err := m.timeline.RefillIfLow(ctx, display); err != nil {
		logging.Warn().Err(err).Str("display", code).Msg("refill after advance failed")
	}
	m.publishDelta(ctx, display)
	return nil
}

// runOut transitions to idle after the queue is empty even post-refill.
func (m *Machine) runOut(ctx context.Context, display *models.Display) error {
	playlistID := ""
	if display.CurrentPlaylistID != nil {
		playlistID = *display.CurrentPlaylistID
	}

	display.PlaybackState = models.StateIdle
	display.CurrentVideoID = nil
	display.CurrentBlockID = nil
	display.CurrentPlaylistID = nil
	if err := m.store.UpdateDisplayState(ctx, display); err != nil {
		return err
	}
	m.setProgress(display.Code, 0)

	if m.bus != nil {
		m.bus.PublishPlaylistEmpty(models.PlaylistEmptyEvent{
			Code:       display.Code,
			PlaylistID: playlistID,
			At:         time.Now().UTC(),
		})
	}
	m.publishDelta(ctx, display)
	logging.Info().Str("display", display.Code).Msg("playlist empty, display idle")
	return nil
}

// firstQueued returns the first queued entry at or past the display's
// position.
func (m *Machine) firstQueued(ctx context.Context, display *models.Display) (*models.TimelineEntry, error) {
	entries, err := m.store.GetQueuedEntries(ctx, display.Code, display.TimelinePosition, 1)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0], nil
}

// queuedAt returns the queued entry exactly at position, nil when the slot
// is empty or holds a non-queued entry.
func (m *Machine) queuedAt(ctx context.Context, display *models.Display, position int) (*models.TimelineEntry, error) {
	entry, err := m.store.GetEntryAt(ctx, display.Code, position)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if entry.Status != models.EntryQueued {
		return nil, nil
	}
	return entry, nil
}

func (m *Machine) setProgress(code string, fraction float64) {
	m.mu.Lock()
	m.progress[code] = fraction
	m.mu.Unlock()
}

func (m *Machine) videoProgress(code string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.progress[code]
}

// publishDelta broadcasts the display's current state, merging the
// reported video fraction into the block progress.
func (m *Machine) publishDelta(ctx context.Context, display *models.Display) {
	if m.bus == nil {
		return
	}

	fraction := m.videoProgress(display.Code)
	delta := models.StateDelta{
		Code:             display.Code,
		PlaybackState:    display.PlaybackState,
		PlaylistID:       display.CurrentPlaylistID,
		CurrentVideoID:   display.CurrentVideoID,
		CurrentBlockID:   display.CurrentBlockID,
		TimelinePosition: display.TimelinePosition,
		Muted:            display.Muted,
		VideoProgress:    fraction,
		UpdatedAt:        time.Now().UTC(),
	}

	if display.CurrentBlockID != nil {
		if bp := m.blockProgress(ctx, display, fraction); bp != nil {
			delta.BlockProgress = bp
		}
	}
	m.bus.PublishStateDelta(delta)
}

// blockProgress computes the smoothed block fraction from the 0-based
// entry index: (entryIndex + videoFraction) / videoCount.
func (m *Machine) blockProgress(ctx context.Context, display *models.Display, fraction float64) *models.BlockProgress {
	entry, err := m.store.GetEntryAt(ctx, display.Code, display.TimelinePosition)
	if err != nil || entry.BlockID != *display.CurrentBlockID {
		return nil
	}
	block, err := m.store.GetBlock(ctx, entry.BlockID)
	if err != nil || block.VideoCount == 0 {
		return nil
	}
	return &models.BlockProgress{
		BlockID:      block.ID,
		Name:         block.SearchTerm,
		CurrentVideo: entry.BlockPosition + 1,
		TotalVideos:  block.VideoCount,
		Progress:     (float64(entry.BlockPosition) + fraction) / float64(block.VideoCount) * 100,
	}
}
