// SoraFeed - Multi-Display Video Playlist Orchestrator
// Copyright 2026 fourtytwo42
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fourtytwo42/soraFeed-sub001

package models

import "time"

// StateDelta is the per-display playback state broadcast to watching
// admins. VideoProgress is the display-reported fraction, merged in for
// smooth progress bars but never persisted.
type StateDelta struct {
	Code             string         `json:"code"`
	PlaybackState    PlaybackState  `json:"playback_state"`
	PlaylistID       *string        `json:"playlist_id,omitempty"`
	CurrentVideoID   *string        `json:"current_video_id,omitempty"`
	CurrentBlockID   *string        `json:"current_block_id,omitempty"`
	TimelinePosition int            `json:"timeline_position"`
	Muted            bool           `json:"muted"`
	VideoProgress    float64        `json:"video_progress"`
	BlockProgress    *BlockProgress `json:"block_progress,omitempty"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// CommandStatusEvent reports a command's delivery outcome.
type CommandStatusEvent struct {
	CommandID string        `json:"command_id"`
	Code      string        `json:"code"`
	Type      CommandType   `json:"type"`
	Status    CommandStatus `json:"status"`
	At        time.Time     `json:"at"`
}

// DisplayStatusEvent reports a display's liveness transition.
type DisplayStatusEvent struct {
	Code   string    `json:"code"`
	Online bool      `json:"online"`
	At     time.Time `json:"at"`
}

// PlaylistEmptyEvent fires when playback runs out of queued entries even
// after a synchronous materialize.
type PlaylistEmptyEvent struct {
	Code       string    `json:"code"`
	PlaylistID string    `json:"playlist_id,omitempty"`
	At         time.Time `json:"at"`
}

// TimelineResetEvent fires after a display's timeline has been wiped.
type TimelineResetEvent struct {
	Code string    `json:"code"`
	At   time.Time `json:"at"`
}
