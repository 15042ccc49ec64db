// SoraFeed - Multi-Display Video Playlist Orchestrator
// Copyright 2026 fourtytwo42
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fourtytwo42/soraFeed-sub001

package models

// VideoFormat is the aspect-ratio class derived from a video's dimensions.
type VideoFormat string

const (
	FormatWide    VideoFormat = "wide"
	FormatTall    VideoFormat = "tall"
	FormatSquare  VideoFormat = "square"
	FormatUnknown VideoFormat = "unknown"
)

// BlockFormat is the aspect-ratio filter a block applies when selecting
// videos. Unlike VideoFormat it has no square/unknown members: mixed is a
// pass-through and wide/tall are strict dimension filters.
type BlockFormat string

const (
	BlockFormatMixed BlockFormat = "mixed"
	BlockFormatWide  BlockFormat = "wide"
	BlockFormatTall  BlockFormat = "tall"
)

// Valid reports whether f is a recognized block format.
func (f BlockFormat) Valid() bool {
	switch f {
	case BlockFormatMixed, BlockFormatWide, BlockFormatTall:
		return true
	}
	return false
}

// Accepts reports whether a video of format v may fill a slot of this
// block format. Mixed accepts anything; wide/tall are strict, so square
// and unknown videos never satisfy them.
func (f BlockFormat) Accepts(v VideoFormat) bool {
	switch f {
	case BlockFormatMixed:
		return true
	case BlockFormatWide:
		return v == FormatWide
	case BlockFormatTall:
		return v == FormatTall
	}
	return false
}

// FetchMode selects candidate ordering when a block is materialized.
type FetchMode string

const (
	FetchNewest FetchMode = "newest"
	FetchRandom FetchMode = "random"
)

// Valid reports whether m is a recognized fetch mode.
func (m FetchMode) Valid() bool {
	return m == FetchNewest || m == FetchRandom
}

// PlaybackState is a display's playback state.
type PlaybackState string

const (
	StateIdle    PlaybackState = "idle"
	StatePlaying PlaybackState = "playing"
	StatePaused  PlaybackState = "paused"
)

// Valid reports whether s is a recognized playback state.
func (s PlaybackState) Valid() bool {
	switch s {
	case StateIdle, StatePlaying, StatePaused:
		return true
	}
	return false
}

// EntryStatus is the lifecycle state of a timeline entry.
type EntryStatus string

const (
	EntryQueued  EntryStatus = "queued"
	EntryPlayed  EntryStatus = "played"
	EntrySkipped EntryStatus = "skipped"
)

// CommandType identifies an imperative command sent to a display.
type CommandType string

const (
	CommandPlay     CommandType = "play"
	CommandPause    CommandType = "pause"
	CommandStop     CommandType = "stop"
	CommandNext     CommandType = "next"
	CommandSetMuted CommandType = "setMuted"
)

// Valid reports whether t is a recognized command type.
func (t CommandType) Valid() bool {
	switch t {
	case CommandPlay, CommandPause, CommandStop, CommandNext, CommandSetMuted:
		return true
	}
	return false
}

// CommandStatus is the delivery outcome of an enqueued command.
type CommandStatus string

const (
	CommandPending     CommandStatus = "pending"
	CommandDelivered   CommandStatus = "delivered"
	CommandUndelivered CommandStatus = "undelivered"
	CommandFailed      CommandStatus = "failed"
)
