// SoraFeed - Multi-Display Video Playlist Orchestrator
// Copyright 2026 fourtytwo42
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fourtytwo42/soraFeed-sub001

package models

import (
	"regexp"
	"time"
)

// OfflineAfter is how long a display may go without a heartbeat before it
// is considered offline. Two missed 5s heartbeats.
const OfflineAfter = 10 * time.Second

// displayCodeRe matches the 6-character uppercase alphanumeric display code.
var displayCodeRe = regexp.MustCompile(`^[A-Z0-9]{6}$`)

// ValidDisplayCode reports whether code is a well-formed display code.
func ValidDisplayCode(code string) bool {
	return displayCodeRe.MatchString(code)
}

// Creator is an upstream user identity. Creators are created on first
// sighting and updated in place on every re-sighting.
type Creator struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	ProfileURL    string    `json:"profile_url,omitempty"`
	FollowerCount int       `json:"follower_count"`
	PostCount     int       `json:"post_count"`
	Verified      bool      `json:"verified"`
	FirstSeenAt   time.Time `json:"first_seen_at"`
	LastSeenAt    time.Time `json:"last_seen_at"`
}

// Video is one upstream post. Videos are inserted once and never mutated
// afterwards except for engagement counters, which may refresh on
// re-sighting. Width and height are either both present and positive or
// both zero.
type Video struct {
	ID           string    `json:"id"`
	CreatorID    string    `json:"creator_id"`
	Description  string    `json:"description"`
	PostedAt     int64     `json:"posted_at"` // unix seconds
	Permalink    string    `json:"permalink,omitempty"`
	SourceURL    string    `json:"source_url"`
	MDURL        string    `json:"md_url,omitempty"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
	GifURL       string    `json:"gif_url,omitempty"`
	Width        int       `json:"width,omitempty"`
	Height       int       `json:"height,omitempty"`
	LikeCount    int       `json:"like_count"`
	CommentCount int       `json:"comment_count"`
	IndexedAt    time.Time `json:"indexed_at"`
}

// Format derives the aspect-ratio class from the video's dimensions.
// Missing or non-positive dimensions yield FormatUnknown, which strict
// wide/tall block filters exclude.
func (v *Video) Format() VideoFormat {
	if v.Width <= 0 || v.Height <= 0 {
		return FormatUnknown
	}
	switch {
	case v.Width > v.Height:
		return FormatWide
	case v.Height > v.Width:
		return FormatTall
	default:
		return FormatSquare
	}
}

// Display is a remote playback endpoint identified by a 6-character code.
//
// Coherence invariant: when PlaybackState is idle, CurrentVideoID is nil;
// when playing or paused, CurrentVideoID refers to a queued timeline entry.
type Display struct {
	Code              string        `json:"code"`
	Name              string        `json:"name"`
	PlaybackState     PlaybackState `json:"playback_state"`
	CurrentPlaylistID *string       `json:"current_playlist_id,omitempty"`
	CurrentVideoID    *string       `json:"current_video_id,omitempty"`
	CurrentBlockID    *string       `json:"current_block_id,omitempty"`
	TimelinePosition  int           `json:"timeline_position"`
	LastPingAt        *time.Time    `json:"last_ping_at,omitempty"`
	Muted             bool          `json:"muted"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// IsOnline reports whether the display has pinged within the staleness
// window, evaluated against now.
func (d *Display) IsOnline(now time.Time) bool {
	if d.LastPingAt == nil {
		return false
	}
	return now.Sub(*d.LastPingAt) <= OfflineAfter
}

// Playlist is a named, ordered collection of blocks owned by one display.
// At most one playlist per display has IsActive=true. TotalBlocks and
// TotalVideos are derived from the playlist's blocks at read time.
type Playlist struct {
	ID          string    `json:"id"`
	DisplayCode string    `json:"display_code"`
	Name        string    `json:"name"`
	IsActive    bool      `json:"is_active"`
	TotalBlocks int       `json:"total_blocks"`
	TotalVideos int       `json:"total_videos"`
	LoopCount   int       `json:"loop_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Block is a search specification that expands to a quantity of concrete
// videos. BlockOrder values within a playlist form a dense 0..N-1
// permutation.
type Block struct {
	ID           string      `json:"id"`
	PlaylistID   string      `json:"playlist_id"`
	BlockOrder   int         `json:"block_order"`
	SearchTerm   string      `json:"search_term"`
	VideoCount   int         `json:"video_count"`
	Format       BlockFormat `json:"format"`
	FetchMode    FetchMode   `json:"fetch_mode"`
	TimesPlayed  int         `json:"times_played"`
	LastPlayedAt *time.Time  `json:"last_played_at,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
}

// TimelineEntry binds a video to a display's playlist at a specific
// ordinal. Live (non-skipped) entries of an active playlist keep a dense
// 0..K-1 timeline_position permutation, and no video id repeats across the
// playlist's entries.
type TimelineEntry struct {
	ID               string      `json:"id"`
	DisplayCode      string      `json:"display_code"`
	PlaylistID       string      `json:"playlist_id"`
	BlockID          string      `json:"block_id"`
	VideoID          string      `json:"video_id"`
	TimelinePosition int         `json:"timeline_position"`
	Status           EntryStatus `json:"status"`
	BlockPosition    int         `json:"block_position"`
	LoopIteration    int         `json:"loop_iteration"`
	CreatedAt        time.Time   `json:"created_at"`
}

// VideoHistory is one row of the append-only playback completion log.
// SearchTerm is denormalized from the block so exhaustion arithmetic can
// group by term without joining blocks that may since have been edited.
type VideoHistory struct {
	ID          string    `json:"id"`
	DisplayCode string    `json:"display_code"`
	BlockID     string    `json:"block_id"`
	VideoID     string    `json:"video_id"`
	SearchTerm  string    `json:"search_term"`
	PlayedAt    time.Time `json:"played_at"`
}

// IngestionStats is the single-row snapshot of scanner counters and the
// moving averages over the last six scan cycles.
type IngestionStats struct {
	TotalScanned       int64      `json:"total_scanned"`
	TotalNew           int64      `json:"total_new"`
	TotalDuplicates    int64      `json:"total_duplicates"`
	TotalErrors        int64      `json:"total_errors"`
	CurrentIntervalMS  int64      `json:"current_interval_ms"`
	AvgThroughput      float64    `json:"avg_throughput"`
	AvgUniquePerSecond float64    `json:"avg_unique_per_second"`
	AvgOverlap         float64    `json:"avg_overlap"`
	LastScanAt         *time.Time `json:"last_scan_at,omitempty"`
	LastErrorAt        *time.Time `json:"last_error_at,omitempty"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// ScanCycle summarizes one completed scanner cycle for the rolling window.
type ScanCycle struct {
	Scanned         int           `json:"scanned"`
	New             int           `json:"new"`
	Duplicates      int           `json:"duplicates"`
	Overlap         float64       `json:"overlap"`
	Duration        time.Duration `json:"duration"`
	Interval        time.Duration `json:"interval"`
	Throughput      float64       `json:"throughput"`        // items per second
	UniquePerSecond float64       `json:"unique_per_second"` // new items per second
	CompletedAt     time.Time     `json:"completed_at"`
}

// Command is one imperative command enqueued for a display. Payload is the
// command-specific argument object, e.g. {"muted": true} for setMuted.
type Command struct {
	ID         string                 `json:"id"`
	Code       string                 `json:"code"`
	Type       CommandType            `json:"type"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
	Status     CommandStatus          `json:"status"`
	EnqueuedAt time.Time              `json:"enqueued_at"`
}
