// SoraFeed - Multi-Display Video Playlist Orchestrator
// Copyright 2026 fourtytwo42
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fourtytwo42/soraFeed-sub001

package models

import "time"

// APIResponse is the envelope returned by every JSON endpoint.
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata carries response observability fields.
type Metadata struct {
	Timestamp   time.Time `json:"timestamp"`
	QueryTimeMS int64     `json:"query_time_ms,omitempty"`
}

// APIError is the structured error payload of a failed response.
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// CreateDisplayRequest creates a new display.
type CreateDisplayRequest struct {
	Name string `json:"name" validate:"required,min=1,max=128"`
	Code string `json:"code" validate:"required,display_code"`
}

// CommandRequest enqueues a command for a display.
type CommandRequest struct {
	Type    CommandType            `json:"type" validate:"required,command_type"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// BlockInput is one block row of a playlist import or create request.
type BlockInput struct {
	SearchTerm string      `json:"search_term" validate:"max=512"`
	VideoCount int         `json:"video_count" validate:"required,min=1,max=1000"`
	Format     BlockFormat `json:"format" validate:"required,block_format"`
	FetchMode  FetchMode   `json:"fetch_mode,omitempty" validate:"omitempty,fetch_mode"`
}

// ImportPlaylistRequest replaces or creates a display's playlist. Either
// Blocks or CSV must be supplied.
type ImportPlaylistRequest struct {
	DisplayID    string       `json:"displayId" validate:"required,display_code"`
	PlaylistName string       `json:"playlistName" validate:"required,min=1,max=128"`
	Blocks       []BlockInput `json:"blocks,omitempty" validate:"omitempty,dive"`
	CSV          string       `json:"csv,omitempty"`
}

// BlockOrderInput is one (block, order) pair of a reorder request.
type BlockOrderInput struct {
	BlockID string `json:"blockId" validate:"required,uuid"`
	Order   int    `json:"order" validate:"min=0"`
}

// ReorderBlocksRequest atomically reorders a playlist's blocks.
type ReorderBlocksRequest struct {
	PlaylistID  string            `json:"playlistId" validate:"required,uuid"`
	BlockOrders []BlockOrderInput `json:"blockOrders" validate:"required,min=1,dive"`
}

// UpdateBlockRequest edits a block. Nil fields are left unchanged.
// SearchTerm, VideoCount and Format are rejected while the owning display
// is not idle.
type UpdateBlockRequest struct {
	SearchTerm *string      `json:"search_term,omitempty" validate:"omitempty,max=512"`
	VideoCount *int         `json:"video_count,omitempty" validate:"omitempty,min=1,max=1000"`
	Format     *BlockFormat `json:"format,omitempty" validate:"omitempty,block_format"`
	FetchMode  *FetchMode   `json:"fetch_mode,omitempty" validate:"omitempty,fetch_mode"`
}

// DisplayResponse is a display plus its derived liveness.
type DisplayResponse struct {
	Display
	IsOnline bool `json:"is_online"`
}

// BlockProgress describes the display's position inside the current block.
type BlockProgress struct {
	BlockID      string  `json:"block_id"`
	Name         string  `json:"name"` // search term, the block's display name
	CurrentVideo int     `json:"current_video"`
	TotalVideos  int     `json:"total_videos"`
	Progress     float64 `json:"progress"` // percent, 0..100
}

// OverallProgress describes the display's position inside the playlist loop.
type OverallProgress struct {
	CurrentPosition    int `json:"current_position"`
	TotalInCurrentLoop int `json:"total_in_current_loop"`
	LoopCount          int `json:"loop_count"`
}

// ProgressInfo is the progress section of a timeline response.
type ProgressInfo struct {
	CurrentBlock *BlockProgress  `json:"current_block,omitempty"`
	Overall      OverallProgress `json:"overall"`
}

// QueuedVideo is one upcoming timeline slot with its resolved video.
type QueuedVideo struct {
	EntryID          string      `json:"entry_id"`
	TimelinePosition int         `json:"timeline_position"`
	BlockID          string      `json:"block_id"`
	Video            *Video      `json:"video,omitempty"`
	Status           EntryStatus `json:"status"`
}

// TimelineResponse is the GET /timeline/{code} payload.
type TimelineResponse struct {
	Progress     ProgressInfo  `json:"progress"`
	QueuedVideos []QueuedVideo `json:"queued_videos"`
}

// PlaylistResponse is a playlist with its blocks.
type PlaylistResponse struct {
	Playlist
	Blocks []Block `json:"blocks"`
}
