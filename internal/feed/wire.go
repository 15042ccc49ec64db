// SoraFeed - Multi-Display Video Playlist Orchestrator
// Copyright 2026 fourtytwo42
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fourtytwo42/soraFeed-sub001

package feed

import (
	"time"

	"github.com/fourtytwo42/soraFeed-sub001/internal/models"
)

// FeedPage is one page of the upstream public feed, newest first. Cursor
// is nil when the feed has no further pages.
type FeedPage struct {
	Items  []FeedItem `json:"items"`
	Cursor *string    `json:"cursor,omitempty"`
}

// FeedItem pairs a post with the profile that published it.
type FeedItem struct {
	Post    FeedPost    `json:"post"`
	Profile FeedProfile `json:"profile"`
}

// FeedPost is the upstream post schema. Only the first attachment is
// meaningful for indexing.
type FeedPost struct {
	ID          string           `json:"id"`
	Text        string           `json:"text"`
	PostedAt    int64            `json:"posted_at"` // unix seconds
	Permalink   string           `json:"permalink"`
	Attachments []FeedAttachment `json:"attachments"`
}

// FeedAttachment is one media attachment with its encoding variants.
type FeedAttachment struct {
	Width     int           `json:"width"`
	Height    int           `json:"height"`
	Encodings FeedEncodings `json:"encodings"`
}

// FeedEncodings holds the rendition set of an attachment.
type FeedEncodings struct {
	Source    FeedEncoding `json:"source"`
	MD        FeedEncoding `json:"md"`
	Thumbnail FeedEncoding `json:"thumbnail"`
	Gif       FeedEncoding `json:"gif"`
}

// FeedEncoding is a single rendition reference.
type FeedEncoding struct {
	Path string `json:"path"`
}

// FeedProfile is the upstream creator schema.
type FeedProfile struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	URL       string `json:"url"`
	Followers int    `json:"followers"`
	Posts     int    `json:"posts"`
	Verified  bool   `json:"verified"`
}

// ToVideo maps a feed item onto an index row. Items without a usable
// first attachment return nil. Dimensions are carried only when both are
// positive so the format derivation never sees a half-known size.
func (it *FeedItem) ToVideo(indexedAt time.Time) *models.Video {
	if len(it.Post.Attachments) == 0 {
		return nil
	}
	att := it.Post.Attachments[0]
	if att.Encodings.Source.Path == "" {
		return nil
	}

	v := &models.Video{
		ID:           it.Post.ID,
		CreatorID:    it.Profile.ID,
		Description:  it.Post.Text,
		PostedAt:     it.Post.PostedAt,
		Permalink:    it.Post.Permalink,
		SourceURL:    att.Encodings.Source.Path,
		MDURL:        att.Encodings.MD.Path,
		ThumbnailURL: att.Encodings.Thumbnail.Path,
		GifURL:       att.Encodings.Gif.Path,
		IndexedAt:    indexedAt,
	}
	if att.Width > 0 && att.Height > 0 {
		v.Width = att.Width
		v.Height = att.Height
	}
	return v
}

// ToCreator maps the item's profile onto a creator row.
func (it *FeedItem) ToCreator(seenAt time.Time) *models.Creator {
	return &models.Creator{
		ID:            it.Profile.ID,
		Username:      it.Profile.Username,
		ProfileURL:    it.Profile.URL,
		FollowerCount: it.Profile.Followers,
		PostCount:     it.Profile.Posts,
		Verified:      it.Profile.Verified,
		FirstSeenAt:   seenAt,
		LastSeenAt:    seenAt,
	}
}
