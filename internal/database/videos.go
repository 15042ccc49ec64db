// SoraFeed - Multi-Display Video Playlist Orchestrator
// Copyright 2026 fourtytwo42
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fourtytwo42/soraFeed-sub001

package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/fourtytwo42/soraFeed-sub001/internal/apperr"
	"github.com/fourtytwo42/soraFeed-sub001/internal/metrics"
	"github.com/fourtytwo42/soraFeed-sub001/internal/models"
)

// SearchSpec describes one candidate query against the content index.
type SearchSpec struct {
	// Term is the raw search term. Whitespace-separated tokens match
	// case-insensitively against the description; tokens prefixed with
	// '-' exclude matching videos. An empty term matches everything.
	Term string

	// Format filters by aspect ratio. Wide and tall are strict: videos
	// with missing dimensions never match them.
	Format models.BlockFormat

	// Mode orders candidates: newest by posted_at descending, random by
	// a seed-keyed hash so one call yields a stable shuffle.
	Mode models.FetchMode

	// Seed keys the random ordering. Ignored for newest.
	Seed string

	// ExcludeIDs removes specific videos from the result.
	ExcludeIDs []string

	Limit int
}

// splitSearchTerm splits a raw term into positive and negative tokens.
func splitSearchTerm(term string) (positive, negative []string) {
	for _, tok := range strings.Fields(term) {
		if strings.HasPrefix(tok, "-") && len(tok) > 1 {
			negative = append(negative, strings.ToLower(tok[1:]))
		} else if !strings.HasPrefix(tok, "-") {
			positive = append(positive, strings.ToLower(tok))
		}
	}
	return positive, negative
}

// buildSearchQuery renders spec into SQL and its arguments.
func buildSearchQuery(spec SearchSpec) (string, []interface{}) {
	var sb strings.Builder
	var args []interface{}

	sb.WriteString(`SELECT id, creator_id, description, posted_at, permalink, source_url, md_url, thumbnail_url, gif_url, width, height, like_count, comment_count, indexed_at FROM videos WHERE 1=1`)

	positive, negative := splitSearchTerm(spec.Term)
	for _, tok := range positive {
		sb.WriteString(` AND contains(lower(description), ?)`)
		args = append(args, tok)
	}
	for _, tok := range negative {
		sb.WriteString(` AND NOT contains(lower(description), ?)`)
		args = append(args, tok)
	}

	switch spec.Format {
	case models.BlockFormatWide:
		sb.WriteString(` AND width > 0 AND height > 0 AND width > height`)
	case models.BlockFormatTall:
		sb.WriteString(` AND width > 0 AND height > 0 AND height > width`)
	}

	if len(spec.ExcludeIDs) > 0 {
		sb.WriteString(` AND id NOT IN (`)
		for i, id := range spec.ExcludeIDs {
			if i > 0 {
				sb.WriteString(`,`)
			}
			sb.WriteString(`?`)
			args = append(args, id)
		}
		sb.WriteString(`)`)
	}

	if spec.Mode == models.FetchRandom {
		sb.WriteString(` ORDER BY hash(id || ?)`)
		args = append(args, spec.Seed)
	} else {
		sb.WriteString(` ORDER BY posted_at DESC, id`)
	}

	if spec.Limit > 0 {
		sb.WriteString(` LIMIT ?`)
		args = append(args, spec.Limit)
	}

	return sb.String(), args
}

// SearchVideos returns candidate videos for a block's search
// specification.
func (db *DB) SearchVideos(ctx context.Context, spec SearchSpec) ([]models.Video, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query, args := buildSearchQuery(spec)

	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, query, args...)
	metrics.RecordDBQuery("SELECT", "videos", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to search videos: %w", err)
	}
	defer rows.Close()

	return scanVideos(rows)
}

// CountByTerm returns how many indexed videos satisfy a search term and
// format filter.
func (db *DB) CountByTerm(ctx context.Context, term string, format models.BlockFormat) (int, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var sb strings.Builder
	var args []interface{}
	sb.WriteString(`SELECT COUNT(*) FROM videos WHERE 1=1`)

	positive, negative := splitSearchTerm(term)
	for _, tok := range positive {
		sb.WriteString(` AND contains(lower(description), ?)`)
		args = append(args, tok)
	}
	for _, tok := range negative {
		sb.WriteString(` AND NOT contains(lower(description), ?)`)
		args = append(args, tok)
	}
	switch format {
	case models.BlockFormatWide:
		sb.WriteString(` AND width > 0 AND height > 0 AND width > height`)
	case models.BlockFormatTall:
		sb.WriteString(` AND width > 0 AND height > 0 AND height > width`)
	}

	var count int
	if err := db.conn.QueryRowContext(ctx, sb.String(), args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count videos by term: %w", err)
	}
	return count, nil
}

// InsertVideosBatch inserts a scanned batch, counting how many were new
// versus already indexed. Duplicates are detected via the primary key and
// skipped; engagement counters of existing rows are refreshed.
func (db *DB) InsertVideosBatch(ctx context.Context, videos []*models.Video) (inserted, duplicates int, err error) {
	if len(videos) == 0 {
		return 0, 0, nil
	}

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	insertQuery := `INSERT INTO videos (id, creator_id, description, posted_at, permalink, source_url, md_url, thumbnail_url, gif_url, width, height, like_count, comment_count, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`
	refreshQuery := `UPDATE videos SET like_count = ?, comment_count = ? WHERE id = ?`

	start := time.Now()
	for _, v := range videos {
		if v.IndexedAt.IsZero() {
			v.IndexedAt = time.Now().UTC()
		}
		res, execErr := tx.ExecContext(ctx, insertQuery,
			v.ID, v.CreatorID, v.Description, v.PostedAt, v.Permalink,
			v.SourceURL, v.MDURL, v.ThumbnailURL, v.GifURL,
			v.Width, v.Height, v.LikeCount, v.CommentCount, v.IndexedAt,
		)
		if execErr != nil {
			err = fmt.Errorf("failed to insert video %s: %w", v.ID, execErr)
			return 0, 0, err
		}
		affected, raErr := res.RowsAffected()
		if raErr != nil {
			err = fmt.Errorf("failed to read rows affected: %w", raErr)
			return 0, 0, err
		}
		if affected == 0 {
			duplicates++
			if _, execErr := tx.ExecContext(ctx, refreshQuery, v.LikeCount, v.CommentCount, v.ID); execErr != nil {
				err = fmt.Errorf("failed to refresh video %s: %w", v.ID, execErr)
				return 0, 0, err
			}
		} else {
			inserted++
		}
	}
	metrics.RecordDBQuery("INSERT", "videos", time.Since(start), nil)

	if err = tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("failed to commit video batch: %w", err)
	}
	return inserted, duplicates, nil
}

// GetVideo returns the video with the given id.
func (db *DB) GetVideo(ctx context.Context, id string) (*models.Video, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `SELECT id, creator_id, description, posted_at, permalink, source_url, md_url, thumbnail_url, gif_url, width, height, like_count, comment_count, indexed_at
		FROM videos WHERE id = ?`

	rows, err := db.conn.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get video %s: %w", id, err)
	}
	defer rows.Close()

	videos, err := scanVideos(rows)
	if err != nil {
		return nil, err
	}
	if len(videos) == 0 {
		return nil, apperr.Newf(apperr.KindNotFound, "database.GetVideo", "video %s not found", id)
	}
	return &videos[0], nil
}

// GetVideosByIDs returns the videos with the given ids, keyed by id.
// Missing ids are silently absent from the result.
func (db *DB) GetVideosByIDs(ctx context.Context, ids []string) (map[string]*models.Video, error) {
	if len(ids) == 0 {
		return map[string]*models.Video{}, nil
	}

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var sb strings.Builder
	sb.WriteString(`SELECT id, creator_id, description, posted_at, permalink, source_url, md_url, thumbnail_url, gif_url, width, height, like_count, comment_count, indexed_at FROM videos WHERE id IN (`)
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		if i > 0 {
			sb.WriteString(`,`)
		}
		sb.WriteString(`?`)
		args[i] = id
	}
	sb.WriteString(`)`)

	rows, err := db.conn.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get videos by ids: %w", err)
	}
	defer rows.Close()

	videos, err := scanVideos(rows)
	if err != nil {
		return nil, err
	}
	result := make(map[string]*models.Video, len(videos))
	for i := range videos {
		result[videos[i].ID] = &videos[i]
	}
	return result, nil
}

// LatestVideos returns the most recently posted videos.
func (db *DB) LatestVideos(ctx context.Context, limit int) ([]models.Video, error) {
	return db.SearchVideos(ctx, SearchSpec{Mode: models.FetchNewest, Limit: limit})
}

// LatestVideosPage returns one page of the newest-first feed. The offset
// is measured from the newest video.
func (db *DB) LatestVideosPage(ctx context.Context, limit, offset int) ([]models.Video, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `SELECT id, creator_id, description, posted_at, permalink, source_url, md_url, thumbnail_url, gif_url, width, height, like_count, comment_count, indexed_at FROM videos ORDER BY posted_at DESC, id LIMIT ? OFFSET ?`

	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, query, limit, offset)
	metrics.RecordDBQuery("SELECT", "videos", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to page latest videos: %w", err)
	}
	defer rows.Close()

	return scanVideos(rows)
}

// FuzzyVideos ranks videos by edit distance between the query and the
// description, filling in near-miss matches the substring search skips.
func (db *DB) FuzzyVideos(ctx context.Context, q string, limit int, excludeIDs []string) ([]models.Video, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var sb strings.Builder
	var args []interface{}
	sb.WriteString(`SELECT id, creator_id, description, posted_at, permalink, source_url, md_url, thumbnail_url, gif_url, width, height, like_count, comment_count, indexed_at FROM videos WHERE 1=1`)
	if len(excludeIDs) > 0 {
		sb.WriteString(` AND id NOT IN (`)
		for i, id := range excludeIDs {
			if i > 0 {
				sb.WriteString(`,`)
			}
			sb.WriteString(`?`)
			args = append(args, id)
		}
		sb.WriteString(`)`)
	}
	// Compare against a description prefix so one long caption does not
	// dominate the distance.
	sb.WriteString(` ORDER BY levenshtein(lower(substr(description, 1, 64)), lower(?)), posted_at DESC LIMIT ?`)
	args = append(args, q, limit)

	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, sb.String(), args...)
	metrics.RecordDBQuery("SELECT", "videos", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to fuzzy search videos: %w", err)
	}
	defer rows.Close()

	return scanVideos(rows)
}

// CountVideos returns the total number of indexed videos.
func (db *DB) CountVideos(ctx context.Context) (int64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var count int64
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM videos`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count videos: %w", err)
	}
	return count, nil
}

// scanVideos reads video rows into a slice.
func scanVideos(rows *sql.Rows) ([]models.Video, error) {
	var videos []models.Video
	for rows.Next() {
		var v models.Video
		var permalink, mdURL, thumbURL, gifURL sql.NullString
		if err := rows.Scan(
			&v.ID, &v.CreatorID, &v.Description, &v.PostedAt, &permalink,
			&v.SourceURL, &mdURL, &thumbURL, &gifURL,
			&v.Width, &v.Height, &v.LikeCount, &v.CommentCount, &v.IndexedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan video row: %w", err)
		}
		v.Permalink = permalink.String
		v.MDURL = mdURL.String
		v.ThumbnailURL = thumbURL.String
		v.GifURL = gifURL.String
		videos = append(videos, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("video row iteration failed: %w", err)
	}
	return videos, nil
}
