package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// UpsertSource implements Store. On conflict it refreshes enrichable
// metadata (title, counts, description, ...) but never touches processing
// state, so a re-list of an in-flight or completed source cannot regress its
// status.
func (s *PostgresStore) UpsertSource(ctx context.Context, src Source) (int64, error) {
	metadata := src.Metadata
	if len(metadata) == 0 {
		metadata = json.RawMessage("{}")
	}
	if src.Tags == nil {
		src.Tags = []string{}
	}

	const q = `
		INSERT INTO sources (
			source_type, external_id, title, url, channel_name, channel_url,
			published_at, duration_s, view_count, like_count, comment_count,
			description, thumbnail_url, tags, metadata
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		ON CONFLICT (source_type, external_id) DO UPDATE SET
			title         = EXCLUDED.title,
			url           = EXCLUDED.url,
			channel_name  = EXCLUDED.channel_name,
			channel_url   = EXCLUDED.channel_url,
			published_at  = EXCLUDED.published_at,
			duration_s    = EXCLUDED.duration_s,
			view_count    = EXCLUDED.view_count,
			like_count    = EXCLUDED.like_count,
			comment_count = EXCLUDED.comment_count,
			description   = EXCLUDED.description,
			thumbnail_url = EXCLUDED.thumbnail_url,
			tags          = EXCLUDED.tags,
			metadata      = EXCLUDED.metadata,
			last_updated  = now()
		RETURNING id`

	var id int64
	err := s.pool.QueryRow(ctx, q,
		src.SourceType, src.ExternalID, src.Title, src.URL, src.ChannelName, src.ChannelURL,
		nullableTime(src.PublishedAt), src.DurationS, src.ViewCount, src.LikeCount, src.CommentCount,
		src.Description, src.ThumbnailURL, src.Tags, metadata,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("store: upsert source %s: %w", src.ExternalID, err)
	}
	return id, nil
}

// GetSource implements Store.
func (s *PostgresStore) GetSource(ctx context.Context, externalID string) (Source, error) {
	const q = `
		SELECT id, source_type, external_id, title, url, channel_name, channel_url,
		       published_at, duration_s, view_count, like_count, comment_count,
		       description, thumbnail_url, tags, metadata, status, retry_count,
		       last_error, has_manual_captions, has_asr, segment_count, embedded_count,
		       created_at, last_updated, processed_at
		FROM sources WHERE external_id = $1`

	row := s.pool.QueryRow(ctx, q, externalID)
	src, err := scanSource(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Source{}, ErrNotFound
		}
		return Source{}, fmt.Errorf("store: get source %s: %w", externalID, err)
	}
	return src, nil
}

// Claim implements Store using an atomic conditional UPDATE so two workers
// racing on the same queue table can never both win the claim.
func (s *PostgresStore) Claim(ctx context.Context, externalID string, expected, processing Status) (Source, error) {
	const q = `
		UPDATE sources SET status = $1, last_updated = now()
		WHERE external_id = $2 AND status = $3
		RETURNING id, source_type, external_id, title, url, channel_name, channel_url,
		          published_at, duration_s, view_count, like_count, comment_count,
		          description, thumbnail_url, tags, metadata, status, retry_count,
		          last_error, has_manual_captions, has_asr, segment_count, embedded_count,
		          created_at, last_updated, processed_at`

	row := s.pool.QueryRow(ctx, q, processing, externalID, expected)
	src, err := scanSource(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Source{}, ErrAlreadyClaimed
		}
		return Source{}, fmt.Errorf("store: claim %s: %w", externalID, err)
	}
	return src, nil
}

// UpdateStatus implements Store, building a single UPDATE with only the
// fields the caller supplied.
func (s *PostgresStore) UpdateStatus(ctx context.Context, externalID string, status Status, fields StatusUpdate) error {
	set := []string{"status = $1", "last_updated = now()"}
	args := []any{status}
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if fields.RetryCount != nil {
		set = append(set, "retry_count = "+next(*fields.RetryCount))
	}
	if fields.LastError != nil {
		set = append(set, "last_error = "+next(*fields.LastError))
	}
	if fields.HasManualCaptions != nil {
		set = append(set, "has_manual_captions = "+next(*fields.HasManualCaptions))
	}
	if fields.HasASR != nil {
		set = append(set, "has_asr = "+next(*fields.HasASR))
	}
	if fields.SegmentCount != nil {
		set = append(set, "segment_count = "+next(*fields.SegmentCount))
	}
	if fields.EmbeddedCount != nil {
		set = append(set, "embedded_count = "+next(*fields.EmbeddedCount))
	}
	if fields.ProcessedAt != nil {
		set = append(set, "processed_at = "+next(*fields.ProcessedAt))
	}

	args = append(args, externalID)
	q := fmt.Sprintf(`UPDATE sources SET %s WHERE external_id = $%d`, joinSet(set), len(args))

	tag, err := s.pool.Exec(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("store: update status %s: %w", externalID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// BatchCheckExists implements Store.
func (s *PostgresStore) BatchCheckExists(ctx context.Context, externalIDs []string) (map[string]Status, error) {
	result := make(map[string]Status, len(externalIDs))
	if len(externalIDs) == 0 {
		return result, nil
	}

	rows, err := s.pool.Query(ctx, `SELECT external_id, status FROM sources WHERE external_id = ANY($1)`, externalIDs)
	if err != nil {
		return nil, fmt.Errorf("store: batch check exists: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var status Status
		if err := rows.Scan(&id, &status); err != nil {
			return nil, fmt.Errorf("store: scan batch check exists: %w", err)
		}
		result[id] = status
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: batch check exists rows: %w", err)
	}
	return result, nil
}

// Stats implements Store.
func (s *PostgresStore) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, count(*) FROM sources GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("store: stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("store: scan stats: %w", err)
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

func joinSet(set []string) string {
	out := set[0]
	for _, s := range set[1:] {
		out += ", " + s
	}
	return out
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSource(row rowScanner) (Source, error) {
	var src Source
	var publishedAt, processedAt *time.Time
	var metadata []byte
	err := row.Scan(
		&src.ID, &src.SourceType, &src.ExternalID, &src.Title, &src.URL, &src.ChannelName, &src.ChannelURL,
		&publishedAt, &src.DurationS, &src.ViewCount, &src.LikeCount, &src.CommentCount,
		&src.Description, &src.ThumbnailURL, &src.Tags, &metadata, &src.Status, &src.RetryCount,
		&src.LastError, &src.HasManualCaptions, &src.HasASR, &src.SegmentCount, &src.EmbeddedCount,
		&src.CreatedAt, &src.LastUpdated, &processedAt,
	)
	if err != nil {
		return Source{}, err
	}
	if publishedAt != nil {
		src.PublishedAt = *publishedAt
	}
	src.ProcessedAt = processedAt
	src.Metadata = metadata
	return src, nil
}
