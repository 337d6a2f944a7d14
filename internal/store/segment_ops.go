package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	pgvector "github.com/pgvector/pgvector-go"
)

// TextHash computes the natural-key hash component for a segment's
// trimmed text, shared by PostgresStore's text_hash column and MemoryStore's
// natural key so both stores agree on what counts as a duplicate.
func TextHash(text string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(text)))
	return hex.EncodeToString(sum[:])
}

// ReplaceSegments implements Store. It deletes the source's prior segments
// and bulk-inserts the new set inside one transaction: the idempotence
// anchor that lets a crash-and-resume or a forced reprocess rewrite a
// source's segments without any deduplication logic elsewhere. A natural-key
// conflict aborts the whole transaction rather than silently dropping rows.
func (s *PostgresStore) ReplaceSegments(ctx context.Context, externalID string, segments []Segment) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: replace segments: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var sourceID int64
	err = tx.QueryRow(ctx, `SELECT id FROM sources WHERE external_id = $1`, externalID).Scan(&sourceID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return ErrNotFound
		}
		return fmt.Errorf("store: replace segments: lookup source %s: %w", externalID, err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM segments WHERE source_id = $1`, sourceID); err != nil {
		return fmt.Errorf("store: replace segments: delete prior: %w", err)
	}

	if len(segments) > 0 {
		if err := insertSegments(ctx, tx, sourceID, externalID, segments); err != nil {
			return fmt.Errorf("store: replace segments: insert: %w", err)
		}
	}

	if _, err := tx.Exec(ctx,
		`UPDATE sources SET segment_count = $1, embedded_count = $2, last_updated = now() WHERE id = $3`,
		len(segments), countEmbedded(segments), sourceID,
	); err != nil {
		return fmt.Errorf("store: replace segments: update counters: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("store: replace segments: commit: %w", err)
	}
	return nil
}

const segmentColumns = `source_id, external_id, start_sec, end_sec, text, text_hash,
	speaker_label, speaker_confidence, avg_logprob, compression_ratio,
	no_speech_prob, temperature_used, re_asr, is_overlap, needs_refinement,
	embedding, metadata`

const segmentColumnCount = 17

// insertSegments bulk-inserts a source's segments with a single multi-row
// INSERT statement so a per-row natural-key conflict aborts the whole batch
// rather than leaving a partial set behind.
func insertSegments(ctx context.Context, tx pgx.Tx, sourceID int64, externalID string, segments []Segment) error {
	args := make([]any, 0, len(segments)*segmentColumnCount)
	placeholders := make([]string, 0, len(segments))

	for _, seg := range segments {
		metadata := seg.Metadata
		if len(metadata) == 0 {
			metadata = json.RawMessage("{}")
		}
		var embedding any
		if len(seg.Embedding) > 0 {
			v := pgvector.NewVector(seg.Embedding)
			embedding = &v
		}

		base := len(args)
		args = append(args,
			sourceID, externalID, seg.StartSec, seg.EndSec, seg.Text, TextHash(seg.Text),
			seg.SpeakerLabel, seg.SpeakerConfidence, seg.AvgLogprob, seg.CompressionRatio,
			seg.NoSpeechProb, seg.TemperatureUsed, seg.ReASR, seg.IsOverlap, seg.NeedsRefinement,
			embedding, metadata,
		)
		placeholders = append(placeholders, rowPlaceholder(base, segmentColumnCount))
	}

	stmt := fmt.Sprintf(`INSERT INTO segments (%s) VALUES %s`, segmentColumns, strings.Join(placeholders, ", "))
	_, err := tx.Exec(ctx, stmt, args...)
	return err
}

func rowPlaceholder(base, count int) string {
	parts := make([]string, count)
	for i := range parts {
		parts[i] = fmt.Sprintf("$%d", base+i+1)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func countEmbedded(segments []Segment) int {
	n := 0
	for _, seg := range segments {
		if len(seg.Embedding) > 0 {
			n++
		}
	}
	return n
}
