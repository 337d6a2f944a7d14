package embedding

import (
	"context"
	"fmt"

	"corpusd/internal/store"
)

// ApplySpeakerDefaulting coerces a null speaker label to CHAFFEE only when
// the Source was explicitly flagged monologue; otherwise null labels
// default to GUEST.
func ApplySpeakerDefaulting(segments []store.Segment, monologue bool) []store.Segment {
	out := make([]store.Segment, len(segments))
	for i, seg := range segments {
		if seg.SpeakerLabel == "" {
			if monologue {
				seg.SpeakerLabel = store.SpeakerChaffee
			} else {
				seg.SpeakerLabel = store.SpeakerGuest
			}
		}
		out[i] = seg
	}
	return out
}

// Embed applies the embed_target_only policy (default true: only CHAFFEE
// segments receive embeddings) and calls embedder in configured batches,
// attaching vectors back onto the returned segments in place.
func Embed(ctx context.Context, embedder Embedder, segments []store.Segment, batchSize int, embedTargetOnly bool) ([]store.Segment, error) {
	if batchSize <= 0 {
		batchSize = 100
	}

	targets := make([]int, 0, len(segments))
	for i, seg := range segments {
		if embedTargetOnly && seg.SpeakerLabel != store.SpeakerChaffee {
			continue
		}
		targets = append(targets, i)
	}

	out := make([]store.Segment, len(segments))
	copy(out, segments)

	for start := 0; start < len(targets); start += batchSize {
		end := min(start+batchSize, len(targets))
		batchIdx := targets[start:end]

		texts := make([]string, len(batchIdx))
		for i, idx := range batchIdx {
			texts[i] = out[idx].Text
		}

		vectors, err := embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embedding: batch %d-%d: %w", start, end, err)
		}
		if len(vectors) != len(batchIdx) {
			return nil, fmt.Errorf("embedding: expected %d vectors, got %d", len(batchIdx), len(vectors))
		}

		for i, idx := range batchIdx {
			out[idx].Embedding = vectors[i]
		}
	}

	return out, nil
}
