package asr

import (
	"context"

	"corpusd/internal/store"
)

// QualityThresholds are the triggers that flag a segment for a refinement
// pass: a logprob below AvgLogprob, a compression ratio above Compression,
// or a no-speech probability above NoSpeech.
type QualityThresholds struct {
	AvgLogprob  float64
	Compression float64
	NoSpeech    float64
}

// NeedsRefinement reports whether a segment's quality metrics cross any
// configured threshold.
func (t QualityThresholds) NeedsRefinement(seg store.Segment) bool {
	return seg.AvgLogprob < t.AvgLogprob ||
		seg.CompressionRatio > t.Compression ||
		seg.NoSpeechProb > t.NoSpeech
}

// Options configures a single transcription call.
type Options struct {
	Language string
}

// Recognizer transcribes audio into raw segments. Implementations must be
// deterministic at temperature 0 and must not discard empty-text segments;
// callers filter those out downstream.
type Recognizer interface {
	Transcribe(ctx context.Context, audioPath string, opts Options) ([]store.Segment, error)
}
