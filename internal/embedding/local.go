package embedding

import "context"

// LocalEmbedder is an in-process Embedder whose vectors come from Fn, one
// text at a time. The corpusd command never selects it: a run always uses
// the OpenAI embedder, and a missing embedding API key fails validation.
type LocalEmbedder struct {
	Dim int
	Fn  func(text string) []float32
}

// NewLocalEmbedder constructs a LocalEmbedder of the given dimension.
func NewLocalEmbedder(dim int, fn func(text string) []float32) *LocalEmbedder {
	return &LocalEmbedder{Dim: dim, Fn: fn}
}

// EmbedBatch implements Embedder.
func (e *LocalEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.Fn(t)
	}
	return out, nil
}

// Dimensions implements Embedder.
func (e *LocalEmbedder) Dimensions() int { return e.Dim }
