package embedding

import "context"

// Embedder converts text batches into fixed-dimension vectors. Dimension is
// a deployment constant fixed by the provider, not negotiated per call.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}
