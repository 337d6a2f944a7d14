package voiceprofile

import "gonum.org/v1/gonum/floats"

// CosineSimilarity returns the cosine similarity of a and b in [-1, 1]. It
// returns 0 for mismatched lengths or a zero vector, mirroring the
// degenerate cases a caller should treat as "no signal" rather than panic.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	da := toFloat64(a)
	db := toFloat64(b)

	normA := floats.Norm(da, 2)
	normB := floats.Norm(db, 2)
	if normA == 0 || normB == 0 {
		return 0
	}

	return floats.Dot(da, db) / (normA * normB)
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
