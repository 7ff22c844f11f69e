// Package recognize matches face embeddings against whitelist prototypes.
package recognize

import "math"

// CosineSimilarity computes the cosine similarity between two vectors,
// clamped to [-1, 1] to absorb floating point error. Invalid input
// (mismatched lengths, empty or zero vectors) yields -1.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return -1
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return -1
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if sim > 1 {
		sim = 1
	}
	if sim < -1 {
		sim = -1
	}
	return sim
}

// CosineDistance computes the cosine distance between two vectors.
// Returns a value between 0 (identical) and 2 (opposite); invalid
// input yields the maximum distance.
func CosineDistance(a, b []float32) float64 {
	return 1 - CosineSimilarity(a, b)
}
