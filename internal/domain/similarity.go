package domain

import "math"

// Similarity scores are cosine similarity mapped from [-1,1] into [0,1] with
// (cos+1)/2. Thresholds are always compared against the mapped value.

// CosineSimilarity returns the mapped similarity of two vectors. Vectors of
// different length or with zero norm score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	cos := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return clampUnit((cos + 1) / 2)
}

// ZeroNorm reports whether v has no direction. Such vectors have no defined
// similarity to anything and never match a search.
func ZeroNorm(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// SimilarityFromDistance converts a pgvector cosine distance (1 - cos) into
// the mapped similarity.
func SimilarityFromDistance(distance float64) float64 {
	return clampUnit(1 - distance/2)
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
