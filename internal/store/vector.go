package store

import (
	"math"
	"sort"
)

// cosineSimilarity returns the cosine of the angle between a and b, or 0
// when either vector is degenerate or the dimensions differ.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// rankChunks scores candidates against the query and returns the top k.
func rankChunks(candidates []Chunk, query []float32, k int) []ChunkMatch {
	matches := make([]ChunkMatch, 0, len(candidates))
	for _, c := range candidates {
		matches = append(matches, ChunkMatch{
			Chunk:      c,
			Similarity: cosineSimilarity(c.Vector, query),
		})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches
}
