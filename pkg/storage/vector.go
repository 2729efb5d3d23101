package storage

import (
	"math"
	"sort"
)

// CosineSimilarity computes the cosine similarity between two vectors.
// Mismatched lengths and zero vectors score 0.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// SortScored orders results by score descending with created_at descending as
// tiebreak, then truncates to limit (when limit > 0). Backends without native
// vector search share this after an in-memory scan.
func SortScored(results []*ScoredMemory, limit int) []*ScoredMemory {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Memory.CreatedAt.After(results[j].Memory.CreatedAt)
	})

	if limit > 0 && len(results) > limit {
		return results[:limit]
	}
	return results
}
