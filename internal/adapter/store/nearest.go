package store

import (
	"math"
	"sort"

	"github.com/SAMithila/doc-intelligence/internal/port"
)

// Nearest ranks vectors by cosine distance to query, ascending, ties broken
// by ID, and returns at most k of them (k <= 0 returns all).
func Nearest(query []float32, vectors map[string][]float32, k int) []port.Neighbor {
	if len(vectors) == 0 {
		return nil
	}

	results := make([]port.Neighbor, 0, len(vectors))
	for id, vec := range vectors {
		results = append(results, port.Neighbor{ID: id, Distance: CosineDistance(query, vec)})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].ID < results[j].ID
	})

	if k > 0 && k < len(results) {
		results = results[:k]
	}
	return results
}

// CosineDistance is 1 - cosine similarity, in [0, 2]. Mismatched or zero
// vectors are at distance 1.
func CosineDistance(a, b []float32) float64 {
	return 1 - cosineSimilarity(a, b)
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
