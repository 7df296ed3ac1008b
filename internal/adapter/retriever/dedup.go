package retriever

import "github.com/SAMithila/doc-intelligence/internal/domain"

// DedupFilter drops fused results that are near-copies of a higher-ranked
// result, typically neighbouring chunks sharing an overlap window.
type DedupFilter struct {
	threshold float64
}

// NewDedupFilter returns nil when threshold is 0, which disables filtering.
func NewDedupFilter(threshold float64) *DedupFilter {
	if threshold <= 0 {
		return nil
	}
	return &DedupFilter{threshold: threshold}
}

// Filter walks results in order and keeps each one whose term-set Jaccard
// similarity to every kept result is at most the threshold. It never
// reorders and stops once limit results are kept (limit <= 0 keeps all).
func (f *DedupFilter) Filter(results []domain.FusedResult, terms func(chunkID string) []string, limit int) []domain.FusedResult {
	if f == nil {
		if limit > 0 && len(results) > limit {
			return results[:limit]
		}
		return results
	}

	kept := make([]domain.FusedResult, 0, len(results))
	keptTerms := make([][]string, 0, len(results))

	for _, r := range results {
		if limit > 0 && len(kept) >= limit {
			break
		}
		t := terms(r.ChunkID)

		duplicate := false
		for _, other := range keptTerms {
			if jaccardSimilarity(t, other) > f.threshold {
				duplicate = true
				break
			}
		}
		if duplicate {
			continue
		}
		kept = append(kept, r)
		keptTerms = append(keptTerms, t)
	}
	return kept
}

// jaccardSimilarity computes the Jaccard similarity between two token sets.
// Two empty sets are treated as unrelated.
func jaccardSimilarity(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	setA := make(map[string]struct{}, len(a))
	for _, t := range a {
		setA[t] = struct{}{}
	}

	setB := make(map[string]struct{}, len(b))
	for _, t := range b {
		setB[t] = struct{}{}
	}

	intersection := 0
	for t := range setA {
		if _, exists := setB[t]; exists {
			intersection++
		}
	}

	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}
