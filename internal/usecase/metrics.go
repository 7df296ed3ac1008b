package usecase

import "math"

// PrecisionAtK is the share of retrieved items that are relevant.
func PrecisionAtK(retrieved, relevant []string) float64 {
	if len(retrieved) == 0 {
		return 0
	}
	relevantSet := toSet(relevant)
	hits := 0
	for _, r := range retrieved {
		if relevantSet[r] {
			hits++
		}
	}
	return float64(hits) / float64(len(retrieved))
}

// RecallAtK is the share of relevant items that were retrieved.
func RecallAtK(retrieved, relevant []string) float64 {
	if len(relevant) == 0 {
		return 0
	}
	relevantSet := toSet(relevant)
	hits := 0
	for _, r := range retrieved {
		if relevantSet[r] {
			hits++
			delete(relevantSet, r)
		}
	}
	return float64(hits) / float64(len(relevant))
}

// ReciprocalRank is 1/rank of the first relevant item, 0 if none was retrieved.
func ReciprocalRank(retrieved, relevant []string) float64 {
	relevantSet := toSet(relevant)
	for i, r := range retrieved {
		if relevantSet[r] {
			return 1.0 / float64(i+1)
		}
	}
	return 0
}

// NDCGAtK uses binary gains; the ideal ranking puts min(k, |relevant|)
// relevant items first.
func NDCGAtK(retrieved, relevant []string, k int) float64 {
	if k <= 0 || len(relevant) == 0 {
		return 0
	}
	if len(retrieved) > k {
		retrieved = retrieved[:k]
	}

	relevantSet := toSet(relevant)
	scores := make([]float64, len(retrieved))
	for i, r := range retrieved {
		if relevantSet[r] {
			scores[i] = 1
		}
	}
	ideal := make([]float64, min(k, len(relevantSet)))
	for i := range ideal {
		ideal[i] = 1
	}
	return NDCG(scores, ideal)
}

func NDCG(scores, ideal []float64) float64 {
	dcg := calculateDCG(scores)
	idcg := calculateDCG(ideal)
	if idcg == 0 {
		return 0
	}
	return dcg / idcg
}

func calculateDCG(scores []float64) float64 {
	dcg := 0.0
	for i, score := range scores {
		dcg += score / math.Log2(float64(i+2))
	}
	return dcg
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, it := range items {
		set[it] = true
	}
	return set
}
