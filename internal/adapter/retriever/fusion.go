package retriever

import (
	"fmt"
	"sort"

	"github.com/SAMithila/doc-intelligence/config"
	"github.com/SAMithila/doc-intelligence/internal/domain"
)

const DefaultRRFK = 60

// FusionConfig parameterizes Reciprocal Rank Fusion.
type FusionConfig struct {
	K              int
	WeightLexical  float64
	WeightSemantic float64
}

func DefaultFusionConfig() FusionConfig {
	return FusionConfig{K: DefaultRRFK, WeightLexical: 0.5, WeightSemantic: 0.5}
}

func (c FusionConfig) Validate() error {
	if c.K <= 0 {
		return fmt.Errorf("%w: rrf k must be positive, got %d", domain.ErrBadConfig, c.K)
	}
	return config.ValidateWeights(c.WeightLexical, c.WeightSemantic)
}

// RRF merges a lexical and a semantic ranking.
//
//	fused(c) = wL/(k + rankL(c)) + wS/(k + rankS(c))
//
// A list the chunk is absent from contributes nothing.
type RRF struct {
	cfg FusionConfig
}

func NewRRF(cfg FusionConfig) (*RRF, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &RRF{cfg: cfg}, nil
}

// Fuse returns the union of both lists ordered by fused score descending,
// chunk ID ascending, truncated to topK when topK > 0. Inputs are re-ranked
// by their own scores first, so callers may pass them in any order.
func (f *RRF) Fuse(lexical, semantic []domain.ScoredCandidate, topK int) []domain.FusedResult {
	lexRanks := rankOf(lexical)
	semRanks := rankOf(semantic)

	byID := make(map[string]*domain.FusedResult, len(lexRanks)+len(semRanks))
	for id, rank := range lexRanks {
		byID[id] = &domain.FusedResult{
			ChunkID:     id,
			Score:       f.cfg.WeightLexical / float64(f.cfg.K+rank),
			LexicalRank: rank,
		}
	}
	for id, rank := range semRanks {
		r, ok := byID[id]
		if !ok {
			r = &domain.FusedResult{ChunkID: id}
			byID[id] = r
		}
		r.Score += f.cfg.WeightSemantic / float64(f.cfg.K+rank)
		r.SemanticRank = rank
	}

	fused := make([]domain.FusedResult, 0, len(byID))
	for _, r := range byID {
		fused = append(fused, *r)
	}
	sort.Slice(fused, func(i, j int) bool {
		if fused[i].Score != fused[j].Score {
			return fused[i].Score > fused[j].Score
		}
		return fused[i].ChunkID < fused[j].ChunkID
	})

	if topK > 0 && len(fused) > topK {
		fused = fused[:topK]
	}
	return fused
}

// rankOf assigns 1-based ranks after ordering by score descending and chunk
// ID ascending. A chunk listed twice keeps its better rank.
func rankOf(list []domain.ScoredCandidate) map[string]int {
	sorted := make([]domain.ScoredCandidate, len(list))
	copy(sorted, list)
	sortCandidates(sorted)

	ranks := make(map[string]int, len(sorted))
	rank := 0
	for _, c := range sorted {
		if _, seen := ranks[c.ChunkID]; seen {
			continue
		}
		rank++
		ranks[c.ChunkID] = rank
	}
	return ranks
}
