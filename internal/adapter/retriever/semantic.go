package retriever

import (
	"context"
	"errors"
	"fmt"

	"github.com/SAMithila/doc-intelligence/internal/domain"
	"github.com/SAMithila/doc-intelligence/internal/port"
)

var errSemanticNotConfigured = errors.New("semantic index not configured")

// SemanticIndex scores chunks by embedding similarity through an external
// embedder and vector store.
type SemanticIndex struct {
	component
	embedder port.Embedder
	store    port.VectorStore
}

func NewSemanticIndex(embedder port.Embedder, store port.VectorStore, opts ...Option) *SemanticIndex {
	return &SemanticIndex{
		component: newComponent("semantic", opts),
		embedder:  embedder,
		store:     store,
	}
}

// Available reports whether both collaborators are configured.
func (s *SemanticIndex) Available() bool {
	return s != nil && s.embedder != nil && s.store != nil
}

// Score embeds each text and returns the k most similar chunks. With more
// than one text a chunk keeps its best similarity across them. Similarity is
// cosine similarity, 1 - distance, so unrelated texts score near 0 and the
// expansion score threshold applies to it directly. Every failure wraps
// domain.ErrSignalUnavailable.
func (s *SemanticIndex) Score(ctx context.Context, texts []string, k int) ([]domain.ScoredCandidate, error) {
	if !s.Available() {
		return nil, fmt.Errorf("%w: %v", domain.ErrSignalUnavailable, errSemanticNotConfigured)
	}
	if len(texts) == 0 {
		return nil, nil
	}

	vectors, err := s.embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %v", domain.ErrSignalUnavailable, err)
	}

	best := make(map[string]float64)
	for _, vec := range vectors {
		neighbors, err := s.store.Nearest(ctx, vec, k)
		if err != nil {
			return nil, fmt.Errorf("%w: vector search: %v", domain.ErrSignalUnavailable, err)
		}
		for _, n := range neighbors {
			sim := 1 - n.Distance
			if cur, ok := best[n.ID]; !ok || sim > cur {
				best[n.ID] = sim
			}
		}
	}

	results := make([]domain.ScoredCandidate, 0, len(best))
	for id, sim := range best {
		results = append(results, domain.ScoredCandidate{ChunkID: id, Score: sim, Signal: domain.SignalSemantic})
	}
	sortCandidates(results)

	if k > 0 && len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (s *SemanticIndex) embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 1 {
		vec, err := s.embedder.EmbedQuery(ctx, texts[0])
		if err != nil {
			return nil, err
		}
		return [][]float32{vec}, nil
	}

	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(texts))
	}
	return vectors, nil
}
