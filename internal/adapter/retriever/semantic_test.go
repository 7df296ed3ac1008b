package retriever

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SAMithila/doc-intelligence/internal/adapter/memstore"
	"github.com/SAMithila/doc-intelligence/internal/domain"
)

func TestSemanticIndex_Score(t *testing.T) {
	s, _ := newTestSemantic(
		chunk("a", "quarterly revenue grew on subscriptions"),
		chunk("b", "cafeteria menu for october"),
	)

	results, err := s.Score(context.Background(), []string{"revenue subscriptions"}, 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "a", results[0].ChunkID)
	assert.Equal(t, domain.SignalSemantic, results[0].Signal)
	for _, r := range results {
		assert.GreaterOrEqual(t, r.Score, 0.0)
		assert.LessOrEqual(t, r.Score, 1.0)
		if r.ChunkID == "b" {
			assert.Less(t, r.Score, 0.5, "no shared terms stays under the expansion threshold")
		}
	}
}

func TestSemanticIndex_KeepsBestAcrossTexts(t *testing.T) {
	s, _ := newTestSemantic(
		chunk("a", "quarterly revenue grew"),
		chunk("b", "cafeteria menu october"),
	)

	single, err := s.Score(context.Background(), []string{"cafeteria menu october"}, 10)
	require.NoError(t, err)
	multi, err := s.Score(context.Background(), []string{"quarterly revenue grew", "cafeteria menu october"}, 10)
	require.NoError(t, err)

	require.Len(t, multi, 2)
	assert.InDelta(t, 1.0, multi[0].Score, 1e-6)
	assert.InDelta(t, 1.0, multi[1].Score, 1e-6)
	assert.ElementsMatch(t, []string{"a", "b"}, candidateIDs(multi))
	assert.Equal(t, "b", single[0].ChunkID)
}

func TestSemanticIndex_Unavailable(t *testing.T) {
	var nilIndex *SemanticIndex
	assert.False(t, nilIndex.Available())

	_, err := NewSemanticIndex(nil, memstore.NewVectorStore()).Score(context.Background(), []string{"q"}, 5)
	assert.ErrorIs(t, err, domain.ErrSignalUnavailable)

	_, err = NewSemanticIndex(failingEmbedder{}, memstore.NewVectorStore()).Score(context.Background(), []string{"q"}, 5)
	assert.ErrorIs(t, err, domain.ErrSignalUnavailable)
	assert.Contains(t, err.Error(), errProviderDown.Error())
}
