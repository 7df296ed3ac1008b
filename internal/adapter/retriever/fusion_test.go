package retriever

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SAMithila/doc-intelligence/internal/domain"
)

func newTestRRF(t *testing.T) *RRF {
	t.Helper()
	f, err := NewRRF(DefaultFusionConfig())
	require.NoError(t, err)
	return f
}

func TestRRF_Formula(t *testing.T) {
	f := newTestRRF(t)

	fused := f.Fuse(
		candidates(domain.SignalLexical, "a", "b"),
		candidates(domain.SignalSemantic, "b", "c"),
		0,
	)

	byID := map[string]domain.FusedResult{}
	for _, r := range fused {
		byID[r.ChunkID] = r
	}
	assert.InDelta(t, 0.5/61, byID["a"].Score, 1e-12)
	assert.InDelta(t, 0.5/62+0.5/61, byID["b"].Score, 1e-12)
	assert.InDelta(t, 0.5/62, byID["c"].Score, 1e-12)

	assert.Equal(t, []string{"b", "a", "c"}, fusedIDs(fused))
	assert.Equal(t, domain.Sources{Lexical: true, Semantic: true}, byID["b"].Sources())
	assert.Equal(t, domain.Sources{Lexical: true}, byID["a"].Sources())
	assert.Equal(t, 2, byID["c"].SemanticRank)
	assert.Zero(t, byID["c"].LexicalRank)
}

func TestRRF_ResultIsSubsetOfUnion(t *testing.T) {
	f := newTestRRF(t)
	lex := candidates(domain.SignalLexical, "a", "b", "c")
	sem := candidates(domain.SignalSemantic, "c", "d")

	union := map[string]bool{"a": true, "b": true, "c": true, "d": true}
	fused := f.Fuse(lex, sem, 0)
	assert.Len(t, fused, 4)
	for _, r := range fused {
		assert.True(t, union[r.ChunkID], r.ChunkID)
	}

	assert.Len(t, f.Fuse(lex, sem, 2), 2)
}

func TestRRF_ImprovingARankNeverLowersScore(t *testing.T) {
	f := newTestRRF(t)
	sem := candidates(domain.SignalSemantic, "x", "y")

	score := func(lex []domain.ScoredCandidate) float64 {
		for _, r := range f.Fuse(lex, sem, 0) {
			if r.ChunkID == "target" {
				return r.Score
			}
		}
		return 0
	}

	absent := score(candidates(domain.SignalLexical, "p", "q", "r"))
	third := score(candidates(domain.SignalLexical, "p", "q", "target"))
	first := score(candidates(domain.SignalLexical, "target", "p", "q"))

	assert.Zero(t, absent)
	assert.Greater(t, third, absent)
	assert.Greater(t, first, third)
}

// placeAt returns n candidates with "target" at the 1-based rank and
// filler IDs unique to the signal everywhere else.
func placeAt(signal domain.Signal, rank, n int) []domain.ScoredCandidate {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("%s-%02d", signal, i+1)
	}
	if rank > 0 {
		ids[rank-1] = "target"
	}
	return candidates(signal, ids...)
}

func TestRRF_BothListsBeatBestSingleRank(t *testing.T) {
	f := newTestRRF(t)
	scoreOf := func(t *testing.T, fused []domain.FusedResult) float64 {
		t.Helper()
		for _, r := range fused {
			if r.ChunkID == "target" {
				return r.Score
			}
		}
		t.Fatal("target missing from fused list")
		return 0
	}

	tests := []struct{ lexRank, semRank int }{
		{1, 1}, {1, 5}, {3, 2}, {10, 40}, {50, 1}, {60, 60},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("lex%d_sem%d", tt.lexRank, tt.semRank), func(t *testing.T) {
			both := scoreOf(t, f.Fuse(placeAt(domain.SignalLexical, tt.lexRank, 60), placeAt(domain.SignalSemantic, tt.semRank, 60), 0))

			best := min(tt.lexRank, tt.semRank)
			lexOnly := scoreOf(t, f.Fuse(placeAt(domain.SignalLexical, best, 60), placeAt(domain.SignalSemantic, 0, 60), 0))
			semOnly := scoreOf(t, f.Fuse(placeAt(domain.SignalLexical, 0, 60), placeAt(domain.SignalSemantic, best, 60), 0))

			assert.GreaterOrEqual(t, both, lexOnly)
			assert.GreaterOrEqual(t, both, semOnly)
		})
	}
}

func TestRRF_Deterministic(t *testing.T) {
	f := newTestRRF(t)
	lex := []domain.ScoredCandidate{
		{ChunkID: "b", Score: 1}, {ChunkID: "a", Score: 1}, {ChunkID: "c", Score: 3},
	}
	sem := []domain.ScoredCandidate{
		{ChunkID: "c", Score: 0.2}, {ChunkID: "a", Score: 0.9},
	}

	want := f.Fuse(lex, sem, 0)
	for i := 0; i < 20; i++ {
		assert.Equal(t, want, f.Fuse(lex, sem, 0))
	}
	// a and c swap ranks across the lists, tie on score and fall back to ID.
	assert.Equal(t, []string{"a", "c", "b"}, fusedIDs(want))
}

func TestRRF_SingleListKeepsItsOrder(t *testing.T) {
	f := newTestRRF(t)
	lex := candidates(domain.SignalLexical, "a", "b", "c")

	assert.Equal(t, []string{"a", "b", "c"}, fusedIDs(f.Fuse(lex, nil, 0)))
	assert.Equal(t, []string{"a", "b", "c"}, fusedIDs(f.Fuse(nil, candidates(domain.SignalSemantic, "a", "b", "c"), 0)))
	assert.Empty(t, f.Fuse(nil, nil, 5))
}

func TestRRF_UnsortedInputIsReRanked(t *testing.T) {
	f := newTestRRF(t)
	lex := []domain.ScoredCandidate{{ChunkID: "low", Score: 1}, {ChunkID: "high", Score: 9}}

	fused := f.Fuse(lex, nil, 0)
	assert.Equal(t, []string{"high", "low"}, fusedIDs(fused))
	assert.Equal(t, 1, fused[0].LexicalRank)
}

func TestFusionConfig_Validate(t *testing.T) {
	tests := []struct {
		name string
		cfg  FusionConfig
		ok   bool
	}{
		{"default", DefaultFusionConfig(), true},
		{"skewed", FusionConfig{K: 60, WeightLexical: 0.3, WeightSemantic: 0.7}, true},
		{"within tolerance", FusionConfig{K: 60, WeightLexical: 0.5, WeightSemantic: 0.505}, true},
		{"sum too large", FusionConfig{K: 60, WeightLexical: 0.9, WeightSemantic: 0.9}, false},
		{"negative", FusionConfig{K: 60, WeightLexical: -0.5, WeightSemantic: 1.5}, false},
		{"zero k", FusionConfig{K: 0, WeightLexical: 0.5, WeightSemantic: 0.5}, false},
		{"nan weight", FusionConfig{K: 60, WeightLexical: math.NaN(), WeightSemantic: 0.5}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRRF(tt.cfg)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, domain.ErrBadConfig)
			}
		})
	}
}
