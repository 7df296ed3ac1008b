package usecase

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SAMithila/doc-intelligence/internal/domain"
)

func TestPrecisionAtK(t *testing.T) {
	assert.InDelta(t, 0.5, PrecisionAtK([]string{"a", "b", "c", "d"}, []string{"a", "c"}), 1e-9)
	assert.Zero(t, PrecisionAtK(nil, []string{"a"}))
}

func TestRecallAtK(t *testing.T) {
	assert.InDelta(t, 0.5, RecallAtK([]string{"a", "x"}, []string{"a", "b"}), 1e-9)
	assert.InDelta(t, 1.0, RecallAtK([]string{"b", "a"}, []string{"a", "b"}), 1e-9)
	assert.Zero(t, RecallAtK([]string{"a"}, nil))
}

func TestReciprocalRank(t *testing.T) {
	assert.InDelta(t, 1.0/3, ReciprocalRank([]string{"x", "y", "a"}, []string{"a"}), 1e-9)
	assert.Zero(t, ReciprocalRank([]string{"x"}, []string{"a"}))
}

func TestNDCG(t *testing.T) {
	assert.InDelta(t, 1.0, NDCGAtK([]string{"a", "b"}, []string{"a", "b"}, 5), 1e-9)

	swapped := NDCGAtK([]string{"x", "a"}, []string{"a"}, 5)
	assert.InDelta(t, 1/math.Log2(3), swapped, 1e-9)
	assert.Zero(t, NDCGAtK([]string{"x"}, []string{"a"}, 5))
}

func TestLabelResults_CollapsesDocumentHits(t *testing.T) {
	results := []domain.Result{
		{ChunkID: "c1", Path: "/corpus/reports/q3.md"},
		{ChunkID: "c2", Path: "/corpus/reports/q3.md"},
		{ChunkID: "c3", Path: "/corpus/pricing.txt"},
	}
	got := labelResults(results, []string{"reports/q3.md", "c3"})
	assert.Equal(t, []string{"reports/q3.md", "c3"}, got)
}

func TestLoadDataset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eval.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
cases:
  - query: Q3 revenue
    relevant: [reports/q3.md]
  - query: storage costs per GB
    relevant: [pricing.txt]
`), 0o644))

	ds, err := LoadDataset(path)
	require.NoError(t, err)
	require.Len(t, ds.Cases, 2)
	assert.Equal(t, []string{"pricing.txt"}, ds.Cases[1].Relevant)

	require.NoError(t, os.WriteFile(path, []byte("cases:\n  - query: missing labels\n"), 0o644))
	_, err = LoadDataset(path)
	assert.Error(t, err)
}

func TestEvaluate_ComparesModes(t *testing.T) {
	p := newPipeline(t, nil)
	p.writeFinanceCorpus(t)
	p.run(t)

	ds := &Dataset{Cases: []EvalCase{
		{Query: "Q3 revenue", Relevant: []string{"reports/q3.md"}},
		{Query: "how much does CloudScale storage cost per GB", Relevant: []string{"pricing.txt"}},
	}}

	report, err := NewEvaluateUseCase(p.retrieve).Evaluate(context.Background(), ds,
		[]domain.ExpansionMode{domain.ExpansionAuto, domain.ExpansionOff}, 1)
	require.NoError(t, err)
	require.Len(t, report.Modes, 2)

	auto, off := report.Modes[0], report.Modes[1]
	assert.Equal(t, 2, auto.Queries)
	assert.InDelta(t, 0.5, auto.ExpansionRate, 1e-9)
	assert.Zero(t, off.ExpansionRate)
	for _, m := range report.Modes {
		assert.InDelta(t, 1.0, m.Recall, 1e-9, "mode %s", m.Mode)
		assert.InDelta(t, 1.0, m.MRR, 1e-9, "mode %s", m.Mode)
		assert.Zero(t, m.Failures)
	}
}

func TestEvaluate_NoIndexAborts(t *testing.T) {
	p := newPipeline(t, nil)
	ds := &Dataset{Cases: []EvalCase{{Query: "q", Relevant: []string{"x"}}}}

	_, err := NewEvaluateUseCase(p.retrieve).Evaluate(context.Background(), ds, nil, 5)
	assert.ErrorIs(t, err, domain.ErrIndexUnbuilt)
}
