package retriever

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/SAMithila/doc-intelligence/internal/adapter/analyzer"
	"github.com/SAMithila/doc-intelligence/internal/adapter/embedding"
	"github.com/SAMithila/doc-intelligence/internal/adapter/memstore"
	"github.com/SAMithila/doc-intelligence/internal/domain"
	"github.com/SAMithila/doc-intelligence/internal/port"
)

var errProviderDown = errors.New("provider down")

func chunk(id, text string) domain.Chunk {
	return domain.Chunk{ID: id, DocID: "doc-" + id, Text: text, End: len([]rune(text))}
}

func newTestBM25(chunks ...domain.Chunk) *BM25Index {
	idx := NewBM25Index(analyzer.NewTokenizer(), DefaultK1, DefaultB)
	if len(chunks) > 0 {
		idx.Build(chunks)
	}
	return idx
}

// newTestSemantic embeds chunks with the offline hash embedder into an
// in-memory vector store.
func newTestSemantic(chunks ...domain.Chunk) (*SemanticIndex, *embedding.HashEmbedder) {
	emb := embedding.NewHashEmbedder(analyzer.NewTokenizer(), 256)
	vs := memstore.NewVectorStore()

	items := make([]port.VectorItem, 0, len(chunks))
	for _, c := range chunks {
		vec, _ := emb.EmbedQuery(context.Background(), c.Text)
		items = append(items, port.VectorItem{ID: c.ID, Vector: vec})
	}
	_ = vs.Upsert(context.Background(), items)
	return NewSemanticIndex(emb, vs), emb
}

type fakeLLM struct {
	reply string
	err   error
	delay time.Duration
	calls atomic.Int32
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string) (string, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.reply, f.err
}

func (f *fakeLLM) ModelName() string { return "fake" }

// failingEmbedder fails every call.
type failingEmbedder struct{}

func (failingEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	return nil, errProviderDown
}

func (failingEmbedder) EmbedDocuments(context.Context, []string) ([][]float32, error) {
	return nil, errProviderDown
}

func (failingEmbedder) Dimension() int    { return 256 }
func (failingEmbedder) ModelName() string { return "failing" }

// slowTokenizer stalls on one specific text, so a query can be made to
// outlive the per-signal timeout without affecting indexing.
type slowTokenizer struct {
	port.Tokenizer
	slowOn string
	delay  time.Duration
}

func (t slowTokenizer) Tokenize(text string) []string {
	if text == t.slowOn {
		time.Sleep(t.delay)
	}
	return t.Tokenizer.Tokenize(text)
}

func candidates(signal domain.Signal, ids ...string) []domain.ScoredCandidate {
	out := make([]domain.ScoredCandidate, len(ids))
	for i, id := range ids {
		out[i] = domain.ScoredCandidate{ChunkID: id, Score: float64(len(ids) - i), Signal: signal}
	}
	return out
}

func candidateIDs(items []domain.ScoredCandidate) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ChunkID
	}
	return out
}

func fusedIDs(items []domain.FusedResult) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ChunkID
	}
	return out
}
