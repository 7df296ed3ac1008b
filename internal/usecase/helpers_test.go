package usecase

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/SAMithila/doc-intelligence/internal/adapter/analyzer"
	"github.com/SAMithila/doc-intelligence/internal/adapter/chunker"
	"github.com/SAMithila/doc-intelligence/internal/adapter/embedding"
	"github.com/SAMithila/doc-intelligence/internal/adapter/fs"
	"github.com/SAMithila/doc-intelligence/internal/adapter/llm"
	"github.com/SAMithila/doc-intelligence/internal/adapter/memstore"
	"github.com/SAMithila/doc-intelligence/internal/adapter/retriever"
	"github.com/SAMithila/doc-intelligence/internal/port"
)

type pipeline struct {
	root     string
	store    *memstore.MemoryStore
	vectors  *memstore.VectorStore
	lexical  *retriever.BM25Index
	hybrid   *retriever.HybridRetriever
	index    *IndexUseCase
	retrieve *RetrieveUseCase
}

// newPipeline wires the full stack over in-memory stores and offline
// providers. A nil embedder uses the hash embedder.
func newPipeline(t *testing.T, embedder port.Embedder) *pipeline {
	t.Helper()

	tok := analyzer.NewTokenizer()
	if embedder == nil {
		embedder = embedding.NewHashEmbedder(tok, 256)
	}
	p := &pipeline{
		root:    t.TempDir(),
		store:   memstore.NewMemoryStore(),
		vectors: memstore.NewVectorStore(),
		lexical: retriever.NewBM25Index(tok, retriever.DefaultK1, retriever.DefaultB),
	}
	p.index = p.newIndexer(t, embedder)

	expander, err := retriever.NewExpander(llm.NewEcho(), retriever.DefaultExpanderConfig())
	require.NoError(t, err)
	p.hybrid, err = retriever.NewHybridRetriever(p.lexical, retriever.NewSemanticIndex(embedder, p.vectors),
		expander, retriever.DefaultHybridConfig())
	require.NoError(t, err)
	p.retrieve = NewRetrieveUseCase(p.hybrid, p.store)
	return p
}

// newIndexer builds an ingestion use case over the pipeline's stores with
// the given embedder, so a later run can use a different provider.
func (p *pipeline) newIndexer(t *testing.T, embedder port.Embedder) *IndexUseCase {
	t.Helper()
	chk, err := chunker.NewWindowChunker(512, 50)
	require.NoError(t, err)
	return NewIndexUseCase(p.store, fs.NewWalker([]string{"**/*.md", "**/*.txt"}, nil), fs.Reader{}, chk, p.lexical,
		WithEmbeddings(embedder, p.vectors), WithEmbedBatchSize(1), WithEmbedWorkers(2))
}

func (p *pipeline) write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(p.root, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// touch moves a file's modification time forward so reindexing notices it.
func (p *pipeline) touch(t *testing.T, path string) {
	t.Helper()
	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(path, future, future))
}

func (p *pipeline) run(t *testing.T) *IndexResult {
	t.Helper()
	res, err := p.index.Index(context.Background(), p.root, nil)
	require.NoError(t, err)
	return res
}

func (p *pipeline) writeFinanceCorpus(t *testing.T) {
	p.write(t, "reports/q3.md", "# Quarterly report\nQ3 2024 revenue reached $1.15 billion")
	p.write(t, "pricing.txt", "CloudScale storage costs $0.023 per GB")
	p.write(t, "notes.go", "package notes // not part of the corpus")
}

type brokenEmbedder struct{}

func (brokenEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	return nil, errors.New("embedding service unreachable")
}

func (brokenEmbedder) EmbedDocuments(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("embedding service unreachable")
}

func (brokenEmbedder) Dimension() int    { return 8 }
func (brokenEmbedder) ModelName() string { return "broken" }

// keywordReranker scores passages containing favorite 1 and the rest 0.
type keywordReranker struct {
	favorite string
	err      error
}

func (r keywordReranker) Rerank(_ context.Context, _ string, passages []string) ([]port.RerankedResult, error) {
	if r.err != nil {
		return nil, r.err
	}
	out := make([]port.RerankedResult, len(passages))
	for i, p := range passages {
		out[i] = port.RerankedResult{Index: i}
		if strings.Contains(p, r.favorite) {
			out[i].Score = 1
		}
	}
	return out, nil
}

func (keywordReranker) ModelName() string { return "keyword" }
