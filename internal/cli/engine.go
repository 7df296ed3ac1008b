package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/SAMithila/doc-intelligence/config"
	"github.com/SAMithila/doc-intelligence/internal/adapter/analyzer"
	"github.com/SAMithila/doc-intelligence/internal/adapter/cache"
	"github.com/SAMithila/doc-intelligence/internal/adapter/embedding"
	"github.com/SAMithila/doc-intelligence/internal/adapter/llm"
	"github.com/SAMithila/doc-intelligence/internal/adapter/retriever"
	"github.com/SAMithila/doc-intelligence/internal/adapter/store"
	"github.com/SAMithila/doc-intelligence/internal/domain"
	"github.com/SAMithila/doc-intelligence/internal/port"
	"github.com/SAMithila/doc-intelligence/internal/usecase"
)

// engine holds everything a command needs, opened against one corpus root.
type engine struct {
	cfg       *config.Config
	store     *store.BoltStore
	tokenizer *analyzer.Tokenizer
	lexical   *retriever.BM25Index
	embedder  port.Embedder
	vectors   port.VectorStore
}

// openEngine opens the index database under root. With rebuild set, a
// database written with a different schema or index configuration is
// cleared; otherwise the mismatch is only reported.
func openEngine(root string, cfg *config.Config, rebuild bool) (*engine, error) {
	if err := config.EnsureStateDir(root); err != nil {
		return nil, fmt.Errorf("failed to create %s directory: %w", config.DirName, err)
	}

	st, err := store.NewBoltStore(config.IndexDBPath(root))
	if err != nil {
		return nil, fmt.Errorf("failed to open index store: %w", err)
	}

	compat, err := st.CheckCompatibility(cfg)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to check index schema: %w", err)
	}
	switch {
	case compat.Rebuild && rebuild:
		slog.Info("clearing index for rebuild", "reason", compat.Reason)
		if err := st.Clear(); err != nil {
			st.Close()
			return nil, fmt.Errorf("failed to clear index: %w", err)
		}
	case compat.Rebuild:
		slog.Warn("index is stale, run 'docint index' to rebuild", "reason", compat.Reason)
	case compat.Upgrade:
		slog.Info("upgrading index schema", "from", compat.From, "to", compat.To)
		if err := st.Migrate(cfg); err != nil {
			st.Close()
			return nil, fmt.Errorf("migration failed: %w", err)
		}
	}

	e := &engine{
		cfg:       cfg,
		store:     st,
		tokenizer: analyzer.NewTokenizer(),
	}
	e.lexical = retriever.NewBM25Index(e.tokenizer, cfg.Index.K1, cfg.Index.B)

	if cfg.Embedding.Enabled {
		embedder, err := newEmbedder(cfg.Embedding, e.tokenizer)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("failed to create embedder: %w", err)
		}
		vectors, err := store.NewBoltVectorStore(st.DB(), embedder.Dimension())
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("failed to create vector store: %w", err)
		}
		e.embedder = embedder
		e.vectors = vectors
	}
	return e, nil
}

func (e *engine) Close() error {
	return e.store.Close()
}

// reset empties the index and reloads the vector mirror so it does not keep
// serving vectors of deleted chunks.
func (e *engine) reset() error {
	if err := e.store.Clear(); err != nil {
		return fmt.Errorf("failed to clear index: %w", err)
	}
	if e.embedder == nil {
		return nil
	}
	vectors, err := store.NewBoltVectorStore(e.store.DB(), e.embedder.Dimension())
	if err != nil {
		return fmt.Errorf("failed to create vector store: %w", err)
	}
	e.vectors = vectors
	return nil
}

// retrieveUseCase loads the lexical index from the store and wires the
// hybrid retriever behind the outcome cache.
func (e *engine) retrieveUseCase() (*usecase.RetrieveUseCase, error) {
	if _, err := e.lexical.BuildFrom(e.store); err != nil {
		return nil, err
	}

	generator, err := newGenerator(e.cfg.Generation)
	if err != nil {
		return nil, fmt.Errorf("failed to create generator: %w", err)
	}

	strategy, err := domain.ParseStrategy(e.cfg.Expansion.Strategy)
	if err != nil {
		return nil, err
	}
	expander, err := retriever.NewExpander(generator, retriever.ExpanderConfig{
		WordThreshold:  e.cfg.Expansion.WordThreshold,
		ScoreThreshold: e.cfg.Expansion.ScoreThreshold,
		Strategy:       strategy,
		Timeout:        e.cfg.Expansion.Timeout,
		MaxVariations:  e.cfg.Expansion.MaxVariations,
	})
	if err != nil {
		return nil, err
	}

	var semantic *retriever.SemanticIndex
	if e.embedder != nil {
		semantic = retriever.NewSemanticIndex(e.embedder, e.vectors)
	}

	r := e.cfg.Retrieve
	hybrid, err := retriever.NewHybridRetriever(e.lexical, semantic, expander, retriever.HybridConfig{
		TopK:             r.TopK,
		CandidatePool:    r.CandidatePool,
		PerSignalTimeout: r.PerSignalTimeout,
		QueryTimeout:     r.QueryTimeout,
		DedupJaccard:     r.DedupJaccard,
		Fusion: retriever.FusionConfig{
			K:              r.RRFK,
			WeightLexical:  r.WeightLexical,
			WeightSemantic: r.WeightSemantic,
		},
	})
	if err != nil {
		return nil, err
	}

	var ret port.Retriever = hybrid
	if r.CacheSize > 0 {
		ret = cache.NewCachedRetriever(hybrid, cache.NewQueryCache(r.CacheSize, r.CacheTTL), hybrid.Generation)
	}

	var opts []usecase.RetrieveOption
	if r.Rerank {
		reranker, err := retriever.NewLLMReranker(generator)
		if err != nil {
			return nil, err
		}
		opts = append(opts, usecase.WithReranker(reranker, r.RerankTimeout))
	}
	return usecase.NewRetrieveUseCase(ret, e.store, opts...), nil
}

func newEmbedder(cfg config.EmbeddingConfig, tok port.Tokenizer) (port.Embedder, error) {
	switch cfg.Provider {
	case "openai":
		return embedding.NewOpenAIEmbedder(embedding.Options{
			Model:     cfg.Model,
			BaseURL:   cfg.BaseURL,
			APIKeyEnv: cfg.APIKeyEnv,
			Dimension: cfg.Dimension,
			BatchSize: cfg.BatchSize,
		})
	case "ollama":
		return embedding.NewOllamaEmbedder(cfg.Model, cfg.BaseURL, cfg.Dimension)
	case "hash":
		return embedding.NewHashEmbedder(tok, cfg.Dimension), nil
	default:
		return nil, fmt.Errorf("%w: unsupported embedding provider: %s", domain.ErrBadConfig, cfg.Provider)
	}
}

// newGenerator returns nil for provider "none": expansion then always falls
// back to the original query.
func newGenerator(cfg config.GenerationConfig) (port.LLM, error) {
	opts := llm.Options{
		Model:       cfg.Model,
		BaseURL:     cfg.BaseURL,
		APIKeyEnv:   cfg.APIKeyEnv,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	}
	switch cfg.Provider {
	case "openai":
		return llm.NewOpenAI(opts)
	case "ollama":
		return llm.NewOllama(opts)
	case "echo":
		return llm.NewEcho(), nil
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: unsupported generation provider: %s", domain.ErrBadConfig, cfg.Provider)
	}
}

// indexExists reports whether root already has an index database.
func indexExists(root string) bool {
	_, err := os.Stat(config.IndexDBPath(root))
	return err == nil
}
