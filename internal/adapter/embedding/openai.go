package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

const (
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	DefaultOllamaBaseURL = "http://localhost:11434/v1"
)

// OpenAIEmbedder calls an OpenAI-compatible embeddings endpoint (OpenAI,
// Ollama, vLLM, LocalAI) through langchaingo.
type OpenAIEmbedder struct {
	embedder  embeddings.Embedder
	model     string
	dimension int
	logger    *slog.Logger
}

// Options for NewOpenAIEmbedder. An empty APIKeyEnv or unset variable sends
// the token "none", which local OpenAI-compatible servers accept.
type Options struct {
	Model     string
	BaseURL   string
	APIKeyEnv string
	Dimension int
	BatchSize int
}

func NewOpenAIEmbedder(opts Options) (*OpenAIEmbedder, error) {
	if opts.Model == "" {
		return nil, fmt.Errorf("embedding model is required")
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultOpenAIBaseURL
	}

	token := "none"
	if opts.APIKeyEnv != "" {
		if v := os.Getenv(opts.APIKeyEnv); v != "" {
			token = v
		}
	}

	client, err := openai.New(
		openai.WithBaseURL(opts.BaseURL),
		openai.WithToken(token),
		openai.WithEmbeddingModel(opts.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("create embedding client: %w", err)
	}

	embedOpts := []embeddings.Option{embeddings.WithStripNewLines(true)}
	if opts.BatchSize > 0 {
		embedOpts = append(embedOpts, embeddings.WithBatchSize(opts.BatchSize))
	}
	embedder, err := embeddings.NewEmbedder(client, embedOpts...)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}

	return &OpenAIEmbedder{
		embedder:  embedder,
		model:     opts.Model,
		dimension: opts.Dimension,
		logger:    slog.Default().With("component", "openai-embedder"),
	}, nil
}

// NewOllamaEmbedder targets a local Ollama server's OpenAI-compatible API.
func NewOllamaEmbedder(model, baseURL string, dimension int) (*OpenAIEmbedder, error) {
	if baseURL == "" {
		baseURL = DefaultOllamaBaseURL
	}
	return NewOpenAIEmbedder(Options{Model: model, BaseURL: baseURL, Dimension: dimension})
}

func (e *OpenAIEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.embedder.EmbedQuery(ctx, text)
	if err != nil {
		e.logger.Error("failed to embed query", "length", len(text), "err", err)
		return nil, err
	}
	return vec, nil
}

func (e *OpenAIEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	e.logger.Debug("generating embeddings", "count", len(texts))

	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		e.logger.Error("failed to embed documents", "count", len(texts), "err", err)
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(vectors))
	}
	return vectors, nil
}

func (e *OpenAIEmbedder) Dimension() int {
	return e.dimension
}

func (e *OpenAIEmbedder) ModelName() string {
	return e.model
}
