package llm

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

const (
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	DefaultOllamaBaseURL = "http://localhost:11434/v1"
)

// Options for NewOpenAI.
type Options struct {
	Model       string
	BaseURL     string
	APIKeyEnv   string
	Temperature float64
	MaxTokens   int
}

// OpenAI completes prompts against an OpenAI-compatible chat endpoint.
type OpenAI struct {
	client      llms.Model
	model       string
	temperature float64
	maxTokens   int
	logger      *slog.Logger
}

func NewOpenAI(opts Options) (*OpenAI, error) {
	if opts.Model == "" {
		return nil, fmt.Errorf("generation model is required")
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
		openai.WithModel(opts.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("create generation client: %w", err)
	}

	return newWithModel(client, opts), nil
}

// NewOllama targets a local Ollama server's OpenAI-compatible API.
func NewOllama(opts Options) (*OpenAI, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultOllamaBaseURL
	}
	return NewOpenAI(opts)
}

func newWithModel(client llms.Model, opts Options) *OpenAI {
	return &OpenAI{
		client:      client,
		model:       opts.Model,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
		logger:      slog.Default().With("component", "openai-generator"),
	}
}

func (g *OpenAI) Generate(ctx context.Context, prompt string) (string, error) {
	callOpts := []llms.CallOption{llms.WithTemperature(g.temperature)}
	if g.maxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(g.maxTokens))
	}

	text, err := llms.GenerateFromSinglePrompt(ctx, g.client, prompt, callOpts...)
	if err != nil {
		g.logger.Error("failed to generate content", "model", g.model, "err", err)
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (g *OpenAI) ModelName() string {
	return g.model
}
