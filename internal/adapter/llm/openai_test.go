package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

// stubModel is an llms.Model that records the prompt it receives.
type stubModel struct {
	reply  string
	err    error
	prompt string
	opts   llms.CallOptions
}

func (s *stubModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	for _, o := range options {
		o(&s.opts)
	}
	for _, m := range messages {
		for _, p := range m.Parts {
			if tp, ok := p.(llms.TextContent); ok {
				s.prompt += tp.Text
			}
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: s.reply}}}, nil
}

func (s *stubModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, s, prompt, options...)
}

func TestOpenAI_Generate(t *testing.T) {
	model := &stubModel{reply: "  Revenue for Q3 2024 was $1.15 billion.\n"}
	g := newWithModel(model, Options{Model: "test-model", Temperature: 0.7, MaxTokens: 150})

	text, err := g.Generate(context.Background(), "Question: Q3 revenue")
	require.NoError(t, err)

	assert.Equal(t, "Revenue for Q3 2024 was $1.15 billion.", text)
	assert.Equal(t, "Question: Q3 revenue", model.prompt)
	assert.Equal(t, 0.7, model.opts.Temperature)
	assert.Equal(t, 150, model.opts.MaxTokens)
	assert.Equal(t, "test-model", g.ModelName())
}

func TestOpenAI_GenerateError(t *testing.T) {
	g := newWithModel(&stubModel{err: errors.New("rate limited")}, Options{Model: "m"})

	_, err := g.Generate(context.Background(), "prompt")
	assert.EqualError(t, err, "rate limited")
}

func TestEcho_ReturnsQuestion(t *testing.T) {
	text, err := NewEcho().Generate(context.Background(), "Write something.\n\nQuestion: storage pricing details\n\nAnswer paragraph:")
	require.NoError(t, err)
	assert.Equal(t, "storage pricing details", text)

	text, err = NewEcho().Generate(context.Background(), "plain prompt")
	require.NoError(t, err)
	assert.Equal(t, "plain prompt", text)
}
