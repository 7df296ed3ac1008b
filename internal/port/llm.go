package port

import "context"

// LLM is the generative provider consumed by query expansion.
type LLM interface {
	// Generate completes the prompt.
	Generate(ctx context.Context, prompt string) (string, error)

	// ModelName returns the name of the model.
	ModelName() string
}
