package llm

import (
	"context"
	"regexp"
)

var questionLine = regexp.MustCompile(`(?m)^(?:Question|Original question): (.*)$`)

// Echo is an offline generator that answers every prompt with the question
// it contains. Expansion then embeds the question itself, which keeps the
// pipeline runnable without a model server.
type Echo struct{}

func NewEcho() *Echo { return &Echo{} }

func (Echo) Generate(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if m := questionLine.FindStringSubmatch(prompt); m != nil {
		return m[1], nil
	}
	return prompt, nil
}

func (Echo) ModelName() string {
	return "echo"
}
