package retriever

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/SAMithila/doc-intelligence/internal/domain"
	"github.com/SAMithila/doc-intelligence/internal/port"
)

const (
	DefaultWordThreshold    = 3
	DefaultScoreThreshold   = 0.5
	DefaultExpansionTimeout = 10 * time.Second
	DefaultMaxVariations    = 3
)

const hydePrompt = `Given the question, write a short paragraph that would answer it.
Write as if you're quoting from a document that contains the answer.
Do not say "I don't know" - make up a plausible answer.

Question: %s

Answer paragraph:`

const multiQueryPrompt = `Generate %d different versions of this question.
Each version should ask the same thing but with different wording.
Return only the questions, one per line.

Original question: %s

Variations:`

// ExpanderConfig controls the expansion decision and mechanism.
type ExpanderConfig struct {
	WordThreshold  int
	ScoreThreshold float64
	Strategy       domain.Strategy
	Timeout        time.Duration
	MaxVariations  int
}

func DefaultExpanderConfig() ExpanderConfig {
	return ExpanderConfig{
		WordThreshold:  DefaultWordThreshold,
		ScoreThreshold: DefaultScoreThreshold,
		Strategy:       domain.StrategyHyDE,
		Timeout:        DefaultExpansionTimeout,
		MaxVariations:  DefaultMaxVariations,
	}
}

// Expander rewrites short or poorly-matching queries for the semantic
// channel through a generative provider.
type Expander struct {
	component
	llm port.LLM
	cfg ExpanderConfig
}

// NewExpander creates an expander. llm may be nil, in which case every
// expansion attempt fails and falls back to the original query.
func NewExpander(llm port.LLM, cfg ExpanderConfig, opts ...Option) (*Expander, error) {
	if cfg.WordThreshold < 0 || !(cfg.ScoreThreshold >= 0) || math.IsInf(cfg.ScoreThreshold, 0) || cfg.Timeout < 0 || cfg.MaxVariations < 0 {
		return nil, fmt.Errorf("%w: expansion thresholds must be finite and not negative", domain.ErrBadConfig)
	}
	switch cfg.Strategy {
	case "":
		cfg.Strategy = domain.StrategyHyDE
	case domain.StrategyHyDE, domain.StrategyMultiQuery:
	default:
		return nil, fmt.Errorf("%w: unknown expansion strategy %q", domain.ErrBadConfig, cfg.Strategy)
	}
	if cfg.MaxVariations == 0 {
		cfg.MaxVariations = DefaultMaxVariations
	}
	return &Expander{component: newComponent("expander", opts), llm: llm, cfg: cfg}, nil
}

// Strategy returns the configured expansion strategy.
func (e *Expander) Strategy() domain.Strategy { return e.cfg.Strategy }

// Decide applies the expansion policy. It is pure: the same inputs always
// produce the same decision.
func (e *Expander) Decide(query string, mode domain.ExpansionMode, priorMaxScore *float64) domain.Decision {
	switch mode {
	case domain.ExpansionOn:
		return domain.Decision{Expand: true, Reason: domain.ReasonForcedOn}
	case domain.ExpansionOff:
		return domain.Decision{Expand: false, Reason: domain.ReasonForcedOff}
	}

	if WordCount(query) <= e.cfg.WordThreshold {
		return domain.Decision{Expand: true, Reason: domain.ReasonShortQuery}
	}
	if priorMaxScore != nil && *priorMaxScore < e.cfg.ScoreThreshold {
		return domain.Decision{Expand: true, Reason: domain.ReasonLowPriorScore}
	}
	return domain.Decision{Expand: false, Reason: domain.ReasonPassthrough}
}

// WordCount counts whitespace-separated words.
func WordCount(query string) int {
	return len(strings.Fields(query))
}

// Expand calls the generative provider within the expansion timeout. On any
// failure it returns the unexpanded query together with an error wrapping
// domain.ErrExpansionFailed; the returned query is always usable.
func (e *Expander) Expand(ctx context.Context, query string) (domain.ExpandedQuery, error) {
	passthrough := domain.ExpandedQuery{Original: query, Strategy: domain.StrategyNone}

	if e.llm == nil {
		return passthrough, fmt.Errorf("%w: no generative provider configured", domain.ErrExpansionFailed)
	}

	var prompt string
	switch e.cfg.Strategy {
	case domain.StrategyMultiQuery:
		prompt = fmt.Sprintf(multiQueryPrompt, e.cfg.MaxVariations, query)
	default:
		prompt = fmt.Sprintf(hydePrompt, query)
	}

	text, err := callBounded(ctx, e.cfg.Timeout, func(ctx context.Context) (string, error) {
		return e.llm.Generate(ctx, prompt)
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s: %w", e.cfg.Timeout, err)
		}
		e.logger.Warn("query expansion failed, using original query", "strategy", e.cfg.Strategy, "error", err)
		return passthrough, fmt.Errorf("%w: %v", domain.ErrExpansionFailed, err)
	}

	var expansions []string
	switch e.cfg.Strategy {
	case domain.StrategyMultiQuery:
		expansions = parseVariations(text, query, e.cfg.MaxVariations)
	default:
		if t := strings.TrimSpace(text); t != "" {
			expansions = []string{t}
		}
	}
	if len(expansions) == 0 {
		e.logger.Warn("query expansion returned no text, using original query", "strategy", e.cfg.Strategy)
		return passthrough, fmt.Errorf("%w: empty completion", domain.ErrExpansionFailed)
	}

	return domain.ExpandedQuery{Original: query, Expansions: expansions, Strategy: e.cfg.Strategy}, nil
}

var listMarker = regexp.MustCompile(`^\s*(?:\d+[.)]|[-*•])\s+`)

// parseVariations extracts one query per line, dropping list markers,
// blank lines and restatements of the original.
func parseVariations(text, original string, max int) []string {
	var out []string
	seen := map[string]bool{strings.ToLower(strings.TrimSpace(original)): true}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(listMarker.ReplaceAllString(line, ""))
		if line == "" {
			continue
		}
		key := strings.ToLower(line)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, line)
		if len(out) == max {
			break
		}
	}
	return out
}
