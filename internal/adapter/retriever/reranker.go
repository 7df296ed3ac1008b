package retriever

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/SAMithila/doc-intelligence/internal/domain"
	"github.com/SAMithila/doc-intelligence/internal/port"
)

const maxRerankPassageRunes = 1000

const rerankPrompt = `Rate how well each passage answers the question, from 0 (irrelevant) to 10 (answers it fully).
Reply with one line per passage in the form "<number>: <score>" and nothing else.

Question: %s

%s`

var scoreLine = regexp.MustCompile(`^\s*\[?(\d+)\]?\s*[:.)=-]\s*(\d+(?:\.\d+)?)`)

var errNoScores = errors.New("reply contained no passage scores")

// LLMReranker grades passages with the generative provider, standing in for
// a cross-encoder. Scores are normalized to [0, 1]; passages the model skips
// score 0.
type LLMReranker struct {
	component
	llm port.LLM
}

func NewLLMReranker(llm port.LLM, opts ...Option) (*LLMReranker, error) {
	if llm == nil {
		return nil, fmt.Errorf("%w: reranking needs a generation provider", domain.ErrBadConfig)
	}
	return &LLMReranker{component: newComponent("reranker", opts), llm: llm}, nil
}

func (r *LLMReranker) Rerank(ctx context.Context, query string, passages []string) ([]port.RerankedResult, error) {
	if len(passages) == 0 {
		return nil, nil
	}

	var b strings.Builder
	for i, p := range passages {
		if runes := []rune(p); len(runes) > maxRerankPassageRunes {
			p = string(runes[:maxRerankPassageRunes])
		}
		fmt.Fprintf(&b, "[%d] %s\n\n", i+1, strings.TrimSpace(p))
	}

	reply, err := r.llm.Generate(ctx, fmt.Sprintf(rerankPrompt, query, b.String()))
	if err != nil {
		return nil, fmt.Errorf("rerank: %w", err)
	}
	scores, err := parseScores(reply, len(passages))
	if err != nil {
		r.logger.Warn("unusable rerank reply", "model", r.llm.ModelName(), "error", err)
		return nil, fmt.Errorf("rerank: %w", err)
	}

	results := make([]port.RerankedResult, len(passages))
	for i, s := range scores {
		results[i] = port.RerankedResult{Index: i, Score: s}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	return results, nil
}

func (r *LLMReranker) ModelName() string {
	return r.llm.ModelName()
}

// parseScores reads "<n>: <score>" lines for passages 1..n. Out of range
// numbers are ignored and scores above 10 are clamped.
func parseScores(reply string, n int) ([]float64, error) {
	scores := make([]float64, n)
	found := 0
	for _, line := range strings.Split(reply, "\n") {
		m := scoreLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		idx, err := strconv.Atoi(m[1])
		if err != nil || idx < 1 || idx > n {
			continue
		}
		score, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			continue
		}
		scores[idx-1] = min(score, 10) / 10
		found++
	}
	if found == 0 {
		return nil, errNoScores
	}
	return scores, nil
}
