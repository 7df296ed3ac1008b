package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/SAMithila/doc-intelligence/internal/domain"
)

// EvalCase is one labelled query. Relevant entries are chunk IDs or document
// paths; a path may be given relative to the corpus root.
type EvalCase struct {
	Query    string   `yaml:"query"`
	Relevant []string `yaml:"relevant"`
}

type Dataset struct {
	Cases []EvalCase `yaml:"cases"`
}

// LoadDataset reads a YAML evaluation dataset.
func LoadDataset(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var ds Dataset
	if err := yaml.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for i, c := range ds.Cases {
		if strings.TrimSpace(c.Query) == "" || len(c.Relevant) == 0 {
			return nil, fmt.Errorf("%s: case %d needs a query and at least one relevant entry", path, i+1)
		}
	}
	return &ds, nil
}

// ModeSummary aggregates one expansion mode over the whole dataset.
type ModeSummary struct {
	Mode          domain.ExpansionMode `json:"mode"`
	Queries       int                  `json:"queries"`
	Failures      int                  `json:"failures"`
	Recall        float64              `json:"recall"`
	Precision     float64              `json:"precision"`
	MRR           float64              `json:"mrr"`
	NDCG          float64              `json:"ndcg"`
	ExpansionRate float64              `json:"expansion_rate"`
	MeanLatency   time.Duration        `json:"mean_latency"`
}

type EvalReport struct {
	K     int           `json:"k"`
	Modes []ModeSummary `json:"modes"`
}

// EvaluateUseCase replays a labelled dataset under each expansion mode so
// the cost and benefit of expansion can be compared on the same corpus.
type EvaluateUseCase struct {
	retrieve *RetrieveUseCase
	logger   *slog.Logger
}

func NewEvaluateUseCase(retrieve *RetrieveUseCase) *EvaluateUseCase {
	return &EvaluateUseCase{
		retrieve: retrieve,
		logger:   slog.Default().With("component", "evaluate"),
	}
}

func (u *EvaluateUseCase) Evaluate(ctx context.Context, ds *Dataset, modes []domain.ExpansionMode, k int) (*EvalReport, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", domain.ErrBadConfig, k)
	}
	if len(modes) == 0 {
		modes = []domain.ExpansionMode{domain.ExpansionAuto, domain.ExpansionOn, domain.ExpansionOff}
	}

	report := &EvalReport{K: k}
	for _, mode := range modes {
		summary := ModeSummary{Mode: mode}
		var latency time.Duration
		expanded := 0

		for _, c := range ds.Cases {
			resp, err := u.retrieve.Retrieve(ctx, domain.Request{Query: c.Query, TopK: k, Expansion: mode})
			if errors.Is(err, domain.ErrIndexUnbuilt) || errors.Is(err, domain.ErrBadConfig) {
				return nil, err
			}
			summary.Queries++
			if err != nil {
				summary.Failures++
				u.logger.Warn("evaluation query failed", "query", c.Query, "mode", mode, "error", err)
				continue
			}

			retrieved := labelResults(resp.Results, c.Relevant)
			summary.Recall += RecallAtK(retrieved, c.Relevant)
			summary.Precision += PrecisionAtK(retrieved, c.Relevant)
			summary.MRR += ReciprocalRank(retrieved, c.Relevant)
			summary.NDCG += NDCGAtK(retrieved, c.Relevant, k)
			latency += resp.Report.Total
			if resp.Report.Expansion.Fired {
				expanded++
			}
		}

		if n := summary.Queries; n > 0 {
			summary.Recall /= float64(n)
			summary.Precision /= float64(n)
			summary.MRR /= float64(n)
			summary.NDCG /= float64(n)
			summary.ExpansionRate = float64(expanded) / float64(n)
			summary.MeanLatency = latency / time.Duration(n)
		}
		report.Modes = append(report.Modes, summary)
	}
	return report, nil
}

// labelResults maps each result to the relevant entry it satisfies, or to
// its own chunk ID. Several chunks of one relevant document collapse to a
// single hit at the best rank.
func labelResults(results []domain.Result, relevant []string) []string {
	seen := make(map[string]bool)
	labels := make([]string, 0, len(results))
	for _, r := range results {
		label := "chunk:" + r.ChunkID
		for _, rel := range relevant {
			if matchesRelevant(r, rel) {
				label = rel
				break
			}
		}
		if seen[label] {
			continue
		}
		seen[label] = true
		labels = append(labels, label)
	}
	return labels
}

func matchesRelevant(r domain.Result, rel string) bool {
	if r.ChunkID == rel || r.Path == rel {
		return true
	}
	rel = strings.TrimPrefix(filepath.ToSlash(rel), "./")
	return r.Path != "" && strings.HasSuffix(filepath.ToSlash(r.Path), "/"+rel)
}
