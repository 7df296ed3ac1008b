package retriever

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/SAMithila/doc-intelligence/internal/domain"
)

const (
	DefaultTopK             = 5
	DefaultPerSignalTimeout = 5 * time.Second
	DefaultQueryTimeout     = 30 * time.Second

	minCandidates = 20
)

// HybridConfig holds query-time settings for HybridRetriever.
type HybridConfig struct {
	TopK             int
	CandidatePool    int // per-signal candidates, 0 = max(3*TopK, 20)
	PerSignalTimeout time.Duration
	QueryTimeout     time.Duration
	DedupJaccard     float64
	Fusion           FusionConfig
}

func DefaultHybridConfig() HybridConfig {
	return HybridConfig{
		TopK:             DefaultTopK,
		PerSignalTimeout: DefaultPerSignalTimeout,
		QueryTimeout:     DefaultQueryTimeout,
		Fusion:           DefaultFusionConfig(),
	}
}

func (c HybridConfig) Validate() error {
	if c.TopK <= 0 {
		return fmt.Errorf("%w: top_k must be positive, got %d", domain.ErrBadConfig, c.TopK)
	}
	if c.CandidatePool < 0 || c.PerSignalTimeout < 0 || c.QueryTimeout < 0 {
		return fmt.Errorf("%w: candidate pool and timeouts must not be negative", domain.ErrBadConfig)
	}
	if c.DedupJaccard < 0 || c.DedupJaccard > 1 {
		return fmt.Errorf("%w: dedup threshold must be in [0, 1], got %g", domain.ErrBadConfig, c.DedupJaccard)
	}
	return c.Fusion.Validate()
}

// HybridRetriever runs the lexical and semantic signals concurrently, with
// optional query expansion ahead of the semantic lookup, and fuses them.
// A failing signal degrades the query; only losing both fails it.
type HybridRetriever struct {
	component
	lexical  *BM25Index
	semantic *SemanticIndex
	expander *Expander
	fusion   *RRF
	dedup    *DedupFilter
	cfg      HybridConfig
}

// NewHybridRetriever wires the retriever. semantic and expander may be nil:
// a nil semantic index leaves the semantic signal permanently unavailable,
// a nil expander makes every expansion attempt fall back.
func NewHybridRetriever(lexical *BM25Index, semantic *SemanticIndex, expander *Expander, cfg HybridConfig, opts ...Option) (*HybridRetriever, error) {
	if lexical == nil {
		return nil, fmt.Errorf("%w: lexical index is required", domain.ErrBadConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	fusion, err := NewRRF(cfg.Fusion)
	if err != nil {
		return nil, err
	}
	if expander == nil {
		expander, err = NewExpander(nil, DefaultExpanderConfig(), opts...)
		if err != nil {
			return nil, err
		}
	}

	return &HybridRetriever{
		component: newComponent("hybrid", opts),
		lexical:   lexical,
		semantic:  semantic,
		expander:  expander,
		fusion:    fusion,
		dedup:     NewDedupFilter(cfg.DedupJaccard),
		cfg:       cfg,
	}, nil
}

// Generation returns the active lexical index generation.
func (h *HybridRetriever) Generation() uint64 {
	return h.lexical.Generation()
}

// Retrieve answers one query. The returned Outcome is never nil and always
// carries a Report; on ErrIndexUnbuilt or ErrAllSignalsUnavailable its
// result list is empty and Report.Status says why.
func (h *HybridRetriever) Retrieve(ctx context.Context, req domain.Request) (*domain.Outcome, error) {
	start := time.Now()

	mode, err := domain.ParseExpansionMode(string(req.Expansion))
	if err != nil {
		return nil, err
	}
	topK := req.TopK
	if topK <= 0 {
		topK = h.cfg.TopK
	}

	gen := h.lexical.current.Load()
	out := &domain.Outcome{Report: domain.Report{
		QueryID: uuid.NewString(),
		Query:   req.Query,
	}}
	report := &out.Report
	defer func() { report.Total = time.Since(start) }()

	if gen == nil || len(gen.chunks) == 0 {
		report.Status = domain.StatusNoIndex
		h.logger.Warn("query before any chunk was indexed", "query_id", report.QueryID)
		return out, domain.ErrIndexUnbuilt
	}
	report.IndexGeneration = gen.id

	if h.cfg.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.cfg.QueryTimeout)
		defer cancel()
	}

	decision := h.expander.Decide(req.Query, mode, req.PriorMaxScore)
	report.Expansion = domain.ExpansionReport{Mode: mode, Decision: decision, Strategy: domain.StrategyNone}

	limit := h.candidateLimit(topK)
	var lexical, semantic []domain.ScoredCandidate

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lexical = h.runLexical(gctx, gen, req.Query, limit, &report.Lexical)
		return nil
	})
	g.Go(func() error {
		expanded := h.runExpansion(gctx, req.Query, decision, &report.Expansion)
		semantic = h.runSemantic(gctx, expanded, limit, &report.Semantic)
		return nil
	})
	_ = g.Wait()

	if !report.Lexical.OK && !report.Semantic.OK {
		report.Status = domain.StatusUnavailable
		h.logger.Error("no retrieval signal available",
			"query_id", report.QueryID, "lexical", report.Lexical.Error, "semantic", report.Semantic.Error)
		return out, fmt.Errorf("%w: lexical: %s; semantic: %s",
			domain.ErrAllSignalsUnavailable, report.Lexical.Error, report.Semantic.Error)
	}

	fuseStart := time.Now()
	fused := h.fusion.Fuse(lexical, semantic, 0)
	out.Fused = h.dedup.Filter(fused, gen.terms, topK)
	report.FusionLatency = time.Since(fuseStart)

	report.Status = domain.StatusOK
	if !report.Lexical.OK || !report.Semantic.OK {
		report.Status = domain.StatusDegraded
	}

	h.logger.Debug("query complete",
		"query_id", report.QueryID,
		"status", report.Status,
		"generation", report.IndexGeneration,
		"expanded", report.Expansion.Fired,
		"lexical_candidates", report.Lexical.Candidates,
		"lexical_latency", report.Lexical.Latency,
		"semantic_candidates", report.Semantic.Candidates,
		"semantic_latency", report.Semantic.Latency,
		"expansion_latency", report.Expansion.Latency,
		"results", len(out.Fused),
	)
	return out, nil
}

func (h *HybridRetriever) candidateLimit(topK int) int {
	if h.cfg.CandidatePool > 0 {
		return max(h.cfg.CandidatePool, topK)
	}
	return max(3*topK, minCandidates)
}

func (h *HybridRetriever) runLexical(ctx context.Context, gen *bm25Generation, query string, limit int, rep *domain.SignalReport) []domain.ScoredCandidate {
	start := time.Now()
	rep.Attempted = true

	res, err := callBounded(ctx, h.cfg.PerSignalTimeout, func(context.Context) ([]domain.ScoredCandidate, error) {
		return h.lexical.scoreGeneration(gen, query, limit)
	})
	rep.Latency = time.Since(start)
	if err != nil {
		rep.Error = fmt.Errorf("%w: %v", domain.ErrSignalUnavailable, err).Error()
		h.logger.Warn("lexical signal unavailable", "error", err)
		return nil
	}

	rep.OK = true
	rep.Candidates = len(res)
	if len(res) > 0 {
		rep.TopScore = res[0].Score
	}
	return res
}

func (h *HybridRetriever) runExpansion(ctx context.Context, query string, decision domain.Decision, rep *domain.ExpansionReport) domain.ExpandedQuery {
	if !decision.Expand {
		return domain.ExpandedQuery{Original: query, Strategy: domain.StrategyNone}
	}
	if !h.semantic.Available() {
		rep.Error = errSemanticNotConfigured.Error()
		return domain.ExpandedQuery{Original: query, Strategy: domain.StrategyNone}
	}

	start := time.Now()
	expanded, err := h.expander.Expand(ctx, query)
	rep.Latency = time.Since(start)
	rep.Fired = true
	if err != nil {
		rep.FellBack = true
		rep.Error = err.Error()
		return expanded
	}

	rep.Strategy = expanded.Strategy
	rep.Texts = expanded.Expansions
	return expanded
}

func (h *HybridRetriever) runSemantic(ctx context.Context, expanded domain.ExpandedQuery, limit int, rep *domain.SignalReport) []domain.ScoredCandidate {
	if !h.semantic.Available() {
		rep.Error = fmt.Errorf("%w: %v", domain.ErrSignalUnavailable, errSemanticNotConfigured).Error()
		return nil
	}

	start := time.Now()
	rep.Attempted = true

	res, err := callBounded(ctx, h.cfg.PerSignalTimeout, func(ctx context.Context) ([]domain.ScoredCandidate, error) {
		return h.semantic.Score(ctx, expanded.SemanticTexts(), limit)
	})
	rep.Latency = time.Since(start)
	if err != nil {
		if !errors.Is(err, domain.ErrSignalUnavailable) {
			err = fmt.Errorf("%w: %v", domain.ErrSignalUnavailable, err)
		}
		rep.Error = err.Error()
		h.logger.Warn("semantic signal unavailable", "error", err)
		return nil
	}

	rep.OK = true
	rep.Candidates = len(res)
	if len(res) > 0 {
		rep.TopScore = res[0].Score
	}
	return res
}
