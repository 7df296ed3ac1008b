package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/SAMithila/doc-intelligence/internal/domain"
	"github.com/SAMithila/doc-intelligence/internal/port"
)

// RetrieveUseCase answers queries and joins the fused ranking with chunk
// text and document metadata.
type RetrieveUseCase struct {
	retriever     port.Retriever
	store         port.ChunkStore
	reranker      port.Reranker
	rerankTimeout time.Duration
	logger        *slog.Logger
}

type RetrieveOption func(*RetrieveUseCase)

// WithReranker reorders the joined results by reranker score. timeout 0
// leaves the call bounded only by the caller's context.
func WithReranker(reranker port.Reranker, timeout time.Duration) RetrieveOption {
	return func(u *RetrieveUseCase) {
		u.reranker = reranker
		u.rerankTimeout = timeout
	}
}

func NewRetrieveUseCase(retriever port.Retriever, store port.ChunkStore, opts ...RetrieveOption) *RetrieveUseCase {
	u := &RetrieveUseCase{
		retriever: retriever,
		store:     store,
		logger:    slog.Default().With("component", "retrieve"),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Retrieve runs req. When the retriever reports an error alongside an
// outcome, the response still carries the report so callers can show why.
func (u *RetrieveUseCase) Retrieve(ctx context.Context, req domain.Request) (*domain.Response, error) {
	out, err := u.retriever.Retrieve(ctx, req)
	if out == nil {
		return nil, err
	}

	resp := &domain.Response{Results: []domain.Result{}, Report: out.Report}
	if err != nil {
		return resp, err
	}

	docs := make(map[string]domain.Document)
	for _, f := range out.Fused {
		chunk, err := u.store.GetChunk(f.ChunkID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				// Index and store briefly disagree while a reindex is in flight.
				u.logger.Debug("fused chunk missing from store", "chunk_id", f.ChunkID)
				continue
			}
			return resp, err
		}

		doc, ok := docs[chunk.DocID]
		if !ok {
			doc, err = u.store.GetDoc(chunk.DocID)
			if err != nil && !errors.Is(err, domain.ErrNotFound) {
				return resp, err
			}
			docs[chunk.DocID] = doc
		}

		resp.Results = append(resp.Results, domain.Result{
			ChunkID:      chunk.ID,
			DocID:        chunk.DocID,
			Text:         chunk.Text,
			Score:        f.Score,
			Sources:      f.Sources(),
			LexicalRank:  f.LexicalRank,
			SemanticRank: f.SemanticRank,
			Start:        chunk.Start,
			End:          chunk.End,
			Path:         doc.Path,
			Title:        doc.Title,
			Metadata:     doc.Metadata,
		})
	}

	if u.reranker != nil && len(resp.Results) > 0 {
		u.rerank(ctx, req.Query, resp.Results, &resp.Report.Rerank)
	}
	return resp, nil
}

// rerank sorts results by reranker score, stable so that ties keep the
// fused order. On failure the fused order stands and only the report
// records the error.
func (u *RetrieveUseCase) rerank(ctx context.Context, query string, results []domain.Result, rep *domain.SignalReport) {
	if u.rerankTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.rerankTimeout)
		defer cancel()
	}

	passages := make([]string, len(results))
	for i, r := range results {
		passages[i] = r.Text
	}

	start := time.Now()
	rep.Attempted = true
	ranked, err := u.reranker.Rerank(ctx, query, passages)
	rep.Latency = time.Since(start)
	if err != nil {
		rep.Error = err.Error()
		u.logger.Warn("rerank failed, keeping fused order", "model", u.reranker.ModelName(), "error", err)
		return
	}

	for _, r := range ranked {
		if r.Index >= 0 && r.Index < len(results) {
			results[r.Index].RerankScore = r.Score
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].RerankScore > results[j].RerankScore
	})

	rep.OK = true
	rep.Candidates = len(ranked)
	rep.TopScore = results[0].RerankScore
}

// MaxScore returns the best semantic similarity resp saw, the value to pass
// as Request.PriorMaxScore when retrying the query. It is 0 when the
// semantic signal did not answer.
func MaxScore(resp *domain.Response) float64 {
	if resp == nil || !resp.Report.Semantic.OK {
		return 0
	}
	return resp.Report.Semantic.TopScore
}
