package port

import "context"

// RerankedResult scores one passage. Index points into the passages given
// to Rerank.
type RerankedResult struct {
	Index int
	Score float64
}

// Reranker rescores passages against a query, best first.
type Reranker interface {
	Rerank(ctx context.Context, query string, passages []string) ([]RerankedResult, error)

	// ModelName returns the name of the scoring model.
	ModelName() string
}
