package port

import (
	"context"

	"github.com/SAMithila/doc-intelligence/internal/domain"
)

// Retriever produces a fused ranking and its per-query report.
type Retriever interface {
	Retrieve(ctx context.Context, req domain.Request) (*domain.Outcome, error)
}
