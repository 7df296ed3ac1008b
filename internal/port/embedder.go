package port

import "context"

// Embedder maps text to fixed-length vectors.
type Embedder interface {
	// EmbedQuery embeds a single search text.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// EmbedDocuments embeds texts in order, one vector per input text.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the embedding vector dimension, 0 if not known up front.
	Dimension() int

	// ModelName returns the name of the embedding model.
	ModelName() string
}

// VectorStore stores embedding vectors and answers nearest-neighbour queries.
type VectorStore interface {
	// Upsert adds or updates vectors in the store.
	Upsert(ctx context.Context, items []VectorItem) error

	// Nearest returns up to k neighbours ordered by ascending cosine
	// distance in [0, 2], ties broken by ID.
	Nearest(ctx context.Context, query []float32, k int) ([]Neighbor, error)

	// Delete removes vectors by their IDs.
	Delete(ids []string) error

	// Missing returns the IDs, in input order, that have no stored vector.
	Missing(ids []string) ([]string, error)

	// Count returns the number of vectors in the store.
	Count() (int, error)
}

// VectorItem is one chunk's embedding.
type VectorItem struct {
	ID     string // chunk ID
	Vector []float32
}

// Neighbor is a single nearest-neighbour hit.
type Neighbor struct {
	ID       string
	Distance float64
}
