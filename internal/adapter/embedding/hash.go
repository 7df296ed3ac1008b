package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"

	"github.com/SAMithila/doc-intelligence/internal/port"
)

// HashEmbedder is a deterministic, offline embedder: each token is hashed
// into one of dim buckets and the resulting count vector is L2-normalized.
// Texts sharing tokens therefore have positive cosine similarity, which is
// enough for local runs and tests without a model server.
type HashEmbedder struct {
	tokenizer port.Tokenizer
	dim       int
}

func NewHashEmbedder(tokenizer port.Tokenizer, dim int) *HashEmbedder {
	if dim <= 0 {
		dim = 256
	}
	return &HashEmbedder{tokenizer: tokenizer, dim: dim}
}

func (e *HashEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.vector(text), nil
}

func (e *HashEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *HashEmbedder) Dimension() int {
	return e.dim
}

func (e *HashEmbedder) ModelName() string {
	return fmt.Sprintf("hash-%d", e.dim)
}

func (e *HashEmbedder) vector(text string) []float32 {
	vec := make([]float32, e.dim)
	for _, tok := range e.tokenizer.Tokenize(text) {
		h := fnv.New32a()
		h.Write([]byte(tok))
		vec[h.Sum32()%uint32(e.dim)]++
	}

	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum > 0 {
		norm := float32(1 / math.Sqrt(sum))
		for i := range vec {
			vec[i] *= norm
		}
	}
	return vec
}
