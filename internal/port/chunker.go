package port

import "github.com/SAMithila/doc-intelligence/internal/domain"

type Chunker interface {
	Chunk(doc domain.Document, content string) ([]domain.Chunk, error)
}
