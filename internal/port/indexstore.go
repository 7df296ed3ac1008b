package port

import "github.com/SAMithila/doc-intelligence/internal/domain"

// ChunkSource delivers the chunk set the lexical index is built from.
type ChunkSource interface {
	AllChunks() ([]domain.Chunk, error)
}

// ChunkStore persists documents and their chunks. Lookups of unknown IDs
// return an error wrapping domain.ErrNotFound.
type ChunkStore interface {
	ChunkSource

	PutDoc(doc domain.Document) error

	GetDoc(id string) (domain.Document, error)

	DeleteDoc(id string) error

	ListDocs() ([]domain.Document, error)

	GetChunk(id string) (domain.Chunk, error)

	GetChunksByDoc(docID string) ([]domain.Chunk, error)

	GetStats() (domain.Stats, error)

	BatchIndex(files []IndexedFile) error

	Close() error
}

type IndexedFile struct {
	Doc    domain.Document
	Chunks []domain.Chunk
}
