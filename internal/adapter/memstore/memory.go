package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/SAMithila/doc-intelligence/internal/adapter/store"
	"github.com/SAMithila/doc-intelligence/internal/domain"
	"github.com/SAMithila/doc-intelligence/internal/port"
)

// MemoryStore is an in-memory port.ChunkStore.
type MemoryStore struct {
	mu        sync.RWMutex
	docs      map[string]domain.Document
	chunks    map[string]domain.Chunk
	docChunks map[string][]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:      make(map[string]domain.Document),
		chunks:    make(map[string]domain.Chunk),
		docChunks: make(map[string][]string),
	}
}

func (s *MemoryStore) PutDoc(doc domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.ID] = doc
	return nil
}

func (s *MemoryStore) GetDoc(id string) (domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	if !ok {
		return domain.Document{}, fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}
	return doc, nil
}

func (s *MemoryStore) DeleteDoc(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteChunksByDoc(id)
	delete(s.docs, id)
	return nil
}

func (s *MemoryStore) ListDocs() ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := make([]domain.Document, 0, len(s.docs))
	for _, doc := range s.docs {
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

func (s *MemoryStore) GetChunk(id string) (domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chunk, ok := s.chunks[id]
	if !ok {
		return domain.Chunk{}, fmt.Errorf("chunk %s: %w", id, domain.ErrNotFound)
	}
	return chunk, nil
}

func (s *MemoryStore) GetChunksByDoc(docID string) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chunkIDs := s.docChunks[docID]
	chunks := make([]domain.Chunk, 0, len(chunkIDs))
	for _, id := range chunkIDs {
		if chunk, ok := s.chunks[id]; ok {
			chunks = append(chunks, chunk)
		}
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Seq < chunks[j].Seq })
	return chunks, nil
}

// AllChunks returns every chunk ordered by ID.
func (s *MemoryStore) AllChunks() ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chunks := make([]domain.Chunk, 0, len(s.chunks))
	for _, c := range s.chunks {
		chunks = append(chunks, c)
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].ID < chunks[j].ID })
	return chunks, nil
}

func (s *MemoryStore) GetStats() (domain.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := domain.Stats{TotalDocs: len(s.docs), TotalChunks: len(s.chunks)}
	if len(s.chunks) > 0 {
		total := 0
		for _, c := range s.chunks {
			total += c.End - c.Start
		}
		stats.AvgChunkLen = float64(total) / float64(len(s.chunks))
	}
	return stats, nil
}

func (s *MemoryStore) BatchIndex(files []port.IndexedFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, file := range files {
		s.deleteChunksByDoc(file.Doc.ID)
		s.docs[file.Doc.ID] = file.Doc

		for _, chunk := range file.Chunks {
			s.chunks[chunk.ID] = chunk
			s.docChunks[chunk.DocID] = append(s.docChunks[chunk.DocID], chunk.ID)
		}
	}
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) deleteChunksByDoc(docID string) {
	for _, id := range s.docChunks[docID] {
		delete(s.chunks, id)
	}
	delete(s.docChunks, docID)
}

// VectorStore is an in-memory port.VectorStore with brute-force search.
type VectorStore struct {
	mu      sync.RWMutex
	vectors map[string][]float32
}

func NewVectorStore() *VectorStore {
	return &VectorStore{vectors: make(map[string][]float32)}
}

func (s *VectorStore) Upsert(ctx context.Context, items []port.VectorItem) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range items {
		s.vectors[item.ID] = item.Vector
	}
	return nil
}

func (s *VectorStore) Nearest(ctx context.Context, query []float32, k int) ([]port.Neighbor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return store.Nearest(query, s.vectors, k), nil
}

func (s *VectorStore) Delete(ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.vectors, id)
	}
	return nil
}

func (s *VectorStore) Missing(ids []string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var missing []string
	for _, id := range ids {
		if _, ok := s.vectors[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

func (s *VectorStore) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vectors), nil
}
