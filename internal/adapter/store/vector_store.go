package store

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"go.etcd.io/bbolt"

	"github.com/SAMithila/doc-intelligence/internal/port"
)

var bucketVectors = []byte("vectors")

// BoltVectorStore keeps chunk embeddings in the vectors bucket of the index
// file, encoded as little-endian float32. The whole set is mirrored in
// memory and searched by brute force.
type BoltVectorStore struct {
	db  *bbolt.DB
	dim int

	mu      sync.RWMutex
	vectors map[string][]float32
}

// NewBoltVectorStore loads the vectors already stored in db. dim 0 means
// the dimension is taken from the first vector seen.
func NewBoltVectorStore(db *bbolt.DB, dim int) (*BoltVectorStore, error) {
	s := &BoltVectorStore{db: db, dim: dim, vectors: make(map[string][]float32)}

	err := db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketVectors)
		if err != nil {
			return err
		}
		return b.ForEach(func(k, v []byte) error {
			vec, err := decodeVector(v)
			if err != nil {
				return fmt.Errorf("vector %s: %w", k, err)
			}
			if s.dim == 0 {
				s.dim = len(vec)
			}
			if len(vec) != s.dim {
				return fmt.Errorf("vector %s has dimension %d, store expects %d", k, len(vec), s.dim)
			}
			s.vectors[string(k)] = vec
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load vectors: %w", err)
	}
	return s, nil
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("corrupt encoding (%d bytes)", len(buf))
	}
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return v, nil
}

// Upsert writes all items in one transaction; the in-memory mirror is only
// touched once it commits.
func (s *BoltVectorStore) Upsert(ctx context.Context, items []port.VectorItem) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dim := s.dim
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketVectors)
		for _, item := range items {
			if dim == 0 {
				dim = len(item.Vector)
			}
			if len(item.Vector) != dim {
				return fmt.Errorf("vector %s: dimension mismatch: expected %d, got %d", item.ID, dim, len(item.Vector))
			}
			if err := b.Put([]byte(item.ID), encodeVector(item.Vector)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.dim = dim
	for _, item := range items {
		s.vectors[item.ID] = item.Vector
	}
	return nil
}

func (s *BoltVectorStore) Nearest(ctx context.Context, query []float32, k int) ([]port.Neighbor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.dim > 0 && len(query) != s.dim {
		return nil, fmt.Errorf("query dimension mismatch: expected %d, got %d", s.dim, len(query))
	}
	return Nearest(query, s.vectors, k), nil
}

// Delete ignores IDs that are not stored.
func (s *BoltVectorStore) Delete(ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketVectors)
		for _, id := range ids {
			if err := b.Delete([]byte(id)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, id := range ids {
		delete(s.vectors, id)
	}
	return nil
}

func (s *BoltVectorStore) Missing(ids []string) ([]string, error) {
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

func (s *BoltVectorStore) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vectors), nil
}
