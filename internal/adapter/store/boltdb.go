package store

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"github.com/SAMithila/doc-intelligence/internal/domain"
	"github.com/SAMithila/doc-intelligence/internal/port"
)

var (
	bucketDocs      = []byte("docs")
	bucketChunks    = []byte("chunks")
	bucketBlobs     = []byte("blobs")
	bucketStats     = []byte("stats")
	bucketDocChunks = []byte("doc_chunks")
)

var dataBuckets = [][]byte{bucketDocs, bucketChunks, bucketBlobs, bucketDocChunks}

// BoltStore persists documents and chunks in a single BoltDB file. Chunk
// metadata and chunk text live in separate buckets so listing chunks for a
// rebuild does not page in unrelated data.
type BoltStore struct {
	db *bbolt.DB
}

func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range append(dataBuckets, bucketStats) {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// DB exposes the handle so the vector store can share the file.
func (s *BoltStore) DB() *bbolt.DB {
	return s.db
}

type docMeta struct {
	Path     string            `json:"path"`
	Title    string            `json:"title,omitempty"`
	ModTime  int64             `json:"mod_time"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type chunkMeta struct {
	DocID string `json:"doc_id"`
	Seq   int    `json:"seq"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

func (s *BoltStore) PutDoc(doc domain.Document) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return putDoc(tx, doc)
	})
}

func putDoc(tx *bbolt.Tx, doc domain.Document) error {
	data, err := json.Marshal(docMeta{
		Path:     doc.Path,
		Title:    doc.Title,
		ModTime:  doc.ModTime.UnixNano(),
		Metadata: doc.Metadata,
	})
	if err != nil {
		return err
	}
	return tx.Bucket(bucketDocs).Put([]byte(doc.ID), data)
}

func decodeDoc(id string, data []byte) (domain.Document, error) {
	var meta docMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return domain.Document{}, fmt.Errorf("decode document %s: %w", id, err)
	}
	return domain.Document{
		ID:       id,
		Path:     meta.Path,
		Title:    meta.Title,
		ModTime:  time.Unix(0, meta.ModTime),
		Metadata: meta.Metadata,
	}, nil
}

func (s *BoltStore) GetDoc(id string) (domain.Document, error) {
	var doc domain.Document
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketDocs).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
		}
		var err error
		doc, err = decodeDoc(id, data)
		return err
	})
	return doc, err
}

// DeleteDoc removes a document together with its chunks.
func (s *BoltStore) DeleteDoc(id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := deleteChunksByDoc(tx, id); err != nil {
			return err
		}
		return tx.Bucket(bucketDocs).Delete([]byte(id))
	})
}

func (s *BoltStore) ListDocs() ([]domain.Document, error) {
	var docs []domain.Document
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketDocs).ForEach(func(k, v []byte) error {
			doc, err := decodeDoc(string(k), v)
			if err != nil {
				return err
			}
			docs = append(docs, doc)
			return nil
		})
	})
	return docs, err
}

func putChunk(tx *bbolt.Tx, chunk domain.Chunk) error {
	data, err := json.Marshal(chunkMeta{
		DocID: chunk.DocID,
		Seq:   chunk.Seq,
		Start: chunk.Start,
		End:   chunk.End,
	})
	if err != nil {
		return err
	}
	if err := tx.Bucket(bucketChunks).Put([]byte(chunk.ID), data); err != nil {
		return err
	}
	return tx.Bucket(bucketBlobs).Put([]byte(chunk.ID), []byte(chunk.Text))
}

func getChunk(tx *bbolt.Tx, id string) (domain.Chunk, error) {
	data := tx.Bucket(bucketChunks).Get([]byte(id))
	if data == nil {
		return domain.Chunk{}, fmt.Errorf("chunk %s: %w", id, domain.ErrNotFound)
	}
	var meta chunkMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return domain.Chunk{}, fmt.Errorf("decode chunk %s: %w", id, err)
	}
	return domain.Chunk{
		ID:    id,
		DocID: meta.DocID,
		Seq:   meta.Seq,
		Start: meta.Start,
		End:   meta.End,
		Text:  string(tx.Bucket(bucketBlobs).Get([]byte(id))),
	}, nil
}

func (s *BoltStore) GetChunk(id string) (domain.Chunk, error) {
	var chunk domain.Chunk
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		chunk, err = getChunk(tx, id)
		return err
	})
	return chunk, err
}

func docChunkIDs(tx *bbolt.Tx, docID string) ([]string, error) {
	data := tx.Bucket(bucketDocChunks).Get([]byte(docID))
	if data == nil {
		return nil, nil
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("decode chunk list of %s: %w", docID, err)
	}
	return ids, nil
}

// GetChunksByDoc returns a document's chunks in sequence order.
func (s *BoltStore) GetChunksByDoc(docID string) ([]domain.Chunk, error) {
	var chunks []domain.Chunk
	err := s.db.View(func(tx *bbolt.Tx) error {
		ids, err := docChunkIDs(tx, docID)
		if err != nil {
			return err
		}
		for _, id := range ids {
			chunk, err := getChunk(tx, id)
			if err != nil {
				return err
			}
			chunks = append(chunks, chunk)
		}
		return nil
	})
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Seq < chunks[j].Seq })
	return chunks, err
}

func deleteChunksByDoc(tx *bbolt.Tx, docID string) error {
	ids, err := docChunkIDs(tx, docID)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := tx.Bucket(bucketChunks).Delete([]byte(id)); err != nil {
			return err
		}
		if err := tx.Bucket(bucketBlobs).Delete([]byte(id)); err != nil {
			return err
		}
	}
	return tx.Bucket(bucketDocChunks).Delete([]byte(docID))
}

// AllChunks returns every stored chunk in key order.
func (s *BoltStore) AllChunks() ([]domain.Chunk, error) {
	var chunks []domain.Chunk
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketChunks).ForEach(func(k, _ []byte) error {
			chunk, err := getChunk(tx, string(k))
			if err != nil {
				return err
			}
			chunks = append(chunks, chunk)
			return nil
		})
	})
	return chunks, err
}

// GetStats computes corpus statistics. Chunk length is measured in runes.
func (s *BoltStore) GetStats() (domain.Stats, error) {
	var stats domain.Stats
	err := s.db.View(func(tx *bbolt.Tx) error {
		stats.TotalDocs = tx.Bucket(bucketDocs).Stats().KeyN
		total := 0
		err := tx.Bucket(bucketChunks).ForEach(func(k, v []byte) error {
			var meta chunkMeta
			if err := json.Unmarshal(v, &meta); err != nil {
				return fmt.Errorf("decode chunk %s: %w", k, err)
			}
			stats.TotalChunks++
			total += meta.End - meta.Start
			return nil
		})
		if stats.TotalChunks > 0 {
			stats.AvgChunkLen = float64(total) / float64(stats.TotalChunks)
		}
		return err
	})
	return stats, err
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

// BatchIndex writes documents and their chunks in one transaction. Any chunks
// previously stored for the same document are replaced.
func (s *BoltStore) BatchIndex(files []port.IndexedFile) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, file := range files {
			if err := deleteChunksByDoc(tx, file.Doc.ID); err != nil {
				return err
			}
			if err := putDoc(tx, file.Doc); err != nil {
				return err
			}

			ids := make([]string, 0, len(file.Chunks))
			for _, chunk := range file.Chunks {
				if err := putChunk(tx, chunk); err != nil {
					return err
				}
				ids = append(ids, chunk.ID)
			}

			data, err := json.Marshal(ids)
			if err != nil {
				return err
			}
			if err := tx.Bucket(bucketDocChunks).Put([]byte(file.Doc.ID), data); err != nil {
				return err
			}
		}
		return nil
	})
}
