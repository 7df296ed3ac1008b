package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/SAMithila/doc-intelligence/config"
)

// SchemaVersion is bumped whenever the bucket layout changes.
//
//	v1  docs, chunks, blobs
//	v2  doc_chunks reverse index (doc id -> chunk ids)
const SchemaVersion = 2

var keySchema = []byte("schema")

// SchemaInfo is the single record kept in the stats bucket. Fingerprint
// covers every setting that shapes stored data; Embedder is kept
// separately so a mismatch can be reported by name.
type SchemaInfo struct {
	Version     int    `json:"version"`
	Fingerprint string `json:"fingerprint"`
	Embedder    string `json:"embedder,omitempty"`
}

func (s *BoltStore) SchemaInfo() (SchemaInfo, error) {
	var info SchemaInfo
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketStats).Get(keySchema)
		if data == nil {
			return nil
		}
		if err := json.Unmarshal(data, &info); err != nil {
			return fmt.Errorf("decode schema info: %w", err)
		}
		return nil
	})
	return info, err
}

func putSchemaInfo(tx *bbolt.Tx, info SchemaInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketStats).Put(keySchema, data)
}

// Fingerprint hashes chunk geometry and the embedding space. BM25 k1/b are
// applied when the in-memory index is built and stay out of it.
func Fingerprint(cfg *config.Config) string {
	data, _ := json.Marshal(struct {
		Size     int    `json:"size"`
		Overlap  int    `json:"overlap"`
		Embedder string `json:"embedder"`
	}{cfg.Index.ChunkSize, cfg.Index.ChunkOverlap, embedderName(cfg)})
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}

func embedderName(cfg *config.Config) string {
	if !cfg.Embedding.Enabled {
		return ""
	}
	return fmt.Sprintf("%s/%s/%d", cfg.Embedding.Provider, cfg.Embedding.Model, cfg.Embedding.Dimension)
}

// Compatibility tells the caller what has to happen before the stored data
// can serve the given configuration.
type Compatibility struct {
	From, To int
	Upgrade  bool // older layout, migrate in place
	Rebuild  bool // data is unusable, clear and reindex
	Reason   string
}

func (s *BoltStore) CheckCompatibility(cfg *config.Config) (Compatibility, error) {
	info, err := s.SchemaInfo()
	if err != nil {
		return Compatibility{}, err
	}
	c := Compatibility{From: info.Version, To: SchemaVersion}

	switch {
	case info.Version > SchemaVersion:
		c.Rebuild = true
		c.Reason = fmt.Sprintf("written by a newer docint (schema v%d)", info.Version)
		return c, nil
	case info.Version < SchemaVersion:
		c.Upgrade = true
		c.Reason = fmt.Sprintf("schema v%d -> v%d", info.Version, SchemaVersion)
	}

	if info.Fingerprint == "" || info.Fingerprint == Fingerprint(cfg) {
		return c, nil
	}
	c.Rebuild = true
	if name := embedderName(cfg); info.Embedder != name {
		c.Reason = fmt.Sprintf("embedder changed from %q to %q", info.Embedder, name)
	} else {
		c.Reason = "chunking configuration changed"
	}
	return c, nil
}

// Migrate upgrades the layout step by step and stamps the configuration,
// all in one transaction.
func (s *BoltStore) Migrate(cfg *config.Config) error {
	info, err := s.SchemaInfo()
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		for v := info.Version; v < SchemaVersion; v++ {
			if err := upgrade(tx, v); err != nil {
				return fmt.Errorf("upgrade schema v%d: %w", v, err)
			}
		}
		return putSchemaInfo(tx, SchemaInfo{
			Version:     SchemaVersion,
			Fingerprint: Fingerprint(cfg),
			Embedder:    embedderName(cfg),
		})
	})
}

func upgrade(tx *bbolt.Tx, from int) error {
	switch from {
	case 0:
		for _, name := range dataBuckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	case 1:
		return backfillDocChunks(tx)
	default:
		return nil
	}
}

// backfillDocChunks rebuilds the reverse index from chunk metadata.
func backfillDocChunks(tx *bbolt.Tx) error {
	byDoc := make(map[string][]string)
	err := tx.Bucket(bucketChunks).ForEach(func(k, v []byte) error {
		var meta chunkMeta
		if err := json.Unmarshal(v, &meta); err != nil {
			return fmt.Errorf("decode chunk %s: %w", k, err)
		}
		byDoc[meta.DocID] = append(byDoc[meta.DocID], string(k))
		return nil
	})
	if err != nil {
		return err
	}
	b := tx.Bucket(bucketDocChunks)
	for docID, ids := range byDoc {
		data, err := json.Marshal(ids)
		if err != nil {
			return err
		}
		if err := b.Put([]byte(docID), data); err != nil {
			return err
		}
	}
	return nil
}

// Clear drops documents, chunks and vectors. The schema record survives so
// the next Migrate only restamps the fingerprint.
func (s *BoltStore) Clear() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range append(dataBuckets, bucketVectors) {
			if tx.Bucket(name) != nil {
				if err := tx.DeleteBucket(name); err != nil {
					return err
				}
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return err
			}
		}
		return nil
	})
}
