package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"

	"github.com/SAMithila/doc-intelligence/config"
	"github.com/SAMithila/doc-intelligence/internal/domain"
	"github.com/SAMithila/doc-intelligence/internal/port"
)

func openStore(t *testing.T) *BoltStore {
	t.Helper()
	st, err := NewBoltStore(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func sampleFile(docID, path string, texts ...string) port.IndexedFile {
	file := port.IndexedFile{Doc: domain.Document{
		ID:       docID,
		Path:     path,
		Title:    filepath.Base(path),
		ModTime:  time.Unix(1700000000, 42),
		Metadata: map[string]string{"ext": filepath.Ext(path)},
	}}
	offset := 0
	for i, text := range texts {
		file.Chunks = append(file.Chunks, domain.Chunk{
			ID:    docID + "-" + string(rune('a'+i)),
			DocID: docID,
			Seq:   i,
			Start: offset,
			End:   offset + len([]rune(text)),
			Text:  text,
		})
		offset += len([]rune(text))
	}
	return file
}

func TestBoltStore_BatchIndexAndRead(t *testing.T) {
	st := openStore(t)

	err := st.BatchIndex([]port.IndexedFile{
		sampleFile("d1", "/corpus/finance.md", "Q3 2024 revenue reached $1.15 billion", " and grew again"),
		sampleFile("d2", "/corpus/pricing.md", "CloudScale storage costs $0.023 per GB"),
	})
	require.NoError(t, err)

	doc, err := st.GetDoc("d1")
	require.NoError(t, err)
	assert.Equal(t, "/corpus/finance.md", doc.Path)
	assert.Equal(t, "finance.md", doc.Title)
	assert.Equal(t, ".md", doc.Metadata["ext"])
	assert.True(t, doc.ModTime.Equal(time.Unix(1700000000, 42)))

	chunk, err := st.GetChunk("d2-a")
	require.NoError(t, err)
	assert.Equal(t, "CloudScale storage costs $0.023 per GB", chunk.Text)
	assert.Equal(t, "d2", chunk.DocID)

	chunks, err := st.GetChunksByDoc("d1")
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, 0, chunks[0].Seq)
	assert.Equal(t, 1, chunks[1].Seq)

	all, err := st.AllChunks()
	require.NoError(t, err)
	assert.Len(t, all, 3)

	stats, err := st.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalDocs)
	assert.Equal(t, 3, stats.TotalChunks)
}

func TestBoltStore_ReindexReplacesChunks(t *testing.T) {
	st := openStore(t)

	require.NoError(t, st.BatchIndex([]port.IndexedFile{sampleFile("d1", "/a.md", "one", "two", "three")}))
	require.NoError(t, st.BatchIndex([]port.IndexedFile{sampleFile("d1", "/a.md", "only")}))

	chunks, err := st.GetChunksByDoc("d1")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "only", chunks[0].Text)

	_, err = st.GetChunk("d1-c")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBoltStore_DeleteDoc(t *testing.T) {
	st := openStore(t)
	require.NoError(t, st.BatchIndex([]port.IndexedFile{sampleFile("d1", "/a.md", "alpha", "beta")}))

	require.NoError(t, st.DeleteDoc("d1"))

	_, err := st.GetDoc("d1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	all, err := st.AllChunks()
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestBoltStore_MigrationsAndClear(t *testing.T) {
	st := openStore(t)
	cfg := config.DefaultConfig()

	compat, err := st.CheckCompatibility(cfg)
	require.NoError(t, err)
	assert.True(t, compat.Upgrade)
	assert.False(t, compat.Rebuild)
	assert.Equal(t, 0, compat.From)

	require.NoError(t, st.Migrate(cfg))
	compat, err = st.CheckCompatibility(cfg)
	require.NoError(t, err)
	assert.False(t, compat.Upgrade)
	assert.False(t, compat.Rebuild)

	t.Run("chunking change", func(t *testing.T) {
		changed := config.DefaultConfig()
		changed.Index.ChunkSize = 256
		compat, err := st.CheckCompatibility(changed)
		require.NoError(t, err)
		assert.True(t, compat.Rebuild)
		assert.Equal(t, "chunking configuration changed", compat.Reason)
	})

	t.Run("embedder change", func(t *testing.T) {
		changed := config.DefaultConfig()
		changed.Embedding.Dimension = 512
		compat, err := st.CheckCompatibility(changed)
		require.NoError(t, err)
		assert.True(t, compat.Rebuild)
		assert.Contains(t, compat.Reason, "embedder changed")
	})

	t.Run("lexical parameters do not invalidate", func(t *testing.T) {
		changed := config.DefaultConfig()
		changed.Index.K1 = 1.2
		compat, err := st.CheckCompatibility(changed)
		require.NoError(t, err)
		assert.False(t, compat.Rebuild)
	})

	require.NoError(t, st.BatchIndex([]port.IndexedFile{sampleFile("d1", "/a.md", "alpha")}))
	require.NoError(t, st.Clear())
	docs, err := st.ListDocs()
	require.NoError(t, err)
	assert.Empty(t, docs)

	info, err := st.SchemaInfo()
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, info.Version)
}

func TestBoltStore_UpgradeBackfillsDocChunks(t *testing.T) {
	st := openStore(t)
	require.NoError(t, st.BatchIndex([]port.IndexedFile{sampleFile("d1", "/a.md", "alpha", "beta")}))

	// Simulate a v1 file: no reverse index, schema stamped at v1.
	require.NoError(t, st.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketDocChunks); err != nil {
			return err
		}
		if _, err := tx.CreateBucket(bucketDocChunks); err != nil {
			return err
		}
		return putSchemaInfo(tx, SchemaInfo{Version: 1})
	}))
	chunks, err := st.GetChunksByDoc("d1")
	require.NoError(t, err)
	assert.Empty(t, chunks)

	cfg := config.DefaultConfig()
	compat, err := st.CheckCompatibility(cfg)
	require.NoError(t, err)
	assert.True(t, compat.Upgrade)
	assert.False(t, compat.Rebuild)

	require.NoError(t, st.Migrate(cfg))
	chunks, err = st.GetChunksByDoc("d1")
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "alpha", chunks[0].Text)
	assert.Equal(t, "beta", chunks[1].Text)
}

func TestBoltStore_NewerSchemaForcesRebuild(t *testing.T) {
	st := openStore(t)
	require.NoError(t, st.db.Update(func(tx *bbolt.Tx) error {
		return putSchemaInfo(tx, SchemaInfo{Version: SchemaVersion + 1})
	}))
	compat, err := st.CheckCompatibility(config.DefaultConfig())
	require.NoError(t, err)
	assert.True(t, compat.Rebuild)
	assert.False(t, compat.Upgrade)
}

func TestBoltVectorStore_NearestAndPersistence(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()

	vs, err := NewBoltVectorStore(st.DB(), 0)
	require.NoError(t, err)

	require.NoError(t, vs.Upsert(ctx, []port.VectorItem{
		{ID: "x", Vector: []float32{1, 0, 0}},
		{ID: "y", Vector: []float32{0, 1, 0}},
		{ID: "z", Vector: []float32{1, 1, 0}},
		{ID: "w", Vector: []float32{0, 1, 0}},
	}))

	got, err := vs.Nearest(ctx, []float32{0, 1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "w", got[0].ID, "equal distances break ties by ID")
	assert.Equal(t, "y", got[1].ID)
	assert.Equal(t, "z", got[2].ID)
	assert.InDelta(t, 0, got[0].Distance, 1e-9)

	_, err = vs.Nearest(ctx, []float32{1, 0}, 1)
	assert.Error(t, err, "dimension mismatch")
	assert.Error(t, vs.Upsert(ctx, []port.VectorItem{{ID: "bad", Vector: []float32{1}}}))

	require.NoError(t, vs.Delete([]string{"w"}))
	missing, err := vs.Missing([]string{"x", "w", "y"})
	require.NoError(t, err)
	assert.Equal(t, []string{"w"}, missing)

	reopened, err := NewBoltVectorStore(st.DB(), 3)
	require.NoError(t, err)
	n, err := reopened.Count()
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestBoltVectorStore_Encoding(t *testing.T) {
	v := []float32{0, -1.5, 3.25e-7, 42}
	got, err := decodeVector(encodeVector(v))
	require.NoError(t, err)
	assert.Equal(t, v, got)

	st := openStore(t)
	require.NoError(t, st.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketVectors)
		if err != nil {
			return err
		}
		return b.Put([]byte("broken"), []byte{1, 2, 3})
	}))
	_, err = NewBoltVectorStore(st.DB(), 0)
	assert.Error(t, err)
}

func TestCosineDistance(t *testing.T) {
	assert.InDelta(t, 0.0, CosineDistance([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 2.0, CosineDistance([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.InDelta(t, 1.0, CosineDistance([]float32{0, 0}, []float32{1, 0}), 1e-9)
	assert.InDelta(t, 1.0, CosineDistance([]float32{1}, []float32{1, 0}), 1e-9)
}
