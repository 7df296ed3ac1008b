package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/SAMithila/doc-intelligence/internal/adapter/retriever"
	"github.com/SAMithila/doc-intelligence/internal/domain"
	"github.com/SAMithila/doc-intelligence/internal/port"
)

const (
	DefaultEmbedBatchSize = 64
	DefaultEmbedWorkers   = 4
)

// ProgressFunc is called after each file is processed.
type ProgressFunc func(processed, total int, path string)

// IndexUseCase handles file indexing operations.
type IndexUseCase struct {
	store    port.ChunkStore
	walker   port.FileWalker
	reader   port.FileReader
	chunker  port.Chunker
	lexical  *retriever.BM25Index
	embedder port.Embedder
	vectors  port.VectorStore

	batchSize int
	workers   int
	logger    *slog.Logger
}

type IndexOption func(*IndexUseCase)

// WithEmbeddings enables the semantic side of indexing.
func WithEmbeddings(embedder port.Embedder, vectors port.VectorStore) IndexOption {
	return func(u *IndexUseCase) {
		u.embedder = embedder
		u.vectors = vectors
	}
}

func WithEmbedBatchSize(n int) IndexOption {
	return func(u *IndexUseCase) {
		if n > 0 {
			u.batchSize = n
		}
	}
}

func WithEmbedWorkers(n int) IndexOption {
	return func(u *IndexUseCase) {
		if n > 0 {
			u.workers = n
		}
	}
}

func WithIndexLogger(logger *slog.Logger) IndexOption {
	return func(u *IndexUseCase) {
		if logger != nil {
			u.logger = logger.With("component", "index")
		}
	}
}

// NewIndexUseCase creates a new index use case.
func NewIndexUseCase(
	store port.ChunkStore,
	walker port.FileWalker,
	reader port.FileReader,
	chunker port.Chunker,
	lexical *retriever.BM25Index,
	opts ...IndexOption,
) *IndexUseCase {
	u := &IndexUseCase{
		store:     store,
		walker:    walker,
		reader:    reader,
		chunker:   chunker,
		lexical:   lexical,
		batchSize: DefaultEmbedBatchSize,
		workers:   DefaultEmbedWorkers,
		logger:    slog.Default().With("component", "index"),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// IndexResult contains the results of an indexing operation.
type IndexResult struct {
	FilesIndexed   int
	FilesSkipped   int
	FilesDeleted   int
	ChunksCreated  int
	ChunksEmbedded int
	// ChunksBackfilled counts chunks of unchanged files embedded because an
	// earlier run left them without a vector. They are included in ChunksEmbedded.
	ChunksBackfilled int
	Generation       uint64
	Stats            domain.Stats
	Duration         time.Duration
	Errors           []string
}

// Index brings the store up to date with the files under root and publishes
// a fresh lexical generation. Unchanged files are skipped by modification
// time. Per-file and embedding failures are collected in the result; only
// store failures abort.
func (u *IndexUseCase) Index(ctx context.Context, root string, progress ProgressFunc) (*IndexResult, error) {
	start := time.Now()
	result := &IndexResult{}

	files, err := u.walker.Walk(root)
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}

	existingDocs, err := u.store.ListDocs()
	if err != nil {
		return nil, fmt.Errorf("failed to list existing docs: %w", err)
	}
	existing := make(map[string]domain.Document, len(existingDocs))
	for _, doc := range existingDocs {
		existing[doc.Path] = doc
	}

	seen := make(map[string]bool, len(files))
	var (
		pending  []port.IndexedFile
		stale    []string
		backfill []domain.Chunk // chunks of unchanged files that still lack a vector
	)

	for i, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		seen[file.Path] = true

		doc, known := existing[file.Path]
		if known && doc.ModTime.UnixNano() >= file.ModTime {
			result.FilesSkipped++
			backfill = append(backfill, u.unembedded(doc.ID)...)
			u.report(progress, i+1, len(files), file.Path)
			continue
		}

		indexed, err := u.prepareFile(file)
		if err != nil {
			// The previous version of the file stays searchable on both channels.
			result.Errors = append(result.Errors, fmt.Sprintf("failed to index %s: %v", file.Path, err))
			u.report(progress, i+1, len(files), file.Path)
			continue
		}
		if known {
			stale = append(stale, u.chunkIDs(doc.ID)...)
		}
		pending = append(pending, indexed)
		result.FilesIndexed++
		result.ChunksCreated += len(indexed.Chunks)
		u.report(progress, i+1, len(files), file.Path)
	}

	for path, doc := range existing {
		if seen[path] {
			continue
		}
		stale = append(stale, u.chunkIDs(doc.ID)...)
		if err := u.store.DeleteDoc(doc.ID); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("failed to delete %s: %v", path, err))
			continue
		}
		result.FilesDeleted++
	}

	if err := u.store.BatchIndex(pending); err != nil {
		return nil, fmt.Errorf("failed to store chunks: %w", err)
	}

	if u.vectors != nil && len(stale) > 0 {
		if err := u.vectors.Delete(stale); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("failed to delete stale vectors: %v", err))
		}
	}

	if u.embedder != nil && u.vectors != nil {
		chunks := backfill
		for _, f := range pending {
			chunks = append(chunks, f.Chunks...)
		}
		embedded, err := u.embedChunks(ctx, chunks)
		result.ChunksEmbedded = embedded
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("embedding generation failed: %v", err))
		} else {
			result.ChunksBackfilled = len(backfill)
		}
	}

	gen, err := u.lexical.BuildFrom(u.store)
	if err != nil {
		return nil, fmt.Errorf("failed to build lexical index: %w", err)
	}
	result.Generation = gen
	if result.Stats, err = u.store.GetStats(); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("failed to read index stats: %v", err))
	}
	result.Duration = time.Since(start)

	u.logger.Info("indexing complete",
		"indexed", result.FilesIndexed,
		"skipped", result.FilesSkipped,
		"deleted", result.FilesDeleted,
		"chunks", result.ChunksCreated,
		"embedded", result.ChunksEmbedded,
		"generation", gen,
		"duration", result.Duration,
	)
	return result, nil
}

func (u *IndexUseCase) report(progress ProgressFunc, processed, total int, path string) {
	if progress != nil {
		progress(processed, total, path)
	}
}

func (u *IndexUseCase) prepareFile(file port.FileInfo) (port.IndexedFile, error) {
	content, err := u.reader.ReadFile(file.Path)
	if err != nil {
		return port.IndexedFile{}, fmt.Errorf("failed to read file: %w", err)
	}

	doc := domain.Document{
		ID:      generateDocID(file.Path),
		Path:    file.Path,
		Title:   extractTitle(file.Path, content),
		ModTime: time.Unix(0, file.ModTime),
		Metadata: map[string]string{
			"format": detectFormat(file.Path),
		},
	}

	chunks, err := u.chunker.Chunk(doc, content)
	if err != nil {
		return port.IndexedFile{}, fmt.Errorf("failed to chunk content: %w", err)
	}
	return port.IndexedFile{Doc: doc, Chunks: chunks}, nil
}

// unembedded returns the stored chunks of a document that have no vector,
// typically left behind by an embedding outage during an earlier run.
func (u *IndexUseCase) unembedded(docID string) []domain.Chunk {
	if u.embedder == nil || u.vectors == nil {
		return nil
	}
	chunks, err := u.store.GetChunksByDoc(docID)
	if err != nil {
		u.logger.Warn("failed to list chunks of document", "doc_id", docID, "error", err)
		return nil
	}
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}
	missing, err := u.vectors.Missing(ids)
	if err != nil {
		u.logger.Warn("failed to check stored vectors", "doc_id", docID, "error", err)
		return nil
	}
	if len(missing) == 0 {
		return nil
	}
	want := make(map[string]bool, len(missing))
	for _, id := range missing {
		want[id] = true
	}
	var out []domain.Chunk
	for _, c := range chunks {
		if want[c.ID] {
			out = append(out, c)
		}
	}
	return out
}

func (u *IndexUseCase) chunkIDs(docID string) []string {
	chunks, err := u.store.GetChunksByDoc(docID)
	if err != nil {
		u.logger.Warn("failed to list chunks of document", "doc_id", docID, "error", err)
		return nil
	}
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}
	return ids
}

// embedChunks embeds chunks in batches on a bounded worker pool and stores
// the vectors. It returns how many chunks were stored; failed batches are
// joined into the error.
func (u *IndexUseCase) embedChunks(ctx context.Context, chunks []domain.Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}

	pool, err := ants.NewPool(u.workers)
	if err != nil {
		return 0, err
	}
	defer pool.Release()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		embedded int
		errs     []error
	)
	fail := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	for i := 0; i < len(chunks); i += u.batchSize {
		batch := chunks[i:min(i+u.batchSize, len(chunks))]

		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()

			texts := make([]string, len(batch))
			for j, c := range batch {
				texts[j] = c.Text
			}
			vectors, err := u.embedder.EmbedDocuments(ctx, texts)
			if err != nil {
				fail(fmt.Errorf("embedding batch failed: %w", err))
				return
			}
			if len(vectors) != len(batch) {
				fail(fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(batch)))
				return
			}

			items := make([]port.VectorItem, len(batch))
			for j, c := range batch {
				items[j] = port.VectorItem{ID: c.ID, Vector: vectors[j]}
			}
			if err := u.vectors.Upsert(ctx, items); err != nil {
				fail(fmt.Errorf("failed to store vectors: %w", err))
				return
			}

			mu.Lock()
			embedded += len(batch)
			mu.Unlock()
		})
		if err != nil {
			wg.Done()
			fail(err)
		}
	}
	wg.Wait()

	return embedded, errors.Join(errs...)
}

// generateDocID creates a unique ID for a document based on its path.
func generateDocID(path string) string {
	hash := sha256.Sum256([]byte(path))
	return hex.EncodeToString(hash[:8])
}

// extractTitle uses the first Markdown heading, falling back to the file name.
func extractTitle(path, content string) string {
	for _, line := range strings.SplitN(content, "\n", 20) {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "# "))
		}
	}
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

func detectFormat(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return "markdown"
	case ".rst":
		return "rst"
	case ".txt":
		return "text"
	case ".html", ".htm":
		return "html"
	default:
		return "unknown"
	}
}
