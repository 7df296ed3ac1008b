package retriever

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/SAMithila/doc-intelligence/internal/domain"
	"github.com/SAMithila/doc-intelligence/internal/port"
)

const (
	DefaultK1 = 1.5
	DefaultB  = 0.75
)

// bm25Generation is an immutable snapshot of the lexical index. Readers load
// it once per query; writers build a new one and swap the pointer.
type bm25Generation struct {
	id       uint64
	chunks   map[string]map[string]int // chunk ID -> term -> tf
	lengths  map[string]int
	postings map[string]map[string]int // term -> chunk ID -> tf
	totalLen int
}

func (g *bm25Generation) avgLen() float64 {
	if len(g.chunks) == 0 {
		return 0
	}
	return float64(g.totalLen) / float64(len(g.chunks))
}

// BM25Index is an in-memory inverted index scored with Okapi BM25.
type BM25Index struct {
	component
	tokenizer port.Tokenizer
	k1        float64
	b         float64

	mu      sync.Mutex // serializes writers
	current atomic.Pointer[bm25Generation]
}

func NewBM25Index(tokenizer port.Tokenizer, k1, b float64, opts ...Option) *BM25Index {
	return &BM25Index{
		component: newComponent("bm25", opts),
		tokenizer: tokenizer,
		k1:        k1,
		b:         b,
	}
}

// Build replaces the index with one built from chunks. A chunk ID seen twice
// keeps its last occurrence. Returns the new generation.
func (x *BM25Index) Build(chunks []domain.Chunk) uint64 {
	x.mu.Lock()
	defer x.mu.Unlock()

	docs := make(map[string]map[string]int, len(chunks))
	for _, c := range chunks {
		docs[c.ID] = x.termFreqs(c.Text)
	}
	return x.swap(newGeneration(docs))
}

// BuildFrom rebuilds the index from every chunk the source holds.
func (x *BM25Index) BuildFrom(src port.ChunkSource) (uint64, error) {
	chunks, err := src.AllChunks()
	if err != nil {
		return 0, fmt.Errorf("load chunks: %w", err)
	}
	return x.Build(chunks), nil
}

// Add publishes a generation containing the current chunks plus chunks.
// Existing postings are shared with the previous generation; only the
// posting lists touched by the new chunks are copied.
func (x *BM25Index) Add(chunks []domain.Chunk) uint64 {
	x.mu.Lock()
	defer x.mu.Unlock()

	prev := x.current.Load()
	if prev == nil {
		prev = newGeneration(nil)
	}

	next := &bm25Generation{
		chunks:   make(map[string]map[string]int, len(prev.chunks)+len(chunks)),
		lengths:  make(map[string]int, len(prev.lengths)+len(chunks)),
		postings: make(map[string]map[string]int, len(prev.postings)),
		totalLen: prev.totalLen,
	}
	for id, tf := range prev.chunks {
		next.chunks[id] = tf
		next.lengths[id] = prev.lengths[id]
	}
	for term, list := range prev.postings {
		next.postings[term] = list
	}

	copied := make(map[string]bool)
	mutable := func(term string) map[string]int {
		list := next.postings[term]
		if !copied[term] {
			fresh := make(map[string]int, len(list)+1)
			for id, tf := range list {
				fresh[id] = tf
			}
			next.postings[term] = fresh
			copied[term] = true
			list = fresh
		}
		return list
	}

	for _, c := range chunks {
		if old, ok := next.chunks[c.ID]; ok {
			for term := range old {
				delete(mutable(term), c.ID)
			}
			next.totalLen -= next.lengths[c.ID]
		}

		tf := x.termFreqs(c.Text)
		length := 0
		for term, n := range tf {
			mutable(term)[c.ID] = n
			length += n
		}
		next.chunks[c.ID] = tf
		next.lengths[c.ID] = length
		next.totalLen += length
	}

	for term := range copied {
		if len(next.postings[term]) == 0 {
			delete(next.postings, term)
		}
	}

	return x.swap(next)
}

// Remove drops chunks by ID with a full rebuild of the postings.
func (x *BM25Index) Remove(ids ...string) uint64 {
	x.mu.Lock()
	defer x.mu.Unlock()

	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	docs := make(map[string]map[string]int)
	if prev := x.current.Load(); prev != nil {
		for id, tf := range prev.chunks {
			if _, ok := drop[id]; !ok {
				docs[id] = tf
			}
		}
	}
	return x.swap(newGeneration(docs))
}

// Score returns chunks sharing at least one term with the query, ordered by
// BM25 score descending and chunk ID ascending. Query terms are summed as
// they occur, so a repeated term counts once per occurrence. limit <= 0
// returns every match.
func (x *BM25Index) Score(query string, limit int) ([]domain.ScoredCandidate, error) {
	return x.scoreGeneration(x.current.Load(), query, limit)
}

func (x *BM25Index) scoreGeneration(g *bm25Generation, query string, limit int) ([]domain.ScoredCandidate, error) {
	if g == nil {
		return nil, domain.ErrIndexUnbuilt
	}
	if len(g.chunks) == 0 {
		x.logger.Warn("lexical index is empty, no candidates possible", "generation", g.id)
		return nil, nil
	}

	terms := x.tokenizer.Tokenize(query)
	if len(terms) == 0 {
		return nil, nil
	}

	n := float64(len(g.chunks))
	avgLen := g.avgLen()
	scores := make(map[string]float64)

	for _, term := range terms {
		list := g.postings[term]
		if len(list) == 0 {
			continue
		}
		df := float64(len(list))
		idf := math.Log((n-df+0.5)/(df+0.5) + 1)

		for chunkID, freq := range list {
			tf := float64(freq)
			dl := float64(g.lengths[chunkID])
			scores[chunkID] += idf * (tf * (x.k1 + 1)) / (tf + x.k1*(1-x.b+x.b*dl/avgLen))
		}
	}

	results := make([]domain.ScoredCandidate, 0, len(scores))
	for id, score := range scores {
		results = append(results, domain.ScoredCandidate{ChunkID: id, Score: score, Signal: domain.SignalLexical})
	}
	sortCandidates(results)

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Terms returns the distinct terms of an indexed chunk in sorted order.
func (x *BM25Index) Terms(chunkID string) []string {
	return x.current.Load().terms(chunkID)
}

func (g *bm25Generation) terms(chunkID string) []string {
	if g == nil {
		return nil
	}
	tf := g.chunks[chunkID]
	terms := make([]string, 0, len(tf))
	for t := range tf {
		terms = append(terms, t)
	}
	sort.Strings(terms)
	return terms
}

// Len returns the number of chunks in the active generation.
func (x *BM25Index) Len() int {
	if g := x.current.Load(); g != nil {
		return len(g.chunks)
	}
	return 0
}

// Built reports whether any generation has been published.
func (x *BM25Index) Built() bool {
	return x.current.Load() != nil
}

// Generation returns the active generation number, 0 before the first build.
func (x *BM25Index) Generation() uint64 {
	if g := x.current.Load(); g != nil {
		return g.id
	}
	return 0
}

func (x *BM25Index) termFreqs(text string) map[string]int {
	tf := make(map[string]int)
	for _, t := range x.tokenizer.Tokenize(text) {
		tf[t]++
	}
	return tf
}

// swap must be called with mu held.
func (x *BM25Index) swap(next *bm25Generation) uint64 {
	var prevID uint64
	if prev := x.current.Load(); prev != nil {
		prevID = prev.id
	}
	next.id = prevID + 1
	x.current.Store(next)
	x.logger.Debug("lexical index generation published",
		"generation", next.id, "chunks", len(next.chunks), "terms", len(next.postings))
	return next.id
}

func newGeneration(docs map[string]map[string]int) *bm25Generation {
	g := &bm25Generation{
		chunks:   docs,
		lengths:  make(map[string]int, len(docs)),
		postings: make(map[string]map[string]int),
	}
	if g.chunks == nil {
		g.chunks = make(map[string]map[string]int)
	}
	for id, tf := range g.chunks {
		length := 0
		for term, n := range tf {
			list, ok := g.postings[term]
			if !ok {
				list = make(map[string]int)
				g.postings[term] = list
			}
			list[id] = n
			length += n
		}
		g.lengths[id] = length
		g.totalLen += length
	}
	return g
}

// sortCandidates orders by score descending, chunk ID ascending.
func sortCandidates(c []domain.ScoredCandidate) {
	sort.Slice(c, func(i, j int) bool {
		if c[i].Score != c[j].Score {
			return c[i].Score > c[j].Score
		}
		return c[i].ChunkID < c[j].ChunkID
	})
}
