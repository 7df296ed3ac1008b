package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/SAMithila/doc-intelligence/internal/domain"
	"github.com/SAMithila/doc-intelligence/internal/port"
)

const (
	DefaultSize = 128
	DefaultTTL  = 5 * time.Minute
)

// QueryCache holds fused outcomes keyed by request and index generation.
// A rebuilt index changes the generation, so stale entries are never hit and
// simply age out.
type QueryCache struct {
	lru *expirable.LRU[string, domain.Outcome]
}

func NewQueryCache(size int, ttl time.Duration) *QueryCache {
	if size <= 0 {
		size = DefaultSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &QueryCache{lru: expirable.NewLRU[string, domain.Outcome](size, nil, ttl)}
}

func (c *QueryCache) Get(key string) (domain.Outcome, bool) {
	return c.lru.Get(key)
}

func (c *QueryCache) Put(key string, out domain.Outcome) {
	c.lru.Add(key, out)
}

func (c *QueryCache) Invalidate() {
	c.lru.Purge()
}

func (c *QueryCache) Size() int {
	return c.lru.Len()
}

// Key derives the cache key for req at the given index generation.
func Key(req domain.Request, generation uint64) string {
	h := sha256.New()
	h.Write([]byte(req.Query))
	h.Write([]byte{0})
	h.Write([]byte(req.Expansion))
	h.Write([]byte{0})

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(req.TopK))
	h.Write(buf[:])
	binary.BigEndian.PutUint64(buf[:], generation)
	h.Write(buf[:])
	if req.PriorMaxScore != nil {
		binary.BigEndian.PutUint64(buf[:], math.Float64bits(*req.PriorMaxScore))
		h.Write([]byte{1})
		h.Write(buf[:])
	}
	return hex.EncodeToString(h.Sum(nil)[:16])
}

// CachedRetriever serves repeated requests from a QueryCache. Only fully
// successful outcomes are stored: a degraded answer is retried next time in
// case the failing signal has recovered.
type CachedRetriever struct {
	retriever  port.Retriever
	cache      *QueryCache
	generation func() uint64
	logger     *slog.Logger
}

// NewCachedRetriever wraps retriever. generation reports the index
// generation the next query would run against.
func NewCachedRetriever(retriever port.Retriever, cache *QueryCache, generation func() uint64) *CachedRetriever {
	return &CachedRetriever{
		retriever:  retriever,
		cache:      cache,
		generation: generation,
		logger:     slog.Default().With("component", "query-cache"),
	}
}

// Retrieve serves a hit under a fresh query ID, with Total covering only
// the lookup. The rest of the report describes the run that was cached.
func (r *CachedRetriever) Retrieve(ctx context.Context, req domain.Request) (*domain.Outcome, error) {
	start := time.Now()
	key := Key(req, r.generation())

	if out, hit := r.cache.Get(key); hit {
		out.Fused = append([]domain.FusedResult(nil), out.Fused...)
		out.Report.QueryID = uuid.NewString()
		out.Report.CacheHit = true
		out.Report.Total = time.Since(start)
		r.logger.Debug("cache hit", "query_id", out.Report.QueryID, "query", req.Query)
		return &out, nil
	}

	out, err := r.retriever.Retrieve(ctx, req)
	if err != nil {
		return out, err
	}
	if out.Report.Status == domain.StatusOK {
		stored := *out
		stored.Fused = append([]domain.FusedResult(nil), out.Fused...)
		r.cache.Put(key, stored)
	}
	return out, nil
}
