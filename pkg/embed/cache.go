// Package embed provides a caching layer over the embedding capability.
// Query and passage texts recur heavily across queries, so embeddings are
// cached in Redis with a bounded TTL, and concurrent misses for the same
// text are collapsed through singleflight so the upstream embedder sees
// each text at most once at a time.
package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/fathomsearch/fathom/pkg/backend"
)

// DefaultTTL bounds how long a cached embedding stays valid.
const DefaultTTL = 24 * time.Hour

const keyPrefix = "fathom:emb:"

// CachedEmbedder wraps an Embedder with a Redis cache. Cache failures are
// soft: a Redis error degrades to a direct embedder call, never a query
// failure.
type CachedEmbedder struct {
	upstream backend.Embedder
	rdb      redis.UniversalClient
	ttl      time.Duration
	group    singleflight.Group
}

// NewCachedEmbedder wraps upstream with the cache. A zero ttl uses
// DefaultTTL.
func NewCachedEmbedder(upstream backend.Embedder, rdb redis.UniversalClient, ttl time.Duration) *CachedEmbedder {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &CachedEmbedder{upstream: upstream, rdb: rdb, ttl: ttl}
}

// Embed returns one vector per input text, serving from cache where
// possible and embedding only the misses upstream.
func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))

	var missIdx []int
	var missTexts []string
	for i, text := range texts {
		if vec, ok := c.lookup(ctx, text); ok {
			out[i] = vec
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vectors, err := c.embedMisses(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for n, i := range missIdx {
		out[i] = vectors[n]
		c.store(ctx, texts[i], vectors[n])
	}
	return out, nil
}

// embedMisses embeds the miss set, collapsing concurrent single-text
// misses through singleflight. Multi-text batches pass straight through:
// their combinations rarely repeat.
func (c *CachedEmbedder) embedMisses(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) != 1 {
		return c.upstream.Embed(ctx, texts)
	}

	v, err, _ := c.group.Do(cacheKey(texts[0]), func() (any, error) {
		vectors, err := c.upstream.Embed(ctx, texts)
		if err != nil {
			return nil, err
		}
		if len(vectors) != 1 {
			return nil, fmt.Errorf("embedder returned %d vectors for 1 text", len(vectors))
		}
		return vectors, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([][]float32), nil
}

func (c *CachedEmbedder) lookup(ctx context.Context, text string) ([]float32, bool) {
	if c.rdb == nil {
		return nil, false
	}
	raw, err := c.rdb.Get(ctx, cacheKey(text)).Bytes()
	if err != nil {
		if err != redis.Nil {
			slog.Warn("Embedding cache read failed", "error", err)
		}
		return nil, false
	}
	var vec []float32
	if err := json.Unmarshal(raw, &vec); err != nil {
		return nil, false
	}
	return vec, true
}

func (c *CachedEmbedder) store(ctx context.Context, text string, vec []float32) {
	if c.rdb == nil || len(vec) == 0 {
		return
	}
	raw, err := json.Marshal(vec)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, cacheKey(text), raw, c.ttl).Err(); err != nil {
		slog.Warn("Embedding cache write failed", "error", err)
	}
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return keyPrefix + hex.EncodeToString(sum[:])
}
