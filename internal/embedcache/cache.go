// Package embedcache provides a Redis-backed cache for query embeddings so
// repeated questions do not re-bill the embedding API.
package embedcache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"log"
	"math"
	"time"

	"github.com/redis/rueidis"
)

const keyPrefix = "readstack:emb:"

// EmbeddingClient is the inner embedder the cache decorates
type EmbeddingClient interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// Store is the key-value surface the cache needs from Redis
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Observer receives cache hit/miss notifications for metrics
type Observer func(hit bool)

// CachedEmbedder caches embeddings in a key-value store, falling through to
// the inner embedder on miss. Cache failures are logged and treated as misses.
type CachedEmbedder struct {
	inner   EmbeddingClient
	store   Store
	ttl     time.Duration
	observe Observer
}

// New creates a caching decorator around an embedding client
func New(inner EmbeddingClient, store Store, ttl time.Duration, observe Observer) *CachedEmbedder {
	return &CachedEmbedder{
		inner:   inner,
		store:   store,
		ttl:     ttl,
		observe: observe,
	}
}

// GenerateEmbedding returns a cached embedding or calls the inner embedder
func (c *CachedEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(text)

	if vec, ok := c.getFromCache(ctx, key); ok {
		c.record(true)
		return vec, nil
	}
	c.record(false)

	vec, err := c.inner.GenerateEmbedding(ctx, text)
	if err != nil {
		return nil, err
	}

	c.putToCache(ctx, key, vec)
	return vec, nil
}

func (c *CachedEmbedder) record(hit bool) {
	if c.observe != nil {
		c.observe(hit)
	}
}

func (c *CachedEmbedder) getFromCache(ctx context.Context, key string) ([]float32, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !rueidis.IsRedisNil(err) {
			log.Printf("embedcache: get failed: %v", err)
		}
		return nil, false
	}
	if len(data) == 0 || len(data)%4 != 0 {
		return nil, false
	}

	vec := make([]float32, len(data)/4)
	for i := range vec {
		bits := binary.LittleEndian.Uint32(data[i*4:])
		vec[i] = math.Float32frombits(bits)
	}
	return vec, true
}

func (c *CachedEmbedder) putToCache(ctx context.Context, key string, vec []float32) {
	data := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(v))
	}
	if err := c.store.SetWithTTL(ctx, key, data, c.ttl); err != nil {
		log.Printf("embedcache: set failed: %v", err)
	}
}

func cacheKey(text string) string {
	h := sha256.Sum256([]byte(text))
	return keyPrefix + hex.EncodeToString(h[:])
}
