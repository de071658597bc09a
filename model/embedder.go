package model

import (
	"context"

	"chartsight/types"
)

// Embedder produces a unit-norm feature vector for an image file.
type Embedder interface {
	EmbedImage(ctx context.Context, path string) ([]float32, error)
	Dimensions() int
	ModelID() string
	Close() error
}

// CachingEmbedder wraps an Embedder with a content-addressed cache. Cached
// vectors failing the dimension check are regenerated, never trusted.
type CachingEmbedder struct {
	inner Embedder
	cache *EmbeddingCache
}

func NewCachingEmbedder(inner Embedder, cacheSize int) *CachingEmbedder {
	return &CachingEmbedder{
		inner: inner,
		cache: NewEmbeddingCache(cacheSize),
	}
}

// EmbedImage returns a cached embedding when the file content and model id
// hash to a known key, otherwise delegates to the wrapped embedder. Every
// returned vector is dimension-checked against the configured dimension.
func (e *CachingEmbedder) EmbedImage(ctx context.Context, path string) ([]float32, error) {
	key, err := ContentKey(e.inner.ModelID(), path)
	if err != nil {
		return nil, &types.IOError{Path: path, Err: err}
	}

	if cached, ok := e.cache.Get(key); ok {
		if len(cached) == e.inner.Dimensions() {
			return cached, nil
		}
		// Stale entry from a model swap, fall through and regenerate.
		e.cache.Remove(key)
	}

	emb, err := e.inner.EmbedImage(ctx, path)
	if err != nil {
		return nil, err
	}
	if len(emb) != e.inner.Dimensions() {
		return nil, &types.ConsistencyError{Want: e.inner.Dimensions(), Got: len(emb)}
	}

	e.cache.Set(key, emb)
	return emb, nil
}

func (e *CachingEmbedder) Dimensions() int { return e.inner.Dimensions() }

func (e *CachingEmbedder) ModelID() string { return e.inner.ModelID() }

func (e *CachingEmbedder) Close() error { return e.inner.Close() }
