package model

import (
	"context"
	"errors"
	"testing"

	"chartsight/types"
)

// countingEmbedder wraps NullEmbedder and counts inference calls. dims may
// disagree with what EmbedImage actually returns to simulate drift.
type countingEmbedder struct {
	inner *NullEmbedder
	dims  int
	calls int
}

func (e *countingEmbedder) EmbedImage(ctx context.Context, path string) ([]float32, error) {
	e.calls++
	return e.inner.EmbedImage(ctx, path)
}

func (e *countingEmbedder) Dimensions() int { return e.dims }
func (e *countingEmbedder) ModelID() string { return "counting" }
func (e *countingEmbedder) Close() error    { return nil }

func TestCachingEmbedderShortCircuits(t *testing.T) {
	ctx := context.Background()
	inner := &countingEmbedder{inner: NewNullEmbedder(32), dims: 32}
	e := NewCachingEmbedder(inner, 8)
	path := writeTempFile(t, "chart.png", []byte("pixels"))

	first, err := e.EmbedImage(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	second, err := e.EmbedImage(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	if inner.calls != 1 {
		t.Errorf("inner embedder called %d times, want 1", inner.calls)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("cached embedding differs at %d", i)
		}
	}
}

func TestCachingEmbedderDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	// Inner claims 64 dimensions but produces 32: a silent drift that must
	// surface as ConsistencyError.
	inner := &countingEmbedder{inner: NewNullEmbedder(32), dims: 64}
	e := NewCachingEmbedder(inner, 8)
	path := writeTempFile(t, "chart.png", []byte("pixels"))

	_, err := e.EmbedImage(ctx, path)
	var consistencyErr *types.ConsistencyError
	if !errors.As(err, &consistencyErr) {
		t.Fatalf("expected ConsistencyError, got %v", err)
	}
}

func TestCachingEmbedderRegeneratesStaleEntry(t *testing.T) {
	ctx := context.Background()
	inner := &countingEmbedder{inner: NewNullEmbedder(32), dims: 32}
	e := NewCachingEmbedder(inner, 8)
	path := writeTempFile(t, "chart.png", []byte("pixels"))

	key, err := ContentKey(inner.ModelID(), path)
	if err != nil {
		t.Fatal(err)
	}
	// Poison the cache with a wrong-dimension vector, as left behind by an
	// embedding model swap.
	e.cache.Set(key, []float32{1, 2, 3})

	emb, err := e.EmbedImage(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	if len(emb) != 32 {
		t.Fatalf("dimension = %d, want 32", len(emb))
	}
	if inner.calls != 1 {
		t.Errorf("stale entry was not regenerated, inner calls = %d", inner.calls)
	}
}
