package model

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"chartsight/types"
)

func writeTempFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestNullEmbedderDeterministic(t *testing.T) {
	ctx := context.Background()
	e := NewNullEmbedder(64)
	path := writeTempFile(t, "chart.png", []byte("fake image bytes"))

	first, err := e.EmbedImage(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	second, err := e.EmbedImage(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("embedding not deterministic at %d", i)
		}
	}
}

func TestNullEmbedderDimensionAndNorm(t *testing.T) {
	ctx := context.Background()
	e := NewNullEmbedder(types.EmbeddingDim)
	path := writeTempFile(t, "chart.png", []byte("content"))

	emb, err := e.EmbedImage(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	if len(emb) != types.EmbeddingDim {
		t.Fatalf("dimension = %d, want %d", len(emb), types.EmbeddingDim)
	}
	var sum float64
	for _, v := range emb {
		sum += float64(v) * float64(v)
	}
	if math.Abs(math.Sqrt(sum)-1) > 1e-5 {
		t.Errorf("norm = %f, want 1", math.Sqrt(sum))
	}
}

func TestNullEmbedderDifferentContent(t *testing.T) {
	ctx := context.Background()
	e := NewNullEmbedder(64)
	a, err := e.EmbedImage(ctx, writeTempFile(t, "a.png", []byte("chart a")))
	if err != nil {
		t.Fatal(err)
	}
	b, err := e.EmbedImage(ctx, writeTempFile(t, "b.png", []byte("chart b")))
	if err != nil {
		t.Fatal(err)
	}
	if Cosine(a, b) > 0.99 {
		t.Error("different content produced near-identical embeddings")
	}
}

func TestNullEmbedderMissingFile(t *testing.T) {
	e := NewNullEmbedder(8)
	_, err := e.EmbedImage(context.Background(), "/does/not/exist.png")
	var ioErr *types.IOError
	if !errors.As(err, &ioErr) {
		t.Fatalf("expected IOError, got %v", err)
	}
}
