package model

import (
	"context"
	"crypto/md5"
	"encoding/binary"
	"math/rand"
	"os"

	"chartsight/types"
)

// NullEmbedder produces deterministic pseudo-embeddings from the image
// content hash. It stands in for the real encoder in development
// environments without an inference runtime: the same file always maps to
// the same unit vector, so similarity search stays exercisable end to end.
type NullEmbedder struct {
	dimensions int
}

func NewNullEmbedder(dimensions int) *NullEmbedder {
	if dimensions <= 0 {
		dimensions = types.EmbeddingDim
	}
	return &NullEmbedder{dimensions: dimensions}
}

// EmbedImage hashes the file content and expands the hash into a seeded
// gaussian vector, L2-normalized.
func (e *NullEmbedder) EmbedImage(ctx context.Context, path string) ([]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &types.IOError{Path: path, Err: err}
	}

	sum := md5.Sum(data)
	seed := int64(binary.BigEndian.Uint64(sum[:8]))
	rng := rand.New(rand.NewSource(seed))

	emb := make([]float32, e.dimensions)
	for i := range emb {
		emb[i] = float32(rng.NormFloat64())
	}
	return NormalizeL2(emb), nil
}

func (e *NullEmbedder) Dimensions() int { return e.dimensions }

func (e *NullEmbedder) ModelID() string { return "null-md5" }

func (e *NullEmbedder) Close() error { return nil }
