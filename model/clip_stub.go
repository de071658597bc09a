//go:build !cgo
// +build !cgo

package model

import (
	"context"
	"errors"
	"time"

	"chartsight/types"
)

// CLIPEmbedder stub type when built without CGO (see clip.go for the real
// implementation).
type CLIPEmbedder struct{}

// NewCLIPEmbedder returns an error when built without CGO.
func NewCLIPEmbedder(_ string, _ int, _ time.Duration) (*CLIPEmbedder, error) {
	return nil, errors.New("CLIP embedder requires CGO; build with CGO_ENABLED=1 and onnxruntime")
}

func (e *CLIPEmbedder) EmbedImage(ctx context.Context, path string) ([]float32, error) {
	return nil, errors.New("CLIP embedder not available without CGO")
}

func (e *CLIPEmbedder) Dimensions() int { return types.EmbeddingDim }

func (e *CLIPEmbedder) ModelID() string { return "clip-vit-onnx" }

func (e *CLIPEmbedder) Close() error { return nil }
