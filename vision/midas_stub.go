//go:build !cgo
// +build !cgo

package vision

import (
	"context"
	"errors"
	"image"
	"time"
)

// ONNXDepthEstimator stub type when built without CGO (see midas.go for the
// real implementation).
type ONNXDepthEstimator struct{}

// NewONNXDepthEstimator returns an error when built without CGO.
func NewONNXDepthEstimator(_ string, _ time.Duration) (*ONNXDepthEstimator, error) {
	return nil, errors.New("depth estimator requires CGO; build with CGO_ENABLED=1 and onnxruntime")
}

func (e *ONNXDepthEstimator) EstimateDepth(ctx context.Context, img image.Image) (*image.Gray, error) {
	return nil, errors.New("depth estimator not available without CGO")
}

func (e *ONNXDepthEstimator) Close() error { return nil }
