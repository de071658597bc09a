package vision

import (
	"context"
	"image"
)

// DepthEstimator produces a grayscale depth map for a chart image.
type DepthEstimator interface {
	EstimateDepth(ctx context.Context, img image.Image) (*image.Gray, error)
	Close() error
}

// FallbackDepthEstimator simulates depth without a model: edge response is
// inverted and blurred so flat regions read as near and busy regions as far.
// Used in development environments without an inference runtime.
type FallbackDepthEstimator struct{}

func NewFallbackDepthEstimator() *FallbackDepthEstimator {
	return &FallbackDepthEstimator{}
}

func (e *FallbackDepthEstimator) EstimateDepth(ctx context.Context, img image.Image) (*image.Gray, error) {
	gray := ToGray(img)
	edges := EdgeMap(gray)

	bounds := edges.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	inverted := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			inverted[y*w+x] = 255 - float64(edges.Pix[y*edges.Stride+x])
		}
	}

	blurred := boxBlur(inverted, w, h, 7)
	blurred = boxBlur(blurred, w, h, 7)
	return NormalizeToGray(blurred, w, h), nil
}

func (e *FallbackDepthEstimator) Close() error { return nil }

// boxBlur applies a separable box filter of the given radius.
func boxBlur(buf []float64, w, h, radius int) []float64 {
	clamp := func(v, lo, hi int) int {
		if v < lo {
			return lo
		}
		if v > hi {
			return hi
		}
		return v
	}
	window := float64(2*radius + 1)

	horiz := make([]float64, len(buf))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var acc float64
			for k := -radius; k <= radius; k++ {
				acc += buf[y*w+clamp(x+k, 0, w-1)]
			}
			horiz[y*w+x] = acc / window
		}
	}

	out := make([]float64, len(buf))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var acc float64
			for k := -radius; k <= radius; k++ {
				acc += horiz[clamp(y+k, 0, h-1)*w+x]
			}
			out[y*w+x] = acc / window
		}
	}
	return out
}
