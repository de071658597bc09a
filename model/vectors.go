// Package model provides image embedding generation for chart similarity.
package model

import "math"

const normEpsilon = 1e-12

// NormalizeL2 scales vec in place to unit L2 length and returns it.
// Near-zero vectors are returned unchanged.
func NormalizeL2(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	norm := math.Sqrt(sum)
	if norm < normEpsilon {
		return vec
	}
	for i, v := range vec {
		vec[i] = float32(float64(v) / norm)
	}
	return vec
}

// MeanPool averages token-level features into a single dim-length vector.
// A buffer holding exactly dim values (already pooled model output) passes
// through unchanged.
func MeanPool(data []float32, tokens, dim int) []float32 {
	out := make([]float32, dim)
	if tokens <= 1 {
		copy(out, data)
		return out
	}
	for t := 0; t < tokens; t++ {
		base := t * dim
		for i := 0; i < dim; i++ {
			out[i] += data[base+i]
		}
	}
	inv := float32(1) / float32(tokens)
	for i := range out {
		out[i] *= inv
	}
	return out
}

// Cosine returns the cosine similarity of two vectors clamped to [0,1].
// Mismatched lengths are compared over the shorter prefix, legacy rows with
// a different dimension must not take the whole query down.
func Cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na < normEpsilon || nb < normEpsilon {
		return 0
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return math.Max(0, math.Min(1, sim))
}
