package model

import (
	"math"
	"testing"
)

func TestNormalizeL2UnitLength(t *testing.T) {
	v := []float32{3, 4}
	NormalizeL2(v)
	norm := math.Sqrt(float64(v[0]*v[0] + v[1]*v[1]))
	if math.Abs(norm-1) > 1e-6 {
		t.Errorf("expected unit norm, got %f", norm)
	}
}

func TestNormalizeL2Idempotent(t *testing.T) {
	v := []float32{0.2, -1.5, 3.0, 0.7}
	first := NormalizeL2(append([]float32(nil), v...))
	second := NormalizeL2(append([]float32(nil), first...))
	for i := range first {
		if math.Abs(float64(first[i]-second[i])) > 1e-6 {
			t.Errorf("component %d changed on re-normalization: %f vs %f", i, first[i], second[i])
		}
	}
}

func TestNormalizeL2ZeroVector(t *testing.T) {
	v := []float32{0, 0, 0}
	NormalizeL2(v)
	for i, x := range v {
		if x != 0 {
			t.Errorf("zero vector changed at %d: %f", i, x)
		}
	}
}

func TestCosineIdentical(t *testing.T) {
	a := []float32{1, 0, 0}
	if sim := Cosine(a, a); math.Abs(sim-1) > 1e-6 {
		t.Errorf("self similarity = %f, want 1", sim)
	}
}

func TestCosineClampedToUnitInterval(t *testing.T) {
	// Antiparallel vectors have raw cosine -1; the result must clamp to 0.
	a := []float32{1, 0}
	b := []float32{-1, 0}
	if sim := Cosine(a, b); sim != 0 {
		t.Errorf("antiparallel similarity = %f, want 0", sim)
	}
	// Near-identical unnormalized vectors must not exceed 1.
	c := []float32{1e10, 1e10, 1e10}
	if sim := Cosine(c, c); sim > 1 {
		t.Errorf("similarity %f exceeds 1", sim)
	}
}

func TestCosineMismatchedLengths(t *testing.T) {
	a := []float32{1, 0, 0, 0}
	b := []float32{1, 0}
	if sim := Cosine(a, b); math.Abs(sim-1) > 1e-6 {
		t.Errorf("truncated comparison = %f, want 1", sim)
	}
	if sim := Cosine(nil, b); sim != 0 {
		t.Errorf("empty vector similarity = %f, want 0", sim)
	}
}

func TestMeanPool(t *testing.T) {
	// Two tokens of dimension 3.
	data := []float32{1, 2, 3, 3, 4, 5}
	pooled := MeanPool(data, 2, 3)
	want := []float32{2, 3, 4}
	for i := range want {
		if pooled[i] != want[i] {
			t.Errorf("pooled[%d] = %f, want %f", i, pooled[i], want[i])
		}
	}
}

func TestMeanPoolSingleToken(t *testing.T) {
	data := []float32{1, 2, 3}
	pooled := MeanPool(data, 1, 3)
	for i := range data {
		if pooled[i] != data[i] {
			t.Errorf("pooled[%d] = %f, want %f", i, pooled[i], data[i])
		}
	}
}
