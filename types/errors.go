package types

import "fmt"

// IOError marks a missing or unreadable source image. Not retried at the
// retrieval layer, the upstream caller may re-upload.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("io error for %s: %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// ComputeError marks a model inference failure. The affected item is
// abandoned but a batch containing it keeps going.
type ComputeError struct {
	Op  string
	Err error
}

func (e *ComputeError) Error() string {
	return fmt.Sprintf("compute error in %s: %v", e.Op, e.Err)
}

func (e *ComputeError) Unwrap() error { return e.Err }

// ConsistencyError marks a dimension mismatch between a produced or cached
// vector and EmbeddingDim. Never coerced silently.
type ConsistencyError struct {
	Want int
	Got  int
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: want %d, got %d", e.Want, e.Got)
}

// SearchError marks total failure of all search tiers. An under-returning
// index on its own is not a SearchError, the fallback tiers absorb that.
type SearchError struct {
	Err error
}

func (e *SearchError) Error() string {
	return fmt.Sprintf("similarity search failed: %v", e.Err)
}

func (e *SearchError) Unwrap() error { return e.Err }
