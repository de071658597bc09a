package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EmbeddingDim is the fixed dimension of every stored chart embedding.
// The pgvector column, the model output check and the cache guard all use
// this constant; it is never derived from model output at runtime.
const EmbeddingDim = 512

type Timeframe string

const (
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe1h  Timeframe = "1h"
	Timeframe4h  Timeframe = "4h"
	Timeframe1d  Timeframe = "1d"
)

// ParseTimeframe validates a timeframe string.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(strings.ToLower(strings.TrimSpace(s)))
	switch tf {
	case Timeframe5m, Timeframe15m, Timeframe1h, Timeframe4h, Timeframe1d:
		return tf, nil
	}
	return "", fmt.Errorf("unknown timeframe %q", s)
}

type Session string

const (
	SessionSydney  Session = "sydney"
	SessionTokyo   Session = "tokyo"
	SessionLondon  Session = "london"
	SessionNewYork Session = "newyork"
)

// ParseSession validates a trading session string. Empty input is allowed,
// session is an optional attribute of a chart.
func ParseSession(s string) (Session, error) {
	ses := Session(strings.ToLower(strings.TrimSpace(s)))
	switch ses {
	case "", SessionSydney, SessionTokyo, SessionLondon, SessionNewYork:
		return ses, nil
	}
	return "", fmt.Errorf("unknown session %q", s)
}

type MapKind string

const (
	MapDepth    MapKind = "depth"
	MapEdge     MapKind = "edge"
	MapGradient MapKind = "gradient"
)

// MapKinds lists the derived visual layers in generation order.
var MapKinds = []MapKind{MapDepth, MapEdge, MapGradient}

// Chart is one uploaded chart image and its derived artifacts. Embedding and
// map paths start out empty and are populated asynchronously after upload.
type Chart struct {
	ID           int64
	Filename     string
	Timeframe    Timeframe
	Instrument   string
	Session      Session
	Embedding    []float32
	DepthPath    string
	EdgePath     string
	GradientPath string
	BundleID     uuid.NullUUID
	CreatedAt    time.Time
}

// MapPath returns the recorded path for the given map kind.
func (c *Chart) MapPath(kind MapKind) string {
	switch kind {
	case MapDepth:
		return c.DepthPath
	case MapEdge:
		return c.EdgePath
	case MapGradient:
		return c.GradientPath
	}
	return ""
}

// SetMapPath records the path for the given map kind.
func (c *Chart) SetMapPath(kind MapKind, path string) {
	switch kind {
	case MapDepth:
		c.DepthPath = path
	case MapEdge:
		c.EdgePath = path
	case MapGradient:
		c.GradientPath = path
	}
}

// ScoredChart pairs a chart with its cosine similarity to a query vector.
// Scores are clamped to [0,1]. Created per query, never persisted.
type ScoredChart struct {
	Chart      *Chart
	Similarity float64
}

// Neighbor is one enriched retrieval hit as handed to the prompt builder
// and serialized by the HTTP layer.
type Neighbor struct {
	ChartID     int64     `json:"chart_id"`
	Filename    string    `json:"filename"`
	Timeframe   Timeframe `json:"timeframe"`
	Instrument  string    `json:"instrument"`
	Similarity  float64   `json:"similarity"`
	ImageURL    string    `json:"image_url"`
	DepthURL    string    `json:"depth_url"`
	EdgeURL     string    `json:"edge_url"`
	GradientURL string    `json:"gradient_url"`
}

// Analysis is the full retrieval output for one target chart: its own four
// visual layers plus the enriched neighbor list.
type Analysis struct {
	ChartID     int64      `json:"chart_id"`
	ImageURL    string     `json:"image_url"`
	DepthURL    string     `json:"depth_url"`
	EdgeURL     string     `json:"edge_url"`
	GradientURL string     `json:"gradient_url"`
	Neighbors   []Neighbor `json:"neighbors"`
}
