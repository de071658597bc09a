// Package search implements tiered nearest-neighbor retrieval over stored
// chart embeddings.
package search

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"chartsight/model"
	"chartsight/store"
	"chartsight/types"
)

// Engine answers top-k similarity queries with three tiers: the store's
// ANN index, an exact scan when the index under-returns, and an in-process
// cosine scan when the store's vector queries fail outright.
type Engine struct {
	store  store.ChartStorer
	logger *zap.Logger
}

func NewEngine(storer store.ChartStorer, logger *zap.Logger) *Engine {
	return &Engine{store: storer, logger: logger}
}

// TopK returns up to k charts ordered by descending similarity, ties broken
// by ascending id. Neighbors missing visual maps are returned like any
// other, map availability never filters selection.
func (e *Engine) TopK(ctx context.Context, query []float32, k int, excludeID int64) ([]types.ScoredChart, error) {
	if k <= 0 {
		return nil, nil
	}
	if len(query) == 0 {
		return nil, &types.SearchError{Err: fmt.Errorf("empty query vector")}
	}

	scored, indexErr := e.store.NearestByEmbedding(ctx, query, k, excludeID, false)
	if indexErr == nil && len(scored) >= k {
		return e.rescore(query, scored, k), nil
	}

	if indexErr == nil {
		// Index under-returned: re-issue as an exact scan and take its
		// results. Expected with a miscalibrated ivfflat index, not an error.
		exact, exactErr := e.store.NearestByEmbedding(ctx, query, k, excludeID, true)
		if exactErr == nil {
			if len(exact) > len(scored) {
				e.logger.Debug("ann index under-returned, exact scan recovered rows",
					zap.Int("index_rows", len(scored)),
					zap.Int("exact_rows", len(exact)))
				scored = exact
			}
			return e.rescore(query, scored, k), nil
		}
		e.logger.Warn("exact scan failed, falling back to in-process scan", zap.Error(exactErr))
	} else {
		e.logger.Warn("ann query failed, falling back to in-process scan", zap.Error(indexErr))
	}

	scored, fullErr := e.fullScan(ctx, query, k, excludeID)
	if fullErr != nil {
		return nil, &types.SearchError{Err: fullErr}
	}
	return scored, nil
}

// rescore recomputes similarity in-process for every returned row. Stored
// vectors are not trusted to hold the unit-norm invariant, Cosine
// re-normalizes, truncates mismatched lengths and clamps to [0,1].
func (e *Engine) rescore(query []float32, scored []types.ScoredChart, k int) []types.ScoredChart {
	out := make([]types.ScoredChart, 0, len(scored))
	for _, s := range scored {
		if s.Chart == nil || len(s.Chart.Embedding) == 0 {
			continue
		}
		s.Similarity = model.Cosine(query, s.Chart.Embedding)
		out = append(out, s)
	}
	sortScored(out)
	if len(out) > k {
		out = out[:k]
	}
	return out
}

// fullScan computes cosine similarity against every stored embedding in the
// application process. Tolerates legacy rows with a different dimension.
func (e *Engine) fullScan(ctx context.Context, query []float32, k int, excludeID int64) ([]types.ScoredChart, error) {
	charts, err := e.store.ChartsWithEmbeddings(ctx)
	if err != nil {
		return nil, fmt.Errorf("full scan: %w", err)
	}

	scored := make([]types.ScoredChart, 0, len(charts))
	for _, c := range charts {
		if c.ID == excludeID || len(c.Embedding) == 0 {
			continue
		}
		scored = append(scored, types.ScoredChart{
			Chart:      c,
			Similarity: model.Cosine(query, c.Embedding),
		})
	}
	sortScored(scored)
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

func sortScored(scored []types.ScoredChart) {
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Similarity != scored[j].Similarity {
			return scored[i].Similarity > scored[j].Similarity
		}
		return scored[i].Chart.ID < scored[j].Chart.ID
	})
}
