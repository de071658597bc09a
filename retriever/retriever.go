// Package retriever composes embedding, similarity search and visual-map
// backfill into the retrieval flow consumed by the prompt builder.
package retriever

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"chartsight/model"
	"chartsight/search"
	"chartsight/store"
	"chartsight/types"
	"chartsight/vision"
)

type Retriever struct {
	embedder model.Embedder
	engine   *search.Engine
	maps     *vision.MapGenerator
	store    store.ChartStorer
	cfg      *types.Config
	logger   *zap.Logger
}

func New(
	embedder model.Embedder,
	engine *search.Engine,
	maps *vision.MapGenerator,
	storer store.ChartStorer,
	cfg *types.Config,
	logger *zap.Logger,
) *Retriever {
	return &Retriever{
		embedder: embedder,
		engine:   engine,
		maps:     maps,
		store:    storer,
		cfg:      cfg,
		logger:   logger,
	}
}

// EmbedAndStore computes and persists the embedding for a chart's image.
// Failing to embed the query image is the one hard failure of the
// retrieval layer.
func (r *Retriever) EmbedAndStore(ctx context.Context, chart *types.Chart) error {
	imagePath := r.ImagePath(chart.Filename)
	emb, err := r.embedder.EmbedImage(ctx, imagePath)
	if err != nil {
		return err
	}
	if err := r.store.UpdateChartEmbedding(ctx, chart.ID, emb); err != nil {
		return fmt.Errorf("store embedding for chart %d: %w", chart.ID, err)
	}
	chart.Embedding = emb
	return nil
}

// RetrieveSimilar embeds the query image, finds the k nearest stored charts
// and enriches them: missing visual maps are generated after selection,
// never used to filter it, and every path becomes an externally
// addressable URL.
func (r *Retriever) RetrieveSimilar(ctx context.Context, imagePath string, k int, excludeID int64) ([]types.Neighbor, error) {
	if k <= 0 {
		k = r.cfg.DefaultK
	}

	query, err := r.embedder.EmbedImage(ctx, imagePath)
	if err != nil {
		return nil, err
	}

	scored, err := r.engine.TopK(ctx, query, k, excludeID)
	if err != nil {
		return nil, err
	}

	r.backfillMaps(ctx, scored)

	neighbors := make([]types.Neighbor, 0, len(scored))
	for _, s := range scored {
		neighbors = append(neighbors, r.toNeighbor(s))
	}
	return neighbors, nil
}

// AnalyzeChart runs retrieval for a stored chart: its own four layers plus
// the enriched neighbor list, excluding the chart itself from the results.
func (r *Retriever) AnalyzeChart(ctx context.Context, chartID int64, k int) (*types.Analysis, error) {
	chart, err := r.store.GetChart(ctx, chartID)
	if err != nil {
		return nil, fmt.Errorf("load chart %d: %w", chartID, err)
	}

	imagePath := r.ImagePath(chart.Filename)
	r.maps.EnsureMaps(ctx, chart, imagePath)

	neighbors, err := r.RetrieveSimilar(ctx, imagePath, k, chartID)
	if err != nil {
		return nil, err
	}

	return &types.Analysis{
		ChartID:     chart.ID,
		ImageURL:    r.imageURL(chart.Filename),
		DepthURL:    r.mapURL(chart.DepthPath),
		EdgeURL:     r.mapURL(chart.EdgePath),
		GradientURL: r.mapURL(chart.GradientPath),
		Neighbors:   neighbors,
	}, nil
}

// backfillMaps generates missing maps for the returned neighbors
// concurrently. Each chart's maps are written atomically per kind; failures
// are logged inside EnsureMaps and retried on a later request.
func (r *Retriever) backfillMaps(ctx context.Context, scored []types.ScoredChart) {
	var wg sync.WaitGroup
	for i := range scored {
		chart := scored[i].Chart
		if chart.DepthPath != "" && chart.EdgePath != "" && chart.GradientPath != "" {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.maps.EnsureMaps(ctx, chart, r.ImagePath(chart.Filename))
		}()
	}
	wg.Wait()
}

func (r *Retriever) toNeighbor(s types.ScoredChart) types.Neighbor {
	c := s.Chart
	return types.Neighbor{
		ChartID:     c.ID,
		Filename:    c.Filename,
		Timeframe:   c.Timeframe,
		Instrument:  c.Instrument,
		Similarity:  s.Similarity,
		ImageURL:    r.imageURL(c.Filename),
		DepthURL:    r.mapURL(c.DepthPath),
		EdgeURL:     r.mapURL(c.EdgePath),
		GradientURL: r.mapURL(c.GradientPath),
	}
}

func (r *Retriever) ImagePath(filename string) string {
	return filepath.Join(r.cfg.UploadDir, filename)
}

func (r *Retriever) imageURL(filename string) string {
	if filename == "" {
		return ""
	}
	return r.cfg.PublicBaseURL + "/static/uploads/" + filename
}

// mapURL converts a map file path to an externally fetchable URL. Already
// absolute URLs pass through untouched; empty paths stay empty (map not
// generated yet).
func (r *Retriever) mapURL(path string) string {
	if path == "" {
		return ""
	}
	if strings.Contains(path, "://") {
		return path
	}
	rel, err := filepath.Rel(r.cfg.MapsDir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = filepath.Base(path)
	}
	return r.cfg.PublicBaseURL + "/static/maps/" + filepath.ToSlash(rel)
}
