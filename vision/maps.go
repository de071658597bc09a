package vision

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"chartsight/types"
)

// MapPathUpdater persists a generated map path on a chart record.
type MapPathUpdater interface {
	UpdateChartMapPath(ctx context.Context, id int64, kind types.MapKind, path string) error
}

// MapGenerator derives the three visual maps for a chart. EnsureMaps is
// idempotent and is the only code that mutates chart map-path fields.
type MapGenerator struct {
	store   MapPathUpdater
	depth   DepthEstimator
	mapsDir string
	logger  *zap.Logger
}

func NewMapGenerator(store MapPathUpdater, depth DepthEstimator, mapsDir string, logger *zap.Logger) *MapGenerator {
	return &MapGenerator{
		store:   store,
		depth:   depth,
		mapsDir: mapsDir,
		logger:  logger,
	}
}

// MapFilePath returns the on-disk location for a chart's map of the given
// kind, one subdirectory per kind.
func (g *MapGenerator) MapFilePath(kind types.MapKind, filename string) string {
	stem := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	return filepath.Join(g.mapsDir, string(kind), fmt.Sprintf("%s_%s.png", kind, stem))
}

// EnsureMaps generates any missing maps for the chart and records their
// paths. A recorded path whose file still exists is reused untouched. A
// failure on one kind is logged and does not block the others.
func (g *MapGenerator) EnsureMaps(ctx context.Context, chart *types.Chart, imagePath string) {
	var src image.Image
	var gray *image.Gray

	for _, kind := range types.MapKinds {
		if p := chart.MapPath(kind); p != "" && fileExists(p) {
			continue
		}

		if src == nil {
			f, err := os.Open(imagePath)
			if err != nil {
				g.logger.Warn("map source unreadable, leaving maps for retry",
					zap.Int64("chart_id", chart.ID),
					zap.String("path", imagePath),
					zap.Error(err))
				return
			}
			img, _, err := image.Decode(f)
			f.Close()
			if err != nil {
				g.logger.Warn("map source undecodable, leaving maps for retry",
					zap.Int64("chart_id", chart.ID),
					zap.String("path", imagePath),
					zap.Error(err))
				return
			}
			src = img
			gray = ToGray(img)
		}

		out, err := g.generate(ctx, kind, src, gray)
		if err != nil {
			g.logger.Warn("map generation failed",
				zap.Int64("chart_id", chart.ID),
				zap.String("kind", string(kind)),
				zap.Error(err))
			continue
		}

		target := g.MapFilePath(kind, chart.Filename)
		if err := WriteGrayPNG(target, out); err != nil {
			g.logger.Warn("map write failed",
				zap.Int64("chart_id", chart.ID),
				zap.String("kind", string(kind)),
				zap.Error(err))
			continue
		}

		if err := g.store.UpdateChartMapPath(ctx, chart.ID, kind, target); err != nil {
			g.logger.Warn("map path update failed",
				zap.Int64("chart_id", chart.ID),
				zap.String("kind", string(kind)),
				zap.Error(err))
			continue
		}
		chart.SetMapPath(kind, target)
	}
}

func (g *MapGenerator) generate(ctx context.Context, kind types.MapKind, src image.Image, gray *image.Gray) (*image.Gray, error) {
	switch kind {
	case types.MapDepth:
		return g.depth.EstimateDepth(ctx, src)
	case types.MapEdge:
		return EdgeMap(gray), nil
	case types.MapGradient:
		return GradientMap(gray), nil
	}
	return nil, fmt.Errorf("unknown map kind %q", kind)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
