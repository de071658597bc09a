package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"chartsight/model"
	"chartsight/types"
)

// MemoryStore is an in-process ChartStorer for tests and index-less
// deployments. Similarity queries are brute-force cosine scans.
type MemoryStore struct {
	mu     sync.RWMutex
	charts map[int64]*types.Chart
	nextID int64

	// IndexLimit caps how many rows the non-exact query path returns,
	// mimicking an under-returning ANN index. Zero means no cap.
	IndexLimit int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		charts: make(map[int64]*types.Chart),
		nextID: 1,
	}
}

func (m *MemoryStore) CreateChart(ctx context.Context, chart *types.Chart) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	chart.ID = m.nextID
	m.nextID++
	if chart.CreatedAt.IsZero() {
		chart.CreatedAt = time.Now()
	}
	m.charts[chart.ID] = cloneChart(chart)
	return nil
}

func (m *MemoryStore) GetChart(ctx context.Context, id int64) (*types.Chart, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	chart, ok := m.charts[id]
	if !ok {
		return nil, fmt.Errorf("chart %d not found", id)
	}
	return cloneChart(chart), nil
}

func (m *MemoryStore) UpdateChartEmbedding(ctx context.Context, id int64, emb []float32) error {
	if len(emb) != types.EmbeddingDim {
		return &types.ConsistencyError{Want: types.EmbeddingDim, Got: len(emb)}
	}
	return m.update(id, func(c *types.Chart) {
		c.Embedding = append([]float32(nil), emb...)
	})
}

// SetEmbedding stores a vector without the dimension check. Test helper for
// seeding legacy-dimension rows.
func (m *MemoryStore) SetEmbedding(id int64, emb []float32) error {
	return m.update(id, func(c *types.Chart) {
		c.Embedding = append([]float32(nil), emb...)
	})
}

func (m *MemoryStore) UpdateChartMapPath(ctx context.Context, id int64, kind types.MapKind, path string) error {
	return m.update(id, func(c *types.Chart) {
		c.SetMapPath(kind, path)
	})
}

func (m *MemoryStore) update(id int64, fn func(*types.Chart)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	chart, ok := m.charts[id]
	if !ok {
		return fmt.Errorf("chart %d not found", id)
	}
	fn(chart)
	return nil
}

func (m *MemoryStore) ChartsWithEmbeddings(ctx context.Context) ([]*types.Chart, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var charts []*types.Chart
	for _, c := range m.charts {
		if c.Embedding != nil {
			charts = append(charts, cloneChart(c))
		}
	}
	sort.Slice(charts, func(i, j int) bool { return charts[i].ID < charts[j].ID })
	return charts, nil
}

func (m *MemoryStore) ChartsNeedingBackfill(ctx context.Context) ([]*types.Chart, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var charts []*types.Chart
	for _, c := range m.charts {
		if c.Embedding == nil || c.DepthPath == "" || c.EdgePath == "" || c.GradientPath == "" {
			charts = append(charts, cloneChart(c))
		}
	}
	sort.Slice(charts, func(i, j int) bool { return charts[i].ID < charts[j].ID })
	return charts, nil
}

func (m *MemoryStore) NearestByEmbedding(ctx context.Context, vec []float32, k int, excludeID int64, exact bool) ([]types.ScoredChart, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var scored []types.ScoredChart
	for _, c := range m.charts {
		if c.Embedding == nil || c.ID == excludeID {
			continue
		}
		scored = append(scored, types.ScoredChart{
			Chart:      cloneChart(c),
			Similarity: model.Cosine(vec, c.Embedding),
		})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Similarity != scored[j].Similarity {
			return scored[i].Similarity > scored[j].Similarity
		}
		return scored[i].Chart.ID < scored[j].Chart.ID
	})

	limit := k
	if !exact && m.IndexLimit > 0 && m.IndexLimit < limit {
		limit = m.IndexLimit
	}
	if limit > len(scored) {
		limit = len(scored)
	}
	return scored[:limit], nil
}

func cloneChart(c *types.Chart) *types.Chart {
	clone := *c
	if c.Embedding != nil {
		clone.Embedding = append([]float32(nil), c.Embedding...)
	}
	return &clone
}
