package search

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"go.uber.org/zap"

	"chartsight/store"
	"chartsight/types"
)

func seedToyCorpus(t *testing.T) *store.MemoryStore {
	t.Helper()
	ctx := context.Background()
	s := store.NewMemoryStore()

	embeddings := [][]float32{
		{1, 0},
		{0.99, 0.01},
		{0, 1},
		{-1, 0},
		{0.5, 0.5},
	}
	for i, emb := range embeddings {
		chart := &types.Chart{
			Filename:   fmt.Sprintf("chart%d.png", i),
			Timeframe:  types.Timeframe1h,
			Instrument: "EURUSD",
		}
		if err := s.CreateChart(ctx, chart); err != nil {
			t.Fatal(err)
		}
		if err := s.SetEmbedding(chart.ID, emb); err != nil {
			t.Fatal(err)
		}
	}
	return s
}

func TestTopKOrdering(t *testing.T) {
	ctx := context.Background()
	engine := NewEngine(seedToyCorpus(t), zap.NewNop())

	results, err := engine.TopK(ctx, []float32{1, 0}, 3, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}

	wantIDs := []int64{1, 2, 5}
	for i, want := range wantIDs {
		if results[i].Chart.ID != want {
			t.Errorf("result %d: chart %d, want %d", i, results[i].Chart.ID, want)
		}
	}
	if math.Abs(results[0].Similarity-1.0) > 1e-6 {
		t.Errorf("top similarity = %f, want 1.0", results[0].Similarity)
	}
	if math.Abs(results[2].Similarity-math.Sqrt2/2) > 1e-3 {
		t.Errorf("third similarity = %f, want ~0.707", results[2].Similarity)
	}
	for i, r := range results {
		if r.Similarity < 0 || r.Similarity > 1 {
			t.Errorf("result %d similarity %f outside [0,1]", i, r.Similarity)
		}
	}
}

func TestTopKExcludesSelf(t *testing.T) {
	ctx := context.Background()
	engine := NewEngine(seedToyCorpus(t), zap.NewNop())

	results, err := engine.TopK(ctx, []float32{1, 0}, 3, 1)
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range results {
		if r.Chart.ID == 1 {
			t.Fatal("excluded chart returned")
		}
	}
	if results[0].Chart.ID != 2 {
		t.Errorf("top result chart %d, want 2", results[0].Chart.ID)
	}
}

func TestTopKUnderReturnFallback(t *testing.T) {
	ctx := context.Background()
	s := seedToyCorpus(t)
	// Primary path returns a single row, mimicking a miscalibrated ANN
	// index; the exact scan tier must still deliver k rows.
	s.IndexLimit = 1
	engine := NewEngine(s, zap.NewNop())

	results, err := engine.TopK(ctx, []float32{1, 0}, 3, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("fallback returned %d rows, want 3", len(results))
	}
}

func TestTopKTieBreakByID(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	for i := 0; i < 3; i++ {
		chart := &types.Chart{Filename: fmt.Sprintf("dup%d.png", i), Timeframe: types.Timeframe1d, Instrument: "BTCUSD"}
		if err := s.CreateChart(ctx, chart); err != nil {
			t.Fatal(err)
		}
		if err := s.SetEmbedding(chart.ID, []float32{0, 1}); err != nil {
			t.Fatal(err)
		}
	}
	engine := NewEngine(s, zap.NewNop())

	results, err := engine.TopK(ctx, []float32{0, 1}, 3, 0)
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i < len(results); i++ {
		if results[i-1].Chart.ID >= results[i].Chart.ID {
			t.Errorf("tied results not ordered by id: %d before %d",
				results[i-1].Chart.ID, results[i].Chart.ID)
		}
	}
}

func TestTopKIncludesNeighborsWithoutMaps(t *testing.T) {
	ctx := context.Background()
	s := seedToyCorpus(t)
	// Chart 1 gets maps, chart 2 has none; both must be eligible.
	if err := s.UpdateChartMapPath(ctx, 1, types.MapDepth, "/maps/depth/chart0.png"); err != nil {
		t.Fatal(err)
	}
	engine := NewEngine(s, zap.NewNop())

	results, err := engine.TopK(ctx, []float32{1, 0}, 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[1].Chart.ID != 2 {
		t.Errorf("mapless chart filtered out, second result chart %d", results[1].Chart.ID)
	}
	if results[1].Chart.DepthPath != "" {
		t.Error("expected missing depth path on second result")
	}
}

func TestTopKToleratesCorruptedLengths(t *testing.T) {
	ctx := context.Background()
	s := seedToyCorpus(t)
	// Legacy row with a different embedding dimension must not break search.
	chart := &types.Chart{Filename: "legacy.png", Timeframe: types.Timeframe5m, Instrument: "GBPUSD"}
	if err := s.CreateChart(ctx, chart); err != nil {
		t.Fatal(err)
	}
	if err := s.SetEmbedding(chart.ID, []float32{1, 0, 0, 0, 0.3}); err != nil {
		t.Fatal(err)
	}
	engine := NewEngine(s, zap.NewNop())

	results, err := engine.TopK(ctx, []float32{1, 0}, 6, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 6 {
		t.Fatalf("got %d results, want 6", len(results))
	}
	for _, r := range results {
		if r.Similarity < 0 || r.Similarity > 1 {
			t.Errorf("similarity %f outside [0,1]", r.Similarity)
		}
	}
}

// sqlFailingStore simulates a store whose vector queries fail while bulk
// reads still work, forcing the in-process fallback tier.
type sqlFailingStore struct {
	*store.MemoryStore
}

func (s *sqlFailingStore) NearestByEmbedding(ctx context.Context, vec []float32, k int, excludeID int64, exact bool) ([]types.ScoredChart, error) {
	return nil, errors.New("vector extension unavailable")
}

func TestTopKFullScanFallback(t *testing.T) {
	ctx := context.Background()
	engine := NewEngine(&sqlFailingStore{seedToyCorpus(t)}, zap.NewNop())

	results, err := engine.TopK(ctx, []float32{1, 0}, 3, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("full scan returned %d rows, want 3", len(results))
	}
	if results[0].Chart.ID != 1 {
		t.Errorf("top result chart %d, want 1", results[0].Chart.ID)
	}
}

// deadStore fails every read, driving all tiers to failure.
type deadStore struct {
	*store.MemoryStore
}

func (s *deadStore) NearestByEmbedding(ctx context.Context, vec []float32, k int, excludeID int64, exact bool) ([]types.ScoredChart, error) {
	return nil, errors.New("connection refused")
}

func (s *deadStore) ChartsWithEmbeddings(ctx context.Context) ([]*types.Chart, error) {
	return nil, errors.New("connection refused")
}

func TestTopKAllTiersFailed(t *testing.T) {
	ctx := context.Background()
	engine := NewEngine(&deadStore{store.NewMemoryStore()}, zap.NewNop())

	_, err := engine.TopK(ctx, []float32{1, 0}, 3, 0)
	var searchErr *types.SearchError
	if !errors.As(err, &searchErr) {
		t.Fatalf("expected SearchError, got %v", err)
	}
}

func TestTopKEmptyCorpus(t *testing.T) {
	ctx := context.Background()
	engine := NewEngine(store.NewMemoryStore(), zap.NewNop())

	results, err := engine.TopK(ctx, []float32{1, 0}, 3, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Fatalf("empty corpus returned %d rows", len(results))
	}
}
