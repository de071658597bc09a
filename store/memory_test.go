package store

import (
	"context"
	"errors"
	"testing"

	"chartsight/types"
)

func TestMemoryStoreCreateAndGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	chart := &types.Chart{Filename: "a.png", Timeframe: types.Timeframe1h, Instrument: "EURUSD"}
	if err := s.CreateChart(ctx, chart); err != nil {
		t.Fatal(err)
	}
	if chart.ID == 0 {
		t.Fatal("id not assigned")
	}

	got, err := s.GetChart(ctx, chart.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Filename != "a.png" || got.Instrument != "EURUSD" {
		t.Errorf("unexpected chart: %+v", got)
	}

	if _, err := s.GetChart(ctx, 999); err == nil {
		t.Error("expected error for missing chart")
	}
}

func TestMemoryStoreUpdateEmbeddingDimensionGuard(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	chart := &types.Chart{Filename: "a.png", Timeframe: types.Timeframe1h, Instrument: "EURUSD"}
	if err := s.CreateChart(ctx, chart); err != nil {
		t.Fatal(err)
	}

	err := s.UpdateChartEmbedding(ctx, chart.ID, []float32{1, 2, 3})
	var consistencyErr *types.ConsistencyError
	if !errors.As(err, &consistencyErr) {
		t.Fatalf("expected ConsistencyError, got %v", err)
	}

	emb := make([]float32, types.EmbeddingDim)
	emb[0] = 1
	if err := s.UpdateChartEmbedding(ctx, chart.ID, emb); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetChart(ctx, chart.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Embedding) != types.EmbeddingDim {
		t.Errorf("embedding length %d, want %d", len(got.Embedding), types.EmbeddingDim)
	}
}

func TestMemoryStoreBackfillListing(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	complete := &types.Chart{Filename: "done.png", Timeframe: types.Timeframe1d, Instrument: "BTCUSD"}
	if err := s.CreateChart(ctx, complete); err != nil {
		t.Fatal(err)
	}
	if err := s.SetEmbedding(complete.ID, []float32{1, 0}); err != nil {
		t.Fatal(err)
	}
	for _, kind := range types.MapKinds {
		if err := s.UpdateChartMapPath(ctx, complete.ID, kind, "/maps/"+string(kind)+".png"); err != nil {
			t.Fatal(err)
		}
	}

	pending := &types.Chart{Filename: "new.png", Timeframe: types.Timeframe5m, Instrument: "GBPUSD"}
	if err := s.CreateChart(ctx, pending); err != nil {
		t.Fatal(err)
	}

	charts, err := s.ChartsNeedingBackfill(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(charts) != 1 || charts[0].ID != pending.ID {
		t.Fatalf("backfill listing = %+v, want only chart %d", charts, pending.ID)
	}

	withEmb, err := s.ChartsWithEmbeddings(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(withEmb) != 1 || withEmb[0].ID != complete.ID {
		t.Fatalf("embeddings listing wrong: %+v", withEmb)
	}
}

func TestMemoryStoreNearestIndexLimit(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for i := 0; i < 4; i++ {
		chart := &types.Chart{Filename: "c.png", Timeframe: types.Timeframe1h, Instrument: "EURUSD"}
		if err := s.CreateChart(ctx, chart); err != nil {
			t.Fatal(err)
		}
		if err := s.SetEmbedding(chart.ID, []float32{1, float32(i) / 10}); err != nil {
			t.Fatal(err)
		}
	}

	s.IndexLimit = 2
	indexed, err := s.NearestByEmbedding(ctx, []float32{1, 0}, 4, 0, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(indexed) != 2 {
		t.Errorf("indexed path returned %d rows, want capped 2", len(indexed))
	}

	exact, err := s.NearestByEmbedding(ctx, []float32{1, 0}, 4, 0, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(exact) != 4 {
		t.Errorf("exact path returned %d rows, want 4", len(exact))
	}
}

func TestMemoryStoreClonesCharts(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	chart := &types.Chart{Filename: "a.png", Timeframe: types.Timeframe1h, Instrument: "EURUSD"}
	if err := s.CreateChart(ctx, chart); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetChart(ctx, chart.ID)
	if err != nil {
		t.Fatal(err)
	}
	got.Instrument = "MUTATED"

	again, err := s.GetChart(ctx, chart.ID)
	if err != nil {
		t.Fatal(err)
	}
	if again.Instrument != "EURUSD" {
		t.Error("store returned shared chart instance")
	}
}
