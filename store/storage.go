// Package store persists chart records and their embeddings.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"chartsight/types"
)

// ChartStorer is the persistence interface of the retrieval subsystem.
type ChartStorer interface {
	CreateChart(ctx context.Context, chart *types.Chart) error
	GetChart(ctx context.Context, id int64) (*types.Chart, error)
	UpdateChartEmbedding(ctx context.Context, id int64, emb []float32) error
	UpdateChartMapPath(ctx context.Context, id int64, kind types.MapKind, path string) error
	ChartsWithEmbeddings(ctx context.Context) ([]*types.Chart, error)
	ChartsNeedingBackfill(ctx context.Context) ([]*types.Chart, error)
	NearestByEmbedding(ctx context.Context, vec []float32, k int, excludeID int64, exact bool) ([]types.ScoredChart, error)
}

type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewPostgresStore(ctx context.Context, connStr string, logger *zap.Logger) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool, logger: logger}, nil
}

const chartColumns = `id, filename, timeframe, instrument, COALESCE(session, ''),
	embedding, COALESCE(depth_path, ''), COALESCE(edge_path, ''),
	COALESCE(gradient_path, ''), bundle_id, created_at`

func (p *PostgresStore) createChartTables(ctx context.Context) error {
	query := fmt.Sprintf(`
	CREATE EXTENSION IF NOT EXISTS vector;

	CREATE TABLE IF NOT EXISTS charts (
		id BIGSERIAL PRIMARY KEY,
		filename TEXT NOT NULL,
		timeframe TEXT NOT NULL,
		instrument TEXT NOT NULL,
		session TEXT,
		embedding vector(%d),
		depth_path TEXT,
		edge_path TEXT,
		gradient_path TEXT,
		bundle_id UUID,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT now()
	);

	CREATE INDEX IF NOT EXISTS idx_charts_embedding ON charts USING ivfflat (embedding vector_cosine_ops)
	WITH (lists = 100);

	CREATE INDEX IF NOT EXISTS idx_charts_instrument ON charts(instrument);
	CREATE INDEX IF NOT EXISTS idx_charts_bundle_id ON charts(bundle_id);
	`, types.EmbeddingDim)
	_, err := p.pool.Exec(ctx, query)
	return err
}

func (p *PostgresStore) Init(ctx context.Context) error {
	return p.createChartTables(ctx)
}

func (p *PostgresStore) CreateChart(ctx context.Context, chart *types.Chart) error {
	query := `INSERT INTO charts (filename, timeframe, instrument, session, bundle_id)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5)
		RETURNING id, created_at`
	return p.pool.QueryRow(ctx, query,
		chart.Filename,
		chart.Timeframe,
		chart.Instrument,
		string(chart.Session),
		chart.BundleID,
	).Scan(&chart.ID, &chart.CreatedAt)
}

func (p *PostgresStore) GetChart(ctx context.Context, id int64) (*types.Chart, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+chartColumns+` FROM charts WHERE id = $1`, id)
	return scanChart(row)
}

func (p *PostgresStore) UpdateChartEmbedding(ctx context.Context, id int64, emb []float32) error {
	if len(emb) != types.EmbeddingDim {
		return &types.ConsistencyError{Want: types.EmbeddingDim, Got: len(emb)}
	}
	_, err := p.pool.Exec(ctx, `UPDATE charts SET embedding = $1 WHERE id = $2`,
		pgvector.NewVector(emb), id)
	return err
}

func (p *PostgresStore) UpdateChartMapPath(ctx context.Context, id int64, kind types.MapKind, path string) error {
	var column string
	switch kind {
	case types.MapDepth:
		column = "depth_path"
	case types.MapEdge:
		column = "edge_path"
	case types.MapGradient:
		column = "gradient_path"
	default:
		return fmt.Errorf("unknown map kind %q", kind)
	}
	_, err := p.pool.Exec(ctx, fmt.Sprintf(`UPDATE charts SET %s = $1 WHERE id = $2`, column), path, id)
	return err
}

func (p *PostgresStore) ChartsWithEmbeddings(ctx context.Context) ([]*types.Chart, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT `+chartColumns+` FROM charts WHERE embedding IS NOT NULL ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCharts(rows)
}

// ChartsNeedingBackfill returns charts with a missing embedding or at least
// one missing map path.
func (p *PostgresStore) ChartsNeedingBackfill(ctx context.Context) ([]*types.Chart, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT `+chartColumns+` FROM charts
		 WHERE embedding IS NULL OR depth_path IS NULL OR edge_path IS NULL OR gradient_path IS NULL
		 ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCharts(rows)
}

// NearestByEmbedding returns the k nearest charts by cosine distance. With
// exact set, index scans are disabled for the statement so the planner runs
// a full ordered scan; used when the ivfflat index under-returns.
func (p *PostgresStore) NearestByEmbedding(ctx context.Context, vec []float32, k int, excludeID int64, exact bool) ([]types.ScoredChart, error) {
	query := `SELECT ` + chartColumns + `, 1 - (embedding <=> $1) AS similarity
		FROM charts
		WHERE embedding IS NOT NULL AND ($2::bigint = 0 OR id <> $2)
		ORDER BY embedding <=> $1, id
		LIMIT $3`
	qvec := pgvector.NewVector(vec)

	if !exact {
		rows, err := p.pool.Query(ctx, query, qvec, excludeID, k)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		return scanScoredCharts(rows)
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	for _, stmt := range []string{
		`SET LOCAL enable_indexscan = off`,
		`SET LOCAL enable_bitmapscan = off`,
	} {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return nil, err
		}
	}

	rows, err := tx.Query(ctx, query, qvec, excludeID, k)
	if err != nil {
		return nil, err
	}
	scored, err := scanScoredCharts(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return scored, nil
}

func scanChart(row pgx.Row) (*types.Chart, error) {
	chart := &types.Chart{}
	var embedding *pgvector.Vector
	err := row.Scan(
		&chart.ID,
		&chart.Filename,
		&chart.Timeframe,
		&chart.Instrument,
		&chart.Session,
		&embedding,
		&chart.DepthPath,
		&chart.EdgePath,
		&chart.GradientPath,
		&chart.BundleID,
		&chart.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if embedding != nil {
		chart.Embedding = embedding.Slice()
	}
	return chart, nil
}

func scanCharts(rows pgx.Rows) ([]*types.Chart, error) {
	var charts []*types.Chart
	for rows.Next() {
		chart, err := scanChart(rows)
		if err != nil {
			return nil, err
		}
		charts = append(charts, chart)
	}
	return charts, rows.Err()
}

func scanScoredCharts(rows pgx.Rows) ([]types.ScoredChart, error) {
	var scored []types.ScoredChart
	for rows.Next() {
		chart := &types.Chart{}
		var embedding *pgvector.Vector
		var similarity float64
		err := rows.Scan(
			&chart.ID,
			&chart.Filename,
			&chart.Timeframe,
			&chart.Instrument,
			&chart.Session,
			&embedding,
			&chart.DepthPath,
			&chart.EdgePath,
			&chart.GradientPath,
			&chart.BundleID,
			&chart.CreatedAt,
			&similarity,
		)
		if err != nil {
			return nil, err
		}
		if embedding != nil {
			chart.Embedding = embedding.Slice()
		}
		scored = append(scored, types.ScoredChart{Chart: chart, Similarity: similarity})
	}
	return scored, rows.Err()
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
		s.logger.Info("postgres connection pool closed")
	}
	return nil
}
