// Package worker backfills embeddings and visual maps for charts whose
// artifacts are still missing.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"chartsight/retriever"
	"chartsight/store"
	"chartsight/types"
	"chartsight/vision"
)

// maxConcurrentBackfills bounds how many charts are processed at once; model
// inference is serialized anyway, this only bounds queued work.
const maxConcurrentBackfills = 4

// Backfiller sweeps the store for charts missing embeddings or maps and
// fills them in. A watcher on the upload directory triggers an early sweep
// when new files land; a ticker covers everything else. Sweeps are
// idempotent, a chart that fails is picked up again on the next pass.
type Backfiller struct {
	store     store.ChartStorer
	retriever *retriever.Retriever
	maps      *vision.MapGenerator
	cfg       *types.Config
	logger    *zap.Logger

	kick chan struct{}
}

func NewBackfiller(
	storer store.ChartStorer,
	r *retriever.Retriever,
	maps *vision.MapGenerator,
	cfg *types.Config,
	logger *zap.Logger,
) *Backfiller {
	return &Backfiller{
		store:     storer,
		retriever: r,
		maps:      maps,
		cfg:       cfg,
		logger:    logger,
		kick:      make(chan struct{}, 1),
	}
}

// Run blocks until ctx is cancelled.
func (b *Backfiller) Run(ctx context.Context) {
	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		if err := watcher.Add(b.cfg.UploadDir); err != nil {
			b.logger.Warn("cannot watch upload dir, relying on periodic sweep",
				zap.String("dir", b.cfg.UploadDir),
				zap.Error(err))
		}
		defer watcher.Close()
		go b.watch(ctx, watcher)
	} else {
		b.logger.Warn("fsnotify unavailable, relying on periodic sweep", zap.Error(err))
	}

	ticker := time.NewTicker(b.cfg.BackfillInterval)
	defer ticker.Stop()

	b.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.sweep(ctx)
		case <-b.kick:
			// Give the uploader a moment to finish writing and create the
			// chart record before sweeping.
			time.Sleep(500 * time.Millisecond)
			b.sweep(ctx)
		}
	}
}

func (b *Backfiller) watch(ctx context.Context, watcher *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				select {
				case b.kick <- struct{}{}:
				default:
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			b.logger.Warn("upload watcher error", zap.Error(err))
		}
	}
}

// sweep processes every chart needing backfill, bounded by a semaphore.
// Per-chart failures are logged and left for the next pass.
func (b *Backfiller) sweep(ctx context.Context) {
	charts, err := b.store.ChartsNeedingBackfill(ctx)
	if err != nil {
		b.logger.Warn("backfill sweep query failed", zap.Error(err))
		return
	}
	if len(charts) == 0 {
		return
	}
	b.logger.Info("backfill sweep", zap.Int("charts", len(charts)))

	sem := make(chan struct{}, maxConcurrentBackfills)
	var wg sync.WaitGroup
	for _, chart := range charts {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(chart *types.Chart) {
			defer wg.Done()
			defer func() { <-sem }()
			b.process(ctx, chart)
		}(chart)
	}
	wg.Wait()
}

func (b *Backfiller) process(ctx context.Context, chart *types.Chart) {
	if chart.Embedding == nil {
		if err := b.retriever.EmbedAndStore(ctx, chart); err != nil {
			b.logger.Warn("backfill embedding failed",
				zap.Int64("chart_id", chart.ID),
				zap.Error(err))
			// Maps may still be generable even if embedding failed.
		}
	}
	b.maps.EnsureMaps(ctx, chart, b.retriever.ImagePath(chart.Filename))
}
