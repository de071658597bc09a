package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"chartsight/app/server"
	"chartsight/app/worker"
	"chartsight/model"
	"chartsight/retriever"
	"chartsight/search"
	"chartsight/store"
	"chartsight/types"
	"chartsight/vision"
)

func main() {
	loadEnvVariables()

	logger, err := newLogger()
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg := types.ConfigFromEnv()
	for _, dir := range []string{cfg.UploadDir, cfg.MapsDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			logger.Fatal("failed to create data dir", zap.String("dir", dir), zap.Error(err))
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := store.NewPostgresStore(ctx, postgresConnStr(), logger)
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pg.Close()
	if err := pg.Init(ctx); err != nil {
		logger.Fatal("failed to create tables", zap.Error(err))
	}

	// The inference sessions are expensive; build them once here and inject
	// them everywhere. When no model is configured (or the runtime is
	// unavailable) the deterministic null provider keeps retrieval running.
	var embedder model.Embedder
	if cfg.ClipModelPath != "" {
		clip, err := model.NewCLIPEmbedder(cfg.ClipModelPath, 1, cfg.InferenceTimeout)
		if err != nil {
			logger.Warn("clip embedder unavailable, using null provider", zap.Error(err))
			embedder = model.NewNullEmbedder(types.EmbeddingDim)
		} else {
			embedder = clip
		}
	} else {
		logger.Info("no clip model configured, using null embedding provider")
		embedder = model.NewNullEmbedder(types.EmbeddingDim)
	}
	embedder = model.NewCachingEmbedder(embedder, cfg.CacheSize)
	defer embedder.Close()

	var depth vision.DepthEstimator
	if cfg.DepthModelPath != "" {
		onnxDepth, err := vision.NewONNXDepthEstimator(cfg.DepthModelPath, cfg.InferenceTimeout)
		if err != nil {
			logger.Warn("depth model unavailable, using fallback estimator", zap.Error(err))
			depth = vision.NewFallbackDepthEstimator()
		} else {
			depth = onnxDepth
		}
	} else {
		depth = vision.NewFallbackDepthEstimator()
	}
	defer depth.Close()

	maps := vision.NewMapGenerator(pg, depth, cfg.MapsDir, logger)
	engine := search.NewEngine(pg, logger)
	ret := retriever.New(embedder, engine, maps, pg, cfg, logger)

	backfiller := worker.NewBackfiller(pg, ret, maps, cfg, logger)
	go backfiller.Run(ctx)

	s := server.New(listenAddr(), pg, ret, cfg, logger)
	go func() {
		if err := s.Run(); err != nil {
			logger.Error("server stopped", zap.Error(err))
			cancel()
		}
	}()

	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigch:
		logger.Info("received shutdown signal")
	case <-ctx.Done():
	}
	cancel()
	if err := s.Stop(); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
}

func loadEnvVariables() {
	// Missing .env is fine in containerized deployments, the environment is
	// set by the runtime there.
	_ = godotenv.Load()
}

func newLogger() (*zap.Logger, error) {
	if os.Getenv("DEBUG") != "" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func listenAddr() string {
	if addr := os.Getenv("SERVER_ADDR"); addr != "" {
		return addr
	}
	return ":8080"
}

func postgresConnStr() string {
	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		return dsn
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		envOr("PG_HOST", "localhost"),
		envOr("PG_PORT", "5432"),
		envOr("PG_USER", "postgres"),
		envOr("PG_PASS", "postgres"),
		envOr("PG_DB_NAME", "chartsight"),
	)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
