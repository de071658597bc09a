package types

import (
	"os"
	"strconv"
	"time"
)

// Config gathers the retrieval subsystem settings read from the environment.
type Config struct {
	UploadDir        string
	MapsDir          string
	PublicBaseURL    string
	ClipModelPath    string
	DepthModelPath   string
	InferenceTimeout time.Duration
	CacheSize        int
	DefaultK         int
	BackfillInterval time.Duration
}

// ConfigFromEnv reads the retrieval config, applying defaults for anything
// unset. Model paths may stay empty, the service then runs on the null
// embedding provider.
func ConfigFromEnv() *Config {
	return &Config{
		UploadDir:        envOr("UPLOAD_DIR", "./data/uploads"),
		MapsDir:          envOr("MAPS_DIR", "./data/maps"),
		PublicBaseURL:    envOr("PUBLIC_BASE_URL", ""),
		ClipModelPath:    os.Getenv("CLIP_MODEL_PATH"),
		DepthModelPath:   os.Getenv("DEPTH_MODEL_PATH"),
		InferenceTimeout: envDurationOr("INFERENCE_TIMEOUT", 30*time.Second),
		CacheSize:        envIntOr("EMBED_CACHE_SIZE", 256),
		DefaultK:         envIntOr("RETRIEVAL_K", 3),
		BackfillInterval: envDurationOr("BACKFILL_INTERVAL", 5*time.Minute),
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOr(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func envDurationOr(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}
