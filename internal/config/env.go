package config

import (
	"os"
	"strconv"
	"time"
)

// ApplyEnv overrides cfg with VOXCHECK_* variables read through getenv
// (os.Getenv when nil). Unparseable values are ignored.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	if getenv == nil {
		getenv = os.Getenv
	}

	envFloat(getenv, "VOXCHECK_DEFAULT_THRESHOLD", &cfg.Scoring.DefaultThreshold)
	envString(getenv, "VOXCHECK_AGGREGATION", &cfg.Scoring.Aggregation)
	envDuration(getenv, "VOXCHECK_STEP_TIMEOUT", &cfg.Scoring.StepTimeout)

	envString(getenv, "VOXCHECK_EMBEDDING_PROVIDER", &cfg.Embedding.Provider)
	envString(getenv, "VOXCHECK_EMBEDDING_MODEL", &cfg.Embedding.Model)
	envString(getenv, "VOXCHECK_OPENAI_API_KEY", &cfg.Embedding.APIKey)
	envString(getenv, "VOXCHECK_OPENAI_BASE_URL", &cfg.Embedding.BaseURL)
	envString(getenv, "VOXCHECK_ONNX_MODEL_DIR", &cfg.Embedding.ModelDir)
	envInt(getenv, "VOXCHECK_EMBEDDING_RPM", &cfg.Embedding.RequestsPerMinute)
	envInt(getenv, "VOXCHECK_EMBEDDING_BURST", &cfg.Embedding.Burst)
	envInt(getenv, "VOXCHECK_EMBEDDING_MAX_RETRIES", &cfg.Embedding.MaxRetries)
	envFloat(getenv, "VOXCHECK_FAULT_ERROR_RATE", &cfg.Embedding.FaultErrorRate)

	envString(getenv, "VOXCHECK_CACHE_DIR", &cfg.Cache.Dir)
	envInt(getenv, "VOXCHECK_EMBEDDING_CACHE_MAX_MB", &cfg.Cache.MaxMB)

	envString(getenv, "VOXCHECK_STORE_PATH", &cfg.Store.Path)
	envDuration(getenv, "VOXCHECK_FETCH_TIMEOUT", &cfg.Store.FetchTimeout)
	envInt(getenv, "VOXCHECK_WORKERS", &cfg.Runner.Workers)
}

func envString(getenv func(string) string, key string, dst *string) {
	if v := getenv(key); v != "" {
		*dst = v
	}
}

func envInt(getenv func(string) string, key string, dst *int) {
	if n, err := strconv.Atoi(getenv(key)); err == nil {
		*dst = n
	}
}

func envFloat(getenv func(string) string, key string, dst *float64) {
	if f, err := strconv.ParseFloat(getenv(key), 64); err == nil {
		*dst = f
	}
}

func envDuration(getenv func(string) string, key string, dst *time.Duration) {
	if d, err := time.ParseDuration(getenv(key)); err == nil {
		*dst = d
	}
}
