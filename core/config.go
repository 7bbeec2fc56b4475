package core

import (
	"os"
	"strconv"
	"time"
)

// EngineConfig holds engine-wide settings: the workflow-level defaults that
// are not part of any one workflow definition. Struct defaults are
// overridable by FLOWFORGE_* environment variables, matching the
// struct-default-then-env-override pattern the teacher uses for its
// GOMIND_* variables.
type EngineConfig struct {
	MaxParallel int `yaml:"max_parallel"`

	DefaultRetryMaxAttempts    int           `yaml:"default_retry_max_attempts"`
	DefaultRetryInitialInterval time.Duration `yaml:"default_retry_initial_interval"`
	DefaultRetryMaxInterval     time.Duration `yaml:"default_retry_max_interval"`
	DefaultRetryMultiplier      float64       `yaml:"default_retry_multiplier"`
	DefaultRetryJitter          float64       `yaml:"default_retry_jitter"`

	CheckpointInterval time.Duration `yaml:"checkpoint_interval"`
	CheckpointRetainN  int           `yaml:"checkpoint_retain_n"`

	QueueDepthHighWatermark int `yaml:"queue_depth_high_watermark"`
	QueueDepthLowWatermark  int `yaml:"queue_depth_low_watermark"`

	ExecutionDebugStoreEnabled bool `yaml:"execution_debug_store_enabled"`
}

// DefaultEngineConfig returns sensible defaults, overridden by environment
// variables where present.
func DefaultEngineConfig() EngineConfig {
	cfg := EngineConfig{
		MaxParallel:                 16,
		DefaultRetryMaxAttempts:     3,
		DefaultRetryInitialInterval: 100 * time.Millisecond,
		DefaultRetryMaxInterval:     30 * time.Second,
		DefaultRetryMultiplier:      2.0,
		DefaultRetryJitter:          0.15,
		CheckpointInterval:          60 * time.Second,
		CheckpointRetainN:           10,
		QueueDepthHighWatermark:     1000,
		QueueDepthLowWatermark:      200,
		ExecutionDebugStoreEnabled:  false,
	}

	if v := envInt("FLOWFORGE_MAX_PARALLEL"); v != 0 {
		cfg.MaxParallel = v
	}
	if v := envInt("FLOWFORGE_RETRY_MAX_ATTEMPTS"); v != 0 {
		cfg.DefaultRetryMaxAttempts = v
	}
	if v := envDuration("FLOWFORGE_CHECKPOINT_INTERVAL"); v != 0 {
		cfg.CheckpointInterval = v
	}
	if v := envBool("FLOWFORGE_EXECUTION_DEBUG_STORE_ENABLED"); v {
		cfg.ExecutionDebugStoreEnabled = true
	}
	return cfg
}

func envInt(key string) int {
	raw := os.Getenv(key)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}

func envDuration(key string) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return 0
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0
	}
	return d
}

func envBool(key string) bool {
	raw := os.Getenv(key)
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false
	}
	return b
}
