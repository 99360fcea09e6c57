// Package config loads the service configuration from the environment.
// Every knob has a default that works on a laptop; production overrides
// come from real env vars or a .env file loaded by the binaries.
package config

import (
	"os"
	"runtime"
	"strconv"
	"time"
)

// WorkerSettings sizes one worker pool.
type WorkerSettings struct {
	// Default is the worker count at startup, clamped into [Min, Max].
	Default int
	// Min is the floor the autoscaler never goes below.
	Min int
	// Max is the absolute ceiling for the pool.
	Max int
	// ScalingMax caps dynamic growth; it may sit below Max to keep
	// headroom for manual overrides.
	ScalingMax int
}

// Settings is the full environment surface of the service.
type Settings struct {
	RedisURL         string
	InferenceURL     string
	InferenceTimeout time.Duration
	InferenceAPIKey  string
	APIKey           string
	AdminAddr        string
	MetricsAddr      string

	BatchEnabled         bool
	BatchWindow          time.Duration
	BatchMaxSize         int
	PriorityQueueEnabled bool
	ShortTextThreshold   int
	LongTextThreshold    int
	MaxTranslationLength int

	NormalPoolSize int
	AnyPoolSize    int
	FastPoolSize   int

	NormalWorkers WorkerSettings
	AnyWorkers    WorkerSettings

	DynamicScaling  bool
	ScalingInterval time.Duration

	CacheEnabled bool
	// CacheBackend selects "redis" or "memory"; memory keeps the service
	// translating when no shared cache is wanted.
	CacheBackend string
	CacheTTL     time.Duration
}

// Load reads the environment and returns the resolved settings.
func Load() *Settings {
	s := &Settings{
		RedisURL:         getEnv("REDIS_URL", "redis://localhost:6379"),
		InferenceURL:     getEnv("INFERENCE_URL", "http://localhost:8000"),
		InferenceTimeout: getSeconds("INFERENCE_TIMEOUT_S", 30),
		InferenceAPIKey:  getEnv("INFERENCE_API_KEY", ""),
		APIKey:           getEnv("API_KEY", ""),
		AdminAddr:        getEnv("ADMIN_ADDR", ":8081"),
		MetricsAddr:      getEnv("METRICS_ADDR", ":8080"),

		BatchEnabled:         getBool("BATCH_ENABLED", true),
		BatchWindow:          getMillis("BATCH_WINDOW_MS", 50),
		BatchMaxSize:         getInt("BATCH_MAX_SIZE", 10),
		PriorityQueueEnabled: getBool("PRIORITY_QUEUE_ENABLED", true),
		ShortTextThreshold:   getInt("SHORT_TEXT_THRESHOLD", 100),
		LongTextThreshold:    getInt("LONG_TEXT_THRESHOLD", 500),
		MaxTranslationLength: getInt("MAX_TRANSLATION_LENGTH", 10000),

		NormalPoolSize: getInt("NORMAL_POOL_SIZE", 10000),
		AnyPoolSize:    getInt("ANY_POOL_SIZE", 10000),
		FastPoolSize:   getInt("FAST_POOL_SIZE", 5000),

		DynamicScaling:  getBool("DYNAMIC_SCALING", true),
		ScalingInterval: getSeconds("SCALING_CHECK_INTERVAL_S", 30),

		CacheEnabled: getBool("TRANSLATION_CACHE_ENABLED", true),
		CacheBackend: getEnv("TRANSLATION_CACHE_BACKEND", "redis"),
		CacheTTL:     getSeconds("TRANSLATION_CACHE_TTL_S", 3600),
	}

	s.NormalWorkers = loadWorkers("NORMAL", OptimalWorkers(runtime.NumCPU(), "normal"), 40)
	s.AnyWorkers = loadWorkers("ANY", OptimalWorkers(runtime.NumCPU(), "any"), 20)
	return s
}

// OptimalWorkers sizes a pool from the CPU count: half the cores for the
// normal pool (floor 4), a quarter for the broadcast pool (floor 2).
func OptimalWorkers(cpus int, pool string) int {
	if pool == "normal" {
		return maxInt(4, cpus/2)
	}
	return maxInt(2, cpus/4)
}

func loadWorkers(prefix string, optimal, maxDefault int) WorkerSettings {
	w := WorkerSettings{
		Default: getInt(prefix+"_WORKERS_DEFAULT", optimal),
		Min:     getInt(prefix+"_WORKERS_MIN", 2),
		Max:     getInt(prefix+"_WORKERS_MAX", maxDefault),
	}
	w.ScalingMax = getInt(prefix+"_WORKERS_SCALING_MAX", w.Max)

	// Keep the startup count inside the configured bounds.
	if w.Default < w.Min {
		w.Default = w.Min
	}
	if w.Default > w.Max {
		w.Default = w.Max
	}
	return w
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getMillis(key string, fallback int) time.Duration {
	return time.Duration(getInt(key, fallback)) * time.Millisecond
}

func getSeconds(key string, fallback int) time.Duration {
	return time.Duration(getInt(key, fallback)) * time.Second
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
