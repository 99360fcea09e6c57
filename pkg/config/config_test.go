package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	s := Load()

	if s.RedisURL != "redis://localhost:6379" {
		t.Errorf("RedisURL default = %q", s.RedisURL)
	}
	if !s.BatchEnabled {
		t.Error("batching should default to enabled")
	}
	if s.BatchWindow != 50*time.Millisecond {
		t.Errorf("BatchWindow default = %v, want 50ms", s.BatchWindow)
	}
	if s.BatchMaxSize != 10 {
		t.Errorf("BatchMaxSize default = %d, want 10", s.BatchMaxSize)
	}
	if s.ShortTextThreshold != 100 || s.LongTextThreshold != 500 {
		t.Errorf("thresholds = %d/%d, want 100/500", s.ShortTextThreshold, s.LongTextThreshold)
	}
	if s.MaxTranslationLength != 10000 {
		t.Errorf("MaxTranslationLength default = %d", s.MaxTranslationLength)
	}
	if s.NormalPoolSize != 10000 || s.AnyPoolSize != 10000 || s.FastPoolSize != 5000 {
		t.Errorf("pool sizes = %d/%d/%d", s.NormalPoolSize, s.AnyPoolSize, s.FastPoolSize)
	}
	if s.ScalingInterval != 30*time.Second {
		t.Errorf("ScalingInterval default = %v", s.ScalingInterval)
	}
	if s.CacheTTL != time.Hour {
		t.Errorf("CacheTTL default = %v", s.CacheTTL)
	}
	if s.CacheBackend != "redis" {
		t.Errorf("CacheBackend default = %q", s.CacheBackend)
	}
}

func TestLoadCacheBackendOverride(t *testing.T) {
	t.Setenv("TRANSLATION_CACHE_BACKEND", "memory")
	if s := Load(); s.CacheBackend != "memory" {
		t.Errorf("CacheBackend = %q, want memory", s.CacheBackend)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("BATCH_ENABLED", "false")
	t.Setenv("BATCH_WINDOW_MS", "200")
	t.Setenv("NORMAL_WORKERS_DEFAULT", "12")
	t.Setenv("NORMAL_WORKERS_MAX", "16")
	t.Setenv("ANY_WORKERS_DEFAULT", "100")
	t.Setenv("ANY_WORKERS_MAX", "8")

	s := Load()

	if s.BatchEnabled {
		t.Error("BATCH_ENABLED=false not honored")
	}
	if s.BatchWindow != 200*time.Millisecond {
		t.Errorf("BatchWindow = %v, want 200ms", s.BatchWindow)
	}
	if s.NormalWorkers.Default != 12 || s.NormalWorkers.Max != 16 {
		t.Errorf("normal workers = %+v", s.NormalWorkers)
	}
	if s.NormalWorkers.ScalingMax != 16 {
		t.Errorf("ScalingMax should default to Max, got %d", s.NormalWorkers.ScalingMax)
	}
	if s.AnyWorkers.Default != 8 {
		t.Errorf("default above max should clamp to max, got %d", s.AnyWorkers.Default)
	}
}

func TestLoadIgnoresGarbage(t *testing.T) {
	t.Setenv("BATCH_MAX_SIZE", "not-a-number")
	t.Setenv("DYNAMIC_SCALING", "sometimes")

	s := Load()
	if s.BatchMaxSize != 10 {
		t.Errorf("unparseable int should fall back, got %d", s.BatchMaxSize)
	}
	if !s.DynamicScaling {
		t.Error("unparseable bool should fall back to true")
	}
}

func TestOptimalWorkers(t *testing.T) {
	tests := []struct {
		cpus int
		pool string
		want int
	}{
		{16, "normal", 8},
		{16, "any", 4},
		{4, "normal", 4},
		{2, "normal", 4},
		{2, "any", 2},
	}
	for _, tt := range tests {
		if got := OptimalWorkers(tt.cpus, tt.pool); got != tt.want {
			t.Errorf("OptimalWorkers(%d, %q) = %d, want %d", tt.cpus, tt.pool, got, tt.want)
		}
	}
}
