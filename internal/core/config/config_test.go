package config

import (
	"testing"
	"time"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, k := range []string{"CACHE_MAX_ENTRIES", "CACHE_TTL", "CACHE_PAD_FRACTION", "SCENARIO", "CACHE_COALESCE_MISSES"} {
		t.Setenv(k, "")
	}
	cfg := FromEnv()
	if cfg.CacheMaxEntries != 10 || cfg.CacheTTL != 5*time.Minute || cfg.CachePadFraction != 0.2 {
		t.Fatalf("cache defaults: %+v", cfg)
	}
	if cfg.Scenario != "cache" || cfg.CoalesceMisses {
		t.Fatalf("scenario=%q coalesce=%v", cfg.Scenario, cfg.CoalesceMisses)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("CACHE_MAX_ENTRIES", "25")
	t.Setenv("CACHE_TTL", "90s")
	t.Setenv("CACHE_PAD_FRACTION", "0.5")
	t.Setenv("CACHE_COALESCE_MISSES", "yes")
	t.Setenv("RATE_LIMIT_ENABLED", "true")
	t.Setenv("RATE_LIMIT_MAX", "5")
	t.Setenv("KAFKA_BROKERS", " a:9092, ,b:9092 ")
	t.Setenv("HIT_EVENTS_H3_RES", "99")

	cfg := FromEnv()
	if cfg.CacheMaxEntries != 25 || cfg.CacheTTL != 90*time.Second || cfg.CachePadFraction != 0.5 {
		t.Fatalf("cache overrides: %+v", cfg)
	}
	if !cfg.CoalesceMisses || !cfg.RateLimit.Enabled || cfg.RateLimit.Max != 5 {
		t.Fatalf("flags: %+v", cfg)
	}
	if got := cfg.HitEvents.BrokerList(); len(got) != 2 || got[0] != "a:9092" || got[1] != "b:9092" {
		t.Fatalf("brokers=%v", got)
	}
	if cfg.HitEvents.H3Res != 7 {
		t.Fatalf("out of range h3 res should fall back, got %d", cfg.HitEvents.H3Res)
	}
}

func TestFromEnv_NegativePadFallsBack(t *testing.T) {
	t.Setenv("CACHE_PAD_FRACTION", "-1")
	if got := FromEnv().CachePadFraction; got != 0.2 {
		t.Fatalf("pad=%v", got)
	}
}

func TestFromEnv_ZeroPadKept(t *testing.T) {
	t.Setenv("CACHE_PAD_FRACTION", "0")
	if got := FromEnv().CachePadFraction; got != 0 {
		t.Fatalf("pad=%v want 0", got)
	}
}

func TestFromEnv_AmbientSettings(t *testing.T) {
	t.Setenv("LOG_CONSOLE", "true")
	t.Setenv("LOG_SAMPLE_N", "4")
	t.Setenv("FEATURES_TIMEOUT", "3s")
	t.Setenv("METRICS_ENABLED", "1")
	t.Setenv("METRICS_PATH", "")

	cfg := FromEnv()
	if !cfg.LogConsole || cfg.LogSampleN != 4 || cfg.FeaturesTimeout != 3*time.Second {
		t.Fatalf("ambient: %+v", cfg)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Addr != ":9090" || cfg.Metrics.Path != "/metrics" {
		t.Fatalf("metrics: %+v", cfg.Metrics)
	}
}
