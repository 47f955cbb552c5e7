// Package config loads service settings from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type RateLimitCfg struct {
	Enabled bool
	Max     int
	Window  time.Duration
}

type HitEventsCfg struct {
	Enabled bool
	Brokers string
	Topic   string
	H3Res   int
	Queue   int
}

type MetricsCfg struct {
	Enabled bool
	Addr    string
	Path    string
}

type Config struct {
	Addr             string
	LogLevel         string
	LogConsole       bool
	LogSampleN       int
	Scenario         string
	FeaturesBaseURL  string
	FeaturesTimeout  time.Duration
	RedisAddr        string
	CacheMaxEntries  int
	CacheTTL         time.Duration
	CachePadFraction float64
	CoalesceMisses   bool
	RateLimit        RateLimitCfg
	HitEvents        HitEventsCfg
	Metrics          MetricsCfg
}

func FromEnv() Config {
	pad := getfloat("CACHE_PAD_FRACTION", 0.2)
	if pad < 0 {
		pad = 0.2
	}
	h3Res := getint("HIT_EVENTS_H3_RES", 7)
	if h3Res < 0 || h3Res > 15 {
		h3Res = 7
	}

	return Config{
		Addr:             getenv("ADDR", ":8090"),
		LogLevel:         getenv("LOG_LEVEL", "info"),
		LogConsole:       getbool("LOG_CONSOLE", false),
		LogSampleN:       getint("LOG_SAMPLE_N", 0),
		Scenario:         getenv("SCENARIO", "cache"),
		FeaturesBaseURL:  getenv("FEATURES_BASE_URL", "http://localhost:3000"),
		FeaturesTimeout:  getduration("FEATURES_TIMEOUT", 10*time.Second),
		RedisAddr:        getenv("REDIS_ADDR", "localhost:6379"),
		CacheMaxEntries:  getint("CACHE_MAX_ENTRIES", 10),
		CacheTTL:         getduration("CACHE_TTL", 5*time.Minute),
		CachePadFraction: pad,
		CoalesceMisses:   getbool("CACHE_COALESCE_MISSES", false),
		RateLimit: RateLimitCfg{
			Enabled: getbool("RATE_LIMIT_ENABLED", false),
			Max:     getint("RATE_LIMIT_MAX", 60),
			Window:  getduration("RATE_LIMIT_WINDOW", time.Minute),
		},
		HitEvents: HitEventsCfg{
			Enabled: getbool("HIT_EVENTS_ENABLED", false),
			Brokers: getenv("KAFKA_BROKERS", "localhost:9092"),
			Topic:   getenv("HIT_EVENTS_TOPIC", "viewport-lookups"),
			H3Res:   h3Res,
			Queue:   getint("HIT_EVENTS_QUEUE", 1024),
		},
		Metrics: MetricsCfg{
			Enabled: getbool("METRICS_ENABLED", false),
			Addr:    getenv("METRICS_ADDR", ":9090"),
			Path:    getenv("METRICS_PATH", "/metrics"),
		},
	}
}

// BrokerList splits the comma-separated broker setting.
func (h HitEventsCfg) BrokerList() []string {
	var out []string
	for p := range strings.SplitSeq(h.Brokers, ",") {
		if x := strings.TrimSpace(p); x != "" {
			out = append(out, x)
		}
	}
	return out
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
