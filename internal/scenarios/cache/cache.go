// Package cache serves viewports through the padded containment cache.
package cache

import (
	"log/slog"

	"github.com/mohammed-shakir/geofeature-cache/internal/core/config"
	"github.com/mohammed-shakir/geofeature-cache/internal/core/router"
	"github.com/mohammed-shakir/geofeature-cache/internal/featurecache"
	"github.com/mohammed-shakir/geofeature-cache/internal/scenarios"
)

type Engine struct {
	*featurecache.Cache
}

func init() {
	scenarios.Register("cache", newCache)
}

func newCache(cfg config.Config, logger *slog.Logger, deps scenarios.Deps) (router.FeatureSource, error) {
	pad := cfg.CachePadFraction
	c, err := featurecache.New(deps.Provider, featurecache.Options{
		MaxEntries:  cfg.CacheMaxEntries,
		TTL:         cfg.CacheTTL,
		PadFraction: &pad,
		Coalesce:    cfg.CoalesceMisses,
		Logger:      logger.With("component", "featurecache"),
		Events:      deps.Events,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("viewport cache ready",
		"max_entries", cfg.CacheMaxEntries,
		"ttl", cfg.CacheTTL,
		"pad", cfg.CachePadFraction,
		"coalesce", cfg.CoalesceMisses,
	)
	return &Engine{Cache: c}, nil
}

func (e *Engine) Readiness() (bool, int) { return true, e.Len() }
