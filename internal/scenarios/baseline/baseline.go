// Package baseline forwards every viewport request to the provider.
package baseline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mohammed-shakir/geofeature-cache/internal/core/bounds"
	"github.com/mohammed-shakir/geofeature-cache/internal/core/config"
	"github.com/mohammed-shakir/geofeature-cache/internal/core/model"
	"github.com/mohammed-shakir/geofeature-cache/internal/core/observability"
	"github.com/mohammed-shakir/geofeature-cache/internal/core/router"
	"github.com/mohammed-shakir/geofeature-cache/internal/featurecache"
	"github.com/mohammed-shakir/geofeature-cache/internal/logger"
	"github.com/mohammed-shakir/geofeature-cache/internal/scenarios"
)

type Engine struct {
	logger   *slog.Logger
	provider featurecache.Provider
	events   featurecache.LookupSink
}

func init() {
	scenarios.Register("baseline", newBaseline)
}

func newBaseline(_ config.Config, logger *slog.Logger, deps scenarios.Deps) (router.FeatureSource, error) {
	return &Engine{
		logger:   logger,
		provider: deps.Provider,
		events:   deps.Events,
	}, nil
}

// GetFeatures degrades provider failures to an empty set, like the cache.
func (e *Engine) GetFeatures(ctx context.Context, b model.ViewportBounds) (model.FeatureSet, error) {
	if err := bounds.Validate(b); err != nil {
		return model.EmptyFeatureSet(), fmt.Errorf("get features: %w", err)
	}

	outcome := featurecache.OutcomeMiss
	fs, err := e.provider.FetchFeatures(ctx, b)
	if err != nil {
		outcome = featurecache.OutcomeError
		e.logger.WarnContext(logger.WithHitClass(ctx, outcome), "features fetch failed",
			"bounds", b.String(),
			"err", err,
		)
		fs = model.FeatureSet{}
	}

	observability.IncViewportResult(outcome)
	if e.events != nil {
		e.events.PublishLookup(b, outcome)
	}
	return fs.Normalize(), nil
}

func (e *Engine) Readiness() (bool, int) { return true, 0 }
