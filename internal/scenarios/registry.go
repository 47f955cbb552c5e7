// Package scenarios maps scenario names onto feature sources.
package scenarios

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/mohammed-shakir/geofeature-cache/internal/core/config"
	"github.com/mohammed-shakir/geofeature-cache/internal/core/router"
	"github.com/mohammed-shakir/geofeature-cache/internal/featurecache"
)

// Deps are the collaborators built once by the process and shared by every
// scenario.
type Deps struct {
	Provider featurecache.Provider
	// Events may be nil.
	Events featurecache.LookupSink
}

type Factory func(cfg config.Config, logger *slog.Logger, deps Deps) (router.FeatureSource, error)

var reg = map[string]Factory{}

func Register(name string, f Factory) {
	reg[name] = f
}

func Names() []string {
	out := make([]string, 0, len(reg))
	for k := range reg {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func New(name string, cfg config.Config, logger *slog.Logger, deps Deps) (router.FeatureSource, error) {
	if deps.Provider == nil {
		return nil, fmt.Errorf("scenario %q: nil provider", name)
	}
	if f, ok := reg[name]; ok {
		return f(cfg, logger, deps)
	}
	if f, ok := reg["baseline"]; ok {
		logger.Warn("unknown scenario; falling back to baseline", "scenario", name)
		return f(cfg, logger, deps)
	}
	return nil, fmt.Errorf("no factory for scenario %q and no baseline registered", name)
}
