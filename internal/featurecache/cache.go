// Package featurecache serves geological features for a viewport, reusing a
// previously fetched padded region when it fully covers the request.
package featurecache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/goware/singleflight"

	"github.com/mohammed-shakir/geofeature-cache/internal/cache/keys"
	"github.com/mohammed-shakir/geofeature-cache/internal/cache/viewport"
	"github.com/mohammed-shakir/geofeature-cache/internal/core/bounds"
	"github.com/mohammed-shakir/geofeature-cache/internal/core/model"
	"github.com/mohammed-shakir/geofeature-cache/internal/core/observability"
	"github.com/mohammed-shakir/geofeature-cache/internal/logger"
)

const DefaultPadFraction = 0.2

const (
	OutcomeHit   = "hit"
	OutcomeMiss  = "miss"
	OutcomeError = "error"
)

// Provider fetches features for the exact, unpadded bounds it is given.
type Provider interface {
	FetchFeatures(ctx context.Context, b model.ViewportBounds) (model.FeatureSet, error)
}

// LookupSink receives one notification per GetFeatures call. It must not block.
type LookupSink interface {
	PublishLookup(b model.ViewportBounds, outcome string)
}

type Options struct {
	MaxEntries int
	TTL        time.Duration
	// PadFraction is the per-side padding applied to stored bounds. Nil
	// selects DefaultPadFraction; zero stores the requested bounds as-is.
	PadFraction *float64
	// Coalesce shares one provider call between concurrent misses for the
	// same normalized bounds.
	Coalesce bool
	Now      func() time.Time
	Logger   *slog.Logger
	Events   LookupSink
}

type Cache struct {
	provider Provider
	logger   *slog.Logger
	now      func() time.Time
	pad      float64
	events   LookupSink

	mu    sync.Mutex
	store *viewport.Store

	group *singleflight.Group[string, model.FeatureSet]
}

func New(p Provider, opts Options) (*Cache, error) {
	if p == nil {
		return nil, errors.New("featurecache: nil provider")
	}
	pad := DefaultPadFraction
	if opts.PadFraction != nil {
		pad = *opts.PadFraction
	}
	if math.IsNaN(pad) || math.IsInf(pad, 0) || pad < 0 {
		return nil, fmt.Errorf("featurecache: invalid pad fraction %v", pad)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	c := &Cache{
		provider: p,
		logger:   opts.Logger,
		now:      opts.Now,
		pad:      pad,
		events:   opts.Events,
		store:    viewport.NewStore(opts.MaxEntries, opts.TTL),
	}
	if opts.Coalesce {
		c.group = &singleflight.Group[string, model.FeatureSet]{}
	}
	c.store.OnEvict(func(reason string, e viewport.Entry) {
		observability.IncViewportEviction(reason)
		c.logger.Debug("viewport entry evicted", "reason", reason, "bounds", e.Bounds.String())
	})
	return c, nil
}

// GetFeatures returns the features for b. The error is non-nil only when b
// is not a well-formed rectangle; provider failures degrade to an empty set.
func (c *Cache) GetFeatures(ctx context.Context, b model.ViewportBounds) (model.FeatureSet, error) {
	if err := bounds.Validate(b); err != nil {
		return model.EmptyFeatureSet(), fmt.Errorf("get features: %w", err)
	}

	if fs, ok := c.lookup(b); ok {
		c.logger.DebugContext(logger.WithHitClass(ctx, OutcomeHit), "viewport hit", "bounds", b.String())
		c.finish(b, OutcomeHit)
		return fs, nil
	}

	var (
		fs  model.FeatureSet
		err error
	)
	if c.group == nil {
		fs, err = c.fetchAndStore(ctx, b)
	} else {
		fs, err = c.coalesced(ctx, b)
	}

	if err != nil {
		c.logger.WarnContext(logger.WithHitClass(ctx, OutcomeError), "features fetch failed",
			"bounds", b.String(),
			"err", err,
		)
		c.finish(b, OutcomeError)
		return model.EmptyFeatureSet(), nil
	}
	c.finish(b, OutcomeMiss)
	return fs, nil
}

func (c *Cache) lookup(b model.ViewportBounds) (model.FeatureSet, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.store.Find(c.now(), b)
	observability.SetViewportEntries(c.store.Len())
	if !ok {
		return model.FeatureSet{}, false
	}
	return model.FeatureSet{Features: e.Features, Formations: e.Formations}, true
}

// fetchAndStore runs the miss path. The store lock is not held while the
// provider call is in flight. The call is detached from the caller's
// cancellation: a fetch the caller gave up on still inserts when it resolves.
func (c *Cache) fetchAndStore(ctx context.Context, b model.ViewportBounds) (model.FeatureSet, error) {
	fs, err := c.provider.FetchFeatures(context.WithoutCancel(ctx), b)
	if err != nil {
		return model.FeatureSet{}, err
	}
	fs = fs.Normalize()

	padded := bounds.Pad(b, c.pad)
	c.mu.Lock()
	c.store.Insert(viewport.Entry{
		Bounds:     padded,
		Features:   fs.Features,
		Formations: fs.Formations,
		Timestamp:  c.now(),
	})
	n := c.store.Len()
	c.mu.Unlock()
	observability.SetViewportEntries(n)

	c.logger.DebugContext(logger.WithHitClass(ctx, OutcomeMiss), "viewport miss stored",
		"bounds", b.String(),
		"padded", padded.String(),
		"features", len(fs.Features),
		"formations", len(fs.Formations),
		"entries", n,
	)
	return fs, nil
}

func (c *Cache) coalesced(ctx context.Context, b model.ViewportBounds) (model.FeatureSet, error) {
	key := keys.BoundsKey(b)
	fs, err, shared := c.group.Do(key, func() (model.FeatureSet, error) {
		// a flight that finished just before this one started may already cover b
		if fs, ok := c.lookup(b); ok {
			return fs, nil
		}
		return c.fetchAndStore(logger.WithBoundsKey(ctx, key), b)
	})
	if err != nil {
		return model.FeatureSet{}, err
	}
	if shared {
		c.logger.DebugContext(ctx, "viewport miss coalesced", "key", key)
	}
	return fs, nil
}

func (c *Cache) finish(b model.ViewportBounds, outcome string) {
	observability.IncViewportResult(outcome)
	if c.events != nil {
		c.events.PublishLookup(b, outcome)
	}
}

// Len reports the number of stored entries, expired ones included until the
// next sweep.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Len()
}

// Snapshot returns the stored entries in insertion order.
func (c *Cache) Snapshot() []viewport.Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Entries()
}
