// Package geofeatures calls the remote geological features endpoint.
package geofeatures

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mohammed-shakir/geofeature-cache/internal/core/model"
	"github.com/mohammed-shakir/geofeature-cache/internal/core/observability"
)

const Path = "/api/geological-features"

var (
	ErrUpstreamStatus = errors.New("upstream returned non-success status")
	ErrRateLimited    = errors.New("outbound rate limit exceeded")
)

// Limiter gates outbound calls. A non-nil error with allowed=true means the
// limiter could not decide and the call proceeds.
type Limiter interface {
	Allow(ctx context.Context) (bool, error)
}

type response struct {
	Features   []model.GeologicalFeature `json:"features"`
	Formations []model.FormationSummary  `json:"formations"`
	Sources    json.RawMessage           `json:"sources,omitempty"`
}

type Client struct {
	logger   *slog.Logger
	http     *http.Client
	endpoint *url.URL
	limiter  Limiter
	startNow func() time.Time
}

type Option func(*Client)

func WithLimiter(l Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

func New(logger *slog.Logger, client *http.Client, baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/") + Path)
	if err != nil {
		return nil, fmt.Errorf("parse features url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported features url scheme %q", u.Scheme)
	}
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		logger:   logger,
		http:     client,
		endpoint: u,
		startNow: time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// URL builds the outbound request URL for b.
func (c *Client) URL(b model.ViewportBounds) string {
	params := url.Values{}
	params.Set("minLat", model.FormatCoord(b.MinLat))
	params.Set("minLng", model.FormatCoord(b.MinLng))
	params.Set("maxLat", model.FormatCoord(b.MaxLat))
	params.Set("maxLng", model.FormatCoord(b.MaxLng))
	u := *c.endpoint
	u.RawQuery = params.Encode()
	return u.String()
}

// FetchFeatures issues one GET for exactly b and returns the normalized payload.
func (c *Client) FetchFeatures(ctx context.Context, b model.ViewportBounds) (model.FeatureSet, error) {
	if c.limiter != nil {
		ok, err := c.limiter.Allow(ctx)
		if err != nil {
			c.logger.WarnContext(ctx, "rate limiter unavailable, continuing", "err", err)
		}
		if !ok {
			return model.FeatureSet{}, ErrRateLimited
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL(b), nil)
	if err != nil {
		return model.FeatureSet{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := c.startNow()
	resp, err := c.http.Do(req)
	observability.ObserveUpstreamLatency("geological_features", time.Since(start).Seconds())
	if err != nil {
		return model.FeatureSet{}, fmt.Errorf("do request: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Warn("close response body", "err", cerr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return model.FeatureSet{}, fmt.Errorf("%w: status=%d body=%q",
			ErrUpstreamStatus, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return model.FeatureSet{}, fmt.Errorf("decode features payload: %w", err)
	}
	if len(out.Sources) > 0 {
		c.logger.DebugContext(ctx, "features sources", "sources", string(out.Sources))
	}

	return model.FeatureSet{Features: out.Features, Formations: out.Formations}.Normalize(), nil
}
