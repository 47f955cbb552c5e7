package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mohammed-shakir/geofeature-cache/internal/core/bounds"
	"github.com/mohammed-shakir/geofeature-cache/internal/core/model"
	"github.com/mohammed-shakir/geofeature-cache/internal/core/observability"
)

const featuresRoute = "/features"

// recorded for requests whose client went away before the response
const statusClientClosed = 499

// serves features for validated viewport bounds
type FeatureSource interface {
	GetFeatures(ctx context.Context, b model.ViewportBounds) (model.FeatureSet, error)
}

// validates the viewport params and writes the feature set as JSON
func HandleFeatures(logger *slog.Logger, src FeatureSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		defer func() {
			observability.ObserveHTTP(r.Method, featuresRoute, sw.code, time.Since(start).Seconds())
		}()

		b, err := ParseBounds(r)
		if err != nil {
			http.Error(sw, err.Error(), http.StatusBadRequest)
			return
		}

		fs, err := src.GetFeatures(r.Context(), b)
		if errors.Is(err, bounds.ErrInvalidBounds) {
			http.Error(sw, err.Error(), http.StatusBadRequest)
			return
		}
		if err != nil {
			logger.ErrorContext(r.Context(), "get features", "err", err)
			http.Error(sw, "internal error", http.StatusInternalServerError)
			return
		}

		if err := r.Context().Err(); err != nil {
			sw.code = statusClientClosed
			logger.DebugContext(r.Context(), "client gone, dropping features response", "err", err)
			return
		}

		sw.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(sw).Encode(fs.Normalize()); err != nil {
			logger.DebugContext(r.Context(), "write features response", "err", err)
		}
	}
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// ParseBounds reads minLat/minLng/maxLat/maxLng, or a bbox param in
// minLng,minLat,maxLng,maxLat[,EPSG:4326] order when those are absent.
func ParseBounds(r *http.Request) (model.ViewportBounds, error) {
	q := r.URL.Query()

	var (
		b   model.ViewportBounds
		err error
	)
	if raw := strings.TrimSpace(q.Get("bbox")); raw != "" && !hasNamedBounds(q.Get) {
		b, err = parseBBOX(raw)
		if err != nil {
			return model.ViewportBounds{}, fmt.Errorf("invalid bbox: %w", err)
		}
	} else {
		fields := [...]struct {
			name string
			dst  *float64
		}{
			{"minLat", &b.MinLat},
			{"minLng", &b.MinLng},
			{"maxLat", &b.MaxLat},
			{"maxLng", &b.MaxLng},
		}
		for _, f := range fields {
			v := strings.TrimSpace(q.Get(f.name))
			if v == "" {
				return model.ViewportBounds{}, fmt.Errorf("missing required parameter: %s", f.name)
			}
			if *f.dst, err = parseFloat(v); err != nil {
				return model.ViewportBounds{}, fmt.Errorf("%s: %w", f.name, err)
			}
		}
	}

	if err := checkRanges(b); err != nil {
		return model.ViewportBounds{}, err
	}
	if err := bounds.Validate(b); err != nil {
		return model.ViewportBounds{}, fmt.Errorf("parse bounds: %w", err)
	}
	return b, nil
}

func hasNamedBounds(get func(string) string) bool {
	for _, k := range [...]string{"minLat", "minLng", "maxLat", "maxLng"} {
		if get(k) != "" {
			return true
		}
	}
	return false
}

func parseBBOX(bboxParam string) (model.ViewportBounds, error) {
	parts := strings.Split(bboxParam, ",")
	if len(parts) != 4 && len(parts) != 5 {
		return model.ViewportBounds{}, errors.New("expected 4 or 5 comma-separated values: x1,y1,x2,y2[,EPSG:4326]")
	}
	xMin, err := parseFloat(parts[0])
	if err != nil {
		return model.ViewportBounds{}, fmt.Errorf("x1: %w", err)
	}
	yMin, err := parseFloat(parts[1])
	if err != nil {
		return model.ViewportBounds{}, fmt.Errorf("y1: %w", err)
	}
	xMax, err := parseFloat(parts[2])
	if err != nil {
		return model.ViewportBounds{}, fmt.Errorf("x2: %w", err)
	}
	yMax, err := parseFloat(parts[3])
	if err != nil {
		return model.ViewportBounds{}, fmt.Errorf("y2: %w", err)
	}

	if len(parts) == 5 {
		srid := strings.ToUpper(strings.TrimSpace(parts[4]))
		if srid != "EPSG:4326" {
			return model.ViewportBounds{}, fmt.Errorf("only EPSG:4326 is supported (got %q)", srid)
		}
	}
	return model.ViewportBounds{MinLat: yMin, MinLng: xMin, MaxLat: yMax, MaxLng: xMax}, nil
}

func checkRanges(b model.ViewportBounds) error {
	if !(b.MinLng >= -180 && b.MinLng <= 180 && b.MaxLng >= -180 && b.MaxLng <= 180) {
		return fmt.Errorf("%w: longitude must be in [-180,180]", bounds.ErrInvalidBounds)
	}
	if !(b.MinLat >= -90 && b.MinLat <= 90 && b.MaxLat >= -90 && b.MaxLat <= 90) {
		return fmt.Errorf("%w: latitude must be in [-90,90]", bounds.ErrInvalidBounds)
	}
	return nil
}

func parseFloat(v string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, fmt.Errorf("parse float: %w", err)
	}
	return f, nil
}
