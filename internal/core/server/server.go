// Package server wires the HTTP routes and runs the listener.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohammed-shakir/geofeature-cache/internal/core/config"
	"github.com/mohammed-shakir/geofeature-cache/internal/core/health"
	middleware "github.com/mohammed-shakir/geofeature-cache/internal/core/middleware"
	"github.com/mohammed-shakir/geofeature-cache/internal/core/router"
)

func NewRouter(cfg config.Config, logger *slog.Logger, src router.FeatureSource) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS())

	rr, _ := src.(health.ReadinessReporter)

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(cfg.Scenario, rr))
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/features", router.HandleFeatures(logger, src))
	return r
}

// sets up http and starts serving
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger, src router.FeatureSource) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           NewRouter(cfg, logger, src),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
