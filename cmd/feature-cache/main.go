package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mohammed-shakir/geofeature-cache/internal/cache/redisstore"
	"github.com/mohammed-shakir/geofeature-cache/internal/core/config"
	"github.com/mohammed-shakir/geofeature-cache/internal/core/httpclient"
	"github.com/mohammed-shakir/geofeature-cache/internal/core/observability"
	"github.com/mohammed-shakir/geofeature-cache/internal/core/server"
	"github.com/mohammed-shakir/geofeature-cache/internal/hitevents"
	"github.com/mohammed-shakir/geofeature-cache/internal/logger"
	"github.com/mohammed-shakir/geofeature-cache/internal/metrics"
	"github.com/mohammed-shakir/geofeature-cache/internal/provider/geofeatures"
	"github.com/mohammed-shakir/geofeature-cache/internal/ratelimit"
	"github.com/mohammed-shakir/geofeature-cache/internal/scenarios"
	_ "github.com/mohammed-shakir/geofeature-cache/internal/scenarios/baseline"
	_ "github.com/mohammed-shakir/geofeature-cache/internal/scenarios/cache"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// overriding scenario via flag
	scenarioFlag := flag.String("scenario", "", "scenario name ("+strings.Join(scenarios.Names(), ", ")+")")
	flag.Parse()

	cfg := config.FromEnv()
	if *scenarioFlag != "" {
		cfg.Scenario = strings.TrimSpace(*scenarioFlag)
	}

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Scenario:  cfg.Scenario,
		Component: "feature-cache",
	}, os.Stdout)

	appLog := logger.NewSlog(&zl)

	appLog.Info("starting feature cache",
		"addr", cfg.Addr,
		"version", Version,
		"upstream", cfg.FeaturesBaseURL,
		"scenario", cfg.Scenario)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Enabled {
		p := metrics.Init(metrics.Config{
			Enabled: true,
			Addr:    cfg.Metrics.Addr,
			Path:    cfg.Metrics.Path,
			Build: metrics.BuildInfo{
				Version:   os.Getenv("BUILD_VERSION"),
				Revision:  os.Getenv("BUILD_REVISION"),
				Branch:    os.Getenv("BUILD_BRANCH"),
				BuildDate: os.Getenv("BUILD_DATE"),
			},
		})
		observability.Init(p.Registerer(), true)

		go func() {
			if err := p.Serve(ctx, appLog); err != nil {
				appLog.Error("metrics server exited", "err", err)
			}
		}()
	} else {
		observability.Init(nil, false)
	}
	observability.SetScenario(cfg.Scenario)
	observability.ExposeBuildInfo(Version)

	var opts []geofeatures.Option
	if cfg.RateLimit.Enabled {
		rc, err := redisstore.New(ctx, cfg.RedisAddr)
		if err != nil {
			appLog.Error("redis client", "addr", cfg.RedisAddr, "err", err)
			return 1
		}
		defer func() { _ = rc.Close() }()
		lim := ratelimit.NewFixedWindow(rc, "geological-features", cfg.RateLimit.Max, cfg.RateLimit.Window)
		opts = append(opts, geofeatures.WithLimiter(lim))
		appLog.Info("upstream rate limit enabled", "max", cfg.RateLimit.Max, "window", cfg.RateLimit.Window)
	}

	provider, err := geofeatures.New(appLog, httpclient.NewOutbound(httpclient.WithTimeout(cfg.FeaturesTimeout)), cfg.FeaturesBaseURL, opts...)
	if err != nil {
		appLog.Error("failed to initialize features client", "err", err)
		return 1
	}

	deps := scenarios.Deps{Provider: provider}
	if cfg.HitEvents.Enabled {
		pub, err := hitevents.NewPublisher(cfg.HitEvents.BrokerList(), cfg.HitEvents.Topic,
			cfg.HitEvents.Queue, cfg.HitEvents.H3Res, appLog.With("component", "hitevents"))
		if err != nil {
			// lookups are still served without events
			appLog.Warn("hit events disabled", "err", err)
		} else {
			deps.Events = pub
			defer func() {
				if err := pub.Close(); err != nil {
					appLog.Warn("hit events close", "err", err)
				}
			}()
		}
	}

	// selected scenario
	src, err := scenarios.New(cfg.Scenario, cfg, appLog, deps)
	if err != nil {
		appLog.Error("scenario setup failed", "err", err)
		return 1
	}

	if err := server.Run(ctx, cfg, appLog, src); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}
