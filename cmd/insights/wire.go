package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/founderpulse/insights/internal/anomaly"
	"github.com/founderpulse/insights/internal/briefing"
	"github.com/founderpulse/insights/internal/config"
	"github.com/founderpulse/insights/internal/correlation"
	"github.com/founderpulse/insights/internal/metrics"
	"github.com/founderpulse/insights/internal/persistence/postgres"
	"github.com/founderpulse/insights/internal/persistence/rediscache"
	"github.com/founderpulse/insights/internal/pipeline"
	"github.com/founderpulse/insights/internal/recommend"
	"github.com/founderpulse/insights/internal/trend"
)

// app bundles every wired component a command can need.
type app struct {
	cfg        *config.Config
	store      *postgres.Store
	source     *postgres.Source
	cache      *rediscache.Cache
	runner     *pipeline.Runner
	calib      *recommend.CalibrationStore
	thresholds *anomaly.ThresholdStore
	engagement *briefing.EngagementHistory
	reg        *metrics.Registry
}

func loadConfig() (*config.Config, error) {
	if flagConfig == "" {
		return config.Default(), nil
	}
	return config.Load(flagConfig)
}

// buildApp wires the full dependency graph. The Redis cache is optional:
// when it is unreachable the seasonal models fall back to process memory.
func buildApp(ctx context.Context, withMetrics bool) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	store, err := postgres.Open(cfg.Store.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		return nil, err
	}
	source := postgres.NewSource(store)
	if err := source.Migrate(ctx); err != nil {
		return nil, err
	}

	var modelCache anomaly.ModelCache
	cache := rediscache.New(cfg.Store.RedisAddr, cfg.Store.RedisDB, cfg.Store.CacheTTL.Std())
	if err := cache.Ping(ctx); err != nil {
		log.Warn().Err(err).Str("addr", cfg.Store.RedisAddr).Msg("redis unavailable, using in-memory model cache")
		cache = nil
		modelCache = anomaly.NewMemoryModelCache()
	} else {
		modelCache = cache
	}

	var reg *metrics.Registry
	if withMetrics {
		reg = metrics.NewRegistry(prometheus.DefaultRegisterer)
	}

	thresholds := anomaly.NewThresholdStore(cfg.Detector.Threshold)
	ensemble := anomaly.NewEnsemble(cfg.Detector, modelCache, thresholds)
	analyzer := trend.NewAnalyzer(cfg.Trend)
	corr := correlation.NewEngine(cfg.Correlation)
	calib := recommend.NewCalibrationStore(cfg.Recommend.CalibrationStep, cfg.Recommend.CalibrationMin, cfg.Recommend.CalibrationMax)
	enricher := recommend.NewGuardedEnricher(recommend.TemplateEnricher{}, cfg.Recommend.EnrichTimeout.Std(), cfg.Recommend.EnrichBudget)
	recEng := recommend.NewEngine(cfg.Recommend, cfg.Rules, cfg.Patterns, enricher, calib)
	engagement := briefing.NewEngagementHistory()
	scorer := briefing.NewScorer(cfg.Briefing, engagement)
	selector := briefing.NewSelector(cfg.Briefing)

	runner := pipeline.New(cfg, source, store, ensemble, analyzer, corr, recEng, scorer, selector, reg, nil)

	return &app{
		cfg:        cfg,
		store:      store,
		source:     source,
		cache:      cache,
		runner:     runner,
		calib:      calib,
		thresholds: thresholds,
		engagement: engagement,
		reg:        reg,
	}, nil
}

func (a *app) close() {
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			log.Warn().Err(err).Msg("close redis")
		}
	}
	if err := a.store.Close(); err != nil {
		log.Warn().Err(err).Msg("close store")
	}
}
