package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/hive-weight-etl/internal/adapter/carto"
	"github.com/couchcryptid/hive-weight-etl/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/hive-weight-etl/internal/adapter/kafka"
	"github.com/couchcryptid/hive-weight-etl/internal/adapter/modelstore"
	"github.com/couchcryptid/hive-weight-etl/internal/adapter/openmeteo"
	"github.com/couchcryptid/hive-weight-etl/internal/adapter/sqlite"
	"github.com/couchcryptid/hive-weight-etl/internal/adapter/tablefile"
	"github.com/couchcryptid/hive-weight-etl/internal/cleaning"
	"github.com/couchcryptid/hive-weight-etl/internal/config"
	"github.com/couchcryptid/hive-weight-etl/internal/domain"
	"github.com/couchcryptid/hive-weight-etl/internal/enrich"
	"github.com/couchcryptid/hive-weight-etl/internal/observability"
	"github.com/couchcryptid/hive-weight-etl/internal/pipeline"
	"github.com/couchcryptid/hive-weight-etl/internal/segment"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	weather, err := newWeatherSource(cfg, metrics, logger)
	if err != nil {
		logger.Error("failed to open weather source", "error", err)
		return 1
	}

	// Initialize parcel lookups (feature-flagged via CARTO_URL).
	var parcels domain.CartoSource
	if cfg.CartoEnabled() {
		client := carto.NewClient(cfg.CartoURL, cfg.CartoRadius, cfg.CartoYear, cfg.CartoTimeout, metrics, logger)
		parcels = carto.NewCachedSource(client, cfg.CartoCacheSize, metrics)
		logger.Info("cartographic enrichment enabled", "radius", cfg.CartoRadius, "year", cfg.CartoYear)
	} else {
		logger.Info("cartographic enrichment disabled")
	}

	artifacts := tablefile.NewArtifacts(cfg.OutputDir, cfg.OutputFormat, logger)
	cleaner := cleaning.NewCleaner(cleaning.CleanerConfig{
		WeightMin: cfg.WeightMin,
		WeightMax: cfg.WeightMax,
		MinDate:   cfg.CleanMinDate,
		SwapScope: cfg.SwapScope,
		Quantile:  cfg.ZScoreQuantile,
	}, logger)

	opts := segment.DefaultFitOptions()
	opts.Breakpoints = cfg.Breakpoints
	opts.Restarts = cfg.FitRestarts
	opts.Seed = cfg.FitSeed
	segmenter := pipeline.NewSegmenter(
		segment.NewEngine(opts, cfg.WeightReference, clock),
		modelstore.New(cfg.ModelSaveDir, logger),
		pipeline.SegmenterConfig{
			MinMonth: cfg.SegmentMinMonth,
			MaxMonth: cfg.SegmentMaxMonth,
			Workers:  cfg.SegmentWorkers,
		},
		metrics, logger,
	)

	stages := pipeline.Stages{
		Source:      tablefile.NewDirSource(cfg.RawDataPath, logger),
		Transformer: pipeline.NewTransformer(cleaner, enrich.NewEnricher(weather, parcels, logger), artifacts, clock, metrics),
		Segmenter:   segmenter,
		Artifacts:   artifacts,
	}

	if cfg.SQLitePath != "" {
		store, err := sqlite.Open(ctx, cfg.SQLitePath, logger)
		if err != nil {
			logger.Error("failed to open results store", "error", err)
			return 1
		}
		defer func() {
			if err := store.Close(); err != nil {
				logger.Error("results store close error", "error", err)
			}
		}()
		stages.Recorder = store
	}

	if cfg.KafkaEnabled() {
		writer := kafkaadapter.NewWriter(cfg, clock, metrics, logger)
		defer func() {
			if err := writer.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		}()
		stages.Publisher = writer
	}

	p := pipeline.New(stages, clock, logger, metrics)

	// At most one run is queued behind the one in progress.
	queue := make(chan struct{}, 1)
	trigger := func() bool {
		select {
		case queue <- struct{}{}:
			return true
		default:
			return false
		}
	}
	trigger()

	var httpTrigger httpadapter.TriggerFunc
	if !cfg.ExitAfterRun {
		httpTrigger = trigger
	}
	srv := httpadapter.NewServer(cfg.HTTPAddr, p, httpTrigger, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	code := 0
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-queue:
			if _, err := p.Run(ctx); err != nil {
				code = 1
			} else {
				code = 0
			}
			if cfg.ExitAfterRun {
				break loop
			}
		}
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
	return code
}

// newWeatherSource builds the configured daily weather source. A nil source leaves every row
// without weather.
func newWeatherSource(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) (domain.WeatherSource, error) {
	switch cfg.WeatherSource {
	case config.WeatherFile:
		src, err := tablefile.OpenWeatherFile(cfg.WeatherFile)
		if err != nil {
			return nil, err
		}
		logger.Info("weather enrichment from file", "path", cfg.WeatherFile)
		return src, nil
	case config.WeatherOpenMeteo:
		client := openmeteo.NewClient(cfg.OpenMeteoURL, cfg.OpenMeteoTimeout, metrics, logger)
		logger.Info("weather enrichment from open-meteo", "cache_size", cfg.WeatherCacheSize, "timeout", cfg.OpenMeteoTimeout)
		return openmeteo.NewCachedSource(client, cfg.WeatherCacheSize, metrics), nil
	default:
		logger.Info("weather enrichment disabled")
		return nil, nil
	}
}
