package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	httpapi "github.com/i474232898/electricity-map/internal/api/http"
	"github.com/i474232898/electricity-map/internal/config"
	"github.com/i474232898/electricity-map/internal/dataset"
	"github.com/i474232898/electricity-map/internal/electricity"
	"github.com/i474232898/electricity-map/internal/electricity/providers"
	"github.com/i474232898/electricity-map/internal/logger"
	"github.com/i474232898/electricity-map/internal/metrics"
	"github.com/i474232898/electricity-map/internal/scheduler"
	"github.com/i474232898/electricity-map/internal/store"
	"github.com/i474232898/electricity-map/internal/zonemap"
)

const serviceName = "electricity-map"

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New("info", false)
		bootLog.Fatal().Err(err).Msg("failed to load config")
	}

	log := logger.New(cfg.LogLevel, cfg.LogPretty)

	var (
		rec  metrics.Recorder = metrics.Noop{}
		prom *metrics.Metrics
	)
	if cfg.MetricsEnabled {
		prom = metrics.New()
		rec = prom
	}

	// Shared HTTP client for outbound calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	snapshotStore := newSnapshotStore(cfg, log, rec)

	// Upstream client with resilience (rate limit + backoff + circuit breaker).
	source := providers.NewElectricityMapsClient(httpClient, providers.Options{
		BaseURL: cfg.APIBaseURL,
		Token:   cfg.APIToken,
		Zone:    cfg.Zone,
		Backoff: providers.BackoffConfig{
			MaxRetries:      cfg.UpstreamMaxRetries,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     5 * time.Second,
		},
		RatePerSecond: cfg.UpstreamRatePerSecond,
		Logger:        logger.Component(log, "upstream"),
		Metrics:       rec,
	})

	service := electricity.NewService(source, snapshotStore, cfg.SnapshotCacheTTL, logger.Component(log, "electricity"))

	// Scheduler refreshes the snapshot on startup and then periodically.
	sched := scheduler.New(service, cfg.FetchInterval,
		scheduler.WithTimeout(cfg.FetchInterval),
		scheduler.WithLogger(logger.Component(log, "scheduler")),
		scheduler.WithMetrics(rec),
	)
	if err := sched.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start scheduler")
	}
	defer sched.Stop()

	// Historical inputs load in the background; their endpoints answer 503 until ready.
	repo := dataset.NewRepository(httpClient, cfg.DatasetTimezone, logger.Component(log, "dataset"), rec)
	features := zonemap.NewFeatureStore(httpClient, logger.Component(log, "geojson"))
	go loadHistorical(cfg, repo, features, log)

	app := fiber.New(fiber.Config{
		AppName:               serviceName,
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          30 * time.Second,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		ErrorHandler:          httpapi.ErrorHandler,
	})

	// Global middleware
	app.Use(fiberlogger.New())
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{AllowOrigins: cfg.CORSOrigins}))
	app.Use(httpapi.Metrics(rec))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":    "ok",
			"service":   serviceName,
			"scheduler": sched.Status(),
		})
	})
	if prom != nil {
		app.Get("/metrics", adaptor.HTTPHandler(prom.Handler()))
	}

	httpapi.RegisterRoutes(app, httpapi.Deps{
		Electricity: service,
		Dataset:     repo,
		Features:    features,
		Log:         logger.Component(log, "http"),
	})

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Error().Err(err).Msg("fiber server stopped")
		}
	}()
	log.Info().Str("port", cfg.Port).Str("zone", cfg.Zone).Msg("server started")

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during shutdown")
	}
}

func newSnapshotStore(cfg *config.AppConfig, log zerolog.Logger, rec metrics.Recorder) electricity.Store {
	if cfg.DataFile == "" {
		log.Warn().Msg("DATA_FILE is empty, snapshots are kept in memory only")
		return store.NewMemoryStore()
	}
	return store.NewFileStore(cfg.DataFile, logger.Component(log, "store"), rec)
}

func loadHistorical(cfg *config.AppConfig, repo *dataset.Repository, features *zonemap.FeatureStore, log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	// Each input is independent; one failing does not cancel the other.
	var g errgroup.Group
	if cfg.DatasetPath != "" {
		g.Go(func() error { return repo.LoadFrom(ctx, cfg.DatasetPath) })
	} else {
		log.Info().Msg("DATASET_PATH not set, historical endpoints disabled")
	}
	if cfg.GeoJSONPath != "" {
		g.Go(func() error { return features.LoadFrom(ctx, cfg.GeoJSONPath) })
	} else {
		log.Info().Msg("GEOJSON_PATH not set, map endpoint disabled")
	}
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("historical inputs incomplete")
	}
}
