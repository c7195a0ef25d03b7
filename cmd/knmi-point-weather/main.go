package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	httpapi "github.com/i474232898/knmi-point-weather/internal/api/http"
	"github.com/i474232898/knmi-point-weather/internal/config"
	"github.com/i474232898/knmi-point-weather/internal/geocode"
	"github.com/i474232898/knmi-point-weather/internal/scheduler"
	"github.com/i474232898/knmi-point-weather/internal/store"
	"github.com/i474232898/knmi-point-weather/internal/weather"
	"github.com/i474232898/knmi-point-weather/internal/weather/knmi"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogging(cfg)

	// Shared HTTP client for outbound KNMI calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	st, closeStore, err := openStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	defer closeStore()

	// KNMI source with resilience (backoff + circuit breaker).
	source := knmi.NewClient(httpClient, knmi.Options{
		BaseURL:        cfg.KNMIBaseURL,
		ChunkWidth:     cfg.KNMIChunkWidth,
		MaxConcurrency: cfg.KNMIMaxConcurrency,
		MaxRetries:     cfg.KNMIMaxRetries,
		Logger:         &log.Logger,
	})

	// Core service running the interpolation pipeline.
	service := weather.NewService(source, st, weather.Options{
		Concurrency:    cfg.PipelineConcurrency,
		CadenceMinutes: cfg.DefaultCadenceMinutes,
		Zone:           cfg.Zone,
		Window:         cfg.FetchWindow,
		Logger:         &log.Logger,
	})

	locations := cfg.Locations
	if len(cfg.LocationAddresses) > 0 {
		resolved, err := geocode.NewResolver(cfg.GeocoderAPIKey).Resolve(cfg.LocationAddresses)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to geocode tracked locations")
		}
		locations = append(locations, resolved...)
	}
	for _, loc := range locations {
		log.Info().Str("location", loc.Key()).Float64("lat", loc.Lat).Float64("lon", loc.Lon).Msg("tracking location")
	}

	// Scheduler that periodically refreshes tracked locations.
	sched := scheduler.New(locations, cfg.FetchInterval, cfg.FetchTimeout, service, log.Logger)
	if err := sched.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start scheduler")
	}
	defer sched.Stop()

	app := fiber.New(fiber.Config{
		AppName:               "knmi-point-weather",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          cfg.FetchTimeout + 10*time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			var e *fiber.Error
			if errors.As(err, &e) {
				code = e.Code
			}
			if code >= fiber.StatusInternalServerError {
				log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "knmi-point-weather",
			"source":  source.Name(),
		})
	})

	// API routes.
	httpapi.RegisterRoutes(app, service, httpapi.Options{
		Locations: locations,
		Timeout:   cfg.FetchTimeout,
	})

	go func() {
		log.Info().Str("port", cfg.Port).Msg("starting http server")
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Error().Err(err).Msg("fiber server stopped")
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during shutdown")
	}
}

func setupLogging(cfg *config.AppConfig) {
	if cfg.IsProduction() {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		log.Warn().Str("level", cfg.LogLevel).Msg("unknown LOG_LEVEL, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

func openStore(cfg *config.AppConfig) (weather.Store, func(), error) {
	switch cfg.StoreDriver {
	case "sqlite":
		s, err := store.OpenSQLite(cfg.StoreSQLitePath, cfg.StoreMaxHistory, cfg.StoreMaxAge, log.Logger)
		if err != nil {
			return nil, nil, err
		}
		log.Info().Str("path", cfg.StoreSQLitePath).Msg("using sqlite store")
		return s, func() {
			if err := s.Close(); err != nil {
				log.Error().Err(err).Msg("close store")
			}
		}, nil
	default:
		return store.NewMemoryStore(cfg.StoreMaxHistory, cfg.StoreMaxAge), func() {}, nil
	}
}
