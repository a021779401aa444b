package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"meu_perito_go/config"
	"meu_perito_go/db"
	"meu_perito_go/handlers"
	"meu_perito_go/middleware"
	"meu_perito_go/models"
	"meu_perito_go/services"
	"meu_perito_go/services/i18n"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("server stopped with error")
	}
}

func run() error {
	cfg := config.Load()
	logger := newLogger(cfg)
	log.Logger = logger

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	ctx := context.Background()

	kv, audit, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	recognizerCfg, err := services.LoadRecognizerConfig(cfg.RecognizerKeywordsPath)
	if err != nil {
		return fmt.Errorf("recognizer keywords: %w", err)
	}
	recognizer, err := services.NewRecognizer(recognizerCfg)
	if err != nil {
		return fmt.Errorf("recognizer: %w", err)
	}

	catalog, err := i18n.Load(logger)
	if err != nil {
		return fmt.Errorf("i18n: %w", err)
	}

	locations := services.NewLocationRegistry(kv)
	svc, err := services.NewDocketService(services.DocketServiceDeps{
		Store:          services.NewDocketStore(kv, locations, logger),
		Locations:      locations,
		Extractor:      services.NewPDFTextExtractor(logger),
		Recognizer:     recognizer,
		Storage:        services.NewStorage(ctx, cfg, logger),
		Logger:         logger,
		MaxUploadBytes: cfg.MaxUploadBytes(),
	})
	if err != nil {
		return err
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogMethod:  true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			logger.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("request")
			return nil
		},
	}))
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.BodyLimit(fmt.Sprintf("%dM", cfg.MaxUploadMB+1)))

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "store": cfg.StoreBackend})
	})

	api := e.Group("/api")
	api.Use(middleware.Actor())
	api.Use(middleware.AuditContext())
	api.Use(middleware.Locale(cfg, catalog))

	extractLimiter := middleware.NewExtractRateLimiter(cfg.ExtractRatePerMinute)
	handlers.NewDocketHandler(svc, audit, catalog, cfg.MaxUploadBytes(), logger).
		Register(api, extractLimiter.Middleware())

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("port", cfg.ServerPort).Str("store", cfg.StoreBackend).Msg("server starting")
		errCh <- e.Start(":" + cfg.ServerPort)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	var logger zerolog.Logger
	if cfg.IsProduction() {
		logger = zerolog.New(os.Stdout)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	return logger.Level(level).With().Timestamp().Logger()
}

// openStore picks the persistence collaborator. Only the sqlite backend keeps
// the audit trail queryable; the others write it to the log.
func openStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (services.KVStore, services.AuditRecorder, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		logger.Warn().Msg("memory store selected: the docket is lost on restart")
		return services.NewMemoryKV(), services.NewLogAuditRecorder(logger), func() {}, nil

	case config.BackendRedis:
		client, err := services.NewRedisClient(cfg.RedisURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("redis: %w", err)
		}
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, nil, fmt.Errorf("redis ping: %w", err)
		}
		closeFn := func() {
			if err := client.Close(); err != nil {
				logger.Error().Err(err).Msg("failed to close redis client")
			}
		}
		return services.NewRedisKV(client, ""), services.NewLogAuditRecorder(logger), closeFn, nil

	default:
		conn, err := db.Open(cfg.DBPath, cfg.Environment, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := db.AutoMigrate(conn, &models.KVEntry{}, &models.AuditLog{}); err != nil {
			db.Close(conn)
			return nil, nil, nil, err
		}
		closeFn := func() {
			if err := db.Close(conn); err != nil {
				logger.Error().Err(err).Msg("failed to close database")
			}
		}
		return services.NewGormKV(conn), services.NewGormAuditRecorder(conn, logger), closeFn, nil
	}
}
