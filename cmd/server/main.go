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

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/vultisig/tutor-chat/internal/ai/tutor"
	"github.com/vultisig/tutor-chat/internal/api"
	"github.com/vultisig/tutor-chat/internal/config"
	"github.com/vultisig/tutor-chat/internal/conversation"
	"github.com/vultisig/tutor-chat/internal/metrics"
	"github.com/vultisig/tutor-chat/internal/service"
	"github.com/vultisig/tutor-chat/internal/service/quiz"
	"github.com/vultisig/tutor-chat/internal/service/session"
	"github.com/vultisig/tutor-chat/internal/speech"
	"github.com/vultisig/tutor-chat/internal/storage"
	"github.com/vultisig/tutor-chat/internal/storage/buntdb"
	"github.com/vultisig/tutor-chat/internal/storage/memory"
	"github.com/vultisig/tutor-chat/internal/storage/postgres"
	"github.com/vultisig/tutor-chat/internal/storage/redis"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("failed to load configuration")
	}

	// Configure log format and level
	if cfg.LogFormat == "text" {
		logger.SetFormatter(&logrus.TextFormatter{})
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	} else {
		logger.WithField("level", cfg.LogLevel).Warn("unknown log level, using info")
	}

	logger.WithField("store", cfg.Store.Driver).Info("starting tutor-chat server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to Redis when configured; it also backs the shared quiz cache
	var redisClient *redis.Client
	if cfg.Redis.URI != "" {
		redisClient, err = redis.New(cfg.Redis.URI)
		if err != nil {
			logger.WithError(err).Fatal("failed to connect to redis")
		}
		defer redisClient.Close()
	}

	backend, err := openBackend(ctx, cfg, redisClient, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to open conversation store")
	}
	defer backend.Close()

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	// Initialize clients and services
	tutorClient := tutor.NewClient(cfg.Tutor.BaseURL, cfg.Tutor.APIKey, logger)
	authService := service.NewAuthService(cfg.Server.JWTSecret)

	var quizCache quiz.Cache
	if redisClient != nil {
		quizCache = redisClient
	}
	quizService := quiz.NewService(tutorClient, quizCache, cfg.Quiz.CacheTTL, logger, m)

	store := conversation.NewStore(backend, logger)
	hub := session.NewHub(store, session.NewTransport(tutorClient), logger, m, cfg.Session.IdleTTL)
	defer hub.Close()

	opts := api.Options{
		DefaultLanguage: cfg.Tutor.DefaultLanguage,
		MaxStreams:      cfg.Session.MaxStreams,
		SendRate:        cfg.RateLimit.PerSecond,
		SendBurst:       cfg.RateLimit.Burst,
	}
	if cfg.Speech.URL != "" {
		speechClient := speech.NewClient(cfg.Speech.URL, cfg.Speech.APIKey)
		opts.Synthesizer = speechClient
		opts.Transcriber = speechClient
	}

	// Initialize API server
	server := api.NewServer(authService, hub, quizService, logger, opts)

	// Create Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Add middleware
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestID())
	e.Use(middleware.BodyLimit("16M"))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.WithFields(logrus.Fields{
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"request_id": c.Response().Header().Get(echo.HeaderXRequestID),
			}).Info("request")
			return nil
		},
	}))

	// Public endpoints
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status": "ok",
		})
	})
	e.GET("/metrics", echo.WrapHandler(m.Handler()))

	// Chat and speech routes (authenticated)
	server.RegisterRoutes(e)

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.WithField("addr", addr).Info("server listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return hub.Run(gctx, cfg.Session.SweepInterval)
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.WithError(err).Error("server error")
	}

	logger.Info("server stopped")
}

func openBackend(ctx context.Context, cfg *config.Config, redisClient *redis.Client, logger *logrus.Logger) (storage.Backend, error) {
	switch cfg.Store.Driver {
	case config.DriverMemory:
		if cfg.Store.QuotaBytes > 0 {
			return memory.WithQuota(cfg.Store.QuotaBytes), nil
		}
		return memory.New(), nil
	case config.DriverBuntDB:
		b, err := buntdb.Open(cfg.Store.BuntDBPath)
		if err != nil {
			return nil, err
		}
		return b, nil
	case config.DriverRedis:
		if redisClient == nil {
			return nil, errors.New("redis store requires REDIS_URI")
		}
		return nopCloser{redisClient}, nil
	case config.DriverPostgres:
		db, err := postgres.New(ctx, cfg.Store.DatabaseDSN, logger)
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// nopCloser shares the Redis connection with the quiz cache, which closes it.
type nopCloser struct {
	*redis.Client
}

func (nopCloser) Close() error { return nil }
