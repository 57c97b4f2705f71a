package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/toko-engine/internal/app"
	"github.com/noah-isme/toko-engine/internal/config"
	"github.com/noah-isme/toko-engine/internal/events"
	"github.com/noah-isme/toko-engine/internal/health"
	"github.com/noah-isme/toko-engine/internal/inventory"
	"github.com/noah-isme/toko-engine/internal/obs"
	"github.com/noah-isme/toko-engine/internal/queue"
	"github.com/noah-isme/toko-engine/internal/repo"
	"github.com/noah-isme/toko-engine/internal/resilience"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("component", "engine").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := obs.InitTracer(ctx, obs.TracingConfig{
		ServiceName:   "toko-engine",
		Endpoint:      cfg.OTLPEndpoint,
		SamplingRatio: cfg.OTelSamplingRatio,
		Environment:   cfg.AppEnv,
	})
	if err != nil {
		logger.Error().Err(err).Msg("init tracer")
	}

	if err := repo.Migrate(cfg.DatabaseURL); err != nil {
		logger.Fatal().Err(err).Msg("run migrations")
	}

	pool := mustInitDatabase(ctx, cfg, logger)
	defer pool.Close()

	redisClient := mustInitRedis(ctx, cfg, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	redisOpt := asynq.RedisClientOpt{Addr: redisClient.Options().Addr, Password: redisClient.Options().Password, DB: redisClient.Options().DB}
	tasks := asynq.NewClient(redisOpt)
	defer tasks.Close()

	deps := app.Dependencies{DB: pool, Redis: redisClient, Tasks: tasks, Logger: logger}
	if len(cfg.KafkaBrokers) > 0 {
		writer := events.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer func() {
			if err := writer.Close(); err != nil {
				logger.Error().Err(err).Msg("close kafka writer")
			}
		}()
		deps.Kafka = writer
	}

	engine, err := app.Wire(cfg, deps)
	if err != nil {
		logger.Fatal().Err(err).Msg("wire services")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	registry.MustRegister(queue.Collectors()...)
	registry.MustRegister(resilience.Collectors()...)
	obs.MustRegisterDomainMetrics("toko", registry)
	httpMetrics := obs.NewHTTPMetrics("toko", nil, registry)

	probes := health.Probes{DB: pool, Redis: redisClient, KafkaBrokers: cfg.KafkaBrokers}
	router := chi.NewRouter()
	router.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	router.Use(obs.TracingMiddleware)
	router.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	router.Use(obs.RequestLogger{Logger: logger}.Middleware)
	healthHandler := health.Handler{Checker: probes}
	router.Get("/health/live", healthHandler.Live)
	router.Get("/health/ready", healthHandler.Ready)
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	router.Route("/ops/dlq", dlqHandler{store: engine.DLQ, queue: engine.Queue, logger: logger}.routes)

	server := &http.Server{
		Addr:              cfg.OpsAddr(),
		Handler:           otelhttp.NewHandler(router, "ops"),
		ReadHeaderTimeout: 5 * time.Second,
	}

	asynqServer := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 4,
		Logger:      asynqLogger{logger: logger.With().Str("component", "asynq").Logger()},
	})
	mux := asynq.NewServeMux()
	mux.Handle(inventory.TypeReleaseHold, engine.ReleaseHoldHandler())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info().Str("addr", server.Addr).Msg("ops server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("ops server stopped with error")
			stop()
		}
	}()

	if err := asynqServer.Start(mux); err != nil {
		logger.Fatal().Err(err).Msg("start hold scheduler")
	}

	if engine.Publisher != nil {
		deliveries := engine.DeliveryHandler()
		worker := queue.Worker{
			R:                 redisClient,
			Prefix:            cfg.QueuePrefix,
			Kind:              events.KindDeliver,
			Concurrency:       4,
			VisibilityTimeout: cfg.QueueVisibilityTimeout,
			RetryBase:         time.Second,
			RetryJitter:       0.2,
			Store:             engine.DLQ,
			Logger:            &logger,
			Handler:           deliveries.Handle,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Info().Msg("event delivery worker starting")
			if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("event delivery worker stopped with error")
			}
		}()
	} else {
		logger.Warn().Msg("no kafka brokers configured; domain events are recorded but not delivered")
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		refreshDLQGauge(ctx, engine.DLQ, logger)
	}()

	<-ctx.Done()
	health.SetReady(false)
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("ops server shutdown")
	}
	asynqServer.Shutdown()
	wg.Wait()
	if shutdownTracer != nil {
		if err := shutdownTracer(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("tracer shutdown")
		}
	}
	logger.Info().Msg("engine shutdown complete")
}

func refreshDLQGauge(ctx context.Context, store queue.Store, logger zerolog.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		if err := queue.RefreshDLQGauge(ctx, store); err != nil && ctx.Err() == nil {
			logger.Warn().Err(err).Msg("refresh dlq gauge")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func mustInitDatabase(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *pgxpool.Pool {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{Slow: 250 * time.Millisecond, Logger: obs.Component(logger, "db")}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}
	return pool
}

func mustInitRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *redis.Client {
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return redisClient
}

// asynqLogger routes asynq's logs through zerolog.
type asynqLogger struct {
	logger zerolog.Logger
}

func (l asynqLogger) Debug(args ...interface{}) { l.logger.Debug().Msg(fmtArgs(args)) }
func (l asynqLogger) Info(args ...interface{})  { l.logger.Info().Msg(fmtArgs(args)) }
func (l asynqLogger) Warn(args ...interface{})  { l.logger.Warn().Msg(fmtArgs(args)) }
func (l asynqLogger) Error(args ...interface{}) { l.logger.Error().Msg(fmtArgs(args)) }
func (l asynqLogger) Fatal(args ...interface{}) { l.logger.Fatal().Msg(fmtArgs(args)) }

func fmtArgs(args []interface{}) string {
	return strings.TrimSpace(fmt.Sprintln(args...))
}
