package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/user/leadflow-service/internal/adapter/chromedp_extractor"
	"github.com/user/leadflow-service/internal/adapter/csvexport"
	"github.com/user/leadflow-service/internal/adapter/httpenricher"
	"github.com/user/leadflow-service/internal/adapter/memory"
	"github.com/user/leadflow-service/internal/adapter/postgres"
	redis_adapter "github.com/user/leadflow-service/internal/adapter/redis"
	"github.com/user/leadflow-service/internal/adapter/simulated"
	"github.com/user/leadflow-service/internal/delivery/http/handler"
	"github.com/user/leadflow-service/internal/delivery/http/router"
	"github.com/user/leadflow-service/internal/repository"
	"github.com/user/leadflow-service/internal/usecase"
	"github.com/user/leadflow-service/pkg/config"
	"github.com/user/leadflow-service/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	_, _ = maxprocs.Set()

	// --- Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	// --- Logger ---
	var logLevel slog.Level
	if err := logLevel.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		logLevel = slog.LevelInfo
	}
	logger.Init(os.Stdout, logLevel)
	slog.Info("Logger initialized", "level", logLevel.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Repositories ---
	checks := make(map[string]handler.Pinger)

	var taskRepo repository.TaskRepository
	switch cfg.StoreDriver {
	case config.StorePostgres:
		dbpool, err := pgxpool.New(ctx, cfg.PostgresURL())
		if err != nil {
			slog.Error("Unable to connect to database", "error", err)
			os.Exit(1)
		}
		defer dbpool.Close()
		if err := postgres.RunMigrations(dbpool); err != nil {
			slog.Error("Unable to migrate database", "error", err)
			os.Exit(1)
		}
		slog.Info("PostgreSQL connection pool established")
		taskRepo = postgres.NewTaskRepo(dbpool)
	default:
		taskRepo = memory.NewTaskRepo()
	}
	checks["store"] = taskRepo

	var (
		queueRepo repository.QueueRepository
		cache     repository.SnapshotCache
	)
	if cfg.UsesRedis() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		if _, err := rdb.Ping(ctx).Result(); err != nil {
			slog.Error("Unable to connect to Redis", "error", err)
			os.Exit(1)
		}
		slog.Info("Redis connection established")
		queueRepo = redis_adapter.NewQueueRepo(rdb)
		cache = redis_adapter.NewSnapshotCache(rdb, cfg.SnapshotCacheTTL)
	} else {
		queueRepo = memory.NewQueueRepo()
		cache = memory.NewSnapshotCache()
	}
	checks["queue"] = queueRepo

	exporter, err := csvexport.NewExporter(cfg.ExportDir, cfg.ExportBaseURL)
	if err != nil {
		slog.Error("Unable to prepare export directory", "error", err)
		os.Exit(1)
	}

	// --- Use Cases ---
	taskManager := usecase.NewTaskManager(taskRepo, queueRepo, cache)

	var wg sync.WaitGroup
	startProducer(ctx, &wg, cfg, taskRepo, queueRepo, exporter)

	// --- HTTP Server ---
	apiHandler := handler.NewHandler(taskManager, checks)
	httpRouter := router.New(apiHandler, cfg.ExportDir)

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      httpRouter,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("Starting server", "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Could not listen on port", "port", cfg.ServerPort, "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server shutdown failed", "error", err)
	}
	wg.Wait()
	slog.Info("Server stopped")
}

// startProducer launches the component that moves tasks through their
// lifecycle for the configured engine mode.
func startProducer(
	ctx context.Context,
	wg *sync.WaitGroup,
	cfg *config.Config,
	taskRepo repository.TaskRepository,
	queueRepo repository.QueueRepository,
	exporter repository.Exporter,
) {
	wg.Add(1)

	switch cfg.EngineMode {
	case config.EngineBrowser:
		extractor := chromedp_extractor.NewChromedpExtractor(cfg.PageLoadTimeout, cfg.UserAgent)
		enricher := httpenricher.NewHTTPEnricher(httpenricher.Options{
			Concurrency: cfg.EnrichConcurrency,
			RPS:         cfg.EnrichRPS,
			Burst:       cfg.EnrichBurst,
			Timeout:     cfg.EnrichTimeout,
			UserAgent:   cfg.UserAgent,
		})
		pipeline := usecase.NewPipeline(taskRepo, queueRepo, extractor, enricher, exporter, cfg.IdleWait)
		go func() {
			defer wg.Done()
			defer extractor.Close()
			pipeline.Run(ctx, cfg.Workers)
		}()

	case config.EnginePipelineSimulated:
		pipeline := usecase.NewPipeline(taskRepo, queueRepo,
			&simulated.Extractor{Delay: 200 * time.Millisecond},
			&simulated.Enricher{Delay: 100 * time.Millisecond},
			exporter, cfg.IdleWait)
		go func() {
			defer wg.Done()
			pipeline.Run(ctx, cfg.Workers)
		}()

	default:
		driver := usecase.NewSimulationDriver(taskRepo, queueRepo, exporter, simulated.Generator{}, cfg.SimulationTick, cfg.SimulationStep)
		go func() {
			defer wg.Done()
			driver.Run(ctx)
		}()
	}

	slog.Info("Producer started", "engine_mode", cfg.EngineMode, "workers", cfg.Workers)
}
