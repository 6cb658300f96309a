package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"stylizer/api/internal/cache"
	"stylizer/api/internal/config"
	"stylizer/api/internal/database"
	"stylizer/api/internal/handlers"
	"stylizer/api/internal/jobs"
	"stylizer/api/internal/log"
	"stylizer/api/internal/pipeline"
	"stylizer/api/internal/repository"
	"stylizer/api/internal/security"
	"stylizer/api/internal/server"
	"stylizer/api/internal/service"
	"stylizer/api/internal/storage"
	"stylizer/api/internal/vision"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment)

	ctx := context.Background()

	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}

	var dbPool *pgxpool.Pool
	var archive *repository.ArchiveRepository
	if cfg.Archive.Enabled {
		dbPool, err = database.NewPostgresPool(ctx, cfg.Postgres)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect postgres")
		}
		archive = repository.NewArchiveRepository(dbPool)
	}

	objectStore, err := storage.NewObjectStore(cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init object store")
	}
	if err := objectStore.EnsureBuckets(ctx); err != nil {
		logger.Warn().Err(err).Msg("ensure buckets failed")
	}

	tasks := repository.NewTaskRepository(redisClient, cfg.Pipeline.TaskTTL)
	visionClient := vision.NewClient(cfg.Vision, logger)
	runner := pipeline.NewRunner(logger)

	var archiver pipeline.Archiver
	if archive != nil {
		archiver = archive
	}
	orchestrator := pipeline.NewOrchestrator(tasks, visionClient, objectStore, archiver, cfg.Pipeline, logger)

	verifyToken := func(presented string) bool {
		return security.VerifyAccessToken(cfg.Security.AccessTokenHash, presented)
	}
	taskService := service.NewTaskService(tasks, objectStore, orchestrator, runner, verifyToken, cfg, logger)

	handlerSet := handlers.NewHandlerSet(logger, cfg, taskService, dbPool, redisClient)
	httpServer := server.NewHTTPServer(cfg, logger, handlerSet)

	scheduler := jobs.NewScheduler(archive, cfg.Archive, logger)
	if err := scheduler.Start(); err != nil {
		logger.Error().Err(err).Msg("scheduler start failed")
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdown(logger, httpServer, runner, scheduler, dbPool, redisClient)
}

func waitForShutdown(logger zerolog.Logger, srv *server.HTTPServer, runner *pipeline.Runner, scheduler *jobs.Scheduler, db *pgxpool.Pool, redisClient *redis.Client) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	// In-flight pipelines get the remainder of the shutdown window; after
	// that their records stay at the last persisted status until expiry.
	if err := runner.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("background tasks did not drain in time")
	}

	scheduler.Stop()

	if db != nil {
		db.Close()
	}
	if err := redisClient.Close(); err != nil {
		logger.Error().Err(err).Msg("redis close error")
	}

	logger.Info().Msg("server exited cleanly")
}
