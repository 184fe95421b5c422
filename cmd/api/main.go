package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk/internal/app"
	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/config"
	"github.com/spec-kit/helpdesk/internal/observability"
	"github.com/spec-kit/helpdesk/internal/persistence"
	"github.com/spec-kit/helpdesk/internal/repository"
	"github.com/spec-kit/helpdesk/internal/seed"
	"github.com/spec-kit/helpdesk/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pg, repos, err := persistence.OpenRepositories(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to open postgres", zap.Error(err))
	}
	defer pg.Close()

	checks := map[string]handlers.Pinger{}
	if pg != nil {
		checks["postgres"] = pg
	}

	var revocations auth.RevocationStore
	redis, err := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()
	if err != nil {
		logger.Warn("token revocations kept in memory")
		revocations = auth.NewMemoryRevocationStore()
	} else {
		revocations = auth.NewRedisRevocationStore(redis.Client, cfg.Auth.RevocationPrefix)
		checks["redis"] = redis
	}

	blobs, err := storage.NewLocalStore(cfg.Attachment.StorageDir)
	if err != nil {
		logger.Fatal("failed to prepare attachment storage", zap.Error(err))
	}

	application := app.New(app.Dependencies{
		Config:      *cfg,
		Repos:       repos,
		Blobs:       blobs,
		Revocations: revocations,
		Checks:      checks,
		Logger:      logger,
		Metrics:     observability.NewMetrics(),
	})

	if cfg.App.SeedFile != "" {
		if err := seedFrom(ctx, application, repos, cfg.App.SeedFile, logger); err != nil {
			logger.Fatal("failed to seed", zap.String("file", cfg.App.SeedFile), zap.Error(err))
		}
	}

	if err := application.Run(ctx, cfg.App.Addr()); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func seedFrom(ctx context.Context, application *app.App, repos repository.Set, path string, logger *zap.Logger) error {
	fixture, err := seed.LoadFile(path)
	if err != nil {
		return err
	}
	seeder := seed.Seeder{
		Auth:       application.Auth,
		Tickets:    application.Tickets,
		Assignment: application.Assignment,
		Comments:   application.Comments,
		Users:      repos.Users,
		Logger:     logger,
	}
	_, err = seeder.Apply(ctx, fixture)
	return err
}
