// seed loads a YAML fixture of users and tickets into the configured
// Postgres database.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/app"
	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/config"
	"github.com/spec-kit/helpdesk/internal/observability"
	"github.com/spec-kit/helpdesk/internal/persistence"
	"github.com/spec-kit/helpdesk/internal/seed"
	"github.com/spec-kit/helpdesk/internal/storage"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		filePath string
		dsn      string
		migrate  bool
		dryRun   bool
	)
	flagSet := pflag.NewFlagSet("seed", pflag.ContinueOnError)
	flagSet.StringVarP(&filePath, "file", "f", "seed.yaml", "path to the YAML fixture")
	flagSet.StringVar(&dsn, "dsn", "", "Postgres DSN (default: POSTGRES_DSN)")
	flagSet.BoolVar(&migrate, "migrate", true, "apply migrations before seeding")
	flagSet.BoolVar(&dryRun, "dry-run", false, "parse the fixture and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	fixture, err := seed.LoadFile(filePath)
	if err != nil {
		return err
	}
	if dryRun {
		fmt.Printf("%s: %d users, %d tickets\n", filePath, len(fixture.Users), len(fixture.Tickets))
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if dsn != "" {
		cfg.Postgres.DSN = dsn
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("a Postgres DSN is required: set POSTGRES_DSN or --dsn")
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg.Postgres.RunMigrations = migrate
	pg, repos, err := persistence.OpenRepositories(ctx, cfg.Postgres, logger)
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	defer pg.Close()

	blobs, err := storage.NewLocalStore(cfg.Attachment.StorageDir)
	if err != nil {
		return err
	}
	application := app.New(app.Dependencies{
		Config:      *cfg,
		Repos:       repos,
		Blobs:       blobs,
		Revocations: auth.NewMemoryRevocationStore(),
		Logger:      logger,
	})

	seeder := seed.Seeder{
		Auth:       application.Auth,
		Tickets:    application.Tickets,
		Assignment: application.Assignment,
		Comments:   application.Comments,
		Users:      repos.Users,
		Logger:     logger,
	}
	result, err := seeder.Apply(ctx, fixture)
	if err != nil {
		return err
	}
	logger.Info("seed complete", zap.String("file", filePath), zap.Int("tickets", result.Tickets))
	return nil
}
