// Package server initializes and runs the recipebook server: database,
// migrations, blob store, services and the HTTP endpoint, with graceful
// shutdown on OS signals.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"

	"github.com/ovenbird/recipebook/internal/logging"
	"github.com/ovenbird/recipebook/internal/server/auth"
	"github.com/ovenbird/recipebook/internal/server/blob"
	"github.com/ovenbird/recipebook/internal/server/config"
	"github.com/ovenbird/recipebook/internal/server/httpapi"
	"github.com/ovenbird/recipebook/internal/server/repositories/repomanager"
	"github.com/ovenbird/recipebook/internal/server/services"
)

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	server *httpapi.Server
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {

	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	// the database container may still be starting; retry the first ping
	err = retry.Do(ctx, retry.WithMaxRetries(5, retry.NewFibonacci(500*time.Millisecond)),
		func(ctx context.Context) error {
			if err := db.PingContext(ctx); err != nil {
				return retry.RetryableError(err)
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("db unreachable: %w", err)
	}

	manager := repomanager.NewPostgresRepositoryManager()
	if err := manager.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	store, err := blob.NewS3Store(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("blob store init error: %w", err)
	}

	userService := services.NewUserService(db, manager)
	recipeService := services.NewRecipeService(db, manager)
	imageService, err := services.NewImageService(db, manager, store, logger)
	if err != nil {
		return nil, fmt.Errorf("image service init error: %w", err)
	}

	verifier := auth.NewJWTVerifier([]byte(cfg.IdentitySecret))

	server := httpapi.NewServer(cfg, logger, verifier,
		userService, recipeService, imageService, db)

	return &App{config: cfg, logger: logger, db: db, server: server}, nil
}

func (app *App) Run(ctx context.Context) error {

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	app.logger.Info(ctx, "starting app")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.server.Run(ctx)
	})

	err := g.Wait()

	if closeErr := app.db.Close(); closeErr != nil {
		app.logger.Error(ctx, "db close error", "error", closeErr.Error())
	}

	return err
}
