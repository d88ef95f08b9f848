// Package internal provides application initialization and wiring.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/starford/nutriboard/internal/board"
	"github.com/starford/nutriboard/internal/client"
	"github.com/starford/nutriboard/internal/history"
	"github.com/starford/nutriboard/internal/importer"
	"github.com/starford/nutriboard/internal/session"
)

// App bundles the wired components one command invocation works with.
type App struct {
	Config  *Config
	Logger  *slog.Logger
	Session *session.Session
	Client  *client.Client
	Board   *board.Board
	History *history.Store
}

// NewApp builds the application from options. The session is populated
// from the configured credential when one is present; commands that need
// authentication fail with apperr.ErrNotAuthenticated otherwise.
func NewApp(opts ...Option) (*App, error) {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := app.config

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	sess := session.New()
	if cfg.Auth.Configured() {
		userID, err := uuid.Parse(cfg.Auth.UserID)
		if err != nil {
			return nil, fmt.Errorf("auth: invalid user_id: %w", err)
		}
		sess.Populate(userID, cfg.Auth.Token)
	}

	c := client.New(cfg.API.BaseURL, cfg.API.Timeout(), sess)
	b := board.New(c, logger)

	store, err := history.Open(cfg.History.Path)
	if err != nil {
		return nil, fmt.Errorf("init history: %w", err)
	}

	return &App{
		Config:  cfg,
		Logger:  logger,
		Session: sess,
		Client:  c,
		Board:   b,
		History: store,
	}, nil
}

// Close releases the app's local resources.
func (a *App) Close() error {
	return a.History.Close()
}

// RunImportOnce sweeps the drop directory a single time.
func (a *App) RunImportOnce(ctx context.Context) error {
	if a.Config.Import.Dir == "" {
		return fmt.Errorf("import: no drop directory configured")
	}
	if err := os.MkdirAll(a.Config.Import.Dir, 0o755); err != nil {
		return fmt.Errorf("import: create drop dir: %w", err)
	}

	imp := importer.New(a.Board, a.Client, a.Config.Import.Dir, a.Logger)
	n, err := imp.Sweep(ctx)
	if err != nil {
		return err
	}
	a.Logger.Info("import sweep finished", slog.Int("imported", n))
	return nil
}

// RunImportWatch supervises the drop-directory watcher until a shutdown
// signal arrives or the watcher fails.
func (a *App) RunImportWatch(ctx context.Context) error {
	if a.Config.Import.Dir == "" {
		return fmt.Errorf("import: no drop directory configured")
	}
	if err := os.MkdirAll(a.Config.Import.Dir, 0o755); err != nil {
		return fmt.Errorf("import: create drop dir: %w", err)
	}

	imp := importer.New(a.Board, a.Client, a.Config.Import.Dir, a.Logger)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return imp.Watch(gCtx)
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			a.Logger.Info("received shutdown signal", slog.String("signal", sig.String()))
			return context.Canceled
		case <-gCtx.Done():
			return nil
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
