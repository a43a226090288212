// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/corville/confsync/internal/confluence"
	"github.com/corville/confsync/internal/journal"
	"github.com/corville/confsync/internal/storage"
	"github.com/corville/confsync/internal/syncer"
	"github.com/corville/confsync/internal/watch"
)

// Run executes a sync (or watch) with the given options. It returns a
// non-nil error when any document failed, which the CLI turns into a
// non-zero exit code.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("base_url", cfg.Confluence.BaseURL),
		slog.String("username", cfg.Confluence.Username),
		slog.String("default_space", cfg.Confluence.SpaceKey),
		slog.String("docs_path", cfg.Docs.Path),
		slog.Bool("journal", cfg.Journal.Enabled()),
		slog.String("log_level", cfg.App.LogLevel.String()))

	store, err := storage.NewFS(cfg.Docs.Path)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	client := confluence.NewClient(cfg.Confluence.BaseURL, cfg.Confluence.Username, cfg.Confluence.APIToken)

	var jrnl journal.Journal
	if cfg.Journal.Enabled() {
		db, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			return fmt.Errorf("init journal: %w", err)
		}
		defer db.Close()
		jrnl = db
	}

	s := syncer.New(store, client, jrnl, syncer.Options{
		DefaultSpaceKey: cfg.Confluence.SpaceKey,
		DefaultParentID: cfg.Confluence.ParentID,
		Force:           app.force,
	}, logger)

	report, err := s.Run(ctx)
	if err != nil {
		return err
	}

	if !app.watch {
		if !report.Ok() {
			return fmt.Errorf("%d document(s) failed to sync", report.Failed)
		}
		return nil
	}

	// Watch mode: keep re-syncing changed files until interrupted.
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return watch.Run(gCtx, store, s, logger)
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
		}
		return context.Canceled
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Watch error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Watch stopped")
	return nil
}
