package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"RecipeSwipe/internal/config"
	"RecipeSwipe/internal/domain"
	"RecipeSwipe/internal/infrastructure/backend"
	"RecipeSwipe/internal/infrastructure/catalog"
	"RecipeSwipe/internal/infrastructure/imagesearch"
	"RecipeSwipe/internal/infrastructure/imagestore"
	"RecipeSwipe/internal/infrastructure/scheduler"
	"RecipeSwipe/internal/infrastructure/storage"
	"RecipeSwipe/internal/infrastructure/websocket"
	"RecipeSwipe/internal/logging"
	"RecipeSwipe/internal/ports"
	"RecipeSwipe/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg    config.Config
	logger *slog.Logger

	store      *storage.SQLiteJobStore
	Uploads    *usecase.UploadQueue
	Feed       *usecase.Feed
	Hub        *websocket.Hub
	Candidates ports.CandidateSource
	poller     *usecase.CatalogPoller
}

// New builds the application. The sqlite job store is opened when a
// storage path is configured.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	var (
		store    *storage.SQLiteJobStore
		jobStore ports.JobStore
	)
	if cfg.Storage.Path != "" {
		s, err := storage.OpenSQLite(ctx, cfg.Storage.Path)
		if err != nil {
			return nil, fmt.Errorf("open job store: %w", err)
		}
		store, jobStore = s, s
	}

	uploadClient := backend.NewClient(cfg.Backend.Endpoint, cfg.Backend.FlagsURL, cfg.Backend.Timeout)
	uploads := usecase.NewUploadQueue(uploadClient, jobStore,
		usecase.WithBatchSize(cfg.Upload.BatchSize),
		usecase.WithBatchDelay(cfg.Upload.BatchDelay),
		usecase.WithPollInterval(cfg.Upload.PollInterval),
		usecase.WithMaxPollAttempts(cfg.Upload.MaxPollAttempts),
		usecase.WithMaxPollFailures(cfg.Upload.MaxPollFailures),
		usecase.WithKeepCompleted(cfg.Upload.KeepCompleted),
		usecase.WithCompletionFlags(uploadClient),
		usecase.WithUploadLogger(logging.Component(baseLogger, "upload-queue")),
	)

	hub := websocket.NewHub(uploads.GetAllJobs, logging.Component(baseLogger, "websocket"))
	uploads.Subscribe(hub.Publish)

	recipes := catalog.NewClient(cfg.Catalog.Endpoint, cfg.Catalog.Timeout)
	images := imagestore.NewHTTPStore(cfg.Images.BaseURL, cfg.Images.CacheDir, cfg.Images.Remote, 0)
	queue := usecase.NewImageQueue(images,
		usecase.WithInitialSize(cfg.Queue.InitialSize),
		usecase.WithRefillThreshold(cfg.Queue.RefillThreshold),
		usecase.WithPrefetchBatchSize(cfg.Queue.BatchSize),
		usecase.WithMaxQueueSize(cfg.Queue.MaxSize),
		usecase.WithInjectCooldown(cfg.Queue.InjectCooldown),
		usecase.WithInjectRetry(cfg.Queue.InjectAttempts, cfg.Queue.InjectBaseDelay),
		usecase.WithRand(rand.New(rand.NewSource(time.Now().UnixNano()))),
		usecase.WithQueueLogger(logging.Component(baseLogger, "image-queue")),
	)
	pending := usecase.NewPendingRecipes(recipes, cfg.Candidates.BlockedDomains, logging.Component(baseLogger, "pending"))
	feed := usecase.NewFeed(recipes, queue, pending, logging.Component(baseLogger, "feed"))

	poller := usecase.NewCatalogPoller(
		scheduler.NewTickerScheduler(cfg.Catalog.PollInterval, false),
		feed,
		logging.Component(baseLogger, "catalog-poller"),
	)

	return &Application{
		cfg:        cfg,
		logger:     baseLogger,
		store:      store,
		Uploads:    uploads,
		Feed:       feed,
		Hub:        hub,
		Candidates: imagesearch.NewHTMLCandidateSource(nil, cfg.Candidates.BlockedDomains, 0),
		poller:     poller,
	}, nil
}

// Restore reloads persisted upload jobs.
func (a *Application) Restore(ctx context.Context) error {
	return a.Uploads.Restore(ctx)
}

// PersistedJobs reads the stored job list without resuming any of it.
func (a *Application) PersistedJobs(ctx context.Context) ([]domain.UploadJob, error) {
	if a.store == nil {
		return nil, nil
	}
	return a.store.Load(ctx)
}

// Serve restores the upload queue, starts the swipe feed with catalog
// polling and serves HTTP until ctx is done.
func (a *Application) Serve(ctx context.Context) error {
	if err := a.Restore(ctx); err != nil {
		a.logger.Warn("restore uploads failed", "error", err)
	}

	if err := a.Feed.Start(ctx, usecase.Filter{}); err != nil {
		a.logger.Warn("feed start failed; polling will retry", "error", err)
	}
	if err := a.poller.Start(ctx); err != nil {
		return fmt.Errorf("start catalog poller: %w", err)
	}

	srv := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           NewServer(a.Uploads, a.Hub, a.Feed, logging.Component(a.logger, "http")),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.poller.Stop(shutdownCtx); err != nil {
		a.logger.Warn("stop catalog poller", "error", err)
	}
	a.Hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}

// Close stops background work and releases resources.
func (a *Application) Close() error {
	a.Uploads.Close()
	a.Feed.Queue().Close()
	a.Hub.Close()
	if a.store != nil {
		return a.store.Close()
	}
	return nil
}
