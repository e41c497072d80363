package usecase

import (
	"context"
	"log/slog"
	"time"

	"RecipeSwipe/internal/logging"
	"RecipeSwipe/internal/ports"
)

// CatalogPoller wires a recurring driver with the feed catalog sync.
type CatalogPoller struct {
	driver ports.Scheduler
	feed   *Feed
	logger *slog.Logger
}

// NewCatalogPoller returns a helper to start/stop catalog polling.
func NewCatalogPoller(driver ports.Scheduler, feed *Feed, logger *slog.Logger) *CatalogPoller {
	if logger == nil {
		logger = logging.Discard()
	}
	return &CatalogPoller{driver: driver, feed: feed, logger: logger}
}

// Start registers the sync with the provided scheduler.
func (p *CatalogPoller) Start(ctx context.Context) error {
	if p.driver == nil || p.feed == nil {
		return nil
	}

	job := func(trigger time.Time) {
		if err := p.feed.Sync(ctx); err != nil {
			p.logger.Warn("catalog sync failed", "trigger", trigger, "error", err)
		}
	}

	return p.driver.Start(ctx, job)
}

// Stop tears down the underlying scheduler.
func (p *CatalogPoller) Stop(ctx context.Context) error {
	if p.driver == nil {
		return nil
	}

	return p.driver.Stop(ctx)
}
