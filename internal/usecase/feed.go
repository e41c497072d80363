package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"RecipeSwipe/internal/domain"
	"RecipeSwipe/internal/logging"
	"RecipeSwipe/internal/ports"
)

// Feed keeps the swipe queue in step with the recipe catalog. New recipes
// are injected near the front; a recipe that still needs an image choice
// takes priority and blocks injection until it is resolved.
type Feed struct {
	service ports.RecipeCatalog
	queue   *ImageQueue
	pending *PendingRecipes
	logger  *slog.Logger

	mu      sync.Mutex
	catalog domain.Catalog
	known   map[string]struct{}
	filter  Filter
}

func NewFeed(service ports.RecipeCatalog, queue *ImageQueue, pending *PendingRecipes, logger *slog.Logger) *Feed {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Feed{
		service: service,
		queue:   queue,
		pending: pending,
		logger:  logger,
		catalog: domain.Catalog{},
		known:   map[string]struct{}{},
	}
}

// Queue returns the image queue driven by the feed.
func (f *Feed) Queue() *ImageQueue { return f.queue }

// Pending returns the modal controller.
func (f *Feed) Pending() *PendingRecipes { return f.pending }

// Catalog returns a copy of the local catalog.
func (f *Feed) Catalog() domain.Catalog {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.catalog.Clone()
}

// Filter returns the active feed filter.
func (f *Feed) Filter() Filter {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.filter
}

// Start loads the catalog and performs the initial fill.
func (f *Feed) Start(ctx context.Context, filter Filter) error {
	catalog, err := f.service.Recipes(ctx)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	f.mu.Lock()
	f.catalog = catalog.Clone()
	f.filter = filter
	f.known = make(map[string]struct{}, len(catalog))
	for key := range catalog {
		f.known[key] = struct{}{}
	}
	f.mu.Unlock()

	if err := f.queue.Load(ctx, catalog, filter); err != nil {
		return fmt.Errorf("initial fill: %w", err)
	}
	f.pending.Detect(catalog, catalog.Keys())
	f.logger.Info("feed started", "recipes", len(catalog), "queued", f.queue.Len())
	return nil
}

// SetFilter refills the queue for a new filter.
func (f *Feed) SetFilter(ctx context.Context, filter Filter) error {
	f.mu.Lock()
	f.filter = filter
	f.mu.Unlock()
	return f.queue.Reset(ctx, filter)
}

// Observe applies a fresh catalog snapshot and returns the keys injected.
func (f *Feed) Observe(ctx context.Context, catalog domain.Catalog) []string {
	f.mu.Lock()
	f.catalog = catalog.Clone()
	for key := range f.known {
		if _, ok := catalog[key]; !ok {
			delete(f.known, key)
		}
	}
	var added []string
	for key := range catalog {
		if _, ok := f.known[key]; !ok {
			added = append(added, key)
		}
	}
	f.mu.Unlock()

	f.queue.SetCatalog(catalog)
	if len(added) == 0 {
		return nil
	}
	sort.Strings(added)

	// New keys wait while the modal is open; they are not marked known so
	// the next pass picks them up.
	if _, open := f.pending.Pending(); open {
		f.logger.Debug("injection deferred while recipe awaits image", "new", len(added))
		return nil
	}
	if p, ok := f.pending.Detect(catalog, added); ok {
		f.markKnown(p.Key)
		return nil
	}

	f.markKnown(added...)
	n := f.queue.Inject(ctx, added)
	f.logger.Info("new recipes observed", "new", len(added), "injected", n)
	return added
}

// ConfirmImage saves the chosen image for the pending recipe, merges the
// result into the catalog and injects the recipe into the queue.
func (f *Feed) ConfirmImage(ctx context.Context, imageURL string) error {
	recipe, err := f.pending.Confirm(ctx, imageURL)
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.catalog[recipe.Key] = recipe
	f.known[recipe.Key] = struct{}{}
	catalog := f.catalog.Clone()
	f.mu.Unlock()

	f.queue.SetCatalog(catalog)
	f.queue.Inject(ctx, []string{recipe.Key})
	f.Observe(ctx, catalog)
	return nil
}

// DeleteRecipe deletes the pending recipe and drops it locally.
func (f *Feed) DeleteRecipe(ctx context.Context) error {
	key, err := f.pending.Delete(ctx)
	if err != nil {
		return err
	}

	f.mu.Lock()
	delete(f.catalog, key)
	delete(f.known, key)
	catalog := f.catalog.Clone()
	f.mu.Unlock()

	f.Observe(ctx, catalog)
	return nil
}

// ResetPending dismisses the modal and resumes injection.
func (f *Feed) ResetPending(ctx context.Context) {
	f.pending.Reset()
	f.Observe(ctx, f.Catalog())
}

// Sync fetches the catalog from the service and observes it.
func (f *Feed) Sync(ctx context.Context) error {
	catalog, err := f.service.Recipes(ctx)
	if err != nil {
		return fmt.Errorf("sync catalog: %w", err)
	}
	f.Observe(ctx, catalog)
	return nil
}

func (f *Feed) markKnown(keys ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, key := range keys {
		f.known[key] = struct{}{}
	}
}
