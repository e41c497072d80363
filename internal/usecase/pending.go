package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"RecipeSwipe/internal/domain"
	"RecipeSwipe/internal/logging"
	"RecipeSwipe/internal/ports"
)

// PendingState is the state of the image selection modal.
type PendingState int

const (
	PendingIdle PendingState = iota
	PendingAwaitingSelection
)

func (s PendingState) String() string {
	if s == PendingAwaitingSelection {
		return "awaiting-selection"
	}
	return "idle"
}

// PendingRecipe is a recipe whose image must be chosen by the user.
type PendingRecipe struct {
	Key        string
	Recipe     domain.Recipe
	Candidates []string
}

// PendingRecipes holds the single pending-recipe slot and guards the modal
// actions against re-entry.
type PendingRecipes struct {
	catalog ports.RecipeCatalog
	blocked []string
	logger  *slog.Logger

	mu       sync.Mutex
	pending  *PendingRecipe
	inFlight map[string]bool
	status   string
}

func NewPendingRecipes(catalog ports.RecipeCatalog, blocked []string, logger *slog.Logger) *PendingRecipes {
	if logger == nil {
		logger = logging.Discard()
	}
	return &PendingRecipes{
		catalog:  catalog,
		blocked:  blocked,
		logger:   logger,
		inFlight: map[string]bool{},
	}
}

// Detect surfaces the first recipe among keys that awaits image selection.
// It reports false when nothing is pending or a recipe is already shown.
func (p *PendingRecipes) Detect(catalog domain.Catalog, keys []string) (PendingRecipe, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending != nil {
		return PendingRecipe{}, false
	}
	for _, key := range keys {
		recipe, ok := catalog[key]
		if !ok || !recipe.PendingImageSelection() {
			continue
		}
		recipe = recipe.Clone()
		recipe.Key = key
		p.pending = &PendingRecipe{
			Key:        key,
			Recipe:     recipe,
			Candidates: FilterCandidates(recipe.ImageSearchResults, p.blocked),
		}
		p.status = ""
		p.logger.Info("recipe awaiting image selection", "key", key, "candidates", len(p.pending.Candidates))
		return p.clonePendingLocked(), true
	}
	return PendingRecipe{}, false
}

// Pending returns the recipe shown in the modal.
func (p *PendingRecipes) Pending() (PendingRecipe, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending == nil {
		return PendingRecipe{}, false
	}
	return p.clonePendingLocked(), true
}

func (p *PendingRecipes) State() PendingState {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending == nil {
		return PendingIdle
	}
	return PendingAwaitingSelection
}

// Status is the transient message of the last modal action.
func (p *PendingRecipes) Status() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Confirm stores imageURL as the pending recipe's image. On failure the
// recipe stays pending so the user can retry.
func (p *PendingRecipes) Confirm(ctx context.Context, imageURL string) (domain.Recipe, error) {
	key, err := p.begin(MsgSaving)
	if err != nil {
		return domain.Recipe{}, err
	}

	recipe, err := p.catalog.SelectImage(ctx, key, imageURL)
	if err != nil {
		p.fail(key, err)
		return domain.Recipe{}, fmt.Errorf("select image for %s: %w", key, err)
	}
	recipe.Key = key
	if recipe.ImageURL == "" {
		recipe.ImageURL = imageURL
	}
	p.succeed(key, MsgSaved)
	p.logger.Info("recipe image selected", "key", key)
	return recipe, nil
}

// Delete removes the pending recipe from the catalog service and returns
// its key.
func (p *PendingRecipes) Delete(ctx context.Context) (string, error) {
	key, err := p.begin(MsgDeleting)
	if err != nil {
		return "", err
	}

	if err := p.catalog.Delete(ctx, key); err != nil {
		p.fail(key, err)
		return "", fmt.Errorf("delete recipe %s: %w", key, err)
	}
	p.succeed(key, MsgDeleted)
	p.logger.Info("pending recipe deleted", "key", key)
	return key, nil
}

// Reset dismisses the modal without touching the recipe.
func (p *PendingRecipes) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = nil
	p.status = ""
}

func (p *PendingRecipes) begin(status string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending == nil {
		return "", domain.ErrNoPendingRecipe
	}
	key := p.pending.Key
	if p.inFlight[key] {
		return "", fmt.Errorf("recipe %s: %w", key, domain.ErrBusy)
	}
	p.inFlight[key] = true
	p.status = status
	return key, nil
}

func (p *PendingRecipes) fail(key string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inFlight, key)
	if p.pending != nil && p.pending.Key == key {
		p.status = FriendlyMessage(err)
	}
	p.logger.Warn("pending recipe action failed", "key", key, "error", err)
}

func (p *PendingRecipes) succeed(key, status string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inFlight, key)
	if p.pending != nil && p.pending.Key == key {
		p.pending = nil
		p.status = status
	}
}

func (p *PendingRecipes) clonePendingLocked() PendingRecipe {
	out := *p.pending
	out.Recipe = p.pending.Recipe.Clone()
	out.Candidates = append([]string(nil), p.pending.Candidates...)
	return out
}
