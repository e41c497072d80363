package usecase

import (
	"math/rand"
	"strings"

	"RecipeSwipe/internal/domain"
)

// Filter narrows the catalog shown in the swipe feed. Zero value matches all.
type Filter struct {
	MealTypes []string
	Query     string
}

// Match reports whether the recipe passes the filter.
func (f Filter) Match(r domain.Recipe) bool {
	if q := strings.TrimSpace(f.Query); q != "" {
		if !strings.Contains(strings.ToLower(r.Title), strings.ToLower(q)) {
			return false
		}
	}
	if len(f.MealTypes) == 0 {
		return true
	}
	for _, want := range f.MealTypes {
		for _, have := range r.MealTypes {
			if strings.EqualFold(want, have) {
				return true
			}
		}
	}
	return false
}

// BuildKeyPool returns the shuffled keys of displayable recipes matching
// filter. Keys in seen are moved behind unseen ones so fresh content
// surfaces first.
func BuildKeyPool(catalog domain.Catalog, filter Filter, seen map[string]struct{}, rng *rand.Rand) []string {
	keys := make([]string, 0, len(catalog))
	// Sorted input keeps the shuffle reproducible for a seeded rng.
	for _, key := range catalog.Keys() {
		recipe := catalog[key]
		if recipe.PendingImageSelection() || !filter.Match(recipe) {
			continue
		}
		keys = append(keys, key)
	}

	rng.Shuffle(len(keys), func(i, j int) {
		keys[i], keys[j] = keys[j], keys[i]
	})

	if len(seen) == 0 {
		return keys
	}
	fresh := make([]string, 0, len(keys))
	var stale []string
	for _, key := range keys {
		if _, ok := seen[key]; ok {
			stale = append(stale, key)
			continue
		}
		fresh = append(fresh, key)
	}
	return append(fresh, stale...)
}
