package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"RecipeSwipe/internal/domain"
	"RecipeSwipe/internal/ports"
)

// FetchBatch resolves keys concurrently. Failed keys are logged and left
// out; successes keep the input order.
func FetchBatch(ctx context.Context, store ports.ImageStore, keys []string, logger *slog.Logger) []*domain.Image {
	return compact(fetchAligned(ctx, store, keys, logger))
}

// fetchAligned returns one slot per key, nil where the fetch failed.
func fetchAligned(ctx context.Context, store ports.ImageStore, keys []string, logger *slog.Logger) []*domain.Image {
	results := make([]*domain.Image, len(keys))
	var wg sync.WaitGroup
	for i, key := range keys {
		wg.Add(1)
		go func() {
			defer wg.Done()
			img, err := store.Fetch(ctx, key)
			if err != nil {
				logger.Debug("image fetch failed", "key", key, "error", err)
				return
			}
			results[i] = img
		}()
	}
	wg.Wait()
	return results
}

// fetchWithRetry retries keys that failed, waiting attempt*baseDelay before
// each retry. Whatever arrived by the last attempt is returned.
func fetchWithRetry(ctx context.Context, store ports.ImageStore, keys []string, attempts int, baseDelay time.Duration, logger *slog.Logger) []*domain.Image {
	keys = uniqueKeys(keys)
	got := make([]*domain.Image, len(keys))
	for attempt := 0; attempt < attempts; attempt++ {
		var missing []int
		for i := range keys {
			if got[i] == nil {
				missing = append(missing, i)
			}
		}
		if len(missing) == 0 {
			break
		}
		if attempt > 0 {
			logger.Debug("retrying image fetch", "attempt", attempt+1, "missing", len(missing))
			if err := sleepContext(ctx, time.Duration(attempt)*baseDelay); err != nil {
				break
			}
		}

		batch := make([]string, len(missing))
		for j, i := range missing {
			batch[j] = keys[i]
		}
		for j, img := range fetchAligned(ctx, store, batch, logger) {
			got[missing[j]] = img
		}
	}
	return compact(got)
}

func compact(images []*domain.Image) []*domain.Image {
	out := make([]*domain.Image, 0, len(images))
	for _, img := range images {
		if img != nil {
			out = append(out, img)
		}
	}
	return out
}

func uniqueKeys(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out
}
