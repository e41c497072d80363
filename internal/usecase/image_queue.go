package usecase

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"RecipeSwipe/internal/domain"
	"RecipeSwipe/internal/logging"
	"RecipeSwipe/internal/ports"
)

const (
	defaultInitialSize     = 15
	defaultRefillThreshold = 8
	defaultPrefetchBatch   = 5
	defaultMaxQueueSize    = 30
	defaultInjectCooldown  = 2 * time.Second
	defaultInjectAttempts  = 3
	defaultInjectBaseDelay = time.Second
	initialFillBatches     = 3
	injectOffset           = 2
)

// ImageOption customises an ImageQueue.
type ImageOption func(*ImageQueue)

func WithInitialSize(n int) ImageOption {
	return func(q *ImageQueue) {
		if n > 0 {
			q.initialSize = n
		}
	}
}

func WithRefillThreshold(n int) ImageOption {
	return func(q *ImageQueue) {
		if n >= 0 {
			q.refillThreshold = n
		}
	}
}

func WithPrefetchBatchSize(n int) ImageOption {
	return func(q *ImageQueue) {
		if n > 0 {
			q.batchSize = n
		}
	}
}

func WithMaxQueueSize(n int) ImageOption {
	return func(q *ImageQueue) {
		if n > 0 {
			q.maxSize = n
		}
	}
}

// WithInjectCooldown sets how long after an injection ordinary refills are
// skipped.
func WithInjectCooldown(d time.Duration) ImageOption {
	return func(q *ImageQueue) {
		if d >= 0 {
			q.injectCooldown = d
		}
	}
}

// WithInjectRetry sets the attempt budget and linear backoff step used when
// fetching injected keys.
func WithInjectRetry(attempts int, baseDelay time.Duration) ImageOption {
	return func(q *ImageQueue) {
		if attempts > 0 {
			q.injectAttempts = attempts
		}
		if baseDelay >= 0 {
			q.injectBaseDelay = baseDelay
		}
	}
}

func WithQueueLogger(logger *slog.Logger) ImageOption {
	return func(q *ImageQueue) {
		if logger != nil {
			q.logger = logger
		}
	}
}

// WithRand fixes the shuffle source.
func WithRand(rng *rand.Rand) ImageOption {
	return func(q *ImageQueue) {
		if rng != nil {
			q.rng = rng
		}
	}
}

func WithClock(now func() time.Time) ImageOption {
	return func(q *ImageQueue) {
		if now != nil {
			q.now = now
		}
	}
}

// ImageQueue keeps a window of prefetched recipe images for the swipe feed.
// The head is on screen, the second entry is preloaded behind it.
type ImageQueue struct {
	store  ports.ImageStore
	logger *slog.Logger

	initialSize     int
	refillThreshold int
	batchSize       int
	maxSize         int
	injectCooldown  time.Duration
	injectAttempts  int
	injectBaseDelay time.Duration
	now             func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	rng        *rand.Rand
	catalog    domain.Catalog
	filter     Filter
	queue      []*domain.Image
	pool       []string
	seen       map[string]struct{}
	loading    bool
	refilling  bool
	lastInject time.Time
	// generation changes on reset; fetches started under an older one are discarded.
	generation int
}

func NewImageQueue(store ports.ImageStore, opts ...ImageOption) *ImageQueue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &ImageQueue{
		store:           store,
		logger:          logging.Discard(),
		initialSize:     defaultInitialSize,
		refillThreshold: defaultRefillThreshold,
		batchSize:       defaultPrefetchBatch,
		maxSize:         defaultMaxQueueSize,
		injectCooldown:  defaultInjectCooldown,
		injectAttempts:  defaultInjectAttempts,
		injectBaseDelay: defaultInjectBaseDelay,
		now:             time.Now,
		ctx:             ctx,
		cancel:          cancel,
		rng:             rand.New(rand.NewSource(time.Now().UnixNano())),
		catalog:         domain.Catalog{},
		seen:            map[string]struct{}{},
		loading:         true,
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

// Load performs the initial fill from catalog.
func (q *ImageQueue) Load(ctx context.Context, catalog domain.Catalog, filter Filter) error {
	q.mu.Lock()
	q.catalog = catalog.Clone()
	q.filter = filter
	stale := q.queue
	q.queue = nil
	q.pool = nil
	q.loading = true
	q.generation++
	gen := q.generation
	q.mu.Unlock()

	releaseAll(stale, q.logger)
	return q.fill(ctx, gen)
}

// Reset drops every entry and the seen set, then fills again with filter.
func (q *ImageQueue) Reset(ctx context.Context, filter Filter) error {
	q.mu.Lock()
	stale := q.queue
	q.queue = nil
	q.pool = nil
	q.seen = map[string]struct{}{}
	q.lastInject = time.Time{}
	q.filter = filter
	q.loading = true
	q.generation++
	gen := q.generation
	q.mu.Unlock()

	q.logger.Info("image queue reset", "meal_types", filter.MealTypes, "query", filter.Query)
	releaseAll(stale, q.logger)
	return q.fill(ctx, gen)
}

func (q *ImageQueue) fill(ctx context.Context, gen int) error {
	q.mu.Lock()
	q.pool = BuildKeyPool(q.catalog, q.filter, q.seen, q.rng)
	target := min(q.initialSize, len(q.pool))
	keys := append([]string(nil), q.pool[:target]...)
	// Attempted keys leave the pool even if their fetch fails.
	q.pool = q.pool[target:]
	q.mu.Unlock()

	batches := splitKeys(keys, initialFillBatches)
	results := make([][]*domain.Image, len(batches))
	var g errgroup.Group
	for i, batch := range batches {
		g.Go(func() error {
			results[i] = FetchBatch(ctx, q.store, batch, q.logger)
			return nil
		})
	}
	_ = g.Wait()

	var combined []*domain.Image
	for _, batch := range results {
		combined = append(combined, batch...)
	}

	q.mu.Lock()
	if gen != q.generation {
		q.mu.Unlock()
		releaseAll(combined, q.logger)
		return ctx.Err()
	}
	// Entries injected while the fill was in flight stay in front.
	present := make(map[string]struct{}, len(q.queue))
	for _, img := range q.queue {
		present[img.Key] = struct{}{}
	}
	var discarded []*domain.Image
	for _, img := range combined {
		if _, dup := present[img.Key]; dup || len(q.queue) >= q.maxSize {
			discarded = append(discarded, img)
			continue
		}
		present[img.Key] = struct{}{}
		q.queue = append(q.queue, img)
	}
	q.loading = false
	size := len(q.queue)
	q.mu.Unlock()

	q.logger.Info("image queue filled", "requested", len(keys), "loaded", size)
	releaseAll(discarded, q.logger)
	q.maybeRefill()
	return ctx.Err()
}

// SetCatalog replaces the catalog used when the key pool is rebuilt.
func (q *ImageQueue) SetCatalog(catalog domain.Catalog) {
	q.mu.Lock()
	q.catalog = catalog.Clone()
	q.mu.Unlock()
}

// Current returns the entry on screen, or nil.
func (q *ImageQueue) Current() *domain.Image {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.queue) == 0 {
		return nil
	}
	return q.queue[0]
}

// Next returns the entry behind the current one, or nil.
func (q *ImageQueue) Next() *domain.Image {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.queue) < 2 {
		return nil
	}
	return q.queue[1]
}

// Loading is true until the initial fill completes.
func (q *ImageQueue) Loading() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.loading
}

func (q *ImageQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queue)
}

// Keys returns the recipe keys in queue order.
func (q *ImageQueue) Keys() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	keys := make([]string, len(q.queue))
	for i, img := range q.queue {
		keys[i] = img.Key
	}
	return keys
}

// Advance pops the head, releases it and marks its recipe as seen.
func (q *ImageQueue) Advance() {
	q.mu.Lock()
	if len(q.queue) == 0 {
		q.mu.Unlock()
		return
	}
	head := q.queue[0]
	q.queue[0] = nil
	q.queue = q.queue[1:]
	q.seen[head.Key] = struct{}{}
	q.mu.Unlock()

	release(head, q.logger)
	q.maybeRefill()
}

// Inject fetches keys and places them right behind the current and next
// entries. It returns how many entries were inserted.
func (q *ImageQueue) Inject(ctx context.Context, keys []string) int {
	if len(keys) == 0 {
		return 0
	}
	q.mu.Lock()
	gen := q.generation
	q.mu.Unlock()

	images := fetchWithRetry(ctx, q.store, keys, q.injectAttempts, q.injectBaseDelay, q.logger)

	q.mu.Lock()
	if gen != q.generation {
		q.mu.Unlock()
		releaseAll(images, q.logger)
		return 0
	}

	present := make(map[string]struct{}, len(q.queue))
	for _, img := range q.queue {
		present[img.Key] = struct{}{}
	}
	var fresh, discarded []*domain.Image
	for _, img := range images {
		if _, dup := present[img.Key]; dup {
			discarded = append(discarded, img)
			continue
		}
		present[img.Key] = struct{}{}
		fresh = append(fresh, img)
	}

	pos := min(injectOffset, len(q.queue))
	queue := make([]*domain.Image, 0, len(q.queue)+len(fresh))
	queue = append(queue, q.queue[:pos]...)
	queue = append(queue, fresh...)
	queue = append(queue, q.queue[pos:]...)
	if len(queue) > q.maxSize {
		discarded = append(discarded, queue[q.maxSize:]...)
		queue = queue[:q.maxSize]
	}
	q.queue = queue
	if len(q.queue) > 0 {
		q.loading = false
	}
	q.lastInject = q.now()
	q.pool = removeKeys(q.pool, fresh)
	q.mu.Unlock()

	q.logger.Info("recipes injected", "requested", len(keys), "inserted", len(fresh), "discarded", len(discarded))
	releaseAll(discarded, q.logger)
	return len(fresh)
}

// Wait blocks until background refills have finished.
func (q *ImageQueue) Wait() {
	q.wg.Wait()
}

// Close stops background refills and releases every entry.
func (q *ImageQueue) Close() {
	q.cancel()
	q.wg.Wait()

	q.mu.Lock()
	stale := q.queue
	q.queue = nil
	q.mu.Unlock()
	releaseAll(stale, q.logger)
}

// maybeRefill starts a background refill when the queue ran low. Recent
// injections defer it unless the queue is empty.
func (q *ImageQueue) maybeRefill() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.refilling || q.loading || q.ctx.Err() != nil {
		return
	}
	size := len(q.queue)
	if size > q.refillThreshold {
		return
	}
	if size > 0 && !q.lastInject.IsZero() && q.now().Sub(q.lastInject) < q.injectCooldown {
		q.logger.Debug("refill skipped after injection", "queue", size)
		return
	}
	q.refilling = true
	q.wg.Add(1)
	go q.refill(q.generation)
}

func (q *ImageQueue) refill(gen int) {
	defer q.wg.Done()

	q.mu.Lock()
	if len(q.pool) == 0 {
		q.pool = BuildKeyPool(q.catalog, q.filter, q.seen, q.rng)
		q.pool = removeKeys(q.pool, q.queue)
		q.logger.Debug("key pool rebuilt", "size", len(q.pool))
	}
	n := min(q.batchSize, len(q.pool))
	keys := append([]string(nil), q.pool[:n]...)
	q.pool = q.pool[n:]
	q.mu.Unlock()

	var images []*domain.Image
	if len(keys) > 0 {
		images = FetchBatch(q.ctx, q.store, keys, q.logger)
	}

	q.mu.Lock()
	q.refilling = false
	if gen != q.generation {
		q.mu.Unlock()
		releaseAll(images, q.logger)
		return
	}
	present := make(map[string]struct{}, len(q.queue))
	for _, img := range q.queue {
		present[img.Key] = struct{}{}
	}
	var discarded []*domain.Image
	appended := 0
	for _, img := range images {
		if _, dup := present[img.Key]; dup || len(q.queue) >= q.maxSize {
			discarded = append(discarded, img)
			continue
		}
		present[img.Key] = struct{}{}
		q.queue = append(q.queue, img)
		appended++
	}
	size := len(q.queue)
	poolLeft := len(q.pool)
	q.mu.Unlock()

	q.logger.Debug("image queue refilled", "requested", len(keys), "appended", appended, "queue", size)
	releaseAll(discarded, q.logger)
	// An empty queue keeps drawing from the pool until it is exhausted.
	if appended > 0 || (size == 0 && poolLeft > 0) {
		q.maybeRefill()
	}
}

// splitKeys divides keys into at most n contiguous parts of near equal size.
func splitKeys(keys []string, n int) [][]string {
	if len(keys) == 0 {
		return nil
	}
	n = min(n, len(keys))
	parts := make([][]string, 0, n)
	size, extra := len(keys)/n, len(keys)%n
	start := 0
	for i := 0; i < n; i++ {
		end := start + size
		if i < extra {
			end++
		}
		parts = append(parts, keys[start:end])
		start = end
	}
	return parts
}

func removeKeys(pool []string, images []*domain.Image) []string {
	if len(images) == 0 {
		return pool
	}
	drop := make(map[string]struct{}, len(images))
	for _, img := range images {
		drop[img.Key] = struct{}{}
	}
	out := pool[:0:0]
	for _, key := range pool {
		if _, ok := drop[key]; !ok {
			out = append(out, key)
		}
	}
	return out
}

func release(img *domain.Image, logger *slog.Logger) {
	if err := img.Release(); err != nil {
		logger.Debug("image release failed", "key", img.Key, "error", err)
	}
}

func releaseAll(images []*domain.Image, logger *slog.Logger) {
	for _, img := range images {
		release(img, logger)
	}
}
