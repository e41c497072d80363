package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"RecipeSwipe/internal/domain"
	"RecipeSwipe/internal/logging"
	"RecipeSwipe/internal/ports"
)

const (
	defaultUploadBatchSize  = 10
	defaultBatchDelay       = 100 * time.Millisecond
	defaultPollInterval     = 2 * time.Second
	defaultMaxPollAttempts  = 150
	defaultMaxPollFailures  = 5
	defaultKeepCompleted    = 10
	cancelledErrorTitle     = "Cancelled"
	interruptedErrorTitle   = "Interrupted"
	batchErrorTitleTemplate = "Batch %d"
)

// UploadOption customises an UploadQueue.
type UploadOption func(*UploadQueue)

func WithBatchSize(n int) UploadOption {
	return func(q *UploadQueue) {
		if n > 0 {
			q.batchSize = n
		}
	}
}

func WithBatchDelay(d time.Duration) UploadOption {
	return func(q *UploadQueue) {
		if d >= 0 {
			q.batchDelay = d
		}
	}
}

func WithPollInterval(d time.Duration) UploadOption {
	return func(q *UploadQueue) {
		if d > 0 {
			q.pollInterval = d
		}
	}
}

func WithMaxPollAttempts(n int) UploadOption {
	return func(q *UploadQueue) {
		if n > 0 {
			q.maxPollAttempts = n
		}
	}
}

func WithMaxPollFailures(n int) UploadOption {
	return func(q *UploadQueue) {
		if n > 0 {
			q.maxPollFailures = n
		}
	}
}

// WithKeepCompleted bounds how many terminal jobs are persisted.
func WithKeepCompleted(n int) UploadOption {
	return func(q *UploadQueue) {
		if n >= 0 {
			q.keepCompleted = n
		}
	}
}

func WithUploadLogger(logger *slog.Logger) UploadOption {
	return func(q *UploadQueue) {
		if logger != nil {
			q.logger = logger
		}
	}
}

// WithCompletionFlags lets Restore resolve jobs interrupted mid-processing.
func WithCompletionFlags(flags ports.CompletionFlags) UploadOption {
	return func(q *UploadQueue) {
		q.flags = flags
	}
}

// UploadQueue accepts upload jobs and drains them one at a time against
// the OCR backend. Subscribers get a copy of a job on every state change.
type UploadQueue struct {
	backend ports.UploadBackend
	store   ports.JobStore
	flags   ports.CompletionFlags
	logger  *slog.Logger

	batchSize       int
	batchDelay      time.Duration
	pollInterval    time.Duration
	maxPollAttempts int
	maxPollFailures int
	keepCompleted   int
	now             func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	jobs        []*domain.UploadJob
	byID        map[string]*domain.UploadJob
	done        map[string]chan struct{}
	current     string
	processing  bool
	subscribers map[int]func(domain.UploadJob)
	nextSubID   int
	// events holds snapshots in the order the changes happened; a single
	// dispatcher delivers them.
	events     []jobEvent
	wake       chan struct{}
	dispatched chan struct{}
	stopped    bool

	persistCh chan []domain.UploadJob
	persisted chan struct{}
}

type jobEvent struct {
	job    domain.UploadJob
	all    []domain.UploadJob
	finish bool
}

// NewUploadQueue builds a queue. store may be nil to disable persistence.
func NewUploadQueue(backend ports.UploadBackend, store ports.JobStore, opts ...UploadOption) *UploadQueue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &UploadQueue{
		backend:         backend,
		store:           store,
		logger:          logging.Discard(),
		batchSize:       defaultUploadBatchSize,
		batchDelay:      defaultBatchDelay,
		pollInterval:    defaultPollInterval,
		maxPollAttempts: defaultMaxPollAttempts,
		maxPollFailures: defaultMaxPollFailures,
		keepCompleted:   defaultKeepCompleted,
		now:             time.Now,
		ctx:             ctx,
		cancel:          cancel,
		byID:            map[string]*domain.UploadJob{},
		done:            map[string]chan struct{}{},
		subscribers:     map[int]func(domain.UploadJob){},
		wake:            make(chan struct{}, 1),
		dispatched:      make(chan struct{}),
		persistCh:       make(chan []domain.UploadJob, 1),
		persisted:       make(chan struct{}),
	}
	for _, o := range opts {
		o(q)
	}
	go q.dispatchLoop()
	if q.store != nil {
		go q.persistLoop()
	} else {
		close(q.persisted)
	}
	return q
}

// QueueUpload registers a pending job and makes sure a processing loop is
// running. It never blocks on the network or on subscribers.
func (q *UploadQueue) QueueUpload(files []domain.UploadFile, chunk *domain.ChunkInfo) string {
	job := &domain.UploadJob{
		ID:        uuid.NewString(),
		Files:     append([]domain.UploadFile(nil), files...),
		Status:    domain.JobPending,
		Progress:  domain.Progress{Total: len(files)},
		Errors:    []domain.UploadError{},
		Timestamp: q.now(),
	}
	if chunk != nil {
		ci := *chunk
		job.ChunkInfo = &ci
	}

	q.mu.Lock()
	q.addLocked(job)
	q.notifyLocked(job.ID, false)
	start := q.claimLoopLocked()
	q.mu.Unlock()

	q.logger.Info("upload queued", "job_id", job.ID, "files", len(files))
	if start {
		go q.processQueue()
	}
	return job.ID
}

// GetJob returns a copy of the job.
func (q *UploadQueue) GetJob(id string) (domain.UploadJob, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.byID[id]
	if !ok {
		return domain.UploadJob{}, false
	}
	return job.Clone(), true
}

// GetAllJobs returns copies of every job in insertion order.
func (q *UploadQueue) GetAllJobs() []domain.UploadJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.snapshotLocked()
}

// GetCurrentJob returns the job being processed, if any.
func (q *UploadQueue) GetCurrentJob() (domain.UploadJob, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.current == "" {
		return domain.UploadJob{}, false
	}
	return q.byID[q.current].Clone(), true
}

// Subscribe registers fn for job updates and returns an unsubscribe func.
func (q *UploadQueue) Subscribe(fn func(domain.UploadJob)) func() {
	q.mu.Lock()
	id := q.nextSubID
	q.nextSubID++
	q.subscribers[id] = fn
	q.mu.Unlock()

	return func() {
		q.mu.Lock()
		delete(q.subscribers, id)
		q.mu.Unlock()
	}
}

// CancelJob fails a job that has not been picked up yet. In-flight and
// finished jobs are left untouched.
func (q *UploadQueue) CancelJob(id string) bool {
	q.mu.Lock()
	job, ok := q.byID[id]
	if !ok || job.Status != domain.JobPending {
		q.mu.Unlock()
		return false
	}
	job.Status = domain.JobError
	job.Errors = append(job.Errors, domain.UploadError{
		File:   -1,
		Title:  cancelledErrorTitle,
		Reason: "upload cancelled before processing started",
	})
	q.notifyLocked(id, true)
	q.mu.Unlock()

	q.logger.Info("upload cancelled", "job_id", id)
	return true
}

// Wait blocks until the job is terminal or ctx is done.
func (q *UploadQueue) Wait(ctx context.Context, id string) (domain.UploadJob, error) {
	q.mu.Lock()
	ch, ok := q.done[id]
	q.mu.Unlock()
	if !ok {
		return domain.UploadJob{}, fmt.Errorf("job %s: %w", id, domain.ErrNotFound)
	}

	select {
	case <-ch:
	case <-ctx.Done():
		return domain.UploadJob{}, ctx.Err()
	}
	job, _ := q.GetJob(id)
	return job, nil
}

// Restore loads persisted jobs. Pending jobs are processed again; jobs that
// were mid-processing are resolved from their completion flag, or failed.
func (q *UploadQueue) Restore(ctx context.Context) error {
	if q.store == nil {
		return nil
	}
	jobs, err := q.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load jobs: %w", err)
	}

	for i := range jobs {
		job := jobs[i].Clone()
		interrupted := job.Status == domain.JobProcessing
		if interrupted {
			q.resolveInterrupted(ctx, &job)
		}

		q.mu.Lock()
		if _, exists := q.byID[job.ID]; exists {
			q.mu.Unlock()
			continue
		}
		q.addLocked(&job)
		switch {
		case interrupted:
			q.notifyLocked(job.ID, true)
		case job.Status.Terminal():
			q.finishLocked(job.ID)
		}
		q.mu.Unlock()
	}

	q.mu.Lock()
	start := q.hasPendingLocked() && q.claimLoopLocked()
	q.mu.Unlock()

	q.logger.Info("upload jobs restored", "count", len(jobs))
	if start {
		go q.processQueue()
	}
	return nil
}

// Close stops background work. In-flight calls observe cancellation and
// snapshots already queued are still delivered.
func (q *UploadQueue) Close() {
	q.cancel()
	<-q.dispatched
	<-q.persisted
}

func (q *UploadQueue) resolveInterrupted(ctx context.Context, job *domain.UploadJob) {
	if q.flags != nil {
		res, err := q.flags.CompletionFlag(ctx, job.ID)
		if err != nil {
			q.logger.Warn("completion flag lookup failed", "job_id", job.ID, "error", err)
		}
		if res != nil {
			job.Result = res
			job.Progress.Completed = res.SuccessCount
			job.Progress.Failed = res.FailCount
			job.Errors = append(job.Errors, res.Errors...)
			job.Status = domain.JobCompleted
			if job.Progress.Failed > 0 {
				job.Status = domain.JobError
			}
			if err := q.flags.DeleteCompletionFlag(ctx, job.ID); err != nil {
				q.logger.Warn("completion flag delete failed", "job_id", job.ID, "error", err)
			}
			return
		}
	}
	job.Status = domain.JobError
	job.Errors = append(job.Errors, domain.UploadError{
		File:   -1,
		Title:  interruptedErrorTitle,
		Reason: "processing was interrupted before the backend reported a result",
	})
}

func (q *UploadQueue) addLocked(job *domain.UploadJob) {
	q.jobs = append(q.jobs, job)
	q.byID[job.ID] = job
	q.done[job.ID] = make(chan struct{})
}

func (q *UploadQueue) finishLocked(id string) {
	if ch, ok := q.done[id]; ok {
		select {
		case <-ch:
		default:
			close(ch)
		}
	}
}

// claimLoopLocked marks the processing loop as running and reports whether
// the caller must start it.
func (q *UploadQueue) claimLoopLocked() bool {
	if q.processing {
		return false
	}
	q.processing = true
	return true
}

func (q *UploadQueue) hasPendingLocked() bool {
	for _, job := range q.jobs {
		if job.Status == domain.JobPending {
			return true
		}
	}
	return false
}

func (q *UploadQueue) snapshotLocked() []domain.UploadJob {
	out := make([]domain.UploadJob, 0, len(q.jobs))
	for _, job := range q.jobs {
		out = append(out, job.Clone())
	}
	return out
}

func (q *UploadQueue) processQueue() {
	for {
		q.mu.Lock()
		var job *domain.UploadJob
		for _, candidate := range q.jobs {
			if candidate.Status == domain.JobPending {
				job = candidate
				break
			}
		}
		if job == nil {
			q.processing = false
			q.current = ""
			q.mu.Unlock()
			return
		}
		job.Status = domain.JobProcessing
		q.current = job.ID
		q.notifyLocked(job.ID, false)
		q.mu.Unlock()

		q.processJob(job)

		q.mu.Lock()
		q.current = ""
		q.mu.Unlock()
	}
}

func (q *UploadQueue) processJob(job *domain.UploadJob) {
	// Files are immutable after creation and are read without the lock.
	batches := splitBatches(job.Files, q.batchSize)
	aggregate := domain.UploadResult{
		JobID:         job.ID,
		JSONData:      map[string]domain.Recipe{},
		NewRecipeKeys: []string{},
		Errors:        []domain.UploadError{},
	}

	q.logger.Info("processing upload", "job_id", job.ID, "files", len(job.Files), "batches", len(batches))
	for i, batch := range batches {
		if i > 0 {
			_ = sleepContext(q.ctx, q.batchDelay)
		}

		res, err := q.uploadBatch(q.ctx, job.ID, batch)

		q.mu.Lock()
		if err != nil {
			job.Progress.Failed += len(batch)
			job.Errors = append(job.Errors, domain.UploadError{
				File:   i * q.batchSize,
				Title:  fmt.Sprintf(batchErrorTitleTemplate, i+1),
				Reason: err.Error(),
			})
		} else {
			aggregate.Merge(res)
			job.Progress.Completed += res.SuccessCount
			job.Progress.Failed += res.FailCount
			job.Errors = append(job.Errors, res.Errors...)
		}
		q.notifyLocked(job.ID, false)
		q.mu.Unlock()

		if err != nil {
			q.logger.Warn("upload batch failed", "job_id", job.ID, "batch", i+1, "files", len(batch), "error", err)
		} else {
			q.logger.Info("upload batch done", "job_id", job.ID, "batch", i+1, "success", res.SuccessCount, "failed", res.FailCount)
		}
	}

	q.mu.Lock()
	job.Result = &aggregate
	if job.Progress.Failed == 0 {
		job.Status = domain.JobCompleted
	} else {
		job.Status = domain.JobError
	}
	status := job.Status
	q.notifyLocked(job.ID, true)
	q.mu.Unlock()

	q.logger.Info("upload finished", "job_id", job.ID, "status", status)
}

func (q *UploadQueue) uploadBatch(ctx context.Context, jobID string, batch []domain.UploadFile) (domain.UploadResult, error) {
	sub, err := q.backend.Submit(ctx, jobID, batch)
	if err != nil {
		return domain.UploadResult{}, fmt.Errorf("submit batch: %w", err)
	}
	if !sub.Accepted {
		if sub.Result == nil {
			return domain.UploadResult{JobID: jobID}, nil
		}
		return *sub.Result, nil
	}
	return q.pollStatus(ctx, jobID)
}

func (q *UploadQueue) pollStatus(ctx context.Context, jobID string) (domain.UploadResult, error) {
	failures := 0
	for attempt := 1; attempt <= q.maxPollAttempts; attempt++ {
		if err := sleepContext(ctx, q.pollInterval); err != nil {
			return domain.UploadResult{}, err
		}

		report, err := q.backend.Status(ctx, jobID)
		if err != nil {
			failures++
			q.logger.Debug("status poll failed", "job_id", jobID, "attempt", attempt, "failures", failures, "error", err)
			if failures >= q.maxPollFailures {
				return domain.UploadResult{}, fmt.Errorf("%w: %d consecutive status failures: %v", domain.ErrPollTimeout, failures, err)
			}
			continue
		}
		failures = 0

		switch report.Status {
		case domain.RemoteCompleted:
			return report.Result(jobID), nil
		case domain.RemoteError:
			if report.Error == "" {
				return domain.UploadResult{}, errors.New("backend reported processing error")
			}
			return domain.UploadResult{}, errors.New(report.Error)
		}
	}
	return domain.UploadResult{}, fmt.Errorf("%w after %d attempts", domain.ErrPollTimeout, q.maxPollAttempts)
}

// notifyLocked records a snapshot of the job for the dispatcher. It must be
// called in the same critical section as the change it reports. finish
// releases waiters once the snapshot has been delivered.
func (q *UploadQueue) notifyLocked(id string, finish bool) {
	job, ok := q.byID[id]
	if !ok {
		return
	}
	if q.stopped {
		if finish {
			q.finishLocked(id)
		}
		return
	}
	q.events = append(q.events, jobEvent{
		job:    job.Clone(),
		all:    RetainJobs(q.snapshotLocked(), q.keepCompleted),
		finish: finish,
	})
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *UploadQueue) dispatchLoop() {
	defer close(q.dispatched)
	for {
		select {
		case <-q.wake:
			q.dispatchPending()
		case <-q.ctx.Done():
			q.mu.Lock()
			q.stopped = true
			q.mu.Unlock()
			q.dispatchPending()
			return
		}
	}
}

func (q *UploadQueue) dispatchPending() {
	for {
		q.mu.Lock()
		if len(q.events) == 0 {
			q.mu.Unlock()
			return
		}
		ev := q.events[0]
		q.events[0] = jobEvent{}
		q.events = q.events[1:]
		subs := make([]func(domain.UploadJob), 0, len(q.subscribers))
		for _, fn := range q.subscribers {
			subs = append(subs, fn)
		}
		q.mu.Unlock()

		for _, fn := range subs {
			q.deliver(fn, ev.job.Clone())
		}
		q.schedulePersist(ev.all)
		if ev.finish {
			q.mu.Lock()
			q.finishLocked(ev.job.ID)
			q.mu.Unlock()
		}
	}
}

func (q *UploadQueue) deliver(fn func(domain.UploadJob), job domain.UploadJob) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Warn("upload subscriber panicked", "job_id", job.ID, "panic", r)
		}
	}()
	fn(job)
}

// schedulePersist hands the newest snapshot to the writer, replacing any
// snapshot it has not picked up yet. Only the dispatcher calls it.
func (q *UploadQueue) schedulePersist(jobs []domain.UploadJob) {
	if q.store == nil {
		return
	}
	select {
	case <-q.persistCh:
	default:
	}
	q.persistCh <- jobs
}

func (q *UploadQueue) persistLoop() {
	defer close(q.persisted)
	for {
		select {
		case <-q.dispatched:
			select {
			case jobs := <-q.persistCh:
				q.save(jobs)
			default:
			}
			return
		case jobs := <-q.persistCh:
			q.save(jobs)
		}
	}
}

func (q *UploadQueue) save(jobs []domain.UploadJob) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.store.Save(ctx, jobs); err != nil {
		q.logger.Warn("persist upload jobs failed", "error", err)
	}
}

// RetainJobs keeps every non-terminal job plus the newest keep terminal
// ones, preserving order.
func RetainJobs(jobs []domain.UploadJob, keep int) []domain.UploadJob {
	terminal := 0
	for _, job := range jobs {
		if job.Status.Terminal() {
			terminal++
		}
	}
	drop := terminal - keep
	if drop <= 0 {
		return jobs
	}

	// Drop the oldest terminal jobs by timestamp.
	cutoff := oldestTerminal(jobs, drop)
	out := make([]domain.UploadJob, 0, len(jobs)-drop)
	for _, job := range jobs {
		if job.Status.Terminal() {
			if _, skip := cutoff[job.ID]; skip {
				continue
			}
		}
		out = append(out, job)
	}
	return out
}

func oldestTerminal(jobs []domain.UploadJob, n int) map[string]struct{} {
	terminal := make([]domain.UploadJob, 0, len(jobs))
	for _, job := range jobs {
		if job.Status.Terminal() {
			terminal = append(terminal, job)
		}
	}
	sort.SliceStable(terminal, func(i, j int) bool {
		return terminal[i].Timestamp.Before(terminal[j].Timestamp)
	})
	out := make(map[string]struct{}, n)
	for _, job := range terminal[:n] {
		out[job.ID] = struct{}{}
	}
	return out
}

func splitBatches(files []domain.UploadFile, size int) [][]domain.UploadFile {
	var batches [][]domain.UploadFile
	for start := 0; start < len(files); start += size {
		end := min(start+size, len(files))
		batches = append(batches, files[start:end])
	}
	return batches
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
