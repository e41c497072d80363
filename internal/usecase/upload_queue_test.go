package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RecipeSwipe/internal/domain"
)

type submitCall struct {
	jobID string
	files int
}

type fakeBackend struct {
	mu       sync.Mutex
	calls    []submitCall
	submit   func(call int, files []domain.UploadFile) (domain.Submission, error)
	status   func(call int) (domain.StatusReport, error)
	statuses int
	block    chan struct{}
}

func (f *fakeBackend) Submit(ctx context.Context, jobID string, files []domain.UploadFile) (domain.Submission, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return domain.Submission{}, ctx.Err()
		}
	}
	f.mu.Lock()
	f.calls = append(f.calls, submitCall{jobID: jobID, files: len(files)})
	n := len(f.calls)
	f.mu.Unlock()
	if f.submit != nil {
		return f.submit(n, files)
	}
	return domain.Submission{Result: &domain.UploadResult{SuccessCount: len(files), JobID: jobID}}, nil
}

func (f *fakeBackend) Status(_ context.Context, _ string) (domain.StatusReport, error) {
	f.mu.Lock()
	f.statuses++
	n := f.statuses
	f.mu.Unlock()
	if f.status != nil {
		return f.status(n)
	}
	return domain.StatusReport{Status: domain.RemoteProcessing}, nil
}

func (f *fakeBackend) submitCalls() []submitCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]submitCall(nil), f.calls...)
}

type memoryJobStore struct {
	mu    sync.Mutex
	jobs  []domain.UploadJob
	saves int
	err   error
}

func (m *memoryJobStore) Save(_ context.Context, jobs []domain.UploadJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.err != nil {
		return m.err
	}
	m.jobs = append([]domain.UploadJob(nil), jobs...)
	return nil
}

func (m *memoryJobStore) Load(_ context.Context) ([]domain.UploadJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.UploadJob(nil), m.jobs...), nil
}

func (m *memoryJobStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs = nil
	return nil
}

func (m *memoryJobStore) snapshot() []domain.UploadJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.UploadJob(nil), m.jobs...)
}

type fakeFlags struct {
	results map[string]*domain.UploadResult
	deleted []string
}

func (f *fakeFlags) CompletionFlag(_ context.Context, jobID string) (*domain.UploadResult, error) {
	return f.results[jobID], nil
}

func (f *fakeFlags) DeleteCompletionFlag(_ context.Context, jobID string) error {
	f.deleted = append(f.deleted, jobID)
	return nil
}

func testFiles(n int) []domain.UploadFile {
	files := make([]domain.UploadFile, n)
	for i := range files {
		files[i] = domain.UploadFile{Data: fmt.Sprintf("data-%d", i), Type: domain.FileTypeImage}
	}
	return files
}

func newTestUploadQueue(backend *fakeBackend, store *memoryJobStore, opts ...UploadOption) *UploadQueue {
	base := []UploadOption{
		WithBatchDelay(time.Millisecond),
		WithPollInterval(time.Millisecond),
		WithMaxPollAttempts(20),
	}
	var q *UploadQueue
	if store == nil {
		q = NewUploadQueue(backend, nil, append(base, opts...)...)
	} else {
		q = NewUploadQueue(backend, store, append(base, opts...)...)
	}
	return q
}

func waitJob(t *testing.T, q *UploadQueue, id string) domain.UploadJob {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	job, err := q.Wait(ctx, id)
	require.NoError(t, err)
	return job
}

func TestQueueUploadReturnsImmediately(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{block: make(chan struct{})}
	q := newTestUploadQueue(backend, nil)
	defer q.Close()

	start := time.Now()
	id := q.QueueUpload(testFiles(3), nil)
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	job, ok := q.GetJob(id)
	require.True(t, ok)
	assert.Equal(t, 3, job.Progress.Total)

	close(backend.block)
	job = waitJob(t, q, id)
	assert.Equal(t, domain.JobCompleted, job.Status)
	assert.Equal(t, 3, job.Progress.Completed)
	assert.Equal(t, 0, job.Progress.Failed)
	require.NotNil(t, job.Result)
	assert.Equal(t, 3, job.Result.SuccessCount)
}

func TestUploadBatchesShareJobID(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{}
	q := newTestUploadQueue(backend, nil)
	defer q.Close()

	id := q.QueueUpload(testFiles(25), nil)
	job := waitJob(t, q, id)

	calls := backend.submitCalls()
	require.Len(t, calls, 3)
	assert.Equal(t, []int{10, 10, 5}, []int{calls[0].files, calls[1].files, calls[2].files})
	for _, c := range calls {
		assert.Equal(t, id, c.jobID)
	}
	assert.Equal(t, 25, job.Progress.Completed)
}

func TestStatusTransitionsObservedInOrder(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{}
	q := newTestUploadQueue(backend, nil)
	defer q.Close()

	var mu sync.Mutex
	var seen []domain.JobStatus
	unsubscribe := q.Subscribe(func(job domain.UploadJob) {
		mu.Lock()
		defer mu.Unlock()
		if len(seen) == 0 || seen[len(seen)-1] != job.Status {
			seen = append(seen, job.Status)
		}
	})
	defer unsubscribe()

	id := q.QueueUpload(testFiles(12), nil)
	waitJob(t, q, id)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []domain.JobStatus{domain.JobPending, domain.JobProcessing, domain.JobCompleted}, seen)
}

func TestSlowSubscriberKeepsOrderAndQueueUploadFast(t *testing.T) {
	t.Parallel()

	q := newTestUploadQueue(&fakeBackend{}, nil)
	defer q.Close()

	var mu sync.Mutex
	seen := map[string][]domain.JobStatus{}
	q.Subscribe(func(job domain.UploadJob) {
		if job.Status == domain.JobPending {
			time.Sleep(150 * time.Millisecond)
		}
		mu.Lock()
		defer mu.Unlock()
		statuses := seen[job.ID]
		if len(statuses) == 0 || statuses[len(statuses)-1] != job.Status {
			seen[job.ID] = append(statuses, job.Status)
		}
	})

	start := time.Now()
	first := q.QueueUpload(testFiles(1), nil)
	second := q.QueueUpload(testFiles(3), nil)
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	waitJob(t, q, first)
	waitJob(t, q, second)

	mu.Lock()
	defer mu.Unlock()
	want := []domain.JobStatus{domain.JobPending, domain.JobProcessing, domain.JobCompleted}
	assert.Equal(t, want, seen[first])
	assert.Equal(t, want, seen[second])
}

func TestSubscriberReceivesCopies(t *testing.T) {
	t.Parallel()

	q := newTestUploadQueue(&fakeBackend{}, nil)
	defer q.Close()

	q.Subscribe(func(job domain.UploadJob) {
		job.Errors = append(job.Errors, domain.UploadError{Title: "tampered"})
		job.Progress.Failed = 99
	})
	id := q.QueueUpload(testFiles(2), nil)
	job := waitJob(t, q, id)

	assert.Empty(t, job.Errors)
	assert.Equal(t, 0, job.Progress.Failed)
	assert.Equal(t, domain.JobCompleted, job.Status)
}

func TestPanickingSubscriberDoesNotBreakDelivery(t *testing.T) {
	t.Parallel()

	q := newTestUploadQueue(&fakeBackend{}, nil)
	defer q.Close()

	q.Subscribe(func(domain.UploadJob) { panic("boom") })
	var mu sync.Mutex
	count := 0
	q.Subscribe(func(domain.UploadJob) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	id := q.QueueUpload(testFiles(1), nil)
	job := waitJob(t, q, id)
	assert.Equal(t, domain.JobCompleted, job.Status)

	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, count, 3)
}

func TestBackendPartialFailure(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{
		submit: func(_ int, files []domain.UploadFile) (domain.Submission, error) {
			return domain.Submission{Result: &domain.UploadResult{
				SuccessCount: len(files) - 2,
				FailCount:    2,
				Errors: []domain.UploadError{
					{File: 1, Title: "unreadable", Reason: "no text"},
					{File: 3, Title: "duplicate", Reason: "already exists"},
				},
			}}, nil
		},
	}
	q := newTestUploadQueue(backend, nil)
	defer q.Close()

	id := q.QueueUpload(testFiles(6), nil)
	job := waitJob(t, q, id)

	assert.Equal(t, domain.JobError, job.Status)
	assert.Equal(t, 2, job.Progress.Failed)
	assert.Equal(t, 4, job.Progress.Completed)
	assert.Len(t, job.Errors, 2)
	require.NotNil(t, job.Result)
	assert.Len(t, job.Result.Errors, 2)
}

func TestBatchFailureCountsWholeBatch(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{
		submit: func(call int, files []domain.UploadFile) (domain.Submission, error) {
			if call == 2 {
				return domain.Submission{}, errors.New("connection reset")
			}
			return domain.Submission{Result: &domain.UploadResult{SuccessCount: len(files)}}, nil
		},
	}
	q := newTestUploadQueue(backend, nil)
	defer q.Close()

	id := q.QueueUpload(testFiles(25), nil)
	job := waitJob(t, q, id)

	assert.Equal(t, domain.JobError, job.Status)
	assert.Equal(t, 10, job.Progress.Failed)
	assert.Equal(t, 15, job.Progress.Completed)
	require.Len(t, job.Errors, 1)
	assert.Equal(t, 10, job.Errors[0].File)
	assert.Equal(t, "Batch 2", job.Errors[0].Title)
	assert.Contains(t, job.Errors[0].Reason, "connection reset")
	assert.Len(t, backend.submitCalls(), 3)
}

func TestResultsMergeAcrossBatches(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{
		submit: func(call int, files []domain.UploadFile) (domain.Submission, error) {
			key := fmt.Sprintf("r%d", call)
			return domain.Submission{Result: &domain.UploadResult{
				SuccessCount:  len(files),
				JSONData:      map[string]domain.Recipe{key: {Title: key}, "shared": {Title: key}},
				NewRecipeKeys: []string{key},
			}}, nil
		},
	}
	q := newTestUploadQueue(backend, nil, WithBatchSize(2))
	defer q.Close()

	id := q.QueueUpload(testFiles(4), nil)
	job := waitJob(t, q, id)

	require.NotNil(t, job.Result)
	assert.Equal(t, []string{"r1", "r2"}, job.Result.NewRecipeKeys)
	assert.Equal(t, "r2", job.Result.JSONData["shared"].Title)
	assert.Len(t, job.Result.JSONData, 3)
	assert.Equal(t, id, job.Result.JobID)
}

func TestAcceptedBatchPollsUntilCompleted(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{
		submit: func(int, []domain.UploadFile) (domain.Submission, error) {
			return domain.Submission{Accepted: true}, nil
		},
		status: func(call int) (domain.StatusReport, error) {
			switch {
			case call <= 2:
				return domain.StatusReport{Status: domain.RemoteProcessing}, nil
			case call == 3:
				return domain.StatusReport{}, errors.New("flaky")
			default:
				return domain.StatusReport{
					Status:        domain.RemoteCompleted,
					SuccessCount:  2,
					NewRecipeKeys: []string{"7"},
				}, nil
			}
		},
	}
	q := newTestUploadQueue(backend, nil)
	defer q.Close()

	id := q.QueueUpload(testFiles(2), nil)
	job := waitJob(t, q, id)

	assert.Equal(t, domain.JobCompleted, job.Status)
	assert.Equal(t, 2, job.Progress.Completed)
	assert.Equal(t, []string{"7"}, job.Result.NewRecipeKeys)
}

func TestPollingGivesUpAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{
		submit: func(int, []domain.UploadFile) (domain.Submission, error) {
			return domain.Submission{Accepted: true}, nil
		},
		status: func(int) (domain.StatusReport, error) {
			return domain.StatusReport{}, errors.New("unavailable")
		},
	}
	q := newTestUploadQueue(backend, nil)
	defer q.Close()

	id := q.QueueUpload(testFiles(3), nil)
	job := waitJob(t, q, id)

	assert.Equal(t, domain.JobError, job.Status)
	assert.Equal(t, 3, job.Progress.Failed)
	require.Len(t, job.Errors, 1)
	assert.Contains(t, job.Errors[0].Reason, "timed out")
	backend.mu.Lock()
	assert.Equal(t, 5, backend.statuses)
	backend.mu.Unlock()
}

func TestPollingTimesOutAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{
		submit: func(int, []domain.UploadFile) (domain.Submission, error) {
			return domain.Submission{Accepted: true}, nil
		},
	}
	q := newTestUploadQueue(backend, nil, WithMaxPollAttempts(4))
	defer q.Close()

	id := q.QueueUpload(testFiles(1), nil)
	job := waitJob(t, q, id)

	assert.Equal(t, domain.JobError, job.Status)
	assert.Contains(t, job.Errors[0].Reason, "after 4 attempts")
}

func TestPollingReportsBackendError(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{
		submit: func(int, []domain.UploadFile) (domain.Submission, error) {
			return domain.Submission{Accepted: true}, nil
		},
		status: func(int) (domain.StatusReport, error) {
			return domain.StatusReport{Status: domain.RemoteError, Error: "OCR failed"}, nil
		},
	}
	q := newTestUploadQueue(backend, nil)
	defer q.Close()

	job := waitJob(t, q, q.QueueUpload(testFiles(1), nil))
	assert.Equal(t, domain.JobError, job.Status)
	assert.Equal(t, "OCR failed", job.Errors[0].Reason)
}

func TestJobsProcessedFIFO(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{block: make(chan struct{})}
	q := newTestUploadQueue(backend, nil)
	defer q.Close()

	first := q.QueueUpload(testFiles(1), nil)
	second := q.QueueUpload(testFiles(2), nil)

	require.Eventually(t, func() bool {
		current, ok := q.GetCurrentJob()
		return ok && current.ID == first
	}, time.Second, time.Millisecond)

	job, _ := q.GetJob(second)
	assert.Equal(t, domain.JobPending, job.Status)

	close(backend.block)
	waitJob(t, q, second)

	calls := backend.submitCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, first, calls[0].jobID)
	assert.Equal(t, second, calls[1].jobID)
	assert.Len(t, q.GetAllJobs(), 2)

	require.Eventually(t, func() bool {
		_, ok := q.GetCurrentJob()
		return !ok
	}, time.Second, time.Millisecond)
}

func TestCancelJob(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{block: make(chan struct{})}
	q := newTestUploadQueue(backend, nil)
	defer q.Close()

	running := q.QueueUpload(testFiles(1), nil)
	waiting := q.QueueUpload(testFiles(1), nil)

	require.Eventually(t, func() bool {
		job, _ := q.GetJob(running)
		return job.Status == domain.JobProcessing
	}, time.Second, time.Millisecond)

	before, _ := q.GetJob(running)
	assert.False(t, q.CancelJob(running))
	after, _ := q.GetJob(running)
	assert.Equal(t, before, after)

	assert.True(t, q.CancelJob(waiting))
	cancelled, _ := q.GetJob(waiting)
	assert.Equal(t, domain.JobError, cancelled.Status)
	require.Len(t, cancelled.Errors, 1)
	assert.Equal(t, "Cancelled", cancelled.Errors[0].Title)

	assert.False(t, q.CancelJob(waiting))
	assert.False(t, q.CancelJob("missing"))

	close(backend.block)
	waitJob(t, q, running)
	assert.Len(t, backend.submitCalls(), 1)
}

func TestLoopRestartsAfterDraining(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{}
	q := newTestUploadQueue(backend, nil)
	defer q.Close()

	waitJob(t, q, q.QueueUpload(testFiles(1), nil))
	require.Eventually(t, func() bool {
		q.mu.Lock()
		defer q.mu.Unlock()
		return !q.processing
	}, time.Second, time.Millisecond)

	job := waitJob(t, q, q.QueueUpload(testFiles(1), nil))
	assert.Equal(t, domain.JobCompleted, job.Status)
}

func TestJobsArePersisted(t *testing.T) {
	t.Parallel()

	store := &memoryJobStore{}
	q := newTestUploadQueue(&fakeBackend{}, store)

	id := q.QueueUpload(testFiles(2), &domain.ChunkInfo{CurrentChunk: 1, TotalChunks: 2})
	waitJob(t, q, id)

	require.Eventually(t, func() bool {
		jobs := store.snapshot()
		return len(jobs) == 1 && jobs[0].Status == domain.JobCompleted
	}, time.Second, time.Millisecond)
	q.Close()

	jobs := store.snapshot()
	require.NotNil(t, jobs[0].ChunkInfo)
	assert.Equal(t, 2, jobs[0].ChunkInfo.TotalChunks)
}

func TestPersistenceFailureIsSwallowed(t *testing.T) {
	t.Parallel()

	store := &memoryJobStore{err: errors.New("disk full")}
	q := newTestUploadQueue(&fakeBackend{}, store)
	defer q.Close()

	job := waitJob(t, q, q.QueueUpload(testFiles(1), nil))
	assert.Equal(t, domain.JobCompleted, job.Status)
}

func TestRestore(t *testing.T) {
	t.Parallel()

	now := time.Now()
	store := &memoryJobStore{jobs: []domain.UploadJob{
		{ID: "done", Status: domain.JobCompleted, Progress: domain.Progress{Total: 1, Completed: 1}, Timestamp: now.Add(-3 * time.Minute)},
		{ID: "flagged", Status: domain.JobProcessing, Progress: domain.Progress{Total: 2}, Timestamp: now.Add(-2 * time.Minute)},
		{ID: "lost", Status: domain.JobProcessing, Progress: domain.Progress{Total: 1}, Timestamp: now.Add(-time.Minute)},
		{ID: "queued", Status: domain.JobPending, Files: testFiles(1), Progress: domain.Progress{Total: 1}, Timestamp: now},
	}}
	flags := &fakeFlags{results: map[string]*domain.UploadResult{
		"flagged": {SuccessCount: 1, FailCount: 1, Errors: []domain.UploadError{{File: 1, Title: "bad", Reason: "blurry"}}},
	}}
	backend := &fakeBackend{}
	q := newTestUploadQueue(backend, store, WithCompletionFlags(flags))
	defer q.Close()

	require.NoError(t, q.Restore(context.Background()))

	flagged, ok := q.GetJob("flagged")
	require.True(t, ok)
	assert.Equal(t, domain.JobError, flagged.Status)
	assert.Equal(t, 1, flagged.Progress.Completed)
	assert.Len(t, flagged.Errors, 1)
	assert.Equal(t, []string{"flagged"}, flags.deleted)

	lost, _ := q.GetJob("lost")
	assert.Equal(t, domain.JobError, lost.Status)
	assert.Equal(t, "Interrupted", lost.Errors[0].Title)

	queued := waitJob(t, q, "queued")
	assert.Equal(t, domain.JobCompleted, queued.Status)

	done := waitJob(t, q, "done")
	assert.Equal(t, domain.JobCompleted, done.Status)
	assert.Len(t, backend.submitCalls(), 1)
}

func TestRetainJobs(t *testing.T) {
	t.Parallel()

	base := time.Now()
	jobs := []domain.UploadJob{
		{ID: "a", Status: domain.JobCompleted, Timestamp: base},
		{ID: "b", Status: domain.JobPending, Timestamp: base.Add(time.Second)},
		{ID: "c", Status: domain.JobError, Timestamp: base.Add(2 * time.Second)},
		{ID: "d", Status: domain.JobCompleted, Timestamp: base.Add(3 * time.Second)},
		{ID: "e", Status: domain.JobProcessing, Timestamp: base.Add(4 * time.Second)},
	}

	kept := RetainJobs(jobs, 2)
	ids := make([]string, 0, len(kept))
	for _, job := range kept {
		ids = append(ids, job.ID)
	}
	assert.Equal(t, []string{"b", "c", "d", "e"}, ids)
	assert.Len(t, RetainJobs(jobs, 10), 5)
}

func TestWaitUnknownJob(t *testing.T) {
	t.Parallel()

	q := newTestUploadQueue(&fakeBackend{}, nil)
	defer q.Close()

	_, err := q.Wait(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
