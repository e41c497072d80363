package ports

import (
	"context"
	"time"

	"RecipeSwipe/internal/domain"
)

// UploadBackend submits OCR batches and reports deferred processing status.
type UploadBackend interface {
	Submit(ctx context.Context, jobID string, files []domain.UploadFile) (domain.Submission, error)
	Status(ctx context.Context, jobID string) (domain.StatusReport, error)
}

// CompletionFlags exposes results the backend writes out of band once a job
// finishes, so jobs interrupted by a restart can still be resolved.
type CompletionFlags interface {
	// CompletionFlag returns nil without error when no flag exists.
	CompletionFlag(ctx context.Context, jobID string) (*domain.UploadResult, error)
	DeleteCompletionFlag(ctx context.Context, jobID string) error
}

// JobStore persists the upload job list across restarts.
type JobStore interface {
	Save(ctx context.Context, jobs []domain.UploadJob) error
	Load(ctx context.Context) ([]domain.UploadJob, error)
	Clear(ctx context.Context) error
}

// ImageStore resolves a recipe key to a displayable image.
type ImageStore interface {
	Fetch(ctx context.Context, key string) (*domain.Image, error)
}

// RecipeCatalog is the remote recipe service.
type RecipeCatalog interface {
	Recipes(ctx context.Context) (domain.Catalog, error)
	SelectImage(ctx context.Context, key, imageURL string) (domain.Recipe, error)
	Delete(ctx context.Context, key string) error
}

// CandidateSource suggests image URLs found on a web page.
type CandidateSource interface {
	Candidates(ctx context.Context, pageURL string) ([]string, error)
}

// Scheduler controls recurring background work.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
