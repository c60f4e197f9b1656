package interfaces

import (
	"context"
	"time"

	"github.com/mikklepp/trickle/internal/enum"
	"github.com/mikklepp/trickle/internal/models"
)

type JobRepository interface {
	Create(ctx context.Context, job *models.Job) (string, error)
	GetByID(ctx context.Context, id string) (*models.Job, error)
	SetAttachmentKeys(ctx context.Context, id string, keys []string) error

	// IncrementSent and IncrementFailed apply a single-statement atomic
	// increment and return the job with its post-increment counters.
	IncrementSent(ctx context.Context, id string) (*models.Job, error)
	IncrementFailed(ctx context.Context, id string, lastError models.LastError, at time.Time) (*models.Job, error)

	// Finalize transitions a pending job to the given terminal status.
	// It reports whether this call performed the transition; a job
	// transitions at most once.
	Finalize(ctx context.Context, id string, status enum.JobStatus, completedAt time.Time) (bool, error)

	// MarkFailed is the scheduler-side rollback transition.
	MarkFailed(ctx context.Context, id string) error

	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
