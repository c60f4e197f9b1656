package repository

import (
	"context"
	"errors"
	"time"

	"github.com/lib/pq"
	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	trickle_errors "github.com/mikklepp/trickle/errors"
	"github.com/mikklepp/trickle/interfaces"
	"github.com/mikklepp/trickle/internal/enum"
	"github.com/mikklepp/trickle/internal/models"
	"github.com/mikklepp/trickle/internal/tracing"
)

type jobRepository struct {
	db *gorm.DB
}

func NewJobRepository(db *gorm.DB) interfaces.JobRepository {
	return &jobRepository{
		db: db,
	}
}

func (r *jobRepository) Create(ctx context.Context, job *models.Job) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "jobRepository.Create")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	if job == nil {
		return "", nil
	}

	result := r.db.WithContext(ctx).Create(job)
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return "", result.Error
	}

	return job.ID, nil
}

// GetByID retrieves a job by its ID
func (r *jobRepository) GetByID(ctx context.Context, id string) (*models.Job, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "jobRepository.GetByID")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagJob(span, id)

	var job models.Job
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &job, nil
}

func (r *jobRepository) SetAttachmentKeys(ctx context.Context, id string, keys []string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "jobRepository.SetAttachmentKeys")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagJob(span, id)

	err := r.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ?", id).
		UpdateColumn("attachment_keys", pq.StringArray(keys)).Error
	if err != nil {
		tracing.TraceErr(span, err)
	}
	return err
}

// IncrementSent bumps the sent counter with a single atomic statement and
// re-reads the post-increment counters. The counter must never be written
// with a read-modify-write; concurrent triggers would lose updates.
func (r *jobRepository) IncrementSent(ctx context.Context, id string) (*models.Job, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "jobRepository.IncrementSent")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagJob(span, id)

	result := r.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ?", id).
		UpdateColumn("sent", gorm.Expr("sent + ?", 1))
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, trickle_errors.ErrJobNotFound
	}

	return r.GetByID(ctx, id)
}

// IncrementFailed bumps the failed counter atomically and records the
// failure as the job's last error, then re-reads the counters.
func (r *jobRepository) IncrementFailed(ctx context.Context, id string, lastError models.LastError, at time.Time) (*models.Job, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "jobRepository.IncrementFailed")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagJob(span, id)

	result := r.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ?", id).
		UpdateColumns(map[string]interface{}{
			"failed":               gorm.Expr("failed + ?", 1),
			"last_error_recipient": lastError.Recipient,
			"last_error_kind":      lastError.Kind,
			"last_error_message":   lastError.Message,
			"last_error_at":        at,
		})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, trickle_errors.ErrJobNotFound
	}

	return r.GetByID(ctx, id)
}

// Finalize moves a pending job to a terminal status. The status guard makes
// the transition happen at most once even when concurrent finishers race.
func (r *jobRepository) Finalize(ctx context.Context, id string, status enum.JobStatus, completedAt time.Time) (bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "jobRepository.Finalize")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagJob(span, id)

	result := r.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ? AND status = ?", id, enum.JobStatusPending).
		UpdateColumns(map[string]interface{}{
			"status":       status,
			"completed_at": completedAt,
		})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *jobRepository) MarkFailed(ctx context.Context, id string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "jobRepository.MarkFailed")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagJob(span, id)

	err := r.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ? AND status = ?", id, enum.JobStatusPending).
		UpdateColumns(map[string]interface{}{
			"status":       enum.JobStatusFailed,
			"completed_at": time.Now().UTC(),
		}).Error
	if err != nil {
		tracing.TraceErr(span, err)
	}
	return err
}

func (r *jobRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "jobRepository.DeleteExpired")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	result := r.db.WithContext(ctx).
		Where("expires_at < ?", before).
		Delete(&models.Job{})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
