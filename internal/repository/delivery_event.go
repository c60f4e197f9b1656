package repository

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	"github.com/mikklepp/trickle/interfaces"
	"github.com/mikklepp/trickle/internal/enum"
	"github.com/mikklepp/trickle/internal/models"
	"github.com/mikklepp/trickle/internal/tracing"
)

type deliveryEventRepository struct {
	db *gorm.DB
}

func NewDeliveryEventRepository(db *gorm.DB) interfaces.DeliveryEventRepository {
	return &deliveryEventRepository{
		db: db,
	}
}

// Create appends one event. Events are immutable once written; there is no
// update path.
func (r *deliveryEventRepository) Create(ctx context.Context, event *models.DeliveryEvent) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "deliveryEventRepository.Create")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	if event == nil {
		return "", nil
	}
	tracing.TagJob(span, event.JobID)

	result := r.db.WithContext(ctx).Create(event)
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return "", result.Error
	}
	return event.ID, nil
}

func (r *deliveryEventRepository) ListByJob(ctx context.Context, jobID string, filter interfaces.EventLogFilter) ([]models.DeliveryEvent, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "deliveryEventRepository.ListByJob")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagJob(span, jobID)

	query := r.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("occurred_at desc")

	if filter.EventType != "" {
		query = query.Where("event_type = ?", filter.EventType)
	}
	if filter.RecipientContains != "" {
		query = query.Where("recipient LIKE ?", "%"+filter.RecipientContains+"%")
	}
	if filter.Before != nil {
		query = query.Where("occurred_at < ?", *filter.Before)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var events []models.DeliveryEvent
	if err := query.Find(&events).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return events, nil
}

func (r *deliveryEventRepository) CountByType(ctx context.Context, jobID string) (map[enum.EventType]int, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "deliveryEventRepository.CountByType")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagJob(span, jobID)

	var rows []struct {
		EventType enum.EventType
		Count     int
	}
	err := r.db.WithContext(ctx).Model(&models.DeliveryEvent{}).
		Select("event_type, count(*) as count").
		Where("job_id = ?", jobID).
		Group("event_type").
		Scan(&rows).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	counts := make(map[enum.EventType]int, len(rows))
	for _, row := range rows {
		counts[row.EventType] = row.Count
	}
	return counts, nil
}

func (r *deliveryEventRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "deliveryEventRepository.DeleteExpired")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	result := r.db.WithContext(ctx).
		Where("expires_at < ?", before).
		Delete(&models.DeliveryEvent{})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
