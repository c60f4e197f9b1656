package repository

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	"github.com/mikklepp/trickle/interfaces"
	"github.com/mikklepp/trickle/internal/models"
	"github.com/mikklepp/trickle/internal/tracing"
)

type deliveryTriggerRepository struct {
	db *gorm.DB
}

func NewDeliveryTriggerRepository(db *gorm.DB) interfaces.DeliveryTriggerRepository {
	return &deliveryTriggerRepository{
		db: db,
	}
}

func (r *deliveryTriggerRepository) CreateBatch(ctx context.Context, triggers []*models.DeliveryTrigger) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "deliveryTriggerRepository.CreateBatch")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	if len(triggers) == 0 {
		return nil
	}

	if err := r.db.WithContext(ctx).CreateInBatches(triggers, 100).Error; err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *deliveryTriggerRepository) Delete(ctx context.Context, id string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "deliveryTriggerRepository.Delete")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.DeliveryTrigger{}).Error
	if err != nil {
		tracing.TraceErr(span, err)
	}
	return err
}

func (r *deliveryTriggerRepository) DeleteByIDs(ctx context.Context, ids []string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "deliveryTriggerRepository.DeleteByIDs")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	if len(ids) == 0 {
		return nil
	}

	err := r.db.WithContext(ctx).Where("id IN ?", ids).Delete(&models.DeliveryTrigger{}).Error
	if err != nil {
		tracing.TraceErr(span, err)
	}
	return err
}

func (r *deliveryTriggerRepository) GetDue(ctx context.Context, now time.Time, limit int) ([]models.DeliveryTrigger, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "deliveryTriggerRepository.GetDue")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	var triggers []models.DeliveryTrigger
	err := r.db.WithContext(ctx).
		Where("fire_at <= ? AND dispatched_at IS NULL", now).
		Order("fire_at asc").
		Limit(limit).
		Find(&triggers).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return triggers, nil
}

func (r *deliveryTriggerRepository) MarkDispatched(ctx context.Context, id string, at time.Time) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "deliveryTriggerRepository.MarkDispatched")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	err := r.db.WithContext(ctx).Model(&models.DeliveryTrigger{}).
		Where("id = ?", id).
		UpdateColumn("dispatched_at", at).Error
	if err != nil {
		tracing.TraceErr(span, err)
	}
	return err
}

func (r *deliveryTriggerRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "deliveryTriggerRepository.DeleteExpired")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	result := r.db.WithContext(ctx).
		Where("expires_at < ?", before).
		Delete(&models.DeliveryTrigger{})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
