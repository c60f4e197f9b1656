package repository

import (
	"context"
	"errors"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	"github.com/mikklepp/trickle/interfaces"
	"github.com/mikklepp/trickle/internal/models"
	"github.com/mikklepp/trickle/internal/tracing"
)

type senderRepository struct {
	db *gorm.DB
}

func NewSenderRepository(db *gorm.DB) interfaces.SenderRepository {
	return &senderRepository{
		db: db,
	}
}

func (r *senderRepository) Create(ctx context.Context, sender *models.Sender) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "senderRepository.Create")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	if sender == nil {
		return "", nil
	}

	result := r.db.WithContext(ctx).Create(sender)
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return "", result.Error
	}
	return sender.ID, nil
}

func (r *senderRepository) GetByAddress(ctx context.Context, emailAddress string) (*models.Sender, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "senderRepository.GetByAddress")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	var sender models.Sender
	if err := r.db.WithContext(ctx).Where("email_address = ?", emailAddress).First(&sender).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &sender, nil
}
