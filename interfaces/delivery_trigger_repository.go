package interfaces

import (
	"context"
	"time"

	"github.com/mikklepp/trickle/internal/models"
)

type DeliveryTriggerRepository interface {
	CreateBatch(ctx context.Context, triggers []*models.DeliveryTrigger) error
	Delete(ctx context.Context, id string) error
	DeleteByIDs(ctx context.Context, ids []string) error

	// GetDue returns undispatched triggers whose fire time has passed,
	// ordered by fire time.
	GetDue(ctx context.Context, now time.Time, limit int) ([]models.DeliveryTrigger, error)
	MarkDispatched(ctx context.Context, id string, at time.Time) error

	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
