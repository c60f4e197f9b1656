package interfaces

import (
	"context"
	"time"

	"github.com/mikklepp/trickle/internal/enum"
	"github.com/mikklepp/trickle/internal/models"
)

// EventLogFilter narrows a job's event log query. Zero values mean
// "no filtering" for that field.
type EventLogFilter struct {
	EventType         enum.EventType
	RecipientContains string
	// Before is an exclusive upper bound on occurred_at, used as the
	// pagination cursor for newest-first listing.
	Before *time.Time
	Limit  int
}

type DeliveryEventRepository interface {
	Create(ctx context.Context, event *models.DeliveryEvent) (string, error)

	// ListByJob returns events newest-first.
	ListByJob(ctx context.Context, jobID string, filter EventLogFilter) ([]models.DeliveryEvent, error)
	CountByType(ctx context.Context, jobID string) (map[enum.EventType]int, error)

	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
