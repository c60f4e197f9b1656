package interfaces

import (
	"context"

	"github.com/mikklepp/trickle/dto"
	"github.com/mikklepp/trickle/internal/enum"
)

type EventPublisher interface {
	PublishDirectEvent(ctx context.Context, entityId string, entityType enum.EntityType, message interface{}) error
	Close() error
}

// TriggerPublisher hands due delivery triggers to the worker queue.
type TriggerPublisher interface {
	PublishDeliveryTrigger(ctx context.Context, trigger dto.DeliveryTrigger) error
}

type EventListener interface {
	Handle(ctx context.Context, event any) error
	GetEventType() string
	GetQueueName() string
}

type EventSubscriber interface {
	RegisterListener(listener EventListener)
	ListenQueue(queueName string)
	Close() error
}
