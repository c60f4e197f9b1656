package listeners

import (
	"context"

	"github.com/opentracing/opentracing-go"

	"github.com/mikklepp/trickle/dto"
	"github.com/mikklepp/trickle/interfaces"
	"github.com/mikklepp/trickle/internal/logger"
	"github.com/mikklepp/trickle/internal/tracing"
	"github.com/mikklepp/trickle/services/delivery"
	"github.com/mikklepp/trickle/services/events"
)

// DeliveryTriggerListener consumes fired triggers off the message bus and
// hands each one to the delivery worker. A worker error is returned to the
// subscriber so the message lands in the dead-letter queue.
type DeliveryTriggerListener struct {
	events.BaseEventListener
	worker *delivery.DeliveryWorker
}

func NewDeliveryTriggerListener(
	logger logger.Logger, worker *delivery.DeliveryWorker,
) interfaces.EventListener {
	return &DeliveryTriggerListener{
		BaseEventListener: events.NewBaseEventListener(
			logger,
			events.GetEventType[dto.DeliveryTrigger](),
			events.QueueDeliveryTriggers,
		),
		worker: worker,
	}
}

func (l *DeliveryTriggerListener) Handle(ctx context.Context, baseEvent any) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DeliveryTriggerListener.Handle")
	defer span.Finish()
	tracing.SetDefaultListenerSpanTags(ctx, span)
	tracing.LogObjectAsJson(span, "event", baseEvent)

	validatedEvent, err := l.ValidateBaseEvent(ctx, baseEvent)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	trigger, err := events.DecodeEventData[dto.DeliveryTrigger](ctx, validatedEvent)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	return l.worker.Process(ctx, trigger)
}
