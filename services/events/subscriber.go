package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"
	"github.com/rabbitmq/amqp091-go"

	"github.com/mikklepp/trickle/dto"
	"github.com/mikklepp/trickle/interfaces"
	"github.com/mikklepp/trickle/internal/logger"
	"github.com/mikklepp/trickle/internal/tracing"
)

type RabbitMQSubscriber struct {
	connection      *amqp091.Connection
	connectionMutex sync.Mutex
	url             string
	logger          logger.Logger
	listeners       map[string][]interfaces.EventListener
	listenersMutex  sync.RWMutex
}

func NewRabbitMQSubscriber(rabbitmqURL string, logger logger.Logger) (*RabbitMQSubscriber, error) {
	subscriber := &RabbitMQSubscriber{
		url:       rabbitmqURL,
		logger:    logger,
		listeners: make(map[string][]interfaces.EventListener),
	}

	err := subscriber.connect()
	if err != nil {
		return nil, err
	}

	return subscriber, nil
}

func (r *RabbitMQSubscriber) connect() error {
	r.connectionMutex.Lock()
	defer r.connectionMutex.Unlock()

	var err error
	r.connection, err = amqp091.Dial(r.url)
	if err != nil {
		return errors.Wrap(err, "Failed to connect to RabbitMQ")
	}

	go r.handleReconnection()

	return nil
}

func (r *RabbitMQSubscriber) handleReconnection() {
	backoff := DefaultReconnectBackoff

	notifyClose := r.connection.NotifyClose(make(chan *amqp091.Error))
	err := <-notifyClose
	if err == nil {
		// graceful close
		return
	}
	r.logger.Warnf("RabbitMQ subscriber connection closed: %v, attempting to reconnect", err)

	for {
		connErr := r.connect()
		if connErr == nil {
			r.logger.Info("Subscriber successfully reconnected to RabbitMQ")
			r.resumeListeners()
			return
		}

		r.logger.Errorf("Subscriber failed to reconnect: %v, retrying in %v", connErr, backoff)
		time.Sleep(backoff)

		backoff *= 2
		if backoff > DefaultMaxReconnectBackoff {
			backoff = DefaultMaxReconnectBackoff
		}
	}
}

func (r *RabbitMQSubscriber) resumeListeners() {
	r.listenersMutex.RLock()
	queues := make([]string, 0, len(r.listeners))
	for queueName := range r.listeners {
		queues = append(queues, queueName)
	}
	r.listenersMutex.RUnlock()

	for _, queueName := range queues {
		r.ListenQueue(queueName)
	}
}

func (r *RabbitMQSubscriber) RegisterListener(listener interfaces.EventListener) {
	r.listenersMutex.Lock()
	defer r.listenersMutex.Unlock()

	queueName := listener.GetQueueName()
	r.listeners[queueName] = append(r.listeners[queueName], listener)
}

func (r *RabbitMQSubscriber) ListenQueue(queueName string) {
	go func() {
		for {
			err := r.consumeQueue(queueName)
			if err != nil {
				r.logger.Errorf("Queue %s consumer stopped: %v, restarting in %v", queueName, err, DefaultReconnectBackoff)
				time.Sleep(DefaultReconnectBackoff)
			}
		}
	}()
}

func (r *RabbitMQSubscriber) consumeQueue(queueName string) error {
	channel, err := r.connection.Channel()
	if err != nil {
		return errors.Wrap(err, "Failed to open channel")
	}
	defer channel.Close()

	// One unacked message at a time keeps redeliveries ordered
	err = channel.Qos(1, 0, false)
	if err != nil {
		return errors.Wrap(err, "Failed to set QoS")
	}

	deliveries, err := channel.Consume(
		queueName,
		"",    // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return errors.Wrapf(err, "Failed to start consuming queue %s", queueName)
	}

	for delivery := range deliveries {
		r.processMessage(delivery, queueName)
	}

	return errors.Errorf("Delivery channel for queue %s closed", queueName)
}

func (r *RabbitMQSubscriber) processMessage(delivery amqp091.Delivery, queueName string) {
	ctx := context.Background()

	var event dto.Event
	if err := json.Unmarshal(delivery.Body, &event); err != nil {
		r.logger.Errorf("Failed to unmarshal message from queue %s: %v", queueName, err)
		// Malformed payloads go to the DLQ, no requeue
		r.nack(delivery, false)
		return
	}

	ctx, span := tracing.StartRabbitMQMessageTracerSpanWithHeader(ctx, "RabbitMQSubscriber.ProcessMessage", event.Metadata.UberTraceId)
	defer span.Finish()
	tracing.SetDefaultListenerSpanTags(ctx, span)
	span.LogFields(log.String("queueName", queueName), log.String("eventType", event.Event.EventType))

	r.listenersMutex.RLock()
	listeners := r.listeners[queueName]
	r.listenersMutex.RUnlock()

	handled := false
	for _, listener := range listeners {
		if listener.GetEventType() != event.Event.EventType {
			continue
		}
		handled = true
		if err := listener.Handle(ctx, event); err != nil {
			tracing.TraceErr(span, err)
			r.logger.Errorf("Listener failed to handle event %s from queue %s: %v", event.Event.EventType, queueName, err)
			r.nack(delivery, false)
			return
		}
	}

	if !handled {
		span.LogFields(log.String("result", "no listener registered, dropping"))
		r.logger.Warnf("No listener registered for event type %s on queue %s", event.Event.EventType, queueName)
	}

	if err := delivery.Ack(false); err != nil {
		tracing.TraceErr(span, err)
		r.logger.Errorf("Failed to ack message from queue %s: %v", queueName, err)
	}
}

func (r *RabbitMQSubscriber) nack(delivery amqp091.Delivery, requeue bool) {
	if err := delivery.Nack(false, requeue); err != nil {
		r.logger.Errorf("Failed to nack message: %v", err)
	}
}

func (r *RabbitMQSubscriber) Close() error {
	r.connectionMutex.Lock()
	defer r.connectionMutex.Unlock()

	if r.connection != nil && !r.connection.IsClosed() {
		return r.connection.Close()
	}
	return nil
}
