package services

import (
	"github.com/mikklepp/trickle/config"
	"github.com/mikklepp/trickle/interfaces"
	"github.com/mikklepp/trickle/internal/logger"
	"github.com/mikklepp/trickle/internal/repository"
	"github.com/mikklepp/trickle/services/delivery"
	"github.com/mikklepp/trickle/services/events"
	"github.com/mikklepp/trickle/services/ingestion"
	"github.com/mikklepp/trickle/services/jobmetrics"
	"github.com/mikklepp/trickle/services/scheduler"
	"github.com/mikklepp/trickle/services/smtp"
)

type Services struct {
	EventsService    *events.EventsService
	SchedulerService *scheduler.SchedulerService
	DeliveryWorker   *delivery.DeliveryWorker
	IngestionService *ingestion.IngestionService
	MetricsService   *jobmetrics.Aggregator
	EmailSender      interfaces.EmailSender
}

func InitServices(cfg *config.Config, log logger.Logger, repos *repository.Repositories) (*Services, error) {
	// events
	publisherConfig := &events.PublisherConfig{
		MessageTTL:          events.DefaultMessageTTL,
		MaxRetries:          events.DefaultMaxRetries,
		PublishTimeout:      events.DefaultPublishTimeout,
		ReconnectBackoff:    events.DefaultReconnectBackoff,
		MaxReconnectBackoff: events.DefaultMaxReconnectBackoff,
	}

	eventsService, err := events.NewEventsService(cfg.AppConfig.RabbitMQURL, log, publisherConfig)
	if err != nil {
		return nil, err
	}

	emailSender := smtp.NewSMTPClient(cfg.SMTPConfig)

	services := Services{
		EventsService: eventsService,
		SchedulerService: scheduler.NewSchedulerService(
			log,
			cfg.DeliveryConfig,
			repos.JobRepository,
			repos.DeliveryTriggerRepository,
			repos.SenderRepository,
			repos.AttachmentStorage,
		),
		DeliveryWorker: delivery.NewDeliveryWorker(
			log,
			repos.JobRepository,
			repos.DeliveryTriggerRepository,
			repos.AttachmentStorage,
			emailSender,
		),
		IngestionService: ingestion.NewIngestionService(log, repos.DeliveryEventRepository, cfg.DeliveryConfig.EventRetentionDays),
		MetricsService:   jobmetrics.NewAggregator(log, repos.DeliveryEventRepository),
		EmailSender:      emailSender,
	}

	return &services, nil
}
