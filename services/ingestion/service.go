package ingestion

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/mikklepp/trickle/interfaces"
	"github.com/mikklepp/trickle/internal/enum"
	"github.com/mikklepp/trickle/internal/logger"
	"github.com/mikklepp/trickle/internal/models"
	"github.com/mikklepp/trickle/internal/tracing"
	"github.com/mikklepp/trickle/internal/utils"
	"github.com/mikklepp/trickle/services/smtp"

	"github.com/mikklepp/trickle/dto"
)

// JobIDTag is the mail tag carrying the originating job id, set on every
// outbound message so provider notifications can be routed back to a job.
const JobIDTag = "trickle-job-id"

var ErrMissingJobTag = errors.New("notification carries no job id tag")

type IngestionService struct {
	log             logger.Logger
	eventRepository interfaces.DeliveryEventRepository
	retention       time.Duration
}

func NewIngestionService(log logger.Logger, eventRepository interfaces.DeliveryEventRepository, retentionDays int) *IngestionService {
	return &IngestionService{
		log:             log,
		eventRepository: eventRepository,
		retention:       time.Duration(retentionDays) * 24 * time.Hour,
	}
}

// Ingest normalizes one provider notification into the append-only event log.
// One notification can fan out to several rows when it names several
// recipients (a bounce covering two addresses yields two events).
func (s *IngestionService) Ingest(ctx context.Context, notification *dto.ProviderNotification) ([]string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "IngestionService.Ingest")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.LogObjectAsJson(span, "notification", notification)

	jobID := jobIDFromTags(notification.Mail.Tags)
	if jobID == "" {
		jobID = jobIDFromHeaders(notification.Mail.Headers)
	}
	if jobID == "" {
		tracing.TraceErr(span, ErrMissingJobTag)
		return nil, ErrMissingJobTag
	}
	tracing.TagJob(span, jobID)

	eventType := enum.EventType(notification.EventType)
	occurredAt := notification.Mail.Timestamp
	if occurredAt.IsZero() {
		occurredAt = utils.Now()
	}

	events := s.normalize(notification, jobID, eventType, occurredAt)

	ids := make([]string, 0, len(events))
	for i := range events {
		id, err := s.eventRepository.Create(ctx, &events[i])
		if err != nil {
			tracing.TraceErr(span, err)
			return ids, errors.Wrap(err, "failed to store delivery event")
		}
		ids = append(ids, id)
	}

	s.log.Infof("Ingested %d event(s) of type %s for job %s", len(ids), eventType, jobID)
	return ids, nil
}

func (s *IngestionService) normalize(notification *dto.ProviderNotification, jobID string, eventType enum.EventType, occurredAt time.Time) []models.DeliveryEvent {
	base := models.DeliveryEvent{
		JobID:      jobID,
		EventType:  eventType,
		MessageID:  notification.Mail.MessageID,
		OccurredAt: occurredAt,
		ExpiresAt:  occurredAt.Add(s.retention),
		Details:    models.JSONMap{},
	}
	if len(notification.Mail.Destination) > 0 {
		base.Recipient = notification.Mail.Destination[0]
	}

	switch {
	case notification.Bounce != nil:
		return s.normalizeBounce(notification.Bounce, base)
	case notification.Complaint != nil:
		return s.normalizeComplaint(notification.Complaint, base)
	case notification.Reject != nil:
		base.Details["reason"] = notification.Reject.Reason
		return []models.DeliveryEvent{base}
	case notification.DeliveryDelay != nil:
		return s.normalizeDelay(notification.DeliveryDelay, base)
	case notification.Delivery != nil:
		return s.normalizeDelivery(notification.Delivery, base)
	case notification.Open != nil:
		base.Details["ipAddress"] = notification.Open.IPAddress
		base.Details["userAgent"] = notification.Open.UserAgent
		if !notification.Open.Timestamp.IsZero() {
			base.OccurredAt = notification.Open.Timestamp
			base.ExpiresAt = base.OccurredAt.Add(s.retention)
		}
		return []models.DeliveryEvent{base}
	case notification.Click != nil:
		base.Details["ipAddress"] = notification.Click.IPAddress
		base.Details["userAgent"] = notification.Click.UserAgent
		base.Details["link"] = notification.Click.Link
		if !notification.Click.Timestamp.IsZero() {
			base.OccurredAt = notification.Click.Timestamp
			base.ExpiresAt = base.OccurredAt.Add(s.retention)
		}
		return []models.DeliveryEvent{base}
	default:
		// Send and unrecognized types carry no detail block
		return []models.DeliveryEvent{base}
	}
}

func (s *IngestionService) normalizeBounce(bounce *dto.BounceDetail, base models.DeliveryEvent) []models.DeliveryEvent {
	if !bounce.Timestamp.IsZero() {
		base.OccurredAt = bounce.Timestamp
		base.ExpiresAt = base.OccurredAt.Add(s.retention)
	}

	if len(bounce.BouncedRecipients) == 0 {
		base.Details = bounceDetails(bounce, dto.BouncedRecipient{})
		return []models.DeliveryEvent{base}
	}

	events := make([]models.DeliveryEvent, 0, len(bounce.BouncedRecipients))
	for _, recipient := range bounce.BouncedRecipients {
		event := base
		event.Recipient = recipient.EmailAddress
		event.Details = bounceDetails(bounce, recipient)
		events = append(events, event)
	}
	return events
}

func bounceDetails(bounce *dto.BounceDetail, recipient dto.BouncedRecipient) models.JSONMap {
	details := models.JSONMap{
		"bounceType":    bounce.BounceType,
		"bounceSubType": bounce.BounceSubType,
	}
	if recipient.Status != "" {
		details["status"] = recipient.Status
	}
	if recipient.DiagnosticCode != "" {
		details["diagnosticCode"] = recipient.DiagnosticCode
	}
	if bounce.ReportingMTA != "" {
		details["reportingMTA"] = bounce.ReportingMTA
	}
	if bounce.FeedbackID != "" {
		details["feedbackId"] = bounce.FeedbackID
	}
	return details
}

func (s *IngestionService) normalizeComplaint(complaint *dto.ComplaintDetail, base models.DeliveryEvent) []models.DeliveryEvent {
	if !complaint.Timestamp.IsZero() {
		base.OccurredAt = complaint.Timestamp
		base.ExpiresAt = base.OccurredAt.Add(s.retention)
	}

	details := models.JSONMap{
		"complainedRecipients": strconv.Itoa(len(complaint.ComplainedRecipients)),
	}
	if complaint.ComplaintFeedbackType != "" {
		details["complaintFeedbackType"] = complaint.ComplaintFeedbackType
	}
	if complaint.UserAgent != "" {
		details["userAgent"] = complaint.UserAgent
	}

	if len(complaint.ComplainedRecipients) == 0 {
		base.Details = details
		return []models.DeliveryEvent{base}
	}

	events := make([]models.DeliveryEvent, 0, len(complaint.ComplainedRecipients))
	for _, recipient := range complaint.ComplainedRecipients {
		event := base
		event.Recipient = recipient.EmailAddress
		event.Details = details
		events = append(events, event)
	}
	return events
}

func (s *IngestionService) normalizeDelay(delay *dto.DeliveryDelayDetail, base models.DeliveryEvent) []models.DeliveryEvent {
	if !delay.Timestamp.IsZero() {
		base.OccurredAt = delay.Timestamp
		base.ExpiresAt = base.OccurredAt.Add(s.retention)
	}

	details := models.JSONMap{
		"delayType": delay.DelayType,
	}
	if !delay.ExpirationTime.IsZero() {
		details["expirationTime"] = delay.ExpirationTime.Format(time.RFC3339)
	}

	if len(delay.DelayedRecipients) == 0 {
		base.Details = details
		return []models.DeliveryEvent{base}
	}

	events := make([]models.DeliveryEvent, 0, len(delay.DelayedRecipients))
	for _, recipient := range delay.DelayedRecipients {
		event := base
		event.Recipient = recipient.EmailAddress
		event.Details = details
		events = append(events, event)
	}
	return events
}

func (s *IngestionService) normalizeDelivery(delivery *dto.DeliveryDetail, base models.DeliveryEvent) []models.DeliveryEvent {
	if !delivery.Timestamp.IsZero() {
		base.OccurredAt = delivery.Timestamp
		base.ExpiresAt = base.OccurredAt.Add(s.retention)
	}

	details := models.JSONMap{}
	if delivery.SMTPResponse != "" {
		details["smtpResponse"] = delivery.SMTPResponse
	}
	if delivery.ProcessingTimeMillis > 0 {
		details["processingTimeMillis"] = strconv.FormatInt(delivery.ProcessingTimeMillis, 10)
	}

	if len(delivery.Recipients) == 0 {
		base.Details = details
		return []models.DeliveryEvent{base}
	}

	events := make([]models.DeliveryEvent, 0, len(delivery.Recipients))
	for _, recipient := range delivery.Recipients {
		event := base
		event.Recipient = recipient
		event.Details = details
		events = append(events, event)
	}
	return events
}

func jobIDFromTags(tags map[string][]string) string {
	for key, values := range tags {
		if strings.EqualFold(key, JobIDTag) && len(values) > 0 {
			return values[0]
		}
	}
	return ""
}

// jobIDFromHeaders falls back to the job id header stamped on the outbound
// message, for providers configured to echo headers instead of tags.
func jobIDFromHeaders(headers []dto.NotificationHeader) string {
	for _, header := range headers {
		if strings.EqualFold(header.Name, smtp.JobIDHeader) && header.Value != "" {
			return header.Value
		}
	}
	return ""
}
