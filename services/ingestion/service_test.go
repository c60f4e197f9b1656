package ingestion

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikklepp/trickle/dto"
	"github.com/mikklepp/trickle/interfaces"
	"github.com/mikklepp/trickle/internal/enum"
	"github.com/mikklepp/trickle/internal/logger"
	"github.com/mikklepp/trickle/internal/models"
)

type capturingEventRepository struct {
	created []models.DeliveryEvent
}

func (c *capturingEventRepository) Create(ctx context.Context, event *models.DeliveryEvent) (string, error) {
	c.created = append(c.created, *event)
	return "evt_test", nil
}

func (c *capturingEventRepository) ListByJob(ctx context.Context, jobID string, filter interfaces.EventLogFilter) ([]models.DeliveryEvent, error) {
	return nil, nil
}

func (c *capturingEventRepository) CountByType(ctx context.Context, jobID string) (map[enum.EventType]int, error) {
	return nil, nil
}

func (c *capturingEventRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

func getLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{
		DevMode: true,
	})
	appLogger.InitLogger()
	return appLogger
}

func notification(eventType string) *dto.ProviderNotification {
	return &dto.ProviderNotification{
		EventType: eventType,
		Mail: dto.NotificationMail{
			MessageID:   "<msg-1@example.com>",
			Timestamp:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
			Source:      "sender@example.com",
			Destination: []string{"recipient@example.com"},
			Tags:        map[string][]string{"trickle-job-id": {"job_abc"}},
		},
	}
}

func TestIngest_MissingJobTag(t *testing.T) {
	repo := &capturingEventRepository{}
	service := NewIngestionService(getLogger(), repo, 90)

	n := notification("Delivery")
	n.Mail.Tags = nil

	_, err := service.Ingest(context.Background(), n)

	require.ErrorIs(t, err, ErrMissingJobTag)
	assert.Empty(t, repo.created)
}

func TestIngest_FallsBackToJobIDHeader(t *testing.T) {
	repo := &capturingEventRepository{}
	service := NewIngestionService(getLogger(), repo, 90)

	n := notification("Delivery")
	n.Mail.Tags = nil
	n.Mail.Headers = []dto.NotificationHeader{
		{Name: "x-trickle-job-id", Value: "job_header"},
	}

	ids, err := service.Ingest(context.Background(), n)

	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.Equal(t, "job_header", repo.created[0].JobID)
}

func TestIngest_BounceFansOutPerRecipient(t *testing.T) {
	repo := &capturingEventRepository{}
	service := NewIngestionService(getLogger(), repo, 90)

	n := notification("Bounce")
	n.Bounce = &dto.BounceDetail{
		BounceType:    "Permanent",
		BounceSubType: "NoEmail",
		BouncedRecipients: []dto.BouncedRecipient{
			{EmailAddress: "a@example.com", DiagnosticCode: "550 5.1.1 user unknown"},
			{EmailAddress: "b@example.com"},
		},
		Timestamp: time.Date(2026, 3, 1, 12, 0, 5, 0, time.UTC),
	}

	ids, err := service.Ingest(context.Background(), n)

	require.NoError(t, err)
	require.Len(t, ids, 2)
	require.Len(t, repo.created, 2)

	first := repo.created[0]
	assert.Equal(t, "job_abc", first.JobID)
	assert.Equal(t, enum.EventBounce, first.EventType)
	assert.Equal(t, "a@example.com", first.Recipient)
	assert.Equal(t, "Permanent", first.Details["bounceType"])
	assert.Equal(t, "NoEmail", first.Details["bounceSubType"])
	assert.Equal(t, "550 5.1.1 user unknown", first.Details["diagnosticCode"])
	assert.Equal(t, n.Bounce.Timestamp, first.OccurredAt)

	second := repo.created[1]
	assert.Equal(t, "b@example.com", second.Recipient)
	assert.NotContains(t, second.Details, "diagnosticCode")
}

func TestIngest_ComplaintCountsRecipients(t *testing.T) {
	repo := &capturingEventRepository{}
	service := NewIngestionService(getLogger(), repo, 90)

	n := notification("Complaint")
	n.Complaint = &dto.ComplaintDetail{
		ComplainedRecipients: []dto.ComplainedRecipient{
			{EmailAddress: "a@example.com"},
			{EmailAddress: "b@example.com"},
		},
		ComplaintFeedbackType: "abuse",
	}

	_, err := service.Ingest(context.Background(), n)

	require.NoError(t, err)
	require.Len(t, repo.created, 2)
	assert.Equal(t, "2", repo.created[0].Details["complainedRecipients"])
	assert.Equal(t, "abuse", repo.created[0].Details["complaintFeedbackType"])
}

func TestIngest_RejectCarriesReason(t *testing.T) {
	repo := &capturingEventRepository{}
	service := NewIngestionService(getLogger(), repo, 90)

	n := notification("Reject")
	n.Reject = &dto.RejectDetail{Reason: "Bad content"}

	_, err := service.Ingest(context.Background(), n)

	require.NoError(t, err)
	require.Len(t, repo.created, 1)
	assert.Equal(t, "Bad content", repo.created[0].Details["reason"])
	assert.Equal(t, "recipient@example.com", repo.created[0].Recipient)
}

func TestIngest_SendHasNoDetailBlock(t *testing.T) {
	repo := &capturingEventRepository{}
	service := NewIngestionService(getLogger(), repo, 90)

	_, err := service.Ingest(context.Background(), notification("Send"))

	require.NoError(t, err)
	require.Len(t, repo.created, 1)
	assert.Equal(t, enum.EventSend, repo.created[0].EventType)
	assert.Equal(t, "<msg-1@example.com>", repo.created[0].MessageID)
}

func TestIngest_RetentionSetsExpiry(t *testing.T) {
	repo := &capturingEventRepository{}
	service := NewIngestionService(getLogger(), repo, 30)

	n := notification("Delivery")
	n.Delivery = &dto.DeliveryDetail{
		Recipients: []string{"recipient@example.com"},
		Timestamp:  time.Date(2026, 3, 1, 12, 0, 10, 0, time.UTC),
	}

	_, err := service.Ingest(context.Background(), n)

	require.NoError(t, err)
	require.Len(t, repo.created, 1)
	assert.Equal(t, n.Delivery.Timestamp.Add(30*24*time.Hour), repo.created[0].ExpiresAt)
}

func TestIngest_JobTagCaseInsensitive(t *testing.T) {
	repo := &capturingEventRepository{}
	service := NewIngestionService(getLogger(), repo, 90)

	n := notification("Send")
	n.Mail.Tags = map[string][]string{"Trickle-Job-Id": {"job_xyz"}}

	_, err := service.Ingest(context.Background(), n)

	require.NoError(t, err)
	require.Len(t, repo.created, 1)
	assert.Equal(t, "job_xyz", repo.created[0].JobID)
}
