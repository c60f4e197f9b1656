package jobmetrics

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikklepp/trickle/interfaces"
	"github.com/mikklepp/trickle/internal/enum"
	"github.com/mikklepp/trickle/internal/logger"
	"github.com/mikklepp/trickle/internal/models"
)

type fakeEventRepository struct {
	events []models.DeliveryEvent
	err    error
}

func (f *fakeEventRepository) Create(ctx context.Context, event *models.DeliveryEvent) (string, error) {
	return "", nil
}

func (f *fakeEventRepository) ListByJob(ctx context.Context, jobID string, filter interfaces.EventLogFilter) ([]models.DeliveryEvent, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.events, nil
}

func (f *fakeEventRepository) CountByType(ctx context.Context, jobID string) (map[enum.EventType]int, error) {
	return nil, nil
}

func (f *fakeEventRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

func getLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{
		DevMode: true,
	})
	appLogger.InitLogger()
	return appLogger
}

func bounce(bounceType string) models.DeliveryEvent {
	return models.DeliveryEvent{
		EventType: enum.EventBounce,
		Details:   models.JSONMap{"bounceType": bounceType},
	}
}

func TestAggregate_Tallies(t *testing.T) {
	repo := &fakeEventRepository{events: []models.DeliveryEvent{
		{EventType: enum.EventSend},
		{EventType: enum.EventDelivery},
		bounce("Permanent"),
		bounce("Transient"),
		bounce(""),
		{EventType: enum.EventComplaint},
		{EventType: enum.EventReject},
	}}
	aggregator := NewAggregator(getLogger(), repo)

	metrics := aggregator.Aggregate(context.Background(), "job_1", 100)

	assert.Equal(t, 7, metrics.TotalEventCount)
	assert.Equal(t, 1, metrics.HardBounceCount)
	assert.Equal(t, 1, metrics.SoftBounceCount)
	assert.Equal(t, 1, metrics.ComplaintCount)
	assert.Equal(t, 1, metrics.RejectCount)
	assert.InDelta(t, 0.01, metrics.HardBounceRate, 1e-9)
	assert.InDelta(t, 0.01, metrics.ComplaintRate, 1e-9)
}

func TestAggregate_ZeroRecipientsDoesNotDivide(t *testing.T) {
	repo := &fakeEventRepository{events: []models.DeliveryEvent{bounce("Permanent")}}
	aggregator := NewAggregator(getLogger(), repo)

	metrics := aggregator.Aggregate(context.Background(), "job_1", 0)

	assert.Equal(t, 1, metrics.HardBounceCount)
	assert.Zero(t, metrics.HardBounceRate)
	assert.Zero(t, metrics.ComplaintRate)
}

func TestAggregate_BounceWarningThresholds(t *testing.T) {
	tests := []struct {
		name       string
		hardCount  int
		recipients int
		contains   string
	}{
		{"critical above 5%", 6, 100, "above 5%"},
		{"mild above 2%", 3, 100, "above 2%"},
		{"none at 2%", 2, 100, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := make([]models.DeliveryEvent, 0, tt.hardCount)
			for i := 0; i < tt.hardCount; i++ {
				events = append(events, bounce("Permanent"))
			}
			aggregator := NewAggregator(getLogger(), &fakeEventRepository{events: events})

			metrics := aggregator.Aggregate(context.Background(), "job_1", tt.recipients)

			if tt.contains == "" {
				assert.Empty(t, metrics.Warnings)
			} else {
				require.Len(t, metrics.Warnings, 1)
				assert.Contains(t, metrics.Warnings[0], tt.contains)
			}
		})
	}
}

func TestAggregate_ComplaintWarningThresholds(t *testing.T) {
	tests := []struct {
		name       string
		complaints int
		recipients int
		contains   string
	}{
		{"critical above 0.3%", 4, 1000, "above 0.3%"},
		{"mild above 0.1%", 2, 1000, "above 0.1%"},
		{"none at 0.1%", 1, 1000, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := make([]models.DeliveryEvent, 0, tt.complaints)
			for i := 0; i < tt.complaints; i++ {
				events = append(events, models.DeliveryEvent{EventType: enum.EventComplaint})
			}
			aggregator := NewAggregator(getLogger(), &fakeEventRepository{events: events})

			metrics := aggregator.Aggregate(context.Background(), "job_1", tt.recipients)

			if tt.contains == "" {
				assert.Empty(t, metrics.Warnings)
			} else {
				require.Len(t, metrics.Warnings, 1)
				assert.Contains(t, metrics.Warnings[0], tt.contains)
			}
		})
	}
}

func TestAggregate_AtMostOneWarningPerMetric(t *testing.T) {
	events := make([]models.DeliveryEvent, 0, 10)
	for i := 0; i < 6; i++ {
		events = append(events, bounce("Permanent"))
	}
	for i := 0; i < 4; i++ {
		events = append(events, models.DeliveryEvent{EventType: enum.EventComplaint})
	}
	aggregator := NewAggregator(getLogger(), &fakeEventRepository{events: events})

	metrics := aggregator.Aggregate(context.Background(), "job_1", 100)

	// both rates clear both of their thresholds; only the higher one fires
	require.Len(t, metrics.Warnings, 2)
	assert.Contains(t, metrics.Warnings[0], "bounce rate is above 5%")
	assert.Contains(t, metrics.Warnings[1], "Complaint rate is above 0.3%")
}

func TestAggregate_ReadFailureReturnsZeroMetrics(t *testing.T) {
	repo := &fakeEventRepository{err: errors.New("store unavailable")}
	aggregator := NewAggregator(getLogger(), repo)

	metrics := aggregator.Aggregate(context.Background(), "job_1", 100)

	assert.Equal(t, JobMetrics{}, metrics)
}
