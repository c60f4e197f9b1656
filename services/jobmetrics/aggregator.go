package jobmetrics

import (
	"context"

	"github.com/opentracing/opentracing-go"

	"github.com/mikklepp/trickle/interfaces"
	"github.com/mikklepp/trickle/internal/enum"
	"github.com/mikklepp/trickle/internal/logger"
	"github.com/mikklepp/trickle/internal/tracing"
)

// Warning thresholds are fixed. Provider accounts get suspended well above
// these rates, so they are not worth making configurable.
const (
	hardBounceRateCritical = 0.05
	hardBounceRateMild     = 0.02
	complaintRateCritical  = 0.003
	complaintRateMild      = 0.001
)

type JobMetrics struct {
	HardBounceCount int     `json:"hardBounceCount"`
	SoftBounceCount int     `json:"softBounceCount"`
	ComplaintCount  int     `json:"complaintCount"`
	RejectCount     int     `json:"rejectCount"`
	TotalEventCount int     `json:"totalEventCount"`
	HardBounceRate  float64 `json:"hardBounceRate"`
	ComplaintRate   float64 `json:"complaintRate"`

	// Warnings holds at most one entry per metric; the higher threshold
	// wins within a metric.
	Warnings []string `json:"warnings,omitempty"`
}

type Aggregator struct {
	log             logger.Logger
	eventRepository interfaces.DeliveryEventRepository
}

func NewAggregator(log logger.Logger, eventRepository interfaces.DeliveryEventRepository) *Aggregator {
	return &Aggregator{
		log:             log,
		eventRepository: eventRepository,
	}
}

// Aggregate scans every event recorded for a job and computes bounce and
// complaint rates against the job's recipient count. Metrics are advisory:
// if the event store cannot be read, a zero-valued object is returned so
// status display is never blocked.
func (a *Aggregator) Aggregate(ctx context.Context, jobID string, totalRecipients int) JobMetrics {
	span, ctx := opentracing.StartSpanFromContext(ctx, "JobMetricsAggregator.Aggregate")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagJob(span, jobID)

	metrics := JobMetrics{}

	events, err := a.eventRepository.ListByJob(ctx, jobID, interfaces.EventLogFilter{})
	if err != nil {
		tracing.TraceErr(span, err)
		a.log.Warnf("Failed to read events for job %s metrics, returning zero metrics: %v", jobID, err)
		return metrics
	}

	for i := range events {
		event := &events[i]
		metrics.TotalEventCount++
		switch event.EventType {
		case enum.EventBounce:
			switch event.DetailString("bounceType") {
			case "Permanent":
				metrics.HardBounceCount++
			case "Transient":
				metrics.SoftBounceCount++
			}
		case enum.EventComplaint:
			metrics.ComplaintCount++
		case enum.EventReject:
			metrics.RejectCount++
		}
	}

	if totalRecipients > 0 {
		metrics.HardBounceRate = float64(metrics.HardBounceCount) / float64(totalRecipients)
		metrics.ComplaintRate = float64(metrics.ComplaintCount) / float64(totalRecipients)
	}

	if metrics.HardBounceRate > hardBounceRateCritical {
		metrics.Warnings = append(metrics.Warnings, "Hard bounce rate is above 5%; sending is at risk of provider suspension")
	} else if metrics.HardBounceRate > hardBounceRateMild {
		metrics.Warnings = append(metrics.Warnings, "Hard bounce rate is above 2%; clean your recipient lists")
	}

	if metrics.ComplaintRate > complaintRateCritical {
		metrics.Warnings = append(metrics.Warnings, "Complaint rate is above 0.3%; sending is at risk of provider suspension")
	} else if metrics.ComplaintRate > complaintRateMild {
		metrics.Warnings = append(metrics.Warnings, "Complaint rate is above 0.1%; review targeting and opt-out handling")
	}

	return metrics
}
