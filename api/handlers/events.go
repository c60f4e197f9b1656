package handlers

import (
	"encoding/base64"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	trickle_errors "github.com/mikklepp/trickle/errors"
	"github.com/mikklepp/trickle/interfaces"
	"github.com/mikklepp/trickle/internal/enum"
	"github.com/mikklepp/trickle/internal/models"
	"github.com/mikklepp/trickle/internal/repository"
	"github.com/mikklepp/trickle/internal/tracing"
	"github.com/mikklepp/trickle/services"
	"github.com/mikklepp/trickle/services/classifier"
)

const (
	defaultEventLogLimit = 100
	maxEventLogLimit     = 1000
)

type EventsHandler struct {
	services     *services.Services
	repositories *repository.Repositories
}

func NewEventsHandler(s *services.Services, repos *repository.Repositories) *EventsHandler {
	return &EventsHandler{
		services:     s,
		repositories: repos,
	}
}

// Summary returns per-type event counts for a job, zero-filled for every
// known event type, plus the derived job metrics.
func (h *EventsHandler) Summary() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "EventSummary", c.Request.Header)
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		jobID := c.Param("id")
		tracing.TagJob(span, jobID)

		job, err := h.repositories.JobRepository.GetByID(ctx, jobID)
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load job"})
			return
		}
		if job == nil || !jobOwnedByCaller(ctx, job) {
			c.JSON(http.StatusNotFound, gin.H{"error": trickle_errors.ErrJobNotFound.Error()})
			return
		}

		counts, err := h.repositories.DeliveryEventRepository.CountByType(ctx, jobID)
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load event counts"})
			return
		}

		summary := make(map[string]int, len(enum.KnownEventTypes))
		for _, eventType := range enum.KnownEventTypes {
			summary[eventType.String()] = counts[eventType]
		}

		c.JSON(http.StatusOK, gin.H{
			"jobId":      jobID,
			"counts":     summary,
			"jobMetrics": h.services.MetricsService.Aggregate(ctx, jobID, job.TotalRecipients),
		})
	}
}

// Log returns the paginated event log for a job, newest first, with each
// event classified at read time.
func (h *EventsHandler) Log() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "EventLog", c.Request.Header)
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		jobID := c.Param("id")
		tracing.TagJob(span, jobID)

		job, err := h.repositories.JobRepository.GetByID(ctx, jobID)
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load job"})
			return
		}
		if job == nil || !jobOwnedByCaller(ctx, job) {
			c.JSON(http.StatusNotFound, gin.H{"error": trickle_errors.ErrJobNotFound.Error()})
			return
		}

		filter, err := eventLogFilter(c)
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		events, err := h.repositories.DeliveryEventRepository.ListByJob(ctx, jobID, filter)
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load events"})
			return
		}

		entries := make([]gin.H, 0, len(events))
		for i := range events {
			event := &events[i]
			entries = append(entries, gin.H{
				"timestamp":      event.OccurredAt,
				"recipient":      event.Recipient,
				"eventType":      event.EventType,
				"messageId":      event.MessageID,
				"details":        event.Details,
				"classification": classifier.Classify(event),
			})
		}

		response := gin.H{
			"events":     entries,
			"count":      len(entries),
			"jobMetrics": h.services.MetricsService.Aggregate(ctx, jobID, job.TotalRecipients),
		}
		if len(events) == filter.Limit {
			response["nextToken"] = encodeEventCursor(events[len(events)-1])
		}

		c.JSON(http.StatusOK, response)
	}
}

func eventLogFilter(c *gin.Context) (interfaces.EventLogFilter, error) {
	filter := interfaces.EventLogFilter{
		EventType:         enum.EventType(c.Query("eventType")),
		RecipientContains: c.Query("recipient"),
		Limit:             defaultEventLogLimit,
	}

	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > maxEventLogLimit {
			return filter, trickle_errors.ErrInvalidEventLogLimit
		}
		filter.Limit = limit
	}

	if token := c.Query("nextToken"); token != "" {
		before, err := decodeEventCursor(token)
		if err != nil {
			return filter, err
		}
		filter.Before = &before
	}

	return filter, nil
}

// The pagination cursor is the timestamp of the last event on the page.
func encodeEventCursor(event models.DeliveryEvent) string {
	return base64.URLEncoding.EncodeToString([]byte(event.OccurredAt.Format(time.RFC3339Nano)))
}

func decodeEventCursor(token string) (time.Time, error) {
	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return time.Time{}, trickle_errors.ErrInvalidPageToken
	}
	parsed, err := time.Parse(time.RFC3339Nano, string(raw))
	if err != nil {
		return time.Time{}, trickle_errors.ErrInvalidPageToken
	}
	return parsed, nil
}
