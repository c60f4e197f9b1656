package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	api_errors "github.com/mikklepp/trickle/api/errors"
	"github.com/mikklepp/trickle/dto"
	trickle_errors "github.com/mikklepp/trickle/errors"
	"github.com/mikklepp/trickle/internal/models"
	"github.com/mikklepp/trickle/internal/repository"
	"github.com/mikklepp/trickle/internal/tracing"
	"github.com/mikklepp/trickle/internal/utils"
	"github.com/mikklepp/trickle/services"
	"github.com/mikklepp/trickle/services/scheduler"
)

type JobsHandler struct {
	services     *services.Services
	repositories *repository.Repositories
}

func NewJobsHandler(s *services.Services, repos *repository.Repositories) *JobsHandler {
	return &JobsHandler{
		services:     s,
		repositories: repos,
	}
}

// Submit accepts a bulk-send request and schedules its fan-out.
func (h *JobsHandler) Submit() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "SubmitJob", c.Request.Header)
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		var submission dto.JobSubmission
		if err := c.ShouldBindJSON(&submission); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if fieldErrs := validateSubmissionShape(&submission); fieldErrs.HasErrors() {
			tracing.TraceErr(span, fieldErrs)
			c.JSON(http.StatusBadRequest, gin.H{"error": fieldErrs.Error()})
			return
		}

		result, err := h.services.SchedulerService.Submit(ctx, &submission)
		if err != nil {
			tracing.TraceErr(span, err)
			status, payload := submissionErrorPayload(err)
			c.JSON(status, payload)
			return
		}

		c.JSON(http.StatusCreated, result)
	}
}

// Status returns the aggregate progress of one job.
func (h *JobsHandler) Status() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "JobStatus", c.Request.Header)
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

		response := gin.H{
			"jobId":           job.ID,
			"status":          job.Status,
			"totalRecipients": job.TotalRecipients,
			"sent":            job.Sent,
			"failed":          job.Failed,
			"createdAt":       job.CreatedAt,
		}
		if job.CompletedAt != nil {
			response["completedAt"] = job.CompletedAt
		}
		if lastError := job.LastError(); lastError != nil {
			response["lastError"] = lastError
			response["lastErrorAt"] = job.LastErrorAt
		}

		c.JSON(http.StatusOK, response)
	}
}

// jobOwnedByCaller scopes job reads to the submitting user. A job without a
// recorded owner stays visible to any caller behind the API key.
func jobOwnedByCaller(ctx context.Context, job *models.Job) bool {
	return job.UserID == "" || job.UserID == utils.GetUserIdFromContext(ctx)
}

func validateSubmissionShape(submission *dto.JobSubmission) *api_errors.FieldErrors {
	fieldErrs := api_errors.NewFieldErrors()
	if strings.TrimSpace(submission.Sender) == "" {
		fieldErrs.Add("sender", "sender is required")
	}
	if strings.TrimSpace(submission.Recipients) == "" {
		fieldErrs.Add("recipients", "recipients is required")
	}
	if strings.TrimSpace(submission.Subject) == "" {
		fieldErrs.Add("subject", "subject is required")
	}
	if strings.TrimSpace(submission.Content) == "" {
		fieldErrs.Add("content", "content is required")
	}
	return fieldErrs
}

func submissionErrorPayload(err error) (int, gin.H) {
	var malformedErr *trickle_errors.MalformedRecipientsError
	if errors.As(err, &malformedErr) {
		return http.StatusBadRequest, gin.H{
			"error":   "recipients list contains malformed addresses",
			"details": malformedErr.Sample,
		}
	}

	switch {
	case errors.Is(err, trickle_errors.ErrNoRecipients),
		errors.Is(err, scheduler.ErrEmptySubject),
		errors.Is(err, scheduler.ErrSubjectTooLong),
		errors.Is(err, scheduler.ErrEmptyContent),
		errors.Is(err, scheduler.ErrInvalidSender):
		return http.StatusBadRequest, gin.H{"error": err.Error()}
	case errors.Is(err, trickle_errors.ErrTooManyRecipients),
		errors.Is(err, scheduler.ErrContentTooLarge):
		return http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()}
	case errors.Is(err, trickle_errors.ErrSenderNotVerified):
		return http.StatusForbidden, gin.H{"error": err.Error()}
	default:
		return http.StatusInternalServerError, gin.H{"error": "failed to schedule job"}
	}
}
