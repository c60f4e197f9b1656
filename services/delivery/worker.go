package delivery

import (
	"context"
	"path"
	"strings"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"

	"github.com/mikklepp/trickle/dto"
	"github.com/mikklepp/trickle/interfaces"
	"github.com/mikklepp/trickle/internal/enum"
	"github.com/mikklepp/trickle/internal/logger"
	"github.com/mikklepp/trickle/internal/models"
	"github.com/mikklepp/trickle/internal/tracing"
	"github.com/mikklepp/trickle/internal/utils"
)

const lastErrorMessageLimit = 512

type DeliveryWorker struct {
	log               logger.Logger
	jobRepository     interfaces.JobRepository
	triggerRepository interfaces.DeliveryTriggerRepository
	storage           interfaces.StorageService
	sender            interfaces.EmailSender

	// sleep is swapped out in tests to avoid real backoff waits
	sleep func(time.Duration)
}

func NewDeliveryWorker(
	log logger.Logger,
	jobRepository interfaces.JobRepository,
	triggerRepository interfaces.DeliveryTriggerRepository,
	storage interfaces.StorageService,
	sender interfaces.EmailSender,
) *DeliveryWorker {
	return &DeliveryWorker{
		log:               log,
		jobRepository:     jobRepository,
		triggerRepository: triggerRepository,
		storage:           storage,
		sender:            sender,
		sleep:             time.Sleep,
	}
}

// Process handles one fired delivery trigger: send with bounded retries,
// delete the trigger, bump the job's counters and finalize the job when the
// counters reach the recipient total. A send failure is returned to the
// caller after bookkeeping so the message bus can apply its own dead-letter
// policy on top of the in-process retry loop.
func (w *DeliveryWorker) Process(ctx context.Context, trigger dto.DeliveryTrigger) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DeliveryWorker.Process")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagJob(span, trigger.JobID)
	span.LogFields(log.String("triggerId", trigger.TriggerID), log.String("recipient", trigger.Recipient))

	errKind, sendErr := w.attemptSend(ctx, trigger)

	// Cleanup is non-critical: a leftover row is purged on expiry.
	if err := w.triggerRepository.Delete(ctx, trigger.TriggerID); err != nil {
		tracing.TraceErr(span, err)
		w.log.Warnf("Failed to delete trigger %s, leaving it to expire: %v", trigger.TriggerID, err)
	}

	var job *models.Job
	var err error
	if sendErr == nil {
		job, err = w.jobRepository.IncrementSent(ctx, trigger.JobID)
	} else {
		lastError := models.LastError{
			Recipient: trigger.Recipient,
			Kind:      errKind.String(),
			Message:   utils.Truncate(sendErr.Error(), lastErrorMessageLimit),
		}
		job, err = w.jobRepository.IncrementFailed(ctx, trigger.JobID, lastError, utils.Now())
	}
	if err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrapf(err, "failed to record outcome for trigger %s", trigger.TriggerID)
	}

	w.finalizeIfDone(ctx, job)

	if sendErr != nil {
		tracing.TraceErr(span, sendErr)
		return sendErr
	}
	return nil
}

// attemptSend runs the bounded retry loop: up to 3 attempts with 1s/2s
// pauses, aborted immediately on the first non-retryable error.
func (w *DeliveryWorker) attemptSend(ctx context.Context, trigger dto.DeliveryTrigger) (enum.ErrorKind, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DeliveryWorker.attemptSend")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	email, err := w.buildEmail(ctx, trigger)
	if err != nil {
		tracing.TraceErr(span, err)
		return enum.ErrorKindNonRetryable, err
	}

	var lastErr error
	var lastKind enum.ErrorKind
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			w.sleep(backoffDelay(attempt - 1))
		}

		messageID, sendErr := w.sender.Send(ctx, email)
		if sendErr == nil {
			span.LogFields(log.String("messageId", messageID), log.Int("attempts", attempt+1))
			return "", nil
		}

		lastErr = sendErr
		lastKind = classifyError(sendErr)
		span.LogFields(log.Int("attempt", attempt+1), log.String("errorKind", lastKind.String()), log.Error(sendErr))

		if lastKind == enum.ErrorKindNonRetryable {
			break
		}
		w.log.Warnf("Send attempt %d for trigger %s failed with retryable error: %v", attempt+1, trigger.TriggerID, sendErr)
	}

	return lastKind, lastErr
}

func (w *DeliveryWorker) buildEmail(ctx context.Context, trigger dto.DeliveryTrigger) (*dto.OutboundEmail, error) {
	email := &dto.OutboundEmail{
		JobID:     trigger.JobID,
		From:      trigger.Sender,
		Recipient: trigger.Recipient,
		Subject:   trigger.Subject,
		BodyText:  trigger.Content,
	}

	for _, key := range trigger.AttachmentRefs {
		content, err := w.storage.Download(ctx, key)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to download attachment %s", key)
		}
		email.Attachments = append(email.Attachments, dto.OutboundAttachment{
			Filename: attachmentFilename(key),
			Content:  content,
		})
	}

	return email, nil
}

// finalizeIfDone transitions the job to its terminal status once the
// post-increment counters account for every recipient. Concurrent finishers
// may both attempt this; the repository guards the transition so it happens
// once, and both compute the same status from the same final counts.
func (w *DeliveryWorker) finalizeIfDone(ctx context.Context, job *models.Job) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DeliveryWorker.finalizeIfDone")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	if job == nil || job.Sent+job.Failed < job.TotalRecipients {
		return
	}
	tracing.TagJob(span, job.ID)

	status := enum.JobStatusCompleted
	if job.Failed > 0 {
		status = enum.JobStatusCompletedWithErrors
	}

	transitioned, err := w.jobRepository.Finalize(ctx, job.ID, status, utils.Now())
	if err != nil {
		tracing.TraceErr(span, err)
		w.log.Errorf("Failed to finalize job %s: %v", job.ID, err)
		return
	}
	if transitioned {
		w.log.Infof("Job %s finalized as %s (sent=%d failed=%d)", job.ID, status, job.Sent, job.Failed)
	}
}

// attachmentFilename recovers the original filename from a storage key of
// the form jobs/{jobId}/attachments/{uuid}-{filename}.
func attachmentFilename(key string) string {
	base := path.Base(key)
	if idx := strings.IndexByte(base, '-'); idx >= 0 && idx+1 < len(base) {
		// uuid prefix contains dashes; skip past the full 36-char uuid
		if len(base) > 37 && base[36] == '-' {
			return base[37:]
		}
		return base[idx+1:]
	}
	return base
}
