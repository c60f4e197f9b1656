package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/customeros/mailsherpa/mailvalidate"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"

	"github.com/mikklepp/trickle/config"
	"github.com/mikklepp/trickle/dto"
	trickle_errors "github.com/mikklepp/trickle/errors"
	"github.com/mikklepp/trickle/interfaces"
	"github.com/mikklepp/trickle/internal/enum"
	"github.com/mikklepp/trickle/internal/logger"
	"github.com/mikklepp/trickle/internal/models"
	"github.com/mikklepp/trickle/internal/tracing"
	"github.com/mikklepp/trickle/internal/utils"
)

const (
	maxSubjectLength = 998 // RFC 5322 line limit
	maxContentBytes  = 512 << 10
)

var (
	ErrEmptySubject    = errors.New("subject is required")
	ErrSubjectTooLong  = errors.New("subject exceeds the maximum length")
	ErrEmptyContent    = errors.New("content is required")
	ErrContentTooLarge = errors.New("content exceeds the maximum size")
	ErrInvalidSender   = errors.New("sender address is not valid")
)

type SchedulerService struct {
	log               logger.Logger
	cfg               *config.DeliveryConfig
	jobRepository     interfaces.JobRepository
	triggerRepository interfaces.DeliveryTriggerRepository
	senderRepository  interfaces.SenderRepository
	storage           interfaces.StorageService
}

func NewSchedulerService(
	log logger.Logger,
	cfg *config.DeliveryConfig,
	jobRepository interfaces.JobRepository,
	triggerRepository interfaces.DeliveryTriggerRepository,
	senderRepository interfaces.SenderRepository,
	storage interfaces.StorageService,
) *SchedulerService {
	return &SchedulerService{
		log:               log,
		cfg:               cfg,
		jobRepository:     jobRepository,
		triggerRepository: triggerRepository,
		senderRepository:  senderRepository,
		storage:           storage,
	}
}

// Submit validates a bulk-send request and fans it out: one job record plus
// one delivery trigger per unique recipient, fire times spaced by the rate
// interval. If anything fails after the job row exists, every trigger and
// attachment created so far is cleaned up, the job is marked failed and the
// error is re-raised.
func (s *SchedulerService) Submit(ctx context.Context, submission *dto.JobSubmission) (*dto.JobSubmissionResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SchedulerService.Submit")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	recipients, err := s.validate(ctx, submission)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	span.LogFields(log.Int("uniqueRecipients", len(recipients)))

	now := utils.Now()
	job := &models.Job{
		UserID:          utils.GetUserIdFromContext(ctx),
		Sender:          submission.Sender,
		Subject:         submission.Subject,
		Content:         submission.Content,
		TotalRecipients: len(recipients),
		Status:          enum.JobStatusPending,
		ExpiresAt:       now.Add(time.Duration(s.cfg.JobRetentionDays) * 24 * time.Hour),
	}

	jobID, err := s.jobRepository.Create(ctx, job)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "failed to create job")
	}
	tracing.TagJob(span, jobID)

	attachmentKeys, err := s.uploadAttachments(ctx, jobID, submission.Attachments)
	if err != nil {
		tracing.TraceErr(span, err)
		s.rollback(ctx, jobID, nil, attachmentKeys)
		return nil, err
	}

	if len(attachmentKeys) > 0 {
		if err = s.jobRepository.SetAttachmentKeys(ctx, jobID, attachmentKeys); err != nil {
			tracing.TraceErr(span, err)
			s.rollback(ctx, jobID, nil, attachmentKeys)
			return nil, errors.Wrap(err, "failed to record attachment keys")
		}
	}

	triggerIDs, err := s.createTriggers(ctx, jobID, submission, recipients, attachmentKeys, now)
	if err != nil {
		tracing.TraceErr(span, err)
		s.rollback(ctx, jobID, triggerIDs, attachmentKeys)
		return nil, err
	}

	s.log.Infof("Scheduled job %s with %d recipient(s)", jobID, len(recipients))
	return &dto.JobSubmissionResult{
		JobID:           jobID,
		TotalRecipients: len(recipients),
	}, nil
}

func (s *SchedulerService) validate(ctx context.Context, submission *dto.JobSubmission) ([]string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SchedulerService.validate")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	if strings.TrimSpace(submission.Subject) == "" {
		return nil, ErrEmptySubject
	}
	if len(submission.Subject) > maxSubjectLength {
		return nil, ErrSubjectTooLong
	}
	if strings.TrimSpace(submission.Content) == "" {
		return nil, ErrEmptyContent
	}
	if len(submission.Content) > maxContentBytes {
		return nil, ErrContentTooLarge
	}

	if err := s.validateSender(ctx, submission.Sender); err != nil {
		return nil, err
	}

	addresses := utils.SplitRecipients(submission.Recipients)

	var malformed []string
	valid := make([]string, 0, len(addresses))
	for _, address := range addresses {
		validation := mailvalidate.ValidateEmailSyntax(address)
		if !validation.IsValid {
			malformed = append(malformed, address)
			continue
		}
		valid = append(valid, address)
	}
	if len(malformed) > 0 {
		return nil, trickle_errors.NewMalformedRecipientsError(malformed)
	}

	unique := utils.DedupStrings(valid)
	if len(unique) == 0 {
		return nil, trickle_errors.ErrNoRecipients
	}
	if len(unique) > s.cfg.MaxRecipients {
		return nil, errors.Wrapf(trickle_errors.ErrTooManyRecipients, "%d recipients, ceiling is %d", len(unique), s.cfg.MaxRecipients)
	}

	return unique, nil
}

func (s *SchedulerService) validateSender(ctx context.Context, sender string) error {
	validation := mailvalidate.ValidateEmailSyntax(sender)
	if !validation.IsValid {
		return ErrInvalidSender
	}

	record, err := s.senderRepository.GetByAddress(ctx, sender)
	if err != nil {
		return errors.Wrap(err, "failed to look up sender")
	}
	if record == nil || !record.IsVerified {
		return trickle_errors.ErrSenderNotVerified
	}
	return nil
}

func (s *SchedulerService) uploadAttachments(ctx context.Context, jobID string, attachments []dto.SubmissionAttachment) ([]string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SchedulerService.uploadAttachments")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagJob(span, jobID)

	keys := make([]string, 0, len(attachments))
	for _, attachment := range attachments {
		key := fmt.Sprintf("jobs/%s/attachments/%s-%s", jobID, uuid.New().String(), attachment.Filename)
		if err := s.storage.Upload(ctx, key, attachment.Content, attachment.ContentType); err != nil {
			// report keys uploaded so far for cleanup
			return keys, errors.Wrapf(err, "failed to upload attachment %s", attachment.Filename)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func (s *SchedulerService) createTriggers(ctx context.Context, jobID string, submission *dto.JobSubmission, recipients []string, attachmentKeys []string, submittedAt time.Time) ([]string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SchedulerService.createTriggers")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagJob(span, jobID)

	interval := submission.RateIntervalSeconds
	if interval <= 0 {
		interval = s.cfg.DefaultRateIntervalSeconds
	}

	grace := time.Duration(s.cfg.TriggerGraceHours) * time.Hour

	triggers := make([]*models.DeliveryTrigger, 0, len(recipients))
	ids := make([]string, 0, len(recipients))
	for index, recipient := range recipients {
		fireAt := submittedAt.Add(time.Duration(index*interval) * time.Second)
		trigger := &models.DeliveryTrigger{
			ID:             models.TriggerID(jobID, index),
			JobID:          jobID,
			Recipient:      recipient,
			Sender:         submission.Sender,
			Subject:        submission.Subject,
			Content:        submission.Content,
			AttachmentKeys: pq.StringArray(attachmentKeys),
			FireAt:         fireAt,
			ExpiresAt:      fireAt.Add(grace),
		}
		triggers = append(triggers, trigger)
		ids = append(ids, trigger.ID)
	}

	if err := s.triggerRepository.CreateBatch(ctx, triggers); err != nil {
		return ids, errors.Wrap(err, "failed to create delivery triggers")
	}
	return ids, nil
}

// rollback best-effort deletes everything created for a failed submission,
// then marks the job failed. Cleanup failures are logged, never surfaced.
func (s *SchedulerService) rollback(ctx context.Context, jobID string, triggerIDs []string, attachmentKeys []string) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SchedulerService.rollback")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagJob(span, jobID)

	if len(triggerIDs) > 0 {
		if err := s.triggerRepository.DeleteByIDs(ctx, triggerIDs); err != nil {
			tracing.TraceErr(span, err)
			s.log.Errorf("Rollback of job %s: failed to delete triggers: %v", jobID, err)
		}
	}

	for _, key := range attachmentKeys {
		if err := s.storage.Delete(ctx, key); err != nil {
			tracing.TraceErr(span, err)
			s.log.Errorf("Rollback of job %s: failed to delete attachment %s: %v", jobID, key, err)
		}
	}

	if err := s.jobRepository.MarkFailed(ctx, jobID); err != nil {
		tracing.TraceErr(span, err)
		s.log.Errorf("Rollback of job %s: failed to mark job failed: %v", jobID, err)
	}
}
