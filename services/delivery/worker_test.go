package delivery

import (
	"context"
	"net/textproto"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikklepp/trickle/dto"
	"github.com/mikklepp/trickle/interfaces"
	"github.com/mikklepp/trickle/internal/enum"
	"github.com/mikklepp/trickle/internal/logger"
	"github.com/mikklepp/trickle/internal/models"
)

type trackingJobRepository struct {
	job *models.Job

	incrementSentCalls   int
	incrementFailedCalls int
	lastError            models.LastError
	finalizedStatus      enum.JobStatus
	finalizeCalls        int
	incrementErr         error
}

func (f *trackingJobRepository) Create(ctx context.Context, job *models.Job) (string, error) {
	return "", nil
}

func (f *trackingJobRepository) GetByID(ctx context.Context, id string) (*models.Job, error) {
	return f.job, nil
}

func (f *trackingJobRepository) SetAttachmentKeys(ctx context.Context, id string, keys []string) error {
	return nil
}

func (f *trackingJobRepository) IncrementSent(ctx context.Context, id string) (*models.Job, error) {
	if f.incrementErr != nil {
		return nil, f.incrementErr
	}
	f.incrementSentCalls++
	f.job.Sent++
	copied := *f.job
	return &copied, nil
}

func (f *trackingJobRepository) IncrementFailed(ctx context.Context, id string, lastError models.LastError, at time.Time) (*models.Job, error) {
	if f.incrementErr != nil {
		return nil, f.incrementErr
	}
	f.incrementFailedCalls++
	f.lastError = lastError
	f.job.Failed++
	copied := *f.job
	return &copied, nil
}

func (f *trackingJobRepository) Finalize(ctx context.Context, id string, status enum.JobStatus, completedAt time.Time) (bool, error) {
	f.finalizeCalls++
	if f.job.Status != enum.JobStatusPending {
		return false, nil
	}
	f.job.Status = status
	f.finalizedStatus = status
	return true, nil
}

func (f *trackingJobRepository) MarkFailed(ctx context.Context, id string) error {
	return nil
}

func (f *trackingJobRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

type trackingTriggerRepository struct {
	deleted   []string
	deleteErr error
}

func (f *trackingTriggerRepository) CreateBatch(ctx context.Context, triggers []*models.DeliveryTrigger) error {
	return nil
}

func (f *trackingTriggerRepository) Delete(ctx context.Context, id string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *trackingTriggerRepository) DeleteByIDs(ctx context.Context, ids []string) error {
	return nil
}

func (f *trackingTriggerRepository) GetDue(ctx context.Context, now time.Time, limit int) ([]models.DeliveryTrigger, error) {
	return nil, nil
}

func (f *trackingTriggerRepository) MarkDispatched(ctx context.Context, id string, at time.Time) error {
	return nil
}

func (f *trackingTriggerRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

type scriptedSender struct {
	// errs[i] is returned by attempt i+1; nil means success
	errs  []error
	calls int
}

func (s *scriptedSender) Send(ctx context.Context, email *dto.OutboundEmail) (string, error) {
	var err error
	if s.calls < len(s.errs) {
		err = s.errs[s.calls]
	}
	s.calls++
	if err != nil {
		return "", err
	}
	return "<msg@example.com>", nil
}

type stubStorage struct {
	objects map[string][]byte
}

func (s *stubStorage) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	return nil
}

func (s *stubStorage) Download(ctx context.Context, key string) ([]byte, error) {
	data, ok := s.objects[key]
	if !ok {
		return nil, errors.New("object not found")
	}
	return data, nil
}

func (s *stubStorage) Delete(ctx context.Context, key string) error {
	return nil
}

var _ interfaces.StorageService = (*stubStorage)(nil)

func getLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{
		DevMode: true,
	})
	appLogger.InitLogger()
	return appLogger
}

func newWorker(jobs *trackingJobRepository, triggers *trackingTriggerRepository, sender *scriptedSender) (*DeliveryWorker, *[]time.Duration) {
	var slept []time.Duration
	worker := NewDeliveryWorker(getLogger(), jobs, triggers, &stubStorage{objects: map[string][]byte{}}, sender)
	worker.sleep = func(d time.Duration) {
		slept = append(slept, d)
	}
	return worker, &slept
}

func pendingJob(total int) *models.Job {
	return &models.Job{
		ID:              "job_1",
		TotalRecipients: total,
		Status:          enum.JobStatusPending,
	}
}

func trigger() dto.DeliveryTrigger {
	return dto.DeliveryTrigger{
		TriggerID: "job_1-0",
		JobID:     "job_1",
		Recipient: "a@example.com",
		Sender:    "sender@example.com",
		Subject:   "Hello",
		Content:   "Body",
	}
}

func TestProcess_SuccessIncrementsSentAndDeletesTrigger(t *testing.T) {
	jobs := &trackingJobRepository{job: pendingJob(2)}
	triggers := &trackingTriggerRepository{}
	worker, _ := newWorker(jobs, triggers, &scriptedSender{})

	err := worker.Process(context.Background(), trigger())

	require.NoError(t, err)
	assert.Equal(t, 1, jobs.incrementSentCalls)
	assert.Zero(t, jobs.incrementFailedCalls)
	assert.Equal(t, []string{"job_1-0"}, triggers.deleted)
	// job not yet complete, no finalization
	assert.Zero(t, jobs.finalizeCalls)
}

func TestProcess_RetryableErrorRetriesWithBackoff(t *testing.T) {
	sender := &scriptedSender{errs: []error{
		errors.New("rate limit exceeded"),
		errors.New("request timed out"),
		nil,
	}}
	jobs := &trackingJobRepository{job: pendingJob(5)}
	worker, slept := newWorker(jobs, &trackingTriggerRepository{}, sender)

	err := worker.Process(context.Background(), trigger())

	require.NoError(t, err)
	assert.Equal(t, 3, sender.calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *slept)
	assert.Equal(t, 1, jobs.incrementSentCalls)
}

func TestProcess_RetriesExhaustedIncrementsFailed(t *testing.T) {
	sendErr := &textproto.Error{Code: 503, Msg: "service unavailable"}
	sender := &scriptedSender{errs: []error{sendErr, sendErr, sendErr}}
	jobs := &trackingJobRepository{job: pendingJob(5)}
	worker, _ := newWorker(jobs, &trackingTriggerRepository{}, sender)

	err := worker.Process(context.Background(), trigger())

	require.Error(t, err)
	assert.Equal(t, 3, sender.calls)
	assert.Equal(t, 1, jobs.incrementFailedCalls)
	assert.Equal(t, "a@example.com", jobs.lastError.Recipient)
	assert.Equal(t, enum.ErrorKindRetryable.String(), jobs.lastError.Kind)
}

func TestProcess_NonRetryableAbortsImmediately(t *testing.T) {
	sender := &scriptedSender{errs: []error{errors.New("invalid recipient address")}}
	jobs := &trackingJobRepository{job: pendingJob(5)}
	worker, slept := newWorker(jobs, &trackingTriggerRepository{}, sender)

	err := worker.Process(context.Background(), trigger())

	require.Error(t, err)
	assert.Equal(t, 1, sender.calls)
	assert.Empty(t, *slept)
	assert.Equal(t, 1, jobs.incrementFailedCalls)
	assert.Equal(t, enum.ErrorKindNonRetryable.String(), jobs.lastError.Kind)
}

func TestProcess_FinalizesCompletedWhenAllSent(t *testing.T) {
	jobs := &trackingJobRepository{job: pendingJob(1)}
	worker, _ := newWorker(jobs, &trackingTriggerRepository{}, &scriptedSender{})

	err := worker.Process(context.Background(), trigger())

	require.NoError(t, err)
	assert.Equal(t, enum.JobStatusCompleted, jobs.finalizedStatus)
}

func TestProcess_FinalizesCompletedWithErrorsOnAnyFailure(t *testing.T) {
	job := pendingJob(2)
	job.Sent = 1 // one recipient already delivered
	jobs := &trackingJobRepository{job: job}
	sender := &scriptedSender{errs: []error{errors.New("mailbox does not exist")}}
	worker, _ := newWorker(jobs, &trackingTriggerRepository{}, sender)

	err := worker.Process(context.Background(), trigger())

	require.Error(t, err)
	assert.Equal(t, enum.JobStatusCompletedWithErrors, jobs.finalizedStatus)
}

func TestProcess_FinalizeHappensOnce(t *testing.T) {
	job := pendingJob(1)
	job.Status = enum.JobStatusCompleted // already transitioned by a racer
	jobs := &trackingJobRepository{job: job}
	worker, _ := newWorker(jobs, &trackingTriggerRepository{}, &scriptedSender{})

	err := worker.Process(context.Background(), trigger())

	require.NoError(t, err)
	assert.Equal(t, 1, jobs.finalizeCalls)
	assert.Empty(t, jobs.finalizedStatus)
}

func TestProcess_TriggerDeleteFailureIsNonFatal(t *testing.T) {
	jobs := &trackingJobRepository{job: pendingJob(5)}
	triggers := &trackingTriggerRepository{deleteErr: errors.New("db down")}
	worker, _ := newWorker(jobs, triggers, &scriptedSender{})

	err := worker.Process(context.Background(), trigger())

	require.NoError(t, err)
	assert.Equal(t, 1, jobs.incrementSentCalls)
}

func TestProcess_LastErrorMessageTruncated(t *testing.T) {
	long := make([]byte, 700)
	for i := range long {
		long[i] = 'x'
	}
	sender := &scriptedSender{errs: []error{errors.New(string(long))}}
	jobs := &trackingJobRepository{job: pendingJob(5)}
	worker, _ := newWorker(jobs, &trackingTriggerRepository{}, sender)

	err := worker.Process(context.Background(), trigger())

	require.Error(t, err)
	assert.LessOrEqual(t, len(jobs.lastError.Message), lastErrorMessageLimit)
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected enum.ErrorKind
	}{
		{"429 status", &textproto.Error{Code: 429, Msg: "too many requests"}, enum.ErrorKindRetryable},
		{"503 status", &textproto.Error{Code: 503, Msg: "unavailable"}, enum.ErrorKindRetryable},
		{"504 status", &textproto.Error{Code: 504, Msg: "gateway timeout"}, enum.ErrorKindRetryable},
		{"550 status", &textproto.Error{Code: 550, Msg: "user unknown"}, enum.ErrorKindNonRetryable},
		{"throttle signature", errors.New("request was Throttled"), enum.ErrorKindRetryable},
		{"timeout signature", errors.New("i/o timeout"), enum.ErrorKindRetryable},
		{"wrapped retryable", errors.Wrap(&textproto.Error{Code: 429, Msg: "slow down"}, "send failed"), enum.ErrorKindRetryable},
		{"malformed content", errors.New("message body rejected"), enum.ErrorKindNonRetryable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, classifyError(tt.err))
		})
	}
}
