package scheduler

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikklepp/trickle/config"
	"github.com/mikklepp/trickle/dto"
	trickle_errors "github.com/mikklepp/trickle/errors"
	"github.com/mikklepp/trickle/internal/enum"
	"github.com/mikklepp/trickle/internal/logger"
	"github.com/mikklepp/trickle/internal/models"
)

type fakeJobRepository struct {
	jobs       map[string]*models.Job
	markFailed []string
	createErr  error
}

func newFakeJobRepository() *fakeJobRepository {
	return &fakeJobRepository{jobs: map[string]*models.Job{}}
}

func (f *fakeJobRepository) Create(ctx context.Context, job *models.Job) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	job.ID = fmt.Sprintf("job_%d", len(f.jobs)+1)
	f.jobs[job.ID] = job
	return job.ID, nil
}

func (f *fakeJobRepository) GetByID(ctx context.Context, id string) (*models.Job, error) {
	return f.jobs[id], nil
}

func (f *fakeJobRepository) SetAttachmentKeys(ctx context.Context, id string, keys []string) error {
	f.jobs[id].AttachmentKeys = pq.StringArray(keys)
	return nil
}

func (f *fakeJobRepository) IncrementSent(ctx context.Context, id string) (*models.Job, error) {
	return nil, nil
}

func (f *fakeJobRepository) IncrementFailed(ctx context.Context, id string, lastError models.LastError, at time.Time) (*models.Job, error) {
	return nil, nil
}

func (f *fakeJobRepository) Finalize(ctx context.Context, id string, status enum.JobStatus, completedAt time.Time) (bool, error) {
	return false, nil
}

func (f *fakeJobRepository) MarkFailed(ctx context.Context, id string) error {
	f.markFailed = append(f.markFailed, id)
	return nil
}

func (f *fakeJobRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

type fakeTriggerRepository struct {
	created    []*models.DeliveryTrigger
	deletedIDs []string
	createErr  error
}

func (f *fakeTriggerRepository) CreateBatch(ctx context.Context, triggers []*models.DeliveryTrigger) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, triggers...)
	return nil
}

func (f *fakeTriggerRepository) Delete(ctx context.Context, id string) error {
	f.deletedIDs = append(f.deletedIDs, id)
	return nil
}

func (f *fakeTriggerRepository) DeleteByIDs(ctx context.Context, ids []string) error {
	f.deletedIDs = append(f.deletedIDs, ids...)
	return nil
}

func (f *fakeTriggerRepository) GetDue(ctx context.Context, now time.Time, limit int) ([]models.DeliveryTrigger, error) {
	return nil, nil
}

func (f *fakeTriggerRepository) MarkDispatched(ctx context.Context, id string, at time.Time) error {
	return nil
}

func (f *fakeTriggerRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

type fakeSenderRepository struct {
	senders map[string]*models.Sender
}

func (f *fakeSenderRepository) Create(ctx context.Context, sender *models.Sender) (string, error) {
	return "", nil
}

func (f *fakeSenderRepository) GetByAddress(ctx context.Context, emailAddress string) (*models.Sender, error) {
	return f.senders[emailAddress], nil
}

type fakeStorage struct {
	uploaded  map[string][]byte
	deleted   []string
	failAfter int // fail the (failAfter+1)-th upload; -1 disables
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{uploaded: map[string][]byte{}, failAfter: -1}
}

func (f *fakeStorage) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	if f.failAfter >= 0 && len(f.uploaded) >= f.failAfter {
		return errors.New("bucket unavailable")
	}
	f.uploaded[key] = data
	return nil
}

func (f *fakeStorage) Download(ctx context.Context, key string) ([]byte, error) {
	return f.uploaded[key], nil
}

func (f *fakeStorage) Delete(ctx context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	delete(f.uploaded, key)
	return nil
}

func getLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{
		DevMode: true,
	})
	appLogger.InitLogger()
	return appLogger
}

func deliveryConfig() *config.DeliveryConfig {
	return &config.DeliveryConfig{
		DefaultRateIntervalSeconds: 60,
		MaxRecipients:              500,
		JobRetentionDays:           90,
		EventRetentionDays:         90,
		TriggerGraceHours:          24,
	}
}

func newService(jobs *fakeJobRepository, triggers *fakeTriggerRepository, storage *fakeStorage) *SchedulerService {
	senders := &fakeSenderRepository{senders: map[string]*models.Sender{
		"sender@example.com": {EmailAddress: "sender@example.com", IsVerified: true},
	}}
	return NewSchedulerService(getLogger(), deliveryConfig(), jobs, triggers, senders, storage)
}

func submission() *dto.JobSubmission {
	return &dto.JobSubmission{
		Sender:              "sender@example.com",
		Recipients:          "a@example.com;b@example.com;c@example.com",
		Subject:             "Quarterly update",
		Content:             "Hello",
		RateIntervalSeconds: 30,
	}
}

func TestSubmit_CreatesJobAndTriggers(t *testing.T) {
	jobs := newFakeJobRepository()
	triggers := &fakeTriggerRepository{}
	service := newService(jobs, triggers, newFakeStorage())

	result, err := service.Submit(context.Background(), submission())

	require.NoError(t, err)
	assert.Equal(t, 3, result.TotalRecipients)

	job := jobs.jobs[result.JobID]
	require.NotNil(t, job)
	assert.Equal(t, enum.JobStatusPending, job.Status)
	assert.Equal(t, 3, job.TotalRecipients)
	assert.Zero(t, job.Sent)
	assert.Zero(t, job.Failed)

	require.Len(t, triggers.created, 3)
	for i, trigger := range triggers.created {
		assert.Equal(t, fmt.Sprintf("%s-%d", result.JobID, i), trigger.ID)
		assert.Equal(t, result.JobID, trigger.JobID)
	}
}

func TestSubmit_TriggerFireTimesSpacedByInterval(t *testing.T) {
	triggers := &fakeTriggerRepository{}
	service := newService(newFakeJobRepository(), triggers, newFakeStorage())

	_, err := service.Submit(context.Background(), submission())

	require.NoError(t, err)
	require.Len(t, triggers.created, 3)
	first := triggers.created[0].FireAt
	assert.Equal(t, 30*time.Second, triggers.created[1].FireAt.Sub(first))
	assert.Equal(t, 60*time.Second, triggers.created[2].FireAt.Sub(first))
}

func TestSubmit_DeduplicatesRecipients(t *testing.T) {
	triggers := &fakeTriggerRepository{}
	service := newService(newFakeJobRepository(), triggers, newFakeStorage())

	s := submission()
	s.Recipients = "a@example.com;b@example.com;a@example.com"

	result, err := service.Submit(context.Background(), s)

	require.NoError(t, err)
	assert.Equal(t, 2, result.TotalRecipients)
	assert.Len(t, triggers.created, 2)
}

func TestSubmit_DedupIsCaseSensitive(t *testing.T) {
	triggers := &fakeTriggerRepository{}
	service := newService(newFakeJobRepository(), triggers, newFakeStorage())

	s := submission()
	s.Recipients = "a@example.com;A@example.com"

	result, err := service.Submit(context.Background(), s)

	require.NoError(t, err)
	assert.Equal(t, 2, result.TotalRecipients)
}

func TestSubmit_RejectsMalformedRecipients(t *testing.T) {
	service := newService(newFakeJobRepository(), &fakeTriggerRepository{}, newFakeStorage())

	s := submission()
	bad := make([]string, 0, 12)
	for i := 0; i < 12; i++ {
		bad = append(bad, fmt.Sprintf("not-an-address-%d", i))
	}
	s.Recipients = strings.Join(bad, ";")

	_, err := service.Submit(context.Background(), s)

	var malformedErr *trickle_errors.MalformedRecipientsError
	require.ErrorAs(t, err, &malformedErr)
	assert.Equal(t, 12, malformedErr.Total)
	assert.Len(t, malformedErr.Sample, trickle_errors.MalformedSampleLimit)
}

func TestSubmit_RejectsEmptyRecipients(t *testing.T) {
	service := newService(newFakeJobRepository(), &fakeTriggerRepository{}, newFakeStorage())

	s := submission()
	s.Recipients = " ; ;"

	_, err := service.Submit(context.Background(), s)

	require.ErrorIs(t, err, trickle_errors.ErrNoRecipients)
}

func TestSubmit_RejectsOverCeiling(t *testing.T) {
	service := newService(newFakeJobRepository(), &fakeTriggerRepository{}, newFakeStorage())

	addresses := make([]string, 0, 501)
	for i := 0; i < 501; i++ {
		addresses = append(addresses, fmt.Sprintf("user%d@example.com", i))
	}
	s := submission()
	s.Recipients = strings.Join(addresses, ";")

	_, err := service.Submit(context.Background(), s)

	require.ErrorIs(t, err, trickle_errors.ErrTooManyRecipients)
}

func TestSubmit_RejectsUnverifiedSender(t *testing.T) {
	service := newService(newFakeJobRepository(), &fakeTriggerRepository{}, newFakeStorage())

	s := submission()
	s.Sender = "unknown@example.com"

	_, err := service.Submit(context.Background(), s)

	require.ErrorIs(t, err, trickle_errors.ErrSenderNotVerified)
}

func TestSubmit_RejectsEmptySubjectAndContent(t *testing.T) {
	service := newService(newFakeJobRepository(), &fakeTriggerRepository{}, newFakeStorage())

	s := submission()
	s.Subject = "  "
	_, err := service.Submit(context.Background(), s)
	require.ErrorIs(t, err, ErrEmptySubject)

	s = submission()
	s.Content = ""
	_, err = service.Submit(context.Background(), s)
	require.ErrorIs(t, err, ErrEmptyContent)
}

func TestSubmit_RejectsOversizedContent(t *testing.T) {
	service := newService(newFakeJobRepository(), &fakeTriggerRepository{}, newFakeStorage())

	s := submission()
	s.Content = strings.Repeat("a", maxContentBytes+1)
	_, err := service.Submit(context.Background(), s)

	require.ErrorIs(t, err, ErrContentTooLarge)
}

func TestSubmit_UploadsAttachments(t *testing.T) {
	storage := newFakeStorage()
	jobs := newFakeJobRepository()
	service := newService(jobs, &fakeTriggerRepository{}, storage)

	s := submission()
	s.Attachments = []dto.SubmissionAttachment{
		{Filename: "report.pdf", ContentType: "application/pdf", Content: []byte("pdf")},
	}

	result, err := service.Submit(context.Background(), s)

	require.NoError(t, err)
	assert.Len(t, storage.uploaded, 1)
	assert.Len(t, jobs.jobs[result.JobID].AttachmentKeys, 1)
}

func TestSubmit_RollbackOnTriggerFailure(t *testing.T) {
	storage := newFakeStorage()
	jobs := newFakeJobRepository()
	triggers := &fakeTriggerRepository{createErr: errors.New("db down")}
	service := newService(jobs, triggers, storage)

	s := submission()
	s.Attachments = []dto.SubmissionAttachment{
		{Filename: "report.pdf", ContentType: "application/pdf", Content: []byte("pdf")},
	}

	_, err := service.Submit(context.Background(), s)

	require.Error(t, err)
	// every created-so-far resource is cleaned up and the job marked failed
	assert.Len(t, triggers.deletedIDs, 3)
	assert.Empty(t, storage.uploaded)
	assert.Equal(t, []string{"job_1"}, jobs.markFailed)
}

func TestSubmit_RollbackOnAttachmentFailure(t *testing.T) {
	storage := newFakeStorage()
	storage.failAfter = 1
	jobs := newFakeJobRepository()
	triggers := &fakeTriggerRepository{}
	service := newService(jobs, triggers, storage)

	s := submission()
	s.Attachments = []dto.SubmissionAttachment{
		{Filename: "a.pdf", ContentType: "application/pdf", Content: []byte("a")},
		{Filename: "b.pdf", ContentType: "application/pdf", Content: []byte("b")},
	}

	_, err := service.Submit(context.Background(), s)

	require.Error(t, err)
	assert.Empty(t, triggers.created)
	assert.Empty(t, storage.uploaded)
	assert.Equal(t, []string{"job_1"}, jobs.markFailed)
}
