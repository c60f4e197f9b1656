package cron

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/caarlos0/env/v6"
	cronv3 "github.com/robfig/cron/v3"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/leaderelection"
	"k8s.io/client-go/tools/leaderelection/resourcelock"

	"github.com/mikklepp/trickle/config"
	"github.com/mikklepp/trickle/dto"
	"github.com/mikklepp/trickle/interfaces"
	cron_config "github.com/mikklepp/trickle/internal/cron/config"
	"github.com/mikklepp/trickle/internal/logger"
	"github.com/mikklepp/trickle/internal/repository"
	"github.com/mikklepp/trickle/internal/tracing"
	"github.com/mikklepp/trickle/internal/utils"
)

// CONSTANTS
const (
	// GroupTrickle is the group for trickle delivery jobs
	GroupTrickle = "trickle"

	// LeaseDuration is how long a lease lasts before needing renewal
	LeaseDuration = 15 * time.Second
	// RenewDeadline is how long a leader has to renew its lease
	RenewDeadline = 10 * time.Second
	// RetryPeriod is how long to wait between leadership attempts
	RetryPeriod = 2 * time.Second
)

// LOCK MANAGEMENT
var jobLocks = struct {
	sync.Mutex
	locks map[string]*sync.Mutex
}{
	locks: map[string]*sync.Mutex{
		GroupTrickle: new(sync.Mutex),
	},
}

type CronManager struct {
	cfg          *config.Config
	log          logger.Logger
	cron         *cronv3.Cron
	k8s          kubernetes.Interface
	stopCh       chan struct{}
	jobIDs       map[string]cronv3.EntryID
	repositories *repository.Repositories
	publisher    interfaces.TriggerPublisher
}

func NewCronManager(cfg *config.Config, log logger.Logger, k8s kubernetes.Interface, repositories *repository.Repositories, publisher interfaces.TriggerPublisher) *CronManager {
	return &CronManager{
		cfg:          cfg,
		log:          log,
		k8s:          k8s,
		stopCh:       make(chan struct{}),
		jobIDs:       make(map[string]cronv3.EntryID),
		repositories: repositories,
		publisher:    publisher,
	}
}

// Start initializes and starts the cron manager with leader election
// If k8s is nil, it will start in local mode without leader election
func (cm *CronManager) Start(podName, namespace string) error {
	// If k8s client is nil or we're in local development, start in local mode
	if cm.k8s == nil || os.Getenv("LOCAL_DEV") == "true" {
		cm.log.Info("Starting cron manager in local mode")
		cm.StartCron()
		return nil
	}

	// Create the leader election lock
	lock := &resourcelock.LeaseLock{
		LeaseMeta: metav1.ObjectMeta{
			Name:      "trickle-cron-leader",
			Namespace: namespace,
		},
		Client: cm.k8s.CoordinationV1(),
		LockConfig: resourcelock.ResourceLockConfig{
			Identity: podName,
		},
	}

	// Channel to track leader election errors
	errCh := make(chan error, 1)

	// Start leader election
	go func() {
		le, err := leaderelection.NewLeaderElector(leaderelection.LeaderElectionConfig{
			Lock:            lock,
			ReleaseOnCancel: true,
			LeaseDuration:   LeaseDuration,
			RenewDeadline:   RenewDeadline,
			RetryPeriod:     RetryPeriod,
			Callbacks: leaderelection.LeaderCallbacks{
				OnStartedLeading: func(ctx context.Context) {
					cm.StartCron()
				},
				OnStoppedLeading: func() {
					cm.log.Info("Leader lost - stopping crons")
					cm.Stop()
				},
				OnNewLeader: func(identity string) {
					cm.log.Infof("New leader elected: %s", identity)
				},
			},
		})
		if err != nil {
			errCh <- err
			return
		}

		ctx := context.Background()
		le.Run(ctx)
	}()

	// Wait briefly to see if leader election fails immediately
	select {
	case err := <-errCh:
		cm.log.Warnf("Leader election failed, falling back to local mode: %v", err)
		cm.StartCron()
	case <-time.After(5 * time.Second):
		// Leader election seems to be working, continue normally
	}

	return nil
}

// Stop gracefully stops the cron manager
func (cm *CronManager) Stop() {
	if cm.cron != nil {
		cm.log.Info("Stopping cron manager")
		ctx := cm.cron.Stop()
		// Wait for jobs to finish
		<-ctx.Done()
	}
	close(cm.stopCh)
}

// registerJobs adds all cron jobs to the scheduler
func (cm *CronManager) registerJobs(c *cronv3.Cron) {
	// Load cron config from environment variables
	var cronConfig cron_config.Config
	if err := env.Parse(&cronConfig); err != nil {
		cm.log.Fatalf("Failed to parse cron config from environment: %v", err)
	}

	// Register heartbeat job
	if cronConfig.CronScheduleHeartbeat != "" {
		podName := os.Getenv("POD_NAME")
		if podName == "" {
			podName = "local"
		}
		id, err := c.AddFunc(cronConfig.CronScheduleHeartbeat, func() {
			defer tracing.RecoverAndLogToJaeger(cm.log)
			cm.log.Infof("Cron heartbeat from pod: %s", podName)
		})
		if err != nil {
			cm.log.Fatalf("Could not add heartbeat cron job: %v", err)
		}
		cm.jobIDs["heartbeat"] = id
		cm.log.Infof("Registered heartbeat job with schedule: %s", cronConfig.CronScheduleHeartbeat)
	}

	// Dispatch due delivery triggers to the worker queue
	if cronConfig.CronScheduleDispatchTriggers != "" {
		id, err := c.AddFunc(cronConfig.CronScheduleDispatchTriggers, func() {
			defer tracing.RecoverAndLogToJaeger(cm.log)
			jobLocks.locks[GroupTrickle].Lock()
			defer jobLocks.locks[GroupTrickle].Unlock()
			cm.dispatchDueTriggers()
		})
		if err != nil {
			cm.log.Fatalf("Could not add trigger dispatch cron job: %v", err)
		}
		cm.jobIDs["dispatch_triggers"] = id
		cm.log.Infof("Registered trigger dispatch job with schedule: %s", cronConfig.CronScheduleDispatchTriggers)
	}

	// Purge expired jobs, triggers and events
	if cronConfig.CronSchedulePurgeExpired != "" {
		id, err := c.AddFunc(cronConfig.CronSchedulePurgeExpired, func() {
			defer tracing.RecoverAndLogToJaeger(cm.log)
			cm.purgeExpired()
		})
		if err != nil {
			cm.log.Fatalf("Could not add purge cron job: %v", err)
		}
		cm.jobIDs["purge_expired"] = id
		cm.log.Infof("Registered purge job with schedule: %s", cronConfig.CronSchedulePurgeExpired)
	}
}

// StartCron initializes and starts the cron scheduler
func (cm *CronManager) StartCron() {
	cm.log.Info("Starting cron manager")
	// Create a new cron with seconds field enabled and panic recovery
	cronOptions := []cronv3.Option{
		cronv3.WithSeconds(),
		cronv3.WithChain(
			cronv3.SkipIfStillRunning(cronv3.DefaultLogger), // Skip if still running
			cronv3.Recover(cronv3.DefaultLogger),            // Default recovery as backup
		),
	}
	c := cronv3.New(cronOptions...)
	cm.registerJobs(c)
	c.Start()
	cm.cron = c
}

// dispatchDueTriggers publishes every trigger whose fire time has passed.
// Fire times are targets, not guarantees: a tick picks up whatever is due,
// so triggers may fire late but never early.
func (cm *CronManager) dispatchDueTriggers() {
	ctx := context.Background()

	span, ctx := tracing.StartTracerSpan(ctx, "CronManager.dispatchDueTriggers")
	defer span.Finish()
	tracing.TagComponentCronJob(span)

	batchSize := cm.cfg.DeliveryConfig.DispatchBatchSize
	due, err := cm.repositories.DeliveryTriggerRepository.GetDue(ctx, utils.Now(), batchSize)
	if err != nil {
		tracing.TraceErr(span, err)
		cm.log.Errorf("Failed to load due triggers: %v", err)
		return
	}
	if len(due) == 0 {
		return
	}

	dispatched := 0
	for _, trigger := range due {
		payload := dto.DeliveryTrigger{
			TriggerID:      trigger.ID,
			JobID:          trigger.JobID,
			Recipient:      trigger.Recipient,
			Sender:         trigger.Sender,
			Subject:        trigger.Subject,
			Content:        trigger.Content,
			AttachmentRefs: []string(trigger.AttachmentKeys),
		}
		if err := cm.publisher.PublishDeliveryTrigger(ctx, payload); err != nil {
			tracing.TraceErr(span, err)
			cm.log.Errorf("Failed to publish trigger %s, will retry next tick: %v", trigger.ID, err)
			continue
		}
		if err := cm.repositories.DeliveryTriggerRepository.MarkDispatched(ctx, trigger.ID, utils.Now()); err != nil {
			tracing.TraceErr(span, err)
			cm.log.Errorf("Failed to mark trigger %s dispatched: %v", trigger.ID, err)
		}
		dispatched++
	}

	cm.log.Infof("Dispatched %d of %d due trigger(s)", dispatched, len(due))
}

// purgeExpired removes rows past their retention horizon.
func (cm *CronManager) purgeExpired() {
	ctx := context.Background()

	span, ctx := tracing.StartTracerSpan(ctx, "CronManager.purgeExpired")
	defer span.Finish()
	tracing.TagComponentCronJob(span)

	now := utils.Now()

	if removed, err := cm.repositories.DeliveryTriggerRepository.DeleteExpired(ctx, now); err != nil {
		tracing.TraceErr(span, err)
		cm.log.Errorf("Failed to purge expired triggers: %v", err)
	} else if removed > 0 {
		cm.log.Infof("Purged %d expired trigger(s)", removed)
	}

	if removed, err := cm.repositories.DeliveryEventRepository.DeleteExpired(ctx, now); err != nil {
		tracing.TraceErr(span, err)
		cm.log.Errorf("Failed to purge expired delivery events: %v", err)
	} else if removed > 0 {
		cm.log.Infof("Purged %d expired delivery event(s)", removed)
	}

	if removed, err := cm.repositories.JobRepository.DeleteExpired(ctx, now); err != nil {
		tracing.TraceErr(span, err)
		cm.log.Errorf("Failed to purge expired jobs: %v", err)
	} else if removed > 0 {
		cm.log.Infof("Purged %d expired job(s)", removed)
	}
}
