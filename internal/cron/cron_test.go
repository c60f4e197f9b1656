package cron

import (
	"os"
	"testing"

	cronv3 "github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"k8s.io/client-go/kubernetes"

	"github.com/mikklepp/trickle/config"
	cron_config "github.com/mikklepp/trickle/internal/cron/config"
	"github.com/mikklepp/trickle/internal/logger"
)

type mockKubernetesInterface struct {
	kubernetes.Interface
	mock.Mock
}

func getLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{
		DevMode: true,
	})
	appLogger.InitLogger()
	return appLogger
}

func TestNewCronManager(t *testing.T) {
	// Arrange
	cfg := &config.Config{
		Logger: &logger.Config{
			LogLevel: "info",
		},
		DeliveryConfig: &config.DeliveryConfig{
			DispatchBatchSize: 100,
		},
	}
	log := getLogger()
	k8s := &mockKubernetesInterface{}

	// Act
	cm := NewCronManager(cfg, log, k8s, nil, nil)

	// Assert
	assert.NotNil(t, cm)
	assert.Equal(t, cfg, cm.cfg)
	assert.Equal(t, log, cm.log)
	assert.Equal(t, k8s, cm.k8s)
	assert.NotNil(t, cm.jobIDs)
}

func TestCronManager_StartCron(t *testing.T) {
	// Set environment variable for testing
	os.Setenv("CRON_SCHEDULE_DISPATCH_TRIGGERS", "*/15 * * * * *")
	os.Setenv("CRON_SCHEDULE_PURGE_EXPIRED", "0 0 * * * *")
	defer os.Unsetenv("CRON_SCHEDULE_DISPATCH_TRIGGERS")
	defer os.Unsetenv("CRON_SCHEDULE_PURGE_EXPIRED")

	// Arrange
	cfg := &config.Config{
		Logger: &logger.Config{
			LogLevel: "info",
		},
		DeliveryConfig: &config.DeliveryConfig{
			DispatchBatchSize: 100,
		},
	}
	log := getLogger()
	k8s := &mockKubernetesInterface{}
	cm := NewCronManager(cfg, log, k8s, nil, nil)

	// Create a mock cron for testing
	mockCron := cronv3.New(cronv3.WithSeconds())

	// Register jobs directly
	var cronConfig cron_config.Config
	cronConfig.CronScheduleDispatchTriggers = "*/15 * * * * *"
	cronConfig.CronSchedulePurgeExpired = "0 0 * * * *"

	// Act - register jobs manually
	dispatchId, err := mockCron.AddFunc(cronConfig.CronScheduleDispatchTriggers, func() {})
	assert.NoError(t, err)
	cm.jobIDs["dispatch_triggers"] = dispatchId

	purgeId, err := mockCron.AddFunc(cronConfig.CronSchedulePurgeExpired, func() {})
	assert.NoError(t, err)
	cm.jobIDs["purge_expired"] = purgeId

	cm.cron = mockCron

	// Assert
	assert.NotNil(t, cm.cron)
	assert.Equal(t, 2, len(cm.jobIDs))
}

func TestCronManager_Stop(t *testing.T) {
	// Arrange
	cfg := &config.Config{
		Logger: &logger.Config{
			LogLevel: "info",
		},
		DeliveryConfig: &config.DeliveryConfig{
			DispatchBatchSize: 100,
		},
	}
	log := getLogger()
	k8s := &mockKubernetesInterface{}
	cm := NewCronManager(cfg, log, k8s, nil, nil)

	// Create a mock cron for testing
	mockCron := cronv3.New()
	mockCron.Start()
	cm.cron = mockCron

	// Act
	cm.Stop()

	// Assert
	select {
	case <-cm.stopCh:
		// Channel is closed as expected
	default:
		t.Error("Stop channel was not closed")
	}
}
