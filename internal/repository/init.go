package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/mikklepp/trickle/config"
	"github.com/mikklepp/trickle/interfaces"
	"github.com/mikklepp/trickle/internal/models"
	"github.com/mikklepp/trickle/services/storage"
)

type Repositories struct {
	JobRepository             interfaces.JobRepository
	DeliveryTriggerRepository interfaces.DeliveryTriggerRepository
	DeliveryEventRepository   interfaces.DeliveryEventRepository
	SenderRepository          interfaces.SenderRepository
	AttachmentStorage         interfaces.StorageService
}

func InitRepositories(db *gorm.DB, storageConfig *config.StorageConfig) *Repositories {
	attachmentStorage := storage.NewS3StorageService(
		storageConfig.Region,
		storageConfig.AccessKeyID,
		storageConfig.AccessKeySecret,
		storageConfig.AttachmentBucket,
		false, // private access
	)

	return &Repositories{
		JobRepository:             NewJobRepository(db),
		DeliveryTriggerRepository: NewDeliveryTriggerRepository(db),
		DeliveryEventRepository:   NewDeliveryEventRepository(db),
		SenderRepository:          NewSenderRepository(db),
		AttachmentStorage:         attachmentStorage,
	}
}

func MigrateDB(dbConfig *config.DatabaseConfig, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	sqlDB.SetMaxOpenConns(5)

	err = db.AutoMigrate(
		&models.Job{},
		&models.DeliveryTrigger{},
		&models.DeliveryEvent{},
		&models.Sender{},
	)

	sqlDB.SetMaxIdleConns(dbConfig.MaxIdleConn)
	sqlDB.SetMaxOpenConns(dbConfig.MaxConn)
	sqlDB.SetConnMaxLifetime(time.Duration(dbConfig.ConnMaxLifetime) * time.Minute)

	return err
}
