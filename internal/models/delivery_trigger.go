package models

import (
	"fmt"
	"time"

	"github.com/lib/pq"
)

// DeliveryTrigger is an ephemeral, time-scheduled instruction to send one
// email to one recipient. It carries the full payload needed to send so the
// worker never needs a recipient-level lookup. The row is deleted once the
// worker has processed it, or purged when it expires without firing.
type DeliveryTrigger struct {
	ID        string `gorm:"column:id;type:varchar(100);primaryKey" json:"triggerId"`
	JobID     string `gorm:"column:job_id;type:varchar(50);index;not null" json:"jobId"`
	Recipient string `gorm:"column:recipient;type:varchar(255);not null" json:"recipient"`
	Sender    string `gorm:"column:sender;type:varchar(255);not null" json:"sender"`
	Subject   string `gorm:"column:subject;type:varchar(1000);not null" json:"subject"`
	Content   string `gorm:"column:content;type:text;not null" json:"content"`

	AttachmentKeys pq.StringArray `gorm:"column:attachment_keys;type:text[]" json:"attachmentRefs"`

	FireAt       time.Time  `gorm:"column:fire_at;type:timestamp;index;not null" json:"fireAt"`
	DispatchedAt *time.Time `gorm:"column:dispatched_at;type:timestamp" json:"-"`
	ExpiresAt    time.Time  `gorm:"column:expires_at;type:timestamp;index" json:"-"`
	CreatedAt    time.Time  `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"-"`
}

func (DeliveryTrigger) TableName() string {
	return "delivery_triggers"
}

// TriggerID embeds the job id and the recipient index so trigger identifiers
// are unique across jobs and the worker can reference the job directly.
func TriggerID(jobID string, index int) string {
	return fmt.Sprintf("%s-%d", jobID, index)
}
