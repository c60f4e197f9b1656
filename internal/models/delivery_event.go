package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/mikklepp/trickle/internal/enum"
	"github.com/mikklepp/trickle/internal/utils"
)

// DeliveryEvent is one outcome notification from the email provider.
// Rows are append-only; there is no update or delete path except expiry.
type DeliveryEvent struct {
	ID         string         `gorm:"column:id;type:varchar(50);primaryKey" json:"-"`
	JobID      string         `gorm:"column:job_id;type:varchar(50);index:idx_delivery_events_job_time;not null" json:"jobId"`
	OccurredAt time.Time      `gorm:"column:occurred_at;type:timestamp;index:idx_delivery_events_job_time;not null" json:"timestamp"`
	Recipient  string         `gorm:"column:recipient;type:varchar(255);index" json:"recipient"`
	EventType  enum.EventType `gorm:"column:event_type;type:varchar(50);index" json:"eventType"`
	MessageID  string         `gorm:"column:message_id;type:varchar(255)" json:"messageId"`

	// Event-type-specific attributes: bounce type/subtype, diagnostic code,
	// SMTP response, link URL, user agent, complaint feedback type, etc.
	Details JSONMap `gorm:"column:details;type:jsonb" json:"details"`

	ExpiresAt time.Time `gorm:"column:expires_at;type:timestamp;index" json:"-"`
	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"-"`
}

func (DeliveryEvent) TableName() string {
	return "delivery_events"
}

func (e *DeliveryEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = utils.GenerateNanoIDWithPrefix("evt", 21)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = utils.Now()
	}
	return nil
}

// DetailString returns a string attribute from Details, or "" when absent.
func (e *DeliveryEvent) DetailString(key string) string {
	if e.Details == nil {
		return ""
	}
	if v, ok := e.Details[key].(string); ok {
		return v
	}
	return ""
}
