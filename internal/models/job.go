package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/mikklepp/trickle/internal/enum"
	"github.com/mikklepp/trickle/internal/utils"
)

// Job represents one bulk-send request with aggregate progress counters.
// The sent and failed counters are mutated only through atomic increments
// (see JobRepository); never update them with a read-modify-write.
type Job struct {
	ID      string `gorm:"column:id;type:varchar(50);primaryKey" json:"jobId"`
	UserID  string `gorm:"column:user_id;type:varchar(255);index;not null" json:"userId"`
	Sender  string `gorm:"column:sender;type:varchar(255);not null" json:"sender"`
	Subject string `gorm:"column:subject;type:varchar(1000);not null" json:"subject"`
	Content string `gorm:"column:content;type:text;not null" json:"-"`

	AttachmentKeys pq.StringArray `gorm:"column:attachment_keys;type:text[]" json:"-"`

	TotalRecipients int `gorm:"column:total_recipients;not null" json:"totalRecipients"`
	Sent            int `gorm:"column:sent;not null;default:0" json:"sent"`
	Failed          int `gorm:"column:failed;not null;default:0" json:"failed"`

	Status enum.JobStatus `gorm:"column:status;type:varchar(50);index;not null" json:"status"`

	CreatedAt   time.Time  `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	CompletedAt *time.Time `gorm:"column:completed_at;type:timestamp" json:"completedAt,omitempty"`
	ExpiresAt   time.Time  `gorm:"column:expires_at;type:timestamp;index" json:"-"`

	// Last per-recipient failure observed, not a full error log.
	LastErrorRecipient string         `gorm:"column:last_error_recipient;type:varchar(255)" json:"-"`
	LastErrorKind      enum.ErrorKind `gorm:"column:last_error_kind;type:varchar(50)" json:"-"`
	LastErrorMessage   string         `gorm:"column:last_error_message;type:varchar(512)" json:"-"`
	LastErrorAt        *time.Time     `gorm:"column:last_error_at;type:timestamp" json:"lastErrorAt,omitempty"`
}

func (Job) TableName() string {
	return "jobs"
}

func (j *Job) BeforeCreate(tx *gorm.DB) error {
	if j.ID == "" {
		j.ID = utils.GenerateNanoIDWithPrefix("job", 21)
	}
	if j.CreatedAt.IsZero() {
		j.CreatedAt = utils.Now()
	}
	return nil
}

// LastError is the API shape of the last failure details.
type LastError struct {
	Recipient string `json:"recipient"`
	Kind      string `json:"kind"`
	Message   string `json:"message"`
}

func (j *Job) LastError() *LastError {
	if j.LastErrorAt == nil {
		return nil
	}
	return &LastError{
		Recipient: j.LastErrorRecipient,
		Kind:      j.LastErrorKind.String(),
		Message:   j.LastErrorMessage,
	}
}
