package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/mikklepp/trickle/internal/utils"
)

// Sender is a provider-verified sending identity. Jobs may only be submitted
// from addresses present and verified here.
type Sender struct {
	ID           string     `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	UserID       string     `gorm:"column:user_id;type:varchar(255);index" json:"userId"`
	EmailAddress string     `gorm:"column:email_address;type:varchar(255);uniqueIndex;not null" json:"emailAddress"`
	DisplayName  string     `gorm:"column:display_name;type:varchar(255)" json:"displayName"`
	IsVerified   bool       `gorm:"column:is_verified;type:boolean;default:false" json:"isVerified"`
	VerifiedAt   *time.Time `gorm:"column:verified_at;type:timestamp" json:"verifiedAt,omitempty"`
	CreatedAt    time.Time  `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
}

func (Sender) TableName() string {
	return "senders"
}

func (m *Sender) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = utils.GenerateNanoIDWithPrefix("sndr", 16)
	}
	return nil
}
