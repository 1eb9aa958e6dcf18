package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// BotSession tracks one phone number's progress through one flow.
// At most one active session exists per (phone, flow).
type BotSession struct {
	ID             string         `gorm:"primaryKey;type:varchar(36)" json:"id"`
	PhoneNumber    string         `gorm:"index;not null" json:"phone_number"`
	BotFlowID      string         `gorm:"type:varchar(36);index;not null" json:"bot_flow_id"`
	CurrentStep    string         `gorm:"default:'initial'" json:"current_step"`
	Context        datatypes.JSON `gorm:"type:jsonb" json:"context,omitempty"`
	IsActive       bool           `gorm:"default:true" json:"is_active"`
	ConversationID *int           `json:"conversation_id,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

func (s *BotSession) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CurrentStep == "" {
		s.CurrentStep = InitialStepKey
	}
	return nil
}
