package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SystemUserID is the actor recorded for automated actions
const SystemUserID = "system"

// Audit action tags
const (
	ActionZAPIMessageReceived = "ZAPI_MESSAGE_RECEIVED"
	ActionZAPIMessageError    = "ZAPI_MESSAGE_ERROR"
	ActionZAPIStatusUpdate    = "ZAPI_STATUS_UPDATE"
	ActionZAPIQRCodeUpdate    = "ZAPI_QRCODE_UPDATE"
	ActionTwilioMessage       = "TWILIO_MESSAGE_RECEIVED"
	ActionMetaMessage         = "META_MESSAGE_RECEIVED"
	ActionBotTransfer         = "BOT_TRANSFER"
	ActionMessageSent         = "MESSAGE_SENT"
	ActionConversationMove    = "CONVERSATION_TRANSFER"
	ActionLogin               = "LOGIN"
	ActionNumberCreated       = "WHATSAPP_NUMBER_CREATED"
	ActionNumberDeleted       = "WHATSAPP_NUMBER_DELETED"
	ActionFlowSaved           = "BOT_FLOW_SAVED"
	ActionUserSaved           = "USER_SAVED"
)

// AuditLog is an append-only record of an action
type AuditLog struct {
	ID             string         `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID         string         `gorm:"index;not null" json:"user_id"`
	Action         string         `gorm:"index;not null" json:"action"`
	ConversationID *string        `gorm:"index" json:"conversation_id,omitempty"`
	Metadata       datatypes.JSON `gorm:"type:jsonb" json:"metadata,omitempty"`
	Timestamp      time.Time      `gorm:"index" json:"timestamp"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now()
	}
	return nil
}
