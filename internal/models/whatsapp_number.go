package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Gateway providers a number can be connected through
const (
	ProviderZAPI   = "zapi"
	ProviderTwilio = "twilio"
	ProviderMeta   = "meta"
)

// ValidProvider reports whether provider names a supported gateway
func ValidProvider(provider string) bool {
	switch provider {
	case ProviderZAPI, ProviderTwilio, ProviderMeta:
		return true
	}
	return false
}

// WhatsAppNumber is one provider-connected WhatsApp line
type WhatsAppNumber struct {
	ID          string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	InstanceID  string     `gorm:"uniqueIndex;not null" json:"instance_id"`
	Token       string     `gorm:"not null" json:"token"`
	Name        string     `json:"name"`
	PhoneNumber *string    `json:"phone_number,omitempty"`
	Provider    string     `gorm:"default:'zapi'" json:"provider"`
	IsConnected bool       `gorm:"default:false" json:"is_connected"`
	LastSeen    *time.Time `json:"last_seen,omitempty"`
	InboxID     *int       `gorm:"index" json:"inbox_id,omitempty"`
	QRCode      *string    `gorm:"type:text" json:"qr_code,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	Flows []BotFlow `gorm:"foreignKey:WhatsAppNumberID;constraint:OnDelete:CASCADE" json:"-"`
}

func (WhatsAppNumber) TableName() string {
	return "whatsapp_numbers"
}

func (n *WhatsAppNumber) BeforeCreate(tx *gorm.DB) error {
	n.ensureDefaults()
	return nil
}

func (n *WhatsAppNumber) ensureDefaults() {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Provider == "" {
		n.Provider = ProviderZAPI
	}
}

// EnsureDefaults fills the id and provider for stores that skip gorm hooks
func (n *WhatsAppNumber) EnsureDefaults() {
	n.ensureDefaults()
}

// MarkSeen records a connection state observation
func (n *WhatsAppNumber) MarkSeen(connected bool, at time.Time) {
	n.IsConnected = connected
	n.LastSeen = &at
}
