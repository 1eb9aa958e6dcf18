package storage

import (
	"errors"

	"github.com/Ananth-NQI/whatsrelay-backend/internal/models"
)

// ErrNotFound is returned by every lookup that matches no record
var ErrNotFound = errors.New("record not found")

// ErrDuplicate is returned when a unique field is already taken
var ErrDuplicate = errors.New("record already exists")

// SessionFilter narrows ListSessions. Zero values match everything.
type SessionFilter struct {
	BotFlowID        string
	WhatsAppNumberID string
	PhoneNumber      string
	IsActive         *bool
}

// AuditFilter narrows ListAuditLogs
type AuditFilter struct {
	UserID         string
	ConversationID string
	Action         string // substring match
	Limit          int
	Offset         int
}

// Store defines the interface for storage operations
type Store interface {
	// WhatsApp number registry
	CreateNumber(number *models.WhatsAppNumber) (*models.WhatsAppNumber, error)
	GetNumber(id string) (*models.WhatsAppNumber, error)
	GetNumberByInstanceID(instanceID string) (*models.WhatsAppNumber, error)
	GetNumberByInboxID(inboxID int) (*models.WhatsAppNumber, error)
	GetFirstConnectedNumber() (*models.WhatsAppNumber, error)
	GetFirstNumber() (*models.WhatsAppNumber, error)
	ListNumbers() ([]*models.WhatsAppNumber, error)
	UpdateNumber(number *models.WhatsAppNumber) error
	DeleteNumber(id string) error

	// Bot flows. Saving an active flow deactivates the number's other flows.
	CreateFlow(flow *models.BotFlow) (*models.BotFlow, error)
	GetFlow(id string) (*models.BotFlow, error)
	GetActiveFlow(numberID string) (*models.BotFlow, error)
	ListFlows(numberID string) ([]*models.BotFlow, error)
	UpdateFlow(flow *models.BotFlow) error
	DeleteFlow(id string) error

	// Bot sessions
	CreateSession(session *models.BotSession) (*models.BotSession, error)
	GetSession(id string) (*models.BotSession, error)
	GetActiveSession(phone, flowID string) (*models.BotSession, error)
	ListSessions(filter SessionFilter) ([]*models.BotSession, error)
	UpdateSession(session *models.BotSession) error

	// Audit log
	CreateAuditLog(entry *models.AuditLog) error
	ListAuditLogs(filter AuditFilter) ([]*models.AuditLog, int64, error)

	// Users
	CreateUser(user *models.User) (*models.User, error)
	GetUser(id string) (*models.User, error)
	GetUserByEmail(email string) (*models.User, error)
	ListUsers() ([]*models.User, error)
	UpdateUser(user *models.User) error
}
