package services

import (
	"encoding/json"
	"log"

	"github.com/Ananth-NQI/whatsrelay-backend/internal/models"
	"github.com/Ananth-NQI/whatsrelay-backend/internal/storage"
	"gorm.io/datatypes"
)

// Auditor writes audit entries. Failures are logged, never returned.
type Auditor struct {
	store storage.Store
}

func NewAuditor(store storage.Store) *Auditor {
	return &Auditor{store: store}
}

// Record appends one audit entry. An empty userID records the system actor.
func (a *Auditor) Record(userID, action, conversationID string, metadata map[string]any) {
	if a == nil || a.store == nil {
		return
	}
	if userID == "" {
		userID = models.SystemUserID
	}
	entry := &models.AuditLog{
		UserID: userID,
		Action: action,
	}
	if conversationID != "" {
		entry.ConversationID = &conversationID
	}
	if metadata != nil {
		raw, err := json.Marshal(metadata)
		if err != nil {
			log.Printf("⚠️  Audit metadata for %s not encodable: %v", action, err)
		} else {
			entry.Metadata = datatypes.JSON(raw)
		}
	}
	if err := a.store.CreateAuditLog(entry); err != nil {
		log.Printf("⚠️  Failed to write audit log %s: %v", action, err)
	}
}

// truncate shortens s to n runes for audit metadata
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
