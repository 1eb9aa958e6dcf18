package handlers

import (
	"log"

	"github.com/Ananth-NQI/whatsrelay-backend/internal/storage"
	"github.com/gofiber/fiber/v2"
)

const (
	defaultLogLimit = 100
	maxLogLimit     = 500
)

// LogHandler lists audit log entries
type LogHandler struct {
	store storage.Store
}

// NewLogHandler creates a new audit log handler
func NewLogHandler(store storage.Store) *LogHandler {
	return &LogHandler{store: store}
}

// List returns audit entries filtered by user, conversation and action
func (h *LogHandler) List(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultLogLimit)
	if limit <= 0 || limit > maxLogLimit {
		limit = defaultLogLimit
	}
	offset := c.QueryInt("offset", 0)
	if offset < 0 {
		offset = 0
	}

	logs, total, err := h.store.ListAuditLogs(storage.AuditFilter{
		UserID:         c.Query("userId"),
		ConversationID: c.Query("conversationId"),
		Action:         c.Query("action"),
		Limit:          limit,
		Offset:         offset,
	})
	if err != nil {
		log.Printf("Error listing audit logs: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Erro ao buscar logs",
		})
	}

	return c.JSON(fiber.Map{
		"logs":   logs,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}
