package handlers

import (
	"github.com/Ananth-NQI/whatsrelay-backend/internal/services"
	"github.com/Ananth-NQI/whatsrelay-backend/internal/storage"
	"github.com/gofiber/fiber/v2"
)

// SupervisorHandler gives supervisors a read-only mirror of the inbox
type SupervisorHandler struct {
	store    storage.Store
	chatwoot *services.ChatwootClient
}

// NewSupervisorHandler creates a new supervisor handler
func NewSupervisorHandler(store storage.Store, chatwoot *services.ChatwootClient) *SupervisorHandler {
	return &SupervisorHandler{
		store:    store,
		chatwoot: chatwoot,
	}
}

// Mirror lists conversations, optionally for one agent, with status counters
func (h *SupervisorHandler) Mirror(c *fiber.Ctx) error {
	conversations, err := collectConversations(h.chatwoot, targetInbox(c, h.store), "")
	if err != nil {
		return chatwootError(c, err, "Erro ao acessar modo espelho")
	}

	if agentID := c.QueryInt("agent_id"); agentID != 0 {
		filtered := make([]services.Conversation, 0, len(conversations))
		for _, conv := range conversations {
			if conv.Meta.Assignee != nil && conv.Meta.Assignee.ID == agentID {
				filtered = append(filtered, conv)
			}
		}
		conversations = filtered
	}

	metrics := fiber.Map{"total": len(conversations), "open": 0, "resolved": 0, "pending": 0}
	for _, conv := range conversations {
		if n, ok := metrics[conv.Status].(int); ok && conv.Status != "total" {
			metrics[conv.Status] = n + 1
		}
	}

	return c.JSON(fiber.Map{
		"conversations": conversations,
		"metrics":       metrics,
	})
}

// Agents lists Chatwoot agents
func (h *SupervisorHandler) Agents(c *fiber.Ctx) error {
	agents, err := h.chatwoot.ListAgents()
	if err != nil {
		return chatwootError(c, err, "Erro ao listar agentes")
	}
	return c.JSON(agents)
}

// Inboxes lists Chatwoot inboxes
func (h *SupervisorHandler) Inboxes(c *fiber.Ctx) error {
	inboxes, err := h.chatwoot.ListInboxes()
	if err != nil {
		return chatwootError(c, err, "Erro ao listar inboxes")
	}
	return c.JSON(inboxes)
}
