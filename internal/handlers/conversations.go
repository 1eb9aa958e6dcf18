package handlers

import (
	"errors"
	"log"
	"strconv"
	"strings"

	"github.com/Ananth-NQI/whatsrelay-backend/internal/middleware"
	"github.com/Ananth-NQI/whatsrelay-backend/internal/models"
	"github.com/Ananth-NQI/whatsrelay-backend/internal/services"
	"github.com/Ananth-NQI/whatsrelay-backend/internal/storage"
	"github.com/gofiber/fiber/v2"
)

// ConversationHandler exposes Chatwoot conversations to the admin panel
type ConversationHandler struct {
	store    storage.Store
	chatwoot *services.ChatwootClient
	relay    *services.Relay
	events   services.EventPublisher
	audit    *services.Auditor
}

// NewConversationHandler creates a new conversation handler
func NewConversationHandler(store storage.Store, chatwoot *services.ChatwootClient, relay *services.Relay, events services.EventPublisher, audit *services.Auditor) *ConversationHandler {
	return &ConversationHandler{
		store:    store,
		chatwoot: chatwoot,
		relay:    relay,
		events:   events,
		audit:    audit,
	}
}

// targetInbox resolves ?inbox_id, or the inbox of ?whatsapp_number_id. 0
// means every inbox.
func targetInbox(c *fiber.Ctx, store storage.Store) int {
	if inboxID := c.QueryInt("inbox_id"); inboxID != 0 {
		return inboxID
	}
	if numberID := c.Query("whatsapp_number_id"); numberID != "" {
		number, err := store.GetNumber(numberID)
		if err == nil && number.InboxID != nil {
			return *number.InboxID
		}
	}
	return 0
}

// collectConversations lists one inbox, or all of them when inboxID is 0.
// An unreachable Chatwoot yields an empty list.
func collectConversations(chatwoot *services.ChatwootClient, inboxID int, status string) ([]services.Conversation, error) {
	if inboxID != 0 {
		conversations, err := chatwoot.ListConversations(inboxID, status)
		if errors.Is(err, services.ErrChatwootUnavailable) {
			log.Printf("⚠️  %v", err)
			return []services.Conversation{}, nil
		}
		return conversations, err
	}

	inboxes, err := chatwoot.ListInboxes()
	if err != nil {
		return nil, err
	}
	all := make([]services.Conversation, 0)
	for _, inbox := range inboxes {
		conversations, err := chatwoot.ListConversations(inbox.ID, status)
		if err != nil {
			log.Printf("⚠️  Conversations of inbox %d: %v", inbox.ID, err)
			continue
		}
		all = append(all, conversations...)
	}
	return all, nil
}

// List returns conversations filtered by inbox, number and status
func (h *ConversationHandler) List(c *fiber.Ctx) error {
	conversations, err := collectConversations(h.chatwoot, targetInbox(c, h.store), c.Query("status"))
	if err != nil {
		return chatwootError(c, err, "Erro ao listar conversas")
	}
	return c.JSON(conversations)
}

// Get returns one conversation
func (h *ConversationHandler) Get(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid conversation ID",
		})
	}
	conversation, err := h.chatwoot.GetConversation(id)
	if err != nil {
		return chatwootError(c, err, "Erro ao buscar conversa")
	}
	return c.JSON(conversation)
}

// Messages returns the messages of a conversation
func (h *ConversationHandler) Messages(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid conversation ID",
		})
	}
	messages, err := h.chatwoot.ListMessages(id)
	if err != nil {
		return chatwootError(c, err, "Erro ao listar mensagens")
	}
	return c.JSON(messages)
}

// Send posts an operator reply and relays it to WhatsApp. A failed relay
// does not fail the request; the message already lives in Chatwoot.
func (h *ConversationHandler) Send(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid conversation ID",
		})
	}
	var req struct {
		Content string `json:"content"`
	}
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.Content) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "content é obrigatório",
		})
	}
	content := strings.TrimSpace(req.Content)

	message, err := h.chatwoot.SendMessage(id, content, false)
	if err != nil {
		return chatwootError(c, err, "Erro ao enviar mensagem")
	}
	log.Printf("📤 Message %d created in conversation %d", message.ID, id)

	if h.events != nil {
		h.events.SendNewMessage(id, message)
	}
	if h.relay != nil {
		if err := h.relay.Relay(id, message); err != nil {
			log.Printf("❌ Relay of message %d failed (message kept in Chatwoot): %v", message.ID, err)
		}
	}

	h.audit.Record(middleware.CurrentUserID(c), models.ActionMessageSent, strconv.Itoa(id), map[string]any{
		"content": content,
	})
	return c.JSON(message)
}

// Transfer moves a conversation to another inbox and/or agent
func (h *ConversationHandler) Transfer(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid conversation ID",
		})
	}
	var req struct {
		TargetAgentID int `json:"target_agent_id"`
		TargetInboxID int `json:"target_inbox_id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.TargetAgentID == 0 && req.TargetInboxID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "É necessário especificar target_agent_id ou target_inbox_id",
		})
	}

	if req.TargetInboxID != 0 {
		if err := h.chatwoot.TransferConversationToInbox(id, req.TargetInboxID); err != nil {
			return chatwootError(c, err, "Erro ao transferir conversa")
		}
	}
	if req.TargetAgentID != 0 {
		if err := h.chatwoot.AssignConversation(id, req.TargetAgentID); err != nil {
			return chatwootError(c, err, "Erro ao transferir conversa")
		}
	}

	if h.events != nil {
		h.events.SendConversationUpdate(id, fiber.Map{
			"inbox_id":    req.TargetInboxID,
			"assignee_id": req.TargetAgentID,
		})
	}
	h.audit.Record(middleware.CurrentUserID(c), models.ActionConversationMove, strconv.Itoa(id), map[string]any{
		"targetInboxId": req.TargetInboxID,
		"targetAgentId": req.TargetAgentID,
	})
	return c.JSON(fiber.Map{
		"message": "Conversa transferida com sucesso",
	})
}

// UpdateStatus opens, resolves or parks a conversation
func (h *ConversationHandler) UpdateStatus(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid conversation ID",
		})
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	switch req.Status {
	case "open", "resolved", "pending", "snoozed":
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Status inválido",
		})
	}
	if err := h.chatwoot.UpdateConversationStatus(id, req.Status); err != nil {
		return chatwootError(c, err, "Erro ao atualizar conversa")
	}
	if h.events != nil {
		h.events.SendConversationUpdate(id, fiber.Map{"status": req.Status})
	}
	return c.JSON(fiber.Map{
		"message": "Status atualizado",
		"status":  req.Status,
	})
}

func chatwootError(c *fiber.Ctx, err error, message string) error {
	log.Printf("❌ %s: %v", message, err)
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrChatwootUnavailable):
		status = fiber.StatusBadGateway
	case errors.Is(err, services.ErrChatwootNotFound):
		status = fiber.StatusNotFound
	}
	return c.Status(status).JSON(fiber.Map{
		"error": message,
	})
}
