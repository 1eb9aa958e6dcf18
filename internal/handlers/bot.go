package handlers

import (
	"errors"
	"log"
	"strings"

	"github.com/Ananth-NQI/whatsrelay-backend/internal/middleware"
	"github.com/Ananth-NQI/whatsrelay-backend/internal/models"
	"github.com/Ananth-NQI/whatsrelay-backend/internal/services"
	"github.com/Ananth-NQI/whatsrelay-backend/internal/storage"
	"github.com/gofiber/fiber/v2"
)

const sessionListLimit = 100

// BotHandler manages bot flows and sessions
type BotHandler struct {
	store storage.Store
	bot   *services.BotEngine
	audit *services.Auditor
}

// NewBotHandler creates a new bot handler
func NewBotHandler(store storage.Store, bot *services.BotEngine, audit *services.Auditor) *BotHandler {
	return &BotHandler{
		store: store,
		bot:   bot,
		audit: audit,
	}
}

type flowRequest struct {
	Name             string             `json:"name"`
	WhatsAppNumberID string             `json:"whatsapp_number_id"`
	InitialMessage   string             `json:"initial_message"`
	MenuSteps        *[]models.MenuStep `json:"menu_steps"`
	IsActive         *bool              `json:"is_active"`
}

// ListFlows returns every flow, optionally for one number
func (h *BotHandler) ListFlows(c *fiber.Ctx) error {
	flows, err := h.store.ListFlows(c.Query("whatsapp_number_id"))
	if err != nil {
		log.Printf("Error listing flows: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Erro ao listar fluxos de bot",
		})
	}
	return c.JSON(flows)
}

// CreateFlow stores a new flow. An active flow replaces the number's
// current active one.
func (h *BotHandler) CreateFlow(c *fiber.Ctx) error {
	var req flowRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	req.Name = strings.TrimSpace(req.Name)
	req.InitialMessage = strings.TrimSpace(req.InitialMessage)
	if req.Name == "" || req.WhatsAppNumberID == "" || req.InitialMessage == "" || req.MenuSteps == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "name, whatsapp_number_id, initial_message e menu_steps são obrigatórios",
		})
	}
	if err := models.ValidateSteps(*req.MenuSteps); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if _, err := h.store.GetNumber(req.WhatsAppNumberID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "WhatsApp Number não encontrado",
			})
		}
		return numberLookupError(c, err)
	}

	flow := &models.BotFlow{
		Name:             req.Name,
		WhatsAppNumberID: req.WhatsAppNumberID,
		InitialMessage:   req.InitialMessage,
		IsActive:         true,
	}
	if req.IsActive != nil {
		flow.IsActive = *req.IsActive
	}
	if err := flow.SetSteps(*req.MenuSteps); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "menu_steps inválido",
		})
	}

	created, err := h.store.CreateFlow(flow)
	if err != nil {
		log.Printf("Error creating flow: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Erro ao criar fluxo de bot",
		})
	}
	h.audit.Record(middleware.CurrentUserID(c), models.ActionFlowSaved, "", map[string]any{
		"botFlowId":        created.ID,
		"name":             created.Name,
		"whatsappNumberId": created.WhatsAppNumberID,
	})
	return c.Status(fiber.StatusCreated).JSON(created)
}

// GetFlow returns a flow with its most recent active sessions
func (h *BotHandler) GetFlow(c *fiber.Ctx) error {
	flow, err := h.store.GetFlow(c.Params("id"))
	if err != nil {
		return flowLookupError(c, err)
	}
	active := true
	sessions, err := h.store.ListSessions(storage.SessionFilter{BotFlowID: flow.ID, IsActive: &active})
	if err != nil {
		log.Printf("⚠️  Sessions of flow %s: %v", flow.ID, err)
		sessions = nil
	}
	if len(sessions) > 10 {
		sessions = sessions[:10]
	}
	return c.JSON(fiber.Map{
		"flow":     flow,
		"sessions": sessions,
	})
}

// UpdateFlow applies the fields present in the body
func (h *BotHandler) UpdateFlow(c *fiber.Ctx) error {
	flow, err := h.store.GetFlow(c.Params("id"))
	if err != nil {
		return flowLookupError(c, err)
	}

	var req flowRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if name := strings.TrimSpace(req.Name); name != "" {
		flow.Name = name
	}
	if msg := strings.TrimSpace(req.InitialMessage); msg != "" {
		flow.InitialMessage = msg
	}
	if req.MenuSteps != nil {
		if err := models.ValidateSteps(*req.MenuSteps); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		if err := flow.SetSteps(*req.MenuSteps); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "menu_steps inválido",
			})
		}
	}
	if req.IsActive != nil {
		flow.IsActive = *req.IsActive
	}

	if err := h.store.UpdateFlow(flow); err != nil {
		return flowLookupError(c, err)
	}
	h.audit.Record(middleware.CurrentUserID(c), models.ActionFlowSaved, "", map[string]any{
		"botFlowId": flow.ID,
		"isActive":  flow.IsActive,
	})
	return c.JSON(flow)
}

// DeleteFlow removes a flow and its sessions
func (h *BotHandler) DeleteFlow(c *fiber.Ctx) error {
	if err := h.store.DeleteFlow(c.Params("id")); err != nil {
		return flowLookupError(c, err)
	}
	return c.JSON(fiber.Map{
		"message": "Fluxo de bot deletado com sucesso",
	})
}

// ListSessions filters sessions by flow, number, phone and state
func (h *BotHandler) ListSessions(c *fiber.Ctx) error {
	filter := storage.SessionFilter{
		BotFlowID:        c.Query("bot_flow_id"),
		WhatsAppNumberID: c.Query("whatsapp_number_id"),
		PhoneNumber:      c.Query("phone_number"),
	}
	if raw := c.Query("is_active"); raw != "" {
		active := raw == "true"
		filter.IsActive = &active
	}

	sessions, err := h.store.ListSessions(filter)
	if err != nil {
		log.Printf("Error listing sessions: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Erro ao listar sessões do bot",
		})
	}
	if len(sessions) > sessionListLimit {
		sessions = sessions[:sessionListLimit]
	}
	return c.JSON(sessions)
}

// StartSession opens a session for a phone and sends the first prompt
func (h *BotHandler) StartSession(c *fiber.Ctx) error {
	var req struct {
		PhoneNumber string `json:"phone_number"`
		BotFlowID   string `json:"bot_flow_id"`
	}
	if err := c.BodyParser(&req); err != nil || req.PhoneNumber == "" || req.BotFlowID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "phone_number e bot_flow_id são obrigatórios",
		})
	}

	session, err := h.bot.StartSession(req.PhoneNumber, req.BotFlowID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Fluxo de bot não encontrado",
		})
	case errors.Is(err, services.ErrFlowInactive):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Fluxo de bot inativo",
		})
	case err != nil && session == nil:
		log.Printf("Error starting session: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Erro ao iniciar sessão",
		})
	case err != nil:
		// session exists but the prompt did not go out
		log.Printf("⚠️  Session %s started without prompt: %v", session.ID, err)
	}
	return c.Status(fiber.StatusCreated).JSON(session)
}

// TransferSession hands an active session to a human agent
func (h *BotHandler) TransferSession(c *fiber.Ctx) error {
	session, err := h.bot.TransferSession(c.Params("id"))
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Sessão não encontrada",
		})
	case errors.Is(err, services.ErrSessionInactive):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Sessão já está inativa",
		})
	case errors.Is(err, services.ErrNoInbox):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "WhatsApp Number não tem inbox associado",
		})
	case err != nil:
		log.Printf("Error transferring session: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Erro ao transferir sessão",
		})
	}
	return c.JSON(fiber.Map{
		"message":        "Sessão transferida com sucesso",
		"conversationId": session.ConversationID,
	})
}

// EndSession deactivates a session without a handoff
func (h *BotHandler) EndSession(c *fiber.Ctx) error {
	err := h.bot.EndSession(c.Params("id"))
	if errors.Is(err, storage.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Sessão não encontrada",
		})
	}
	if err != nil {
		log.Printf("Error ending session: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Erro ao encerrar sessão",
		})
	}
	return c.JSON(fiber.Map{
		"message": "Sessão encerrada",
	})
}

func flowLookupError(c *fiber.Ctx, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Fluxo de bot não encontrado",
		})
	}
	log.Printf("Error loading flow: %v", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "Erro ao processar fluxo de bot",
	})
}
