package handlers

import (
	"log"
	"strings"

	"github.com/Ananth-NQI/whatsrelay-backend/internal/config"
	"github.com/Ananth-NQI/whatsrelay-backend/internal/middleware"
	"github.com/Ananth-NQI/whatsrelay-backend/internal/models"
	"github.com/Ananth-NQI/whatsrelay-backend/internal/services"
	"github.com/gofiber/fiber/v2"
)

// MessageHandler sends ad-hoc WhatsApp messages through the default Z-API instance
type MessageHandler struct {
	gateways services.GatewayFactory
	zapi     config.ZAPIConfig
	audit    *services.Auditor
}

// NewMessageHandler creates a new message handler
func NewMessageHandler(gateways services.GatewayFactory, zapi config.ZAPIConfig, audit *services.Auditor) *MessageHandler {
	return &MessageHandler{
		gateways: gateways,
		zapi:     zapi,
		audit:    audit,
	}
}

// Send delivers {phone, message} directly, bypassing Chatwoot
func (h *MessageHandler) Send(c *fiber.Ctx) error {
	var req struct {
		Phone   string `json:"phone"`
		Message string `json:"message"`
	}
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.Phone) == "" || strings.TrimSpace(req.Message) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "phone e message são obrigatórios",
		})
	}

	userID := middleware.CurrentUserID(c)
	gateway, err := h.gateways.ForCredentials(h.zapi.InstanceID, h.zapi.Token)
	if err == nil {
		err = gateway.SendText(req.Phone, req.Message)
	}
	if err != nil {
		log.Printf("❌ Direct send to %s failed: %v", req.Phone, err)
		h.audit.Record(userID, models.ActionZAPIMessageError, "", map[string]any{
			"phone": req.Phone,
			"error": err.Error(),
		})
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "Erro ao enviar mensagem",
		})
	}

	h.audit.Record(userID, models.ActionMessageSent, "", map[string]any{
		"phone":   req.Phone,
		"content": req.Message,
	})
	return c.JSON(fiber.Map{
		"success": true,
	})
}
