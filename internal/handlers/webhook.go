package handlers

import (
	"log"

	"github.com/Ananth-NQI/whatsrelay-backend/internal/services"
	"github.com/gofiber/fiber/v2"
)

// WebhookHandler receives gateway webhooks
type WebhookHandler struct {
	router          *services.Router
	metaVerifyToken string
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(router *services.Router, metaVerifyToken string) *WebhookHandler {
	return &WebhookHandler{
		router:          router,
		metaVerifyToken: metaVerifyToken,
	}
}

// HandleZapi processes Z-API deliveries. It always answers 200 so Z-API
// does not retry; the body says whether processing succeeded.
func (h *WebhookHandler) HandleZapi(c *fiber.Ctx) error {
	instanceID := c.Get("x-instance-id")
	if instanceID == "" {
		instanceID = c.Get("instance-id")
	}
	result := h.router.HandleZapi(instanceID, c.Body())
	return c.Status(fiber.StatusOK).JSON(result)
}

// HandleTwilio processes an incoming Twilio WhatsApp message
func (h *WebhookHandler) HandleTwilio(c *fiber.Ctx) error {
	var payload services.TwilioInbound
	if err := c.BodyParser(&payload); err != nil {
		log.Printf("Error parsing Twilio webhook: %v", err)
		return c.Status(fiber.StatusOK).JSON(services.Result{Success: false, Error: "Invalid webhook payload"})
	}

	// status callbacks carry no body and no media
	if payload.Body == "" && payload.MediaUrl0 == "" {
		return c.Status(fiber.StatusOK).JSON(services.Result{Success: true})
	}

	result := h.router.HandleMessage(payload.Normalize())
	return c.Status(fiber.StatusOK).JSON(result)
}

// VerifyMeta answers the Cloud API subscription handshake
func (h *WebhookHandler) VerifyMeta(c *fiber.Ctx) error {
	challenge, ok := services.VerifyMetaChallenge(
		c.Query("hub.mode"),
		c.Query("hub.verify_token"),
		c.Query("hub.challenge"),
		h.metaVerifyToken,
	)
	if !ok {
		return c.Status(fiber.StatusForbidden).SendString("Forbidden")
	}
	return c.Status(fiber.StatusOK).SendString(challenge)
}

// HandleMeta processes a Cloud API notification. Like the other gateways it
// always answers 200 so Meta does not redeliver.
func (h *WebhookHandler) HandleMeta(c *fiber.Ctx) error {
	messages, err := services.ParseMetaMessages(c.Body())
	if err != nil {
		log.Printf("❌ Meta webhook: %v", err)
		return c.Status(fiber.StatusOK).JSON(services.Result{Success: false, Error: "Invalid webhook payload"})
	}
	for _, msg := range messages {
		h.router.HandleMessage(msg)
	}
	return c.Status(fiber.StatusOK).SendString("OK")
}
