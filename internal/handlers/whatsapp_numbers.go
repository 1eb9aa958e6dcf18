package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Ananth-NQI/whatsrelay-backend/internal/middleware"
	"github.com/Ananth-NQI/whatsrelay-backend/internal/models"
	"github.com/Ananth-NQI/whatsrelay-backend/internal/services"
	"github.com/Ananth-NQI/whatsrelay-backend/internal/storage"
	"github.com/gofiber/fiber/v2"
)

// ConversationLister is the inbox read side used for number statistics
type ConversationLister interface {
	ListConversations(inboxID int, status string) ([]services.Conversation, error)
	ListMessages(conversationID int) ([]services.Message, error)
}

// WhatsAppNumberHandler manages registered WhatsApp lines
type WhatsAppNumberHandler struct {
	store       storage.Store
	controllers services.ControllerFactory
	inbox       ConversationLister
	audit       *services.Auditor
}

// NewWhatsAppNumberHandler creates a new number handler. inbox may be nil
// when Chatwoot is not configured.
func NewWhatsAppNumberHandler(store storage.Store, controllers services.ControllerFactory, inbox ConversationLister, audit *services.Auditor) *WhatsAppNumberHandler {
	return &WhatsAppNumberHandler{
		store:       store,
		controllers: controllers,
		inbox:       inbox,
		audit:       audit,
	}
}

type numberRequest struct {
	InstanceID string  `json:"instance_id"`
	Token      string  `json:"token"`
	Name       string  `json:"name"`
	Provider   string  `json:"provider"`
	InboxID    *int    `json:"inbox_id"`
	Phone      *string `json:"phone_number"`
}

// List returns every number, newest first
func (h *WhatsAppNumberHandler) List(c *fiber.Ctx) error {
	numbers, err := h.store.ListNumbers()
	if err != nil {
		log.Printf("Error listing numbers: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Erro ao listar números WhatsApp",
		})
	}
	sort.SliceStable(numbers, func(i, j int) bool {
		return numbers[i].CreatedAt.After(numbers[j].CreatedAt)
	})
	return c.JSON(numbers)
}

// Create registers a new number
func (h *WhatsAppNumberHandler) Create(c *fiber.Ctx) error {
	var req numberRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	req.InstanceID = strings.TrimSpace(req.InstanceID)
	req.Token = strings.TrimSpace(req.Token)
	if req.InstanceID == "" || req.Token == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "instance_id e token são obrigatórios",
		})
	}
	if req.Provider == "" {
		req.Provider = models.ProviderZAPI
	}
	if !models.ValidProvider(req.Provider) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Provider inválido",
		})
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = "WhatsApp " + req.InstanceID
	}

	number, err := h.store.CreateNumber(&models.WhatsAppNumber{
		InstanceID:  req.InstanceID,
		Token:       req.Token,
		Name:        name,
		Provider:    req.Provider,
		InboxID:     req.InboxID,
		PhoneNumber: req.Phone,
	})
	if errors.Is(err, storage.ErrDuplicate) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Instance ID já cadastrado",
		})
	}
	if err != nil {
		log.Printf("Error creating number: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Erro ao criar número WhatsApp",
		})
	}

	h.audit.Record(middleware.CurrentUserID(c), models.ActionNumberCreated, "", map[string]any{
		"instanceId": number.InstanceID,
		"name":       number.Name,
	})
	log.Printf("📱 WhatsApp number %s registered (%s)", number.ID, number.Provider)
	return c.Status(fiber.StatusCreated).JSON(number)
}

// Update changes name, token, inbox or provider of a number
func (h *WhatsAppNumberHandler) Update(c *fiber.Ctx) error {
	number, err := h.store.GetNumber(c.Params("id"))
	if err != nil {
		return numberLookupError(c, err)
	}

	var req numberRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if name := strings.TrimSpace(req.Name); name != "" {
		number.Name = name
	}
	if token := strings.TrimSpace(req.Token); token != "" {
		number.Token = token
	}
	if req.InboxID != nil {
		number.InboxID = req.InboxID
	}
	if req.Phone != nil {
		number.PhoneNumber = req.Phone
	}
	if req.Provider != "" {
		if !models.ValidProvider(req.Provider) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Provider inválido",
			})
		}
		number.Provider = req.Provider
	}

	if err := h.store.UpdateNumber(number); err != nil {
		return numberLookupError(c, err)
	}
	return c.JSON(number)
}

// Delete removes a number together with its flows and sessions
func (h *WhatsAppNumberHandler) Delete(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := h.store.DeleteNumber(id); err != nil {
		return numberLookupError(c, err)
	}
	h.audit.Record(middleware.CurrentUserID(c), models.ActionNumberDeleted, "", map[string]any{"id": id})
	return c.JSON(fiber.Map{
		"message": "Número WhatsApp removido com sucesso",
	})
}

// Status asks the gateway for the live connection state and stores it
func (h *WhatsAppNumberHandler) Status(c *fiber.Ctx) error {
	number, err := h.store.GetNumber(c.Params("id"))
	if err != nil {
		return numberLookupError(c, err)
	}
	controller, err := h.controllers.Controller(number)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	status, err := controller.Status()
	if err != nil {
		log.Printf("❌ Status of %s failed: %v", number.InstanceID, err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "Erro ao obter status",
		})
	}

	number.MarkSeen(status.Connected, time.Now())
	if status.Phone != "" {
		number.PhoneNumber = &status.Phone
	}
	if err := h.store.UpdateNumber(number); err != nil {
		log.Printf("⚠️  Could not store status of %s: %v", number.ID, err)
	}
	return c.JSON(fiber.Map{
		"number": number,
		"status": status,
	})
}

// RefreshQR fetches a new pairing QR code for a disconnected number
func (h *WhatsAppNumberHandler) RefreshQR(c *fiber.Ctx) error {
	number, err := h.store.GetNumber(c.Params("id"))
	if err != nil {
		return numberLookupError(c, err)
	}
	controller, err := h.controllers.Controller(number)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	if status, err := controller.Status(); err != nil {
		log.Printf("⚠️  Status before QR refresh failed: %v", err)
	} else if status.Connected {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "INSTANCE_ALREADY_CONNECTED",
			"message": "A instância já está conectada. Não é necessário gerar QR Code.",
		})
	}

	code, err := controller.QRCode()
	if err != nil {
		log.Printf("❌ QR code for %s failed: %v", number.InstanceID, err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "Erro ao gerar QR Code",
		})
	}
	normalized, err := services.NormalizeQRCode(code)
	if err != nil {
		log.Printf("⚠️  QR code of %s kept as received: %v", number.InstanceID, err)
		normalized = code
	}

	number.QRCode = &normalized
	number.IsConnected = false
	if err := h.store.UpdateNumber(number); err != nil {
		return numberLookupError(c, err)
	}
	h.audit.Record(middleware.CurrentUserID(c), models.ActionZAPIQRCodeUpdate, "", map[string]any{"id": number.ID})
	return c.JSON(number)
}

type hourCount struct {
	Hour  int `json:"hour"`
	Count int `json:"count"`
}

// Stats counts conversations and messages of the number's inbox
func (h *WhatsAppNumberHandler) Stats(c *fiber.Ctx) error {
	number, err := h.store.GetNumber(c.Params("id"))
	if err != nil {
		return numberLookupError(c, err)
	}

	var conversations []services.Conversation
	if number.InboxID != nil && h.inbox != nil {
		conversations, err = h.inbox.ListConversations(*number.InboxID, "")
		if err != nil {
			log.Printf("⚠️  Conversations for stats of %s: %v", number.ID, err)
		}
	}

	byStatus := map[string]int{}
	messages := fiber.Map{}
	total, incoming, outgoing := 0, 0, 0
	hours := make([]hourCount, 24)
	for i := range hours {
		hours[i].Hour = i
	}
	since := time.Now().Add(-24 * time.Hour)

	for _, conv := range conversations {
		byStatus[conv.Status]++
		msgs, err := h.inbox.ListMessages(conv.ID)
		if err != nil {
			continue
		}
		for _, m := range msgs {
			total++
			if m.MessageType.IsOutgoing() {
				outgoing++
			} else if m.MessageType == "0" || strings.EqualFold(string(m.MessageType), "incoming") {
				incoming++
			}
			if at, ok := messageTime(m.CreatedAt); ok && at.After(since) {
				hours[at.Hour()].Count++
			}
		}
	}
	messages["total"] = total
	messages["incoming"] = incoming
	messages["outgoing"] = outgoing

	sort.SliceStable(hours, func(i, j int) bool { return hours[i].Count > hours[j].Count })

	return c.JSON(fiber.Map{
		"whatsappNumber": fiber.Map{
			"id":          number.ID,
			"name":        number.Name,
			"phoneNumber": number.PhoneNumber,
			"isConnected": number.IsConnected,
		},
		"stats": fiber.Map{
			"totalConversations":    len(conversations),
			"openConversations":     byStatus["open"],
			"resolvedConversations": byStatus["resolved"],
			"pendingConversations":  byStatus["pending"],
			"messages":              messages,
			"peakHours":             hours[:5],
		},
	})
}

// messageTime reads Chatwoot's created_at, which is unix seconds or an
// RFC 3339 string depending on the endpoint.
func messageTime(raw json.RawMessage) (time.Time, bool) {
	if len(raw) == 0 {
		return time.Time{}, false
	}
	var seconds float64
	if err := json.Unmarshal(raw, &seconds); err == nil {
		return time.Unix(int64(seconds), 0), true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if at, err := time.Parse(time.RFC3339, s); err == nil {
			return at, true
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.Unix(n, 0), true
		}
	}
	return time.Time{}, false
}

func numberLookupError(c *fiber.Ctx, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Número WhatsApp não encontrado",
		})
	}
	log.Printf("Error loading number: %v", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "Erro ao processar número WhatsApp",
	})
}
