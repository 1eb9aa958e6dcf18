package services

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/Ananth-NQI/whatsrelay-backend/internal/models"
	"github.com/Ananth-NQI/whatsrelay-backend/internal/storage"
)

// Result is the acknowledgement returned to a gateway webhook
type Result struct {
	Success      bool   `json:"success"`
	HandledByBot bool   `json:"handledByBot,omitempty"`
	Error        string `json:"error,omitempty"`
}

// MessageProcessor is the bot side of the router
type MessageProcessor interface {
	ProcessMessage(phone, text, numberID, instanceID, token string) BotResult
}

// InboxClient is the part of the Chatwoot client used to route messages
type InboxClient interface {
	ConversationResolver
	FirstInboxID() (int, error)
	CreateMessageViaContactInbox(phone string, inboxID int, content, contactName, mediaURL string) (int, *Message, error)
	CreateInboundMessage(conversationID int, content, mediaURL string) (*Message, error)
	GetConversation(id int) (*Conversation, error)
}

// Router turns gateway webhook deliveries into bot turns or inbox messages
type Router struct {
	store  storage.Store
	bot    MessageProcessor
	inbox  InboxClient
	events EventPublisher
	audit  *Auditor
	now    func() time.Time
}

// NewRouter wires the router. bot and events may be nil.
func NewRouter(store storage.Store, bot MessageProcessor, inbox InboxClient, events EventPublisher, audit *Auditor) *Router {
	return &Router{
		store:  store,
		bot:    bot,
		inbox:  inbox,
		events: events,
		audit:  audit,
		now:    time.Now,
	}
}

// HandleZapi processes one Z-API webhook body. instanceID is the value of the
// instance header, if any.
func (r *Router) HandleZapi(instanceID string, body []byte) (result Result) {
	defer func() {
		if p := recover(); p != nil {
			log.Printf("❌ Z-API webhook panic: %v", p)
			result = Result{Success: false, Error: "Erro ao processar webhook"}
		}
	}()

	event := ParseZAPIEvent(body, instanceID)
	log.Printf("🔔 Z-API webhook: %s (instance %q)", event.Kind, event.InstanceID)

	switch event.Kind {
	case EventMessage:
		return r.HandleMessage(event.Message)
	case EventStatus:
		r.HandleStatus(event.InstanceID, event.Status)
	case EventQRCode:
		r.HandleQRCode(event.InstanceID, event.QRCode)
	default:
		log.Printf("ℹ️  Unrecognized Z-API event ignored: %s", truncate(string(body), 500))
	}
	return Result{Success: true}
}

// HandleMessage routes one normalized inbound message: to the number's bot
// first, then to the support inbox.
func (r *Router) HandleMessage(msg models.InboundMessage) (result Result) {
	defer func() {
		if p := recover(); p != nil {
			log.Printf("❌ Inbound message panic: %v", p)
			result = Result{Success: false, Error: "Erro ao processar webhook"}
		}
	}()

	phone := strings.TrimSpace(msg.Phone)
	if phone == "" {
		log.Printf("⚠️  Inbound %s message without phone ignored", msg.Provider)
		return Result{Success: true}
	}
	if msg.FromMe {
		log.Printf("ℹ️  Own message to %s ignored", phone)
		return Result{Success: true}
	}
	log.Printf("📱 Message from %s (%s): %s", phone, msg.Kind, truncate(msg.Text, 100))

	action := receivedAction(msg.Provider)
	metadata := map[string]any{
		"phone":      phone,
		"text":       truncate(msg.Text, 100),
		"type":       msg.Kind,
		"instanceId": orUnknown(msg.InstanceID),
	}

	number := r.resolveNumber(msg.InstanceID)

	if number != nil && msg.Text != "" && r.bot != nil {
		token := number.Token
		bot := r.bot.ProcessMessage(phone, msg.Text, number.ID, number.InstanceID, token)
		if bot.Handled && !bot.ShouldTransferToChatwoot {
			metadata["handledByBot"] = true
			r.audit.Record("", action, "", metadata)
			return Result{Success: true, HandledByBot: true}
		}
		log.Printf("🔄 Message from %s goes to the inbox (bot handled=%t)", phone, bot.Handled)
	}

	inboxID, err := r.targetInbox(number)
	if err != nil {
		log.Printf("⚠️  No inbox for message from %s: %v", phone, err)
		metadata["error"] = "Nenhuma inbox disponível"
		r.audit.Record("", action, "", metadata)
		return Result{Success: true}
	}

	conversationID, message, err := r.deliver(phone, inboxID, msg)
	if err != nil {
		log.Printf("❌ Could not deliver message from %s to inbox %d: %v", phone, inboxID, err)
		metadata["error"] = err.Error()
		r.audit.Record("", models.ActionZAPIMessageError, "", metadata)
		return Result{Success: true}
	}

	if r.events != nil {
		r.events.SendNewMessage(conversationID, message)
	}
	r.audit.Record("", action, strconv.Itoa(conversationID), metadata)
	log.Printf("✅ Message from %s forwarded to conversation %d", phone, conversationID)
	return Result{Success: true}
}

// resolveNumber finds the number owning instanceID, back-fills its inbox and
// records that it is alive. Lookup failures are logged and yield nil.
func (r *Router) resolveNumber(instanceID string) *models.WhatsAppNumber {
	if instanceID == "" {
		log.Printf("⚠️  Webhook carried no instance id")
		return nil
	}
	number, err := r.store.GetNumberByInstanceID(instanceID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Printf("❌ Number lookup for instance %s failed: %v", instanceID, err)
		} else {
			log.Printf("⚠️  No WhatsApp number registered for instance %s", instanceID)
		}
		return nil
	}

	if number.InboxID == nil {
		if inboxID, err := r.inbox.FirstInboxID(); err == nil {
			number.InboxID = &inboxID
			log.Printf("📬 Number %s bound to default inbox %d", number.ID, inboxID)
		} else {
			log.Printf("⚠️  Could not back-fill inbox for number %s: %v", number.ID, err)
		}
	}
	number.MarkSeen(true, r.now())
	if err := r.store.UpdateNumber(number); err != nil {
		log.Printf("⚠️  Could not refresh number %s: %v", number.ID, err)
	}
	return number
}

func (r *Router) targetInbox(number *models.WhatsAppNumber) (int, error) {
	if number != nil && number.InboxID != nil {
		return *number.InboxID, nil
	}
	return r.inbox.FirstInboxID()
}

// deliver finds or creates the conversation and posts the incoming message.
// When either step fails the message is created through the contact-inbox
// link instead.
func (r *Router) deliver(phone string, inboxID int, msg models.InboundMessage) (int, *Message, error) {
	conversationID, err := r.inbox.FindOrCreateConversation(phone, inboxID, msg.SenderName)
	if err == nil {
		message, createErr := r.inbox.CreateInboundMessage(conversationID, msg.Text, msg.MediaURL)
		if createErr == nil {
			return conversationID, message, nil
		}
		err = fmt.Errorf("create message in conversation %d: %w", conversationID, createErr)
	}

	log.Printf("⚠️  Direct delivery failed for %s, trying contact inbox: %v", phone, err)
	return r.inbox.CreateMessageViaContactInbox(phone, inboxID, msg.Text, msg.SenderName, msg.MediaURL)
}

// HandleStatus records a connection state change reported by the gateway
func (r *Router) HandleStatus(instanceID, status string) {
	if instanceID == "" {
		return
	}
	number, err := r.store.GetNumberByInstanceID(instanceID)
	if err != nil {
		log.Printf("⚠️  Status for unknown instance %s: %v", instanceID, err)
		return
	}
	connected := status == "connected" || status == "open"
	number.MarkSeen(connected, r.now())
	if err := r.store.UpdateNumber(number); err != nil {
		log.Printf("❌ Could not store status of %s: %v", instanceID, err)
		return
	}
	r.audit.Record("", models.ActionZAPIStatusUpdate, "", map[string]any{
		"instanceId": instanceID,
		"status":     status,
	})
	log.Printf("📶 Instance %s is now %q", instanceID, status)
}

// HandleQRCode stores a pending pairing code; a number showing a QR code is
// not connected.
func (r *Router) HandleQRCode(instanceID, code string) {
	if instanceID == "" || code == "" {
		return
	}
	number, err := r.store.GetNumberByInstanceID(instanceID)
	if err != nil {
		log.Printf("⚠️  QR code for unknown instance %s: %v", instanceID, err)
		return
	}
	normalized, err := NormalizeQRCode(code)
	if err != nil {
		log.Printf("⚠️  Could not normalize QR code of %s: %v", instanceID, err)
		normalized = code
	}
	number.QRCode = &normalized
	number.IsConnected = false
	if err := r.store.UpdateNumber(number); err != nil {
		log.Printf("❌ Could not store QR code of %s: %v", instanceID, err)
		return
	}
	r.audit.Record("", models.ActionZAPIQRCodeUpdate, "", map[string]any{"instanceId": instanceID})
}

func receivedAction(provider string) string {
	switch provider {
	case models.ProviderTwilio:
		return models.ActionTwilioMessage
	case models.ProviderMeta:
		return models.ActionMetaMessage
	}
	return models.ActionZAPIMessageReceived
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
