package services

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/Ananth-NQI/whatsrelay-backend/internal/models"
	"github.com/Ananth-NQI/whatsrelay-backend/internal/storage"
	"github.com/Ananth-NQI/whatsrelay-backend/internal/utils"
)

// ConversationReader loads a conversation from the inbox
type ConversationReader interface {
	GetConversation(id int) (*Conversation, error)
}

// Relay forwards operator replies from the inbox to WhatsApp
type Relay struct {
	store              storage.Store
	inbox              ConversationReader
	gateways           GatewayFactory
	defaultCountryCode string
}

func NewRelay(store storage.Store, inbox ConversationReader, gateways GatewayFactory, defaultCountryCode string) *Relay {
	return &Relay{
		store:              store,
		inbox:              inbox,
		gateways:           gateways,
		defaultCountryCode: defaultCountryCode,
	}
}

// Relay sends message to the contact of conversationID through the number
// bound to the conversation's inbox. It fails only when no number exists
// or the gateway refuses the message; a conversation without a phone is a no-op.
func (r *Relay) Relay(conversationID int, message *Message) error {
	if message == nil {
		return nil
	}
	conversation, err := r.inbox.GetConversation(conversationID)
	if err != nil {
		return fmt.Errorf("load conversation %d: %w", conversationID, err)
	}

	number, err := r.numberForInbox(conversation.InboxID)
	if err != nil {
		return err
	}

	phone := conversation.ContactPhone()
	if phone == "" {
		log.Printf("⚠️  Conversation %d has no contact phone, nothing to relay", conversationID)
		return nil
	}

	if !IsOperatorMessage(message) {
		log.Printf("ℹ️  Message %d is not outgoing (type %q), not relayed", message.ID, message.MessageType)
		return nil
	}
	if message.Private {
		log.Printf("ℹ️  Private note %d stays in the inbox", message.ID)
		return nil
	}

	gateway, err := r.gateways.ForNumber(number)
	if err != nil {
		return fmt.Errorf("gateway for number %s: %w", number.ID, err)
	}

	to := utils.FormatToE164(phone, r.defaultCountryCode)
	log.Printf("📤 Relaying message %d to %s via %s", message.ID, to, number.InstanceID)

	if len(message.Attachments) == 0 {
		if err := gateway.SendText(to, message.Content); err != nil {
			return fmt.Errorf("send to %s: %w", to, err)
		}
		return nil
	}
	caption := message.Content
	for _, attachment := range message.Attachments {
		if attachment.DataURL == "" {
			continue
		}
		if err := gateway.SendMedia(to, attachment.DataURL, caption); err != nil {
			return fmt.Errorf("send media to %s: %w", to, err)
		}
		caption = ""
	}
	if caption != "" {
		// no attachment carried a usable url
		return gateway.SendText(to, caption)
	}
	return nil
}

// numberForInbox resolves the number bound to inboxID, falling back to any
// connected number and then any number at all. A fallback number is bound to
// the inbox for later relays.
func (r *Relay) numberForInbox(inboxID int) (*models.WhatsAppNumber, error) {
	number, err := r.store.GetNumberByInboxID(inboxID)
	if err == nil {
		return number, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("number for inbox %d: %w", inboxID, err)
	}

	log.Printf("⚠️  No number bound to inbox %d, looking for another one", inboxID)
	number, err = r.store.GetFirstConnectedNumber()
	if errors.Is(err, storage.ErrNotFound) {
		number, err = r.store.GetFirstNumber()
	}
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: register a WhatsApp number first", ErrNoGatewayNumber)
	}
	if err != nil {
		return nil, fmt.Errorf("fallback number: %w", err)
	}

	number.InboxID = &inboxID
	if err := r.store.UpdateNumber(number); err != nil {
		log.Printf("⚠️  Could not bind number %s to inbox %d: %v", number.ID, inboxID, err)
	} else {
		log.Printf("✅ Number %s bound to inbox %d", number.ID, inboxID)
	}
	return number, nil
}

// IsOperatorMessage reports whether a Chatwoot message was written by an
// agent. Historical data carries contact messages mis-tagged as outgoing, so
// a contact sender always wins over message_type.
func IsOperatorMessage(message *Message) bool {
	senderType := ""
	if message.Sender != nil {
		senderType = message.Sender.Type
	}
	if strings.EqualFold(senderType, "contact") {
		return false
	}
	return message.MessageType.IsOutgoing() || senderType != ""
}
