package services

import (
	"errors"
	"strconv"
	"sync"

	"github.com/Ananth-NQI/whatsrelay-backend/internal/models"
)

type sentMessage struct {
	To      string
	Text    string
	Media   string
	Caption string
}

type fakeGateway struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (g *fakeGateway) SendText(phone, message string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return g.err
	}
	g.sent = append(g.sent, sentMessage{To: phone, Text: message})
	return nil
}

func (g *fakeGateway) SendMedia(phone, mediaURL, caption string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return g.err
	}
	g.sent = append(g.sent, sentMessage{To: phone, Media: mediaURL, Caption: caption})
	return nil
}

func (g *fakeGateway) messages() []sentMessage {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]sentMessage(nil), g.sent...)
}

func (g *fakeGateway) last() sentMessage {
	msgs := g.messages()
	if len(msgs) == 0 {
		return sentMessage{}
	}
	return msgs[len(msgs)-1]
}

type credentials struct {
	InstanceID string
	Token      string
}

// fakeGateways hands out one shared fakeGateway and records how it was asked
type fakeGateways struct {
	gateway     *fakeGateway
	byNumber    []string
	credentials []credentials
}

func newFakeGateways() *fakeGateways {
	return &fakeGateways{gateway: &fakeGateway{}}
}

func (f *fakeGateways) ForNumber(number *models.WhatsAppNumber) (Gateway, error) {
	f.byNumber = append(f.byNumber, number.ID)
	return f.gateway, nil
}

func (f *fakeGateways) ForCredentials(instanceID, token string) (Gateway, error) {
	f.credentials = append(f.credentials, credentials{InstanceID: instanceID, Token: token})
	return f.gateway, nil
}

type createdMessage struct {
	ConversationID int
	Content        string
	MediaURL       string
	Private        bool
	Incoming       bool
}

// fakeInbox stands in for Chatwoot
type fakeInbox struct {
	mu sync.Mutex

	conversationID int
	conversations  map[int]*Conversation
	firstInboxID   int
	resolveErr     error
	createErr      error

	resolved []string // "phone@inbox"
	messages []createdMessage
	viaLink  int
}

func newFakeInbox() *fakeInbox {
	return &fakeInbox{
		conversationID: 42,
		firstInboxID:   1,
		conversations:  make(map[int]*Conversation),
	}
}

func (f *fakeInbox) FindOrCreateConversation(phone string, inboxID int, contactName string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resolveErr != nil {
		return 0, f.resolveErr
	}
	f.resolved = append(f.resolved, phone+"@"+strconv.Itoa(inboxID))
	return f.conversationID, nil
}

func (f *fakeInbox) SendMessage(conversationID int, content string, private bool) (*Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, createdMessage{ConversationID: conversationID, Content: content, Private: private})
	return &Message{ID: len(f.messages), Content: content, Private: private, MessageType: "1"}, nil
}

func (f *fakeInbox) FirstInboxID() (int, error) {
	if f.firstInboxID == 0 {
		return 0, errors.New("no inboxes")
	}
	return f.firstInboxID, nil
}

func (f *fakeInbox) CreateMessageViaContactInbox(phone string, inboxID int, content, contactName, mediaURL string) (int, *Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.viaLink++
	f.messages = append(f.messages, createdMessage{ConversationID: f.conversationID, Content: content, MediaURL: mediaURL, Incoming: true})
	return f.conversationID, &Message{ID: len(f.messages), Content: content, MessageType: "0"}, nil
}

func (f *fakeInbox) CreateInboundMessage(conversationID int, content, mediaURL string) (*Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.messages = append(f.messages, createdMessage{ConversationID: conversationID, Content: content, MediaURL: mediaURL, Incoming: true})
	return &Message{ID: len(f.messages), Content: content, MessageType: "0"}, nil
}

func (f *fakeInbox) GetConversation(id int) (*Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.conversations[id]
	if !ok {
		return nil, ErrChatwootNotFound
	}
	return conv, nil
}

func (f *fakeInbox) created() []createdMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]createdMessage(nil), f.messages...)
}

type publishedEvent struct {
	ConversationID int
	Payload        any
}

type fakePublisher struct {
	mu       sync.Mutex
	messages []publishedEvent
	updates  []publishedEvent
}

func (p *fakePublisher) SendNewMessage(conversationID int, message any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, publishedEvent{conversationID, message})
}

func (p *fakePublisher) SendConversationUpdate(conversationID int, conversation any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates = append(p.updates, publishedEvent{conversationID, conversation})
}
