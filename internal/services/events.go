package services

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultEventBuffer = 64

// EventType identifies what a fan-out event carries
type EventType string

const (
	EventConnected          EventType = "connected"
	EventNewMessage         EventType = "new_message"
	EventConversationUpdate EventType = "conversation_update"
	EventPing               EventType = "ping"
)

// Event is pushed to admin browser sessions
type Event struct {
	Type           EventType `json:"type"`
	ConversationID int       `json:"conversation_id,omitempty"`
	ClientID       string    `json:"client_id,omitempty"`
	Data           any       `json:"data,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// EventPublisher is the side of the hub the core writes to
type EventPublisher interface {
	SendNewMessage(conversationID int, message any)
	SendConversationUpdate(conversationID int, conversation any)
}

type subscriber struct {
	conversationID int // 0 receives every conversation
	ch             chan Event
}

// Hub is an in-process pub/sub registry of connected admin clients
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]*subscriber
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{subscribers: make(map[string]*subscriber)}
}

// Subscribe registers one client. conversationID 0 subscribes to everything.
// It returns the client id, the event channel and an idempotent cancel.
func (h *Hub) Subscribe(conversationID, buffer int) (string, <-chan Event, func()) {
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}
	id := uuid.NewString()
	sub := &subscriber{conversationID: conversationID, ch: make(chan Event, buffer)}

	h.mu.Lock()
	h.subscribers[id] = sub
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			if current, ok := h.subscribers[id]; ok {
				delete(h.subscribers, id)
				close(current.ch)
			}
			h.mu.Unlock()
		})
	}
	return id, sub.ch, cancel
}

// Publish delivers event to every matching subscriber. Slow subscribers
// drop the event instead of blocking the publisher.
func (h *Hub) Publish(event Event) {
	if h == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subscribers {
		if sub.conversationID != 0 && event.ConversationID != 0 && sub.conversationID != event.ConversationID {
			continue
		}
		select {
		case sub.ch <- event:
		default:
		}
	}
}

func (h *Hub) SendNewMessage(conversationID int, message any) {
	h.Publish(Event{
		Type:           EventNewMessage,
		ConversationID: conversationID,
		Data:           map[string]any{"conversation_id": conversationID, "message": message},
	})
}

func (h *Hub) SendConversationUpdate(conversationID int, conversation any) {
	h.Publish(Event{
		Type:           EventConversationUpdate,
		ConversationID: conversationID,
		Data:           map[string]any{"conversation_id": conversationID, "conversation": conversation},
	})
}

// Count returns the number of connected clients
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}
