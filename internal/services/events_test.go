package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case event, ok := <-ch:
		require.True(t, ok, "channel closed")
		return event
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
	return Event{}
}

func TestHubFiltersByConversation(t *testing.T) {
	hub := NewHub()
	_, all, cancelAll := hub.Subscribe(0, 4)
	defer cancelAll()
	_, only42, cancel42 := hub.Subscribe(42, 4)
	defer cancel42()

	hub.SendNewMessage(7, "m1")
	hub.SendNewMessage(42, "m2")

	assert.Equal(t, 7, receive(t, all).ConversationID)
	assert.Equal(t, 42, receive(t, all).ConversationID)

	event := receive(t, only42)
	assert.Equal(t, EventNewMessage, event.Type)
	assert.Equal(t, 42, event.ConversationID)
	assert.False(t, event.Timestamp.IsZero())
	assert.Len(t, only42, 0)
}

func TestHubDropsEventsForSlowSubscribers(t *testing.T) {
	hub := NewHub()
	_, ch, cancel := hub.Subscribe(0, 1)
	defer cancel()

	hub.SendConversationUpdate(1, map[string]any{"status": "open"})
	hub.SendConversationUpdate(2, map[string]any{"status": "resolved"})

	event := receive(t, ch)
	assert.Equal(t, EventConversationUpdate, event.Type)
	assert.Equal(t, 1, event.ConversationID)
	assert.Len(t, ch, 0)
}

func TestHubCancelIsIdempotent(t *testing.T) {
	hub := NewHub()
	_, ch, cancel := hub.Subscribe(0, 0)
	assert.Equal(t, 1, hub.Count())

	cancel()
	cancel()

	assert.Equal(t, 0, hub.Count())
	_, ok := <-ch
	assert.False(t, ok)

	// publishing after every client left is a no-op
	hub.SendNewMessage(1, "x")
}

func TestNilHubPublishIsNoop(t *testing.T) {
	var hub *Hub
	assert.NotPanics(t, func() { hub.Publish(Event{Type: EventPing}) })
}
