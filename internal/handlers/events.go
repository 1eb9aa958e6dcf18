package handlers

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/Ananth-NQI/whatsrelay-backend/internal/services"
	"github.com/gofiber/fiber/v2"
)

const pingInterval = 30 * time.Second

// EventHandler streams hub events to admin browsers as server-sent events
type EventHandler struct {
	hub *services.Hub
}

// NewEventHandler creates a new SSE handler
func NewEventHandler(hub *services.Hub) *EventHandler {
	return &EventHandler{hub: hub}
}

// Stream keeps the connection open until the client goes away.
// ?conversationId narrows the stream to one conversation.
func (h *EventHandler) Stream(c *fiber.Ctx) error {
	conversationID := c.QueryInt("conversationId", c.QueryInt("conversation_id", 0))
	clientID, events, cancel := h.hub.Subscribe(conversationID, 0)

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer cancel()
		log.Printf("📡 SSE client %s connected (%d online)", clientID, h.hub.Count())

		hello := services.Event{
			Type:           services.EventConnected,
			ClientID:       clientID,
			ConversationID: conversationID,
			Timestamp:      time.Now(),
		}
		if err := writeEvent(w, hello); err != nil {
			return
		}

		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case event, ok := <-events:
				if !ok {
					return
				}
				if err := writeEvent(w, event); err != nil {
					log.Printf("📡 SSE client %s gone: %v", clientID, err)
					return
				}
			case <-ticker.C:
				if _, err := w.WriteString(": ping\n\n"); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					log.Printf("📡 SSE client %s gone: %v", clientID, err)
					return
				}
			}
		}
	})
	return nil
}

func writeEvent(w *bufio.Writer, event services.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	return w.Flush()
}
