package handlers

import (
	"github.com/Ananth-NQI/whatsrelay-backend/internal/services"
	"github.com/Ananth-NQI/whatsrelay-backend/internal/storage"
	"github.com/gofiber/fiber/v2"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	Version string
	store   storage.Store
	hub     *services.Hub
	ping    func() error // nil when no database is in use
}

// NewHealthHandler creates a new health handler. ping probes the database
// connection and may be nil for the in-memory store.
func NewHealthHandler(version string, store storage.Store, hub *services.Hub, ping func() error) *HealthHandler {
	return &HealthHandler{
		Version: version,
		store:   store,
		hub:     hub,
		ping:    ping,
	}
}

// Check returns the health status of the service
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	status := "OK"
	storeStatus := "OK"
	databaseStatus := "not used"

	if h.ping != nil {
		databaseStatus = "OK"
		if err := h.ping(); err != nil {
			status = "DEGRADED"
			databaseStatus = err.Error()
		}
	}
	if _, err := h.store.ListNumbers(); err != nil {
		status = "DEGRADED"
		storeStatus = err.Error()
	}

	sseClients := 0
	if h.hub != nil {
		sseClients = h.hub.Count()
	}

	return c.JSON(fiber.Map{
		"status":      status,
		"service":     "WhatsRelay Backend",
		"version":     h.Version,
		"store":       storeStatus,
		"database":    databaseStatus,
		"sse_clients": sseClients,
	})
}
