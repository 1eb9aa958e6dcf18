package routes

import (
	"log"

	"github.com/Ananth-NQI/whatsrelay-backend/internal/config"
	"github.com/Ananth-NQI/whatsrelay-backend/internal/handlers"
	"github.com/Ananth-NQI/whatsrelay-backend/internal/middleware"
	"github.com/Ananth-NQI/whatsrelay-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

// Handlers groups every HTTP handler the routes mount
type Handlers struct {
	Health        *handlers.HealthHandler
	Webhook       *handlers.WebhookHandler
	Auth          *handlers.AuthHandler
	Users         *handlers.UserHandler
	Conversations *handlers.ConversationHandler
	Messages      *handlers.MessageHandler
	Supervisor    *handlers.SupervisorHandler
	Logs          *handlers.LogHandler
	Events        *handlers.EventHandler
	Numbers       *handlers.WhatsAppNumberHandler
	Bot           *handlers.BotHandler
}

// SetupRoutes configures all API routes
func SetupRoutes(app *fiber.App, cfg *config.Config, h *Handlers) {

	// Root endpoint
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "Welcome to WhatsRelay Backend!",
			"version": h.Health.Version,
			"endpoints": fiber.Map{
				"health":  "/health",
				"api":     "/api",
				"zapi":    "/webhook/zapi",
				"twilio":  "/webhook/twilio",
				"meta":    "/webhook/meta",
				"events":  "/api/events",
				"numbers": "/api/whatsapp/numbers",
			},
		})
	})
	app.Get("/health", h.Health.Check)

	// ========== WEBHOOK ROUTES ==========
	app.Post("/zapi", h.Webhook.HandleZapi)

	webhooks := app.Group("/webhook")
	webhooks.Post("/zapi", h.Webhook.HandleZapi)

	if cfg.IsDevelopment() || cfg.DisableWebhookValidation {
		webhooks.Post("/twilio", h.Webhook.HandleTwilio)
		log.Println("⚠️  Twilio webhook validation DISABLED")
	} else {
		webhooks.Post("/twilio",
			middleware.ValidateTwilioSignature(cfg.Twilio.AuthToken, cfg.PublicBaseURL),
			h.Webhook.HandleTwilio,
		)
	}

	webhooks.Get("/meta", h.Webhook.VerifyMeta)
	webhooks.Post("/meta", middleware.ValidateMetaSignature(cfg.Meta.WebhookSecret), h.Webhook.HandleMeta)

	// ========== API ROUTES ==========
	secret := []byte(cfg.JWT.Secret)
	api := app.Group("/api")
	requireAuth := middleware.RequireAuth(secret, false)

	auth := api.Group("/auth")
	auth.Post("/login", h.Auth.Login)
	auth.Get("/me", requireAuth, h.Auth.Me)

	// SSE clients cannot set headers, so the token may ride in ?token=
	api.Get("/events", middleware.RequireAuth(secret, true), h.Events.Stream)

	managers := middleware.RequireRole(models.RoleAdmin, models.RoleSupervisor)
	adminOnly := middleware.RequireRole(models.RoleAdmin)

	users := api.Group("/users", requireAuth)
	users.Get("/", managers, h.Users.List)
	users.Post("/", adminOnly, h.Users.Create)
	users.Put("/:id", adminOnly, h.Users.Update)

	conversations := api.Group("/conversations", requireAuth)
	conversations.Get("/", h.Conversations.List)
	conversations.Get("/:id", h.Conversations.Get)
	conversations.Get("/:id/messages", h.Conversations.Messages)
	conversations.Post("/:id/send", h.Conversations.Send)
	conversations.Post("/:id/transfer", h.Conversations.Transfer)
	conversations.Put("/:id/status", h.Conversations.UpdateStatus)

	api.Post("/messages/send", requireAuth, h.Messages.Send)

	supervisor := api.Group("/supervisor", requireAuth, managers)
	supervisor.Get("/mirror", h.Supervisor.Mirror)
	supervisor.Get("/agents", h.Supervisor.Agents)
	supervisor.Get("/inboxes", h.Supervisor.Inboxes)

	api.Get("/logs", requireAuth, managers, h.Logs.List)

	numbers := api.Group("/whatsapp/numbers", requireAuth, managers)
	numbers.Get("/", h.Numbers.List)
	numbers.Post("/", h.Numbers.Create)
	numbers.Put("/:id", h.Numbers.Update)
	numbers.Delete("/:id", h.Numbers.Delete)
	numbers.Get("/:id/status", h.Numbers.Status)
	numbers.Post("/:id/refresh-qr", h.Numbers.RefreshQR)
	numbers.Get("/:id/stats", h.Numbers.Stats)

	bot := api.Group("/bot", requireAuth, managers)
	bot.Get("/flows", h.Bot.ListFlows)
	bot.Post("/flows", h.Bot.CreateFlow)
	bot.Get("/flows/:id", h.Bot.GetFlow)
	bot.Put("/flows/:id", h.Bot.UpdateFlow)
	bot.Delete("/flows/:id", h.Bot.DeleteFlow)
	bot.Get("/sessions", h.Bot.ListSessions)
	bot.Post("/sessions", h.Bot.StartSession)
	bot.Post("/sessions/:id/transfer", h.Bot.TransferSession)
	bot.Post("/sessions/:id/end", h.Bot.EndSession)
}
