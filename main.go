package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/Ananth-NQI/whatsrelay-backend/database"
	"github.com/Ananth-NQI/whatsrelay-backend/internal/config"
	"github.com/Ananth-NQI/whatsrelay-backend/internal/handlers"
	"github.com/Ananth-NQI/whatsrelay-backend/internal/jobs"
	"github.com/Ananth-NQI/whatsrelay-backend/internal/routes"
	"github.com/Ananth-NQI/whatsrelay-backend/internal/services"
	"github.com/Ananth-NQI/whatsrelay-backend/internal/storage"
)

const version = "1.0.0"

func main() {
	cfg := config.Load()

	// Initialize storage
	var store storage.Store
	var ping func() error
	if cfg.UseMemoryStore {
		log.Println("⚠️  Using in-memory storage (not for production!)")
		store = storage.NewMemoryStore()
	} else {
		log.Println("📦 Connecting to PostgreSQL database...")
		if err := database.Connect(cfg.Database); err != nil {
			log.Fatal("Failed to connect to database:", err)
		}

		log.Println("🔄 Running database migrations...")
		if err := database.Migrate(database.DB); err != nil {
			log.Fatal("Failed to migrate database:", err)
		}
		log.Println("✅ Database migrations completed!")

		store = storage.NewDatabaseStore(database.DB)
		ping = database.Ping
		log.Println("✅ Using PostgreSQL database storage")
	}

	chatwoot, err := services.NewChatwootClient(cfg.Chatwoot, cfg.DefaultCountryCode)
	if err != nil {
		log.Fatal("Failed to initialize Chatwoot client:", err)
	}
	log.Println("✅ Chatwoot client initialized")

	twilioService, err := services.NewTwilioService(cfg.Twilio, cfg.DefaultCountryCode)
	if err != nil {
		log.Printf("⚠️  Twilio disabled: %v", err)
		twilioService = nil
	} else {
		log.Println("✅ Twilio service initialized")
	}

	// Initialize all services
	hub := services.NewHub()
	auditor := services.NewAuditor(store)
	sessions := services.NewSessionManager(store)
	gateways := services.NewProviderGateways(cfg, twilioService)
	users := services.NewUserService(store)
	bot := services.NewBotEngine(store, sessions, gateways, chatwoot, auditor, cfg.BotGoodbyeMessage)
	router := services.NewRouter(store, bot, chatwoot, hub, auditor)
	relay := services.NewRelay(store, chatwoot, gateways, cfg.DefaultCountryCode)

	if err := users.SeedAdmin(cfg.Admin); err != nil {
		log.Printf("⚠️  %v", err)
	}

	poller := jobs.NewStatusPoller(store, gateways, cfg.StatusPollSchedule)
	if err := poller.Start(); err != nil {
		log.Printf("⚠️  Status poller not started: %v", err)
	}

	// Create fiber app
	app := fiber.New(fiber.Config{
		AppName: "WhatsRelay Backend v" + version,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	// Middleware
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.FrontendURL,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, x-instance-id",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))

	routes.SetupRoutes(app, cfg, &routes.Handlers{
		Health:        handlers.NewHealthHandler(version, store, hub, ping),
		Webhook:       handlers.NewWebhookHandler(router, cfg.Meta.VerifyToken),
		Auth:          handlers.NewAuthHandler(store, users, cfg.JWT, auditor),
		Users:         handlers.NewUserHandler(store, users, auditor),
		Conversations: handlers.NewConversationHandler(store, chatwoot, relay, hub, auditor),
		Messages:      handlers.NewMessageHandler(gateways, cfg.ZAPI, auditor),
		Supervisor:    handlers.NewSupervisorHandler(store, chatwoot),
		Logs:          handlers.NewLogHandler(store),
		Events:        handlers.NewEventHandler(hub),
		Numbers:       handlers.NewWhatsAppNumberHandler(store, gateways, chatwoot, auditor),
		Bot:           handlers.NewBotHandler(store, bot, auditor),
	})

	// Handle graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		log.Println("\n🛑 Gracefully shutting down...")
		log.Println("⏹️  Stopping status poller...")
		poller.Stop()
		log.Println("⏹️  Shutting down server...")
		_ = app.Shutdown()
	}()

	log.Println("========================================")
	log.Printf("🚀 WhatsRelay Backend starting on port %s", cfg.Port)
	log.Printf("📊 Storage: %s", storageType(cfg))
	log.Printf("🌍 Environment: %s", cfg.Environment)
	log.Printf("📱 Twilio: %s", configured(twilioService != nil))
	log.Printf("📱 Meta: %s", configured(cfg.Meta.APIToken != ""))
	log.Println("========================================")

	log.Fatal(app.Listen(":" + cfg.Port))
}

func storageType(cfg *config.Config) string {
	if cfg.UseMemoryStore {
		return "In-Memory (Testing)"
	}
	return "PostgreSQL Database"
}

func configured(ok bool) string {
	if ok {
		return "Configured"
	}
	return "Not configured"
}
