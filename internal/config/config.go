package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every runtime setting read from the environment
type Config struct {
	Port                     string
	Environment              string
	UseMemoryStore           bool
	DisableWebhookValidation bool
	FrontendURL              string
	PublicBaseURL            string

	Database DatabaseConfig
	Chatwoot ChatwootConfig
	ZAPI     ZAPIConfig
	Twilio   TwilioConfig
	Meta     MetaConfig
	JWT      JWTConfig
	Admin    AdminConfig

	DefaultCountryCode string
	BotGoodbyeMessage  string
	StatusPollSchedule string
}

type DatabaseConfig struct {
	URL                    string
	Host                   string
	Port                   string
	User                   string
	Pass                   string
	Name                   string
	InstanceConnectionName string
}

type ChatwootConfig struct {
	BaseURL   string
	APIToken  string
	AccountID string
}

type ZAPIConfig struct {
	BaseURL     string
	InstanceID  string
	Token       string
	ClientToken string
}

type TwilioConfig struct {
	AccountSID   string
	AuthToken    string
	WhatsAppFrom string
}

type MetaConfig struct {
	APIBaseURL    string
	APIToken      string
	PhoneNumberID string
	WebhookSecret string
	VerifyToken   string
}

type JWTConfig struct {
	Secret    string
	ExpiresIn time.Duration
}

// AdminConfig seeds the first admin account on an empty user table
type AdminConfig struct {
	Email    string
	Password string
	Name     string
}

// Load reads .env (when present) and the process environment
func Load() *Config {
	if err := godotenv.Load(".env"); err != nil {
		if err := godotenv.Load("environments/.env.development"); err != nil {
			log.Println("⚠️  No .env file found - checking environment variables")
		}
	}

	return &Config{
		Port:                     getEnv("PORT", "3001"),
		Environment:              getEnv("ENVIRONMENT", "development"),
		UseMemoryStore:           getEnvBool("USE_MEMORY_STORE", false),
		DisableWebhookValidation: getEnvBool("DISABLE_WEBHOOK_VALIDATION", false),
		FrontendURL:              getEnv("FRONTEND_URL", "*"),
		PublicBaseURL:            strings.TrimRight(getEnv("PUBLIC_BASE_URL", ""), "/"),
		Database: DatabaseConfig{
			URL:                    getEnv("DATABASE_URL", ""),
			Host:                   getEnv("DB_HOST", "localhost"),
			Port:                   getEnv("DB_PORT", "5432"),
			User:                   getEnv("DB_USER", "postgres"),
			Pass:                   getEnv("DB_PASS", ""),
			Name:                   getEnv("DB_NAME", "whatsrelay"),
			InstanceConnectionName: getEnv("INSTANCE_CONNECTION_NAME", ""),
		},
		Chatwoot: ChatwootConfig{
			BaseURL:   strings.TrimRight(getEnv("CHATWOOT_API_BASE_URL", ""), "/"),
			APIToken:  getEnv("CHATWOOT_API_TOKEN", ""),
			AccountID: getEnv("CHATWOOT_ACCOUNT_ID", "1"),
		},
		ZAPI: ZAPIConfig{
			BaseURL:     strings.TrimRight(getEnv("ZAPI_API_BASE", "https://api.z-api.io"), "/"),
			InstanceID:  getEnv("ZAPI_INSTANCE_ID", ""),
			Token:       getEnv("ZAPI_TOKEN", ""),
			ClientToken: getEnv("ZAPI_CLIENT_TOKEN", ""),
		},
		Twilio: TwilioConfig{
			AccountSID:   getEnv("TWILIO_ACCOUNT_SID", ""),
			AuthToken:    getEnv("TWILIO_AUTH_TOKEN", ""),
			WhatsAppFrom: getEnv("TWILIO_WHATSAPP_FROM", ""),
		},
		Meta: MetaConfig{
			APIBaseURL:    strings.TrimRight(getEnv("META_API_BASE_URL", "https://graph.facebook.com/v18.0"), "/"),
			APIToken:      getEnv("META_API_TOKEN", ""),
			PhoneNumberID: getEnv("META_PHONE_NUMBER_ID", ""),
			WebhookSecret: getEnv("META_WEBHOOK_SECRET", ""),
			VerifyToken:   getEnv("META_VERIFY_TOKEN", ""),
		},
		JWT: JWTConfig{
			Secret:    getEnv("JWT_SECRET", "change-me-in-production"),
			ExpiresIn: getEnvDuration("JWT_EXPIRES_IN", 7*24*time.Hour),
		},
		Admin: AdminConfig{
			Email:    getEnv("ADMIN_EMAIL", ""),
			Password: getEnv("ADMIN_PASSWORD", ""),
			Name:     getEnv("ADMIN_NAME", "Administrador"),
		},
		DefaultCountryCode: getEnv("DEFAULT_COUNTRY_CODE", "55"),
		BotGoodbyeMessage:  getEnv("BOT_GOODBYE_MESSAGE", "Obrigado por entrar em contato! Até logo! 👋"),
		StatusPollSchedule: getEnv("STATUS_POLL_SCHEDULE", "@every 5m"),
	}
}

// IsDevelopment reports whether webhook signature checks may be skipped
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		log.Printf("⚠️  Invalid boolean for %s: %q", key, value)
		return defaultValue
	}
	return b
}

// getEnvDuration accepts Go durations ("12h") and plain day counts ("7d")
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if strings.HasSuffix(value, "d") {
		if days, err := strconv.Atoi(strings.TrimSuffix(value, "d")); err == nil {
			return time.Duration(days) * 24 * time.Hour
		}
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("⚠️  Invalid duration for %s: %q", key, value)
		return defaultValue
	}
	return d
}
