package database

import (
	"fmt"
	"log"

	"github.com/Ananth-NQI/whatsrelay-backend/internal/config"
	"github.com/Ananth-NQI/whatsrelay-backend/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var DB *gorm.DB

// partialIndexes back the "at most one active" rules that AutoMigrate cannot express
var partialIndexes = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_bot_flows_one_active
		ON bot_flows (whatsapp_number_id) WHERE is_active`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_bot_sessions_one_active
		ON bot_sessions (phone_number, bot_flow_id) WHERE is_active`,
}

// Connect opens the PostgreSQL connection described by cfg
func Connect(cfg config.DatabaseConfig) error {
	dsn := cfg.URL
	switch {
	case dsn != "":
		log.Println("Connecting to PostgreSQL via DATABASE_URL")
	case cfg.InstanceConnectionName != "":
		// Cloud SQL unix socket
		dsn = fmt.Sprintf("host=/cloudsql/%s user=%s password=%s dbname=%s sslmode=disable",
			cfg.InstanceConnectionName, cfg.User, cfg.Pass, cfg.Name)
		log.Printf("Connecting to Cloud SQL via socket: %s", cfg.InstanceConnectionName)
	default:
		dsn = fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
			cfg.Host, cfg.User, cfg.Pass, cfg.Name, cfg.Port)
		log.Printf("Connecting to PostgreSQL at %s:%s", cfg.Host, cfg.Port)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	DB = db

	log.Println("✅ Database connected successfully!")
	return nil
}

// Migrate creates the schema and the partial unique indexes
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.WhatsAppNumber{},
		&models.BotFlow{},
		&models.BotSession{},
		&models.AuditLog{},
		&models.User{},
	)
	if err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	for _, stmt := range partialIndexes {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}

// Ping reports whether the database answers
func Ping() error {
	if DB == nil {
		return fmt.Errorf("database not connected")
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
