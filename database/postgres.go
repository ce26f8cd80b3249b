package database

import (
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"whisper-service/config"
	"whisper-service/model"
)

// PostgresConnect opens the connection and migrates the schema.
func PostgresConnect(cfg *config.Config, logger zerolog.Logger) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		cfg.PostgresHost,
		cfg.PostgresPort,
		cfg.PostgresUser,
		cfg.PostgresPassword,
		cfg.PostgresDB,
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	logger.Info().Str("host", cfg.PostgresHost).Str("db", cfg.PostgresDB).Msg("connection opened to Postgres")

	if err := db.AutoMigrate(
		&model.User{},
		&model.UserBlock{},
		&model.MessageRequest{},
		&model.RequestPack{},
		&model.Conversation{},
		&model.Participant{},
		&model.Message{},
		&model.MessageReaction{},
		&model.PaymentOrder{},
	); err != nil {
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	// AutoMigrate cannot express a partial index over an expression;
	// this is what keeps one active request per unordered pair.
	if err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_message_requests_active_pair
		ON message_requests (LEAST(sender_id, recipient_id), GREATEST(sender_id, recipient_id))
		WHERE status IN ('pending', 'accepted') AND deleted_at IS NULL`).Error; err != nil {
		return nil, fmt.Errorf("creating active-pair index: %w", err)
	}
	logger.Info().Msg("Postgres database migrated")
	return db, nil
}
