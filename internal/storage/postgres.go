package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/xaenox/scribe-bot/internal/models"
	"go.uber.org/zap"
)

//go:embed migrations.sql
var migrations embed.FS

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// PostgresStorage persists usage counters across restarts. Increments use
// single-statement upserts, so concurrent requests cannot lose updates.
type PostgresStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresStorage(config DatabaseConfig, logger *zap.Logger) (*PostgresStorage, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %v", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error connecting to the database: %v", err)
	}

	storage := &PostgresStorage{db: db, logger: logger}

	// Initialize database schema
	if err := storage.initializeSchema(); err != nil {
		return nil, fmt.Errorf("error initializing database schema: %v", err)
	}

	return storage, nil
}

func (s *PostgresStorage) initializeSchema() error {
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %v", err)
	}

	_, err = s.db.Exec(string(migrationSQL))
	if err != nil {
		return fmt.Errorf("error executing migrations: %v", err)
	}

	return nil
}

func (s *PostgresStorage) RecordProcessed(ctx context.Context, userID int64) error {
	query := `
		INSERT INTO usage_stats (user_id, messages_processed, last_activity)
		VALUES ($1, 1, NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET messages_processed = usage_stats.messages_processed + 1,
		    last_activity = NOW()`

	if _, err := s.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("error recording processed message: %v", err)
	}
	return nil
}

func (s *PostgresStorage) RecordFailure(ctx context.Context, userID int64, stage string) error {
	var column string
	switch stage {
	case StageTranscription:
		column = "transcription_failures"
	case StageGrammar:
		column = "grammar_failures"
	default:
		return fmt.Errorf("unknown failure stage: %s", stage)
	}

	query := fmt.Sprintf(`
		INSERT INTO usage_stats (user_id, %[1]s, last_activity)
		VALUES ($1, 1, NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET %[1]s = usage_stats.%[1]s + 1,
		    last_activity = NOW()`, column)

	if _, err := s.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("error recording %s failure: %v", stage, err)
	}
	return nil
}

func (s *PostgresStorage) GetStats(ctx context.Context, userID int64) (*models.UsageStats, error) {
	query := `
		SELECT user_id, messages_processed, transcription_failures, grammar_failures, last_activity
		FROM usage_stats
		WHERE user_id = $1`

	stats := &models.UsageStats{}
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&stats.UserID,
		&stats.MessagesProcessed,
		&stats.TranscriptionFailures,
		&stats.GrammarFailures,
		&stats.LastActivity,
	)
	if err == sql.ErrNoRows {
		return &models.UsageStats{UserID: userID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error querying usage stats: %v", err)
	}

	return stats, nil
}

func (s *PostgresStorage) ActiveUsers(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM usage_stats`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("error counting active users: %v", err)
	}
	return count, nil
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}
