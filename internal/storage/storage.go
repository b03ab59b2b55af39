package storage

import (
	"context"

	"github.com/xaenox/scribe-bot/internal/models"
)

// Failure stages recorded against a user's counters.
const (
	StageTranscription = "transcription"
	StageGrammar       = "grammar"
)

// Storage keeps the per-user usage counters behind /stats. Implementations
// must be safe for concurrent use; counters are only ever incremented.
type Storage interface {
	RecordProcessed(ctx context.Context, userID int64) error
	RecordFailure(ctx context.Context, userID int64, stage string) error
	GetStats(ctx context.Context, userID int64) (*models.UsageStats, error)
	ActiveUsers(ctx context.Context) (int, error)
	Close() error
}
