package storage

import (
	"context"
	"sync"
	"time"

	"github.com/xaenox/scribe-bot/internal/models"
)

// MemoryStorage is the default counter store. Counters reset on process
// restart; the Postgres store exists for deployments that want durability.
type MemoryStorage struct {
	mu    sync.RWMutex
	stats map[int64]*models.UsageStats
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		stats: make(map[int64]*models.UsageStats),
	}
}

func (s *MemoryStorage) RecordProcessed(ctx context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := s.get(userID)
	stats.MessagesProcessed++
	stats.LastActivity = time.Now()
	return nil
}

func (s *MemoryStorage) RecordFailure(ctx context.Context, userID int64, stage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := s.get(userID)
	switch stage {
	case StageTranscription:
		stats.TranscriptionFailures++
	case StageGrammar:
		stats.GrammarFailures++
	}
	stats.LastActivity = time.Now()
	return nil
}

func (s *MemoryStorage) GetStats(ctx context.Context, userID int64) (*models.UsageStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if stats, exists := s.stats[userID]; exists {
		copied := *stats
		return &copied, nil
	}
	return &models.UsageStats{UserID: userID}, nil
}

func (s *MemoryStorage) ActiveUsers(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.stats), nil
}

func (s *MemoryStorage) Close() error {
	// Nothing to close for in-memory storage
	return nil
}

// get returns the entry for userID, creating it if needed. Caller holds the
// write lock.
func (s *MemoryStorage) get(userID int64) *models.UsageStats {
	stats, exists := s.stats[userID]
	if !exists {
		stats = &models.UsageStats{UserID: userID}
		s.stats[userID] = stats
	}
	return stats
}
