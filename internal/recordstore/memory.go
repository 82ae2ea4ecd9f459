package recordstore

import (
	"context"
	"sync"

	"github.com/lenswire/lenswire/internal/models"
)

// Memory is the in-process record store for tests and local runs.
type Memory struct {
	mu      sync.RWMutex
	records map[string]models.ClassifiedRecord
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{records: make(map[string]models.ClassifiedRecord)}
}

func (m *Memory) PutBatch(_ context.Context, records []models.ClassifiedRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		m.records[r.TweetID] = r
	}
	return nil
}

func (m *Memory) Get(_ context.Context, tweetID string) (*models.ClassifiedRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[tweetID]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *Memory) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records), nil
}
