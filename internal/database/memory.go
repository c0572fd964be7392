package database

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"voicetime/internal/models"
)

// MemoryRepository is a process-local ledger with the same contract as
// Repository. Nothing survives a restart.
type MemoryRepository struct {
	mu      sync.Mutex
	records map[string]*models.DurationRecord
}

// NewMemoryRepository creates an empty in-memory ledger
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[string]*models.DurationRecord)}
}

func (m *MemoryRepository) EnsureExists(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[userID]; !ok {
		m.records[userID] = &models.DurationRecord{UserID: userID}
	}
	return nil
}

func (m *MemoryRepository) Increment(_ context.Context, userID string, field models.Field, delta int64) error {
	if delta < 0 {
		return ErrNegativeDelta
	}
	if _, err := column(field); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[userID]
	if !ok {
		return fmt.Errorf("%w: user %s", ErrNotFound, userID)
	}
	switch field {
	case models.FieldCall:
		rec.CallSeconds += delta
	case models.FieldMuted:
		rec.MutedSeconds += delta
	}
	return nil
}

func (m *MemoryRepository) Get(_ context.Context, userID string) (*models.DurationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[userID]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (m *MemoryRepository) ListAll(_ context.Context) ([]models.DurationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	records := make([]models.DurationRecord, 0, len(m.records))
	for _, rec := range m.records {
		records = append(records, *rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].UserID < records[j].UserID })
	return records, nil
}
