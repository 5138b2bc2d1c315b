package storage

import (
	"context"
	"slices"
	"sync"

	"ArxivIntel/internal/domain"
	"ArxivIntel/internal/ports"
)

// MemoryStorage keeps the queue snapshot in process memory.
type MemoryStorage struct {
	mu       sync.Mutex
	snapshot *domain.QueueSnapshot
	saves    int
}

var _ ports.QueueStorage = (*MemoryStorage)(nil)

// NewMemoryStorage returns an empty in-memory store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

// Load returns a copy of the last saved snapshot, or nil.
func (m *MemoryStorage) Load(_ context.Context) (*domain.QueueSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.snapshot == nil {
		return nil, nil
	}
	c := cloneSnapshot(*m.snapshot)
	return &c, nil
}

// Save replaces the stored snapshot.
func (m *MemoryStorage) Save(_ context.Context, snapshot domain.QueueSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := cloneSnapshot(snapshot)
	m.snapshot = &c
	m.saves++
	return nil
}

// Saves reports how many times Save was called.
func (m *MemoryStorage) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

func cloneSnapshot(s domain.QueueSnapshot) domain.QueueSnapshot {
	out := domain.QueueSnapshot{
		Papers:    slices.Clone(s.Papers),
		CreatedAt: s.CreatedAt,
	}
	if s.LastDigestSentAt != nil {
		t := *s.LastDigestSentAt
		out.LastDigestSentAt = &t
	}
	return out
}
