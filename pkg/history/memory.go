package history

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store keeping a bounded ring of lines
// per server. Used in tests and in storeless deployments.
type MemoryStore struct {
	mu      sync.RWMutex
	maxPer  int
	entries map[string][]Entry
}

// NewMemoryStore creates a MemoryStore keeping at most maxPerServer
// lines per server (0 means 1000).
func NewMemoryStore(maxPerServer int) *MemoryStore {
	if maxPerServer <= 0 {
		maxPerServer = 1000
	}
	return &MemoryStore{
		maxPer:  maxPerServer,
		entries: make(map[string][]Entry),
	}
}

func (m *MemoryStore) Append(_ context.Context, serverID, level, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := append(m.entries[serverID], Entry{
		ServerID:  serverID,
		Level:     level,
		Message:   message,
		Timestamp: time.Now(),
	})
	if len(list) > m.maxPer {
		list = list[len(list)-m.maxPer:]
	}
	m.entries[serverID] = list
	return nil
}

func (m *MemoryStore) Recent(_ context.Context, serverID string, limit int) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.entries[serverID]
	if limit > len(list) {
		limit = len(list)
	}

	// Most-recent-first, matching the SQLite store.
	out := make([]Entry, 0, limit)
	for i := len(list) - 1; i >= len(list)-limit; i-- {
		out = append(out, list[i])
	}
	return out, nil
}
