package cache

import (
	"context"
	"sync"
	"time"

	"tiergate.dev/internal/auth"
)

var _ auth.SpentTokens = (*MemorySpentTokens)(nil)

// MemorySpentTokens is the single-process ledger. Entries linger until
// Purge removes the expired ones.
type MemorySpentTokens struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

func NewMemorySpentTokens(now func() time.Time) *MemorySpentTokens {
	if now == nil {
		now = time.Now
	}
	return &MemorySpentTokens{entries: make(map[string]time.Time), now: now}
}

func (m *MemorySpentTokens) MarkSpent(_ context.Context, jti string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if exp, ok := m.entries[jti]; ok && now.Before(exp) {
		return false, nil
	}
	m.entries[jti] = now.Add(ttl)
	return true, nil
}

// Purge drops expired entries and returns how many were removed.
func (m *MemorySpentTokens) Purge(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for jti, exp := range m.entries {
		if !now.Before(exp) {
			delete(m.entries, jti)
			n++
		}
	}
	return n
}

func (m *MemorySpentTokens) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
