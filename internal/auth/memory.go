package auth

import (
	"context"
	"strings"
	"sync"
	"time"
)

var _ UserStore = (*MemoryStore)(nil)

// MemoryStore is a process-local UserStore used in development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[string]*User
	byEmail map[string]string
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]*User),
		byEmail: make(map[string]string),
		now:     time.Now,
	}
}

func (m *MemoryStore) Create(_ context.Context, u *User) error {
	if u == nil || u.ID == "" || u.Email == "" {
		return ErrInvalidInput
	}
	email := strings.ToLower(u.Email)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[u.ID]; ok {
		return ErrAlreadyExists
	}
	if _, ok := m.byEmail[email]; ok {
		return ErrAlreadyExists
	}
	cp := *u
	cp.Email = email
	m.byID[u.ID] = &cp
	m.byEmail[email] = u.ID
	return nil
}

func (m *MemoryStore) Find(_ context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MemoryStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	m.mu.RLock()
	id, ok := m.byEmail[strings.ToLower(strings.TrimSpace(email))]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return m.Find(ctx, id)
}

func (m *MemoryStore) TokenVersion(_ context.Context, id string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.byID[id]
	if !ok {
		return 0, ErrNotFound
	}
	return u.TokenVersion, nil
}

func (m *MemoryStore) UpdatePassword(_ context.Context, id, passwordHash string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return 0, ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.TokenVersion++
	u.UpdatedAt = m.now().UTC()
	return u.TokenVersion, nil
}

func (m *MemoryStore) SetStatus(_ context.Context, id string, status Status, bumpVersion bool) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	u.Status = status
	if bumpVersion {
		u.TokenVersion++
	}
	u.UpdatedAt = m.now().UTC()
	cp := *u
	return &cp, nil
}
