package auth

import (
	"context"
	"sync"
	"time"

	"github.com/trubo/mail-gateway/internal/core"
)

type codeKey struct {
	email   string
	purpose Purpose
}

// MemoryStore is the in-process credential store used by tests.
type MemoryStore struct {
	mu    sync.Mutex
	codes map[codeKey]*Code
	users map[string]*User
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		codes: make(map[codeKey]*Code),
		users: make(map[string]*User),
	}
}

func (m *MemoryStore) UpsertCode(_ context.Context, c Code) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := c
	m.codes[codeKey{c.Email, c.Purpose}] = &cp
	return nil
}

func (m *MemoryStore) GetCode(_ context.Context, email string, p Purpose) (*Code, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.codes[codeKey{email, p}]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *MemoryStore) SetCodeAttempts(_ context.Context, email string, p Purpose, attempts int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.codes[codeKey{email, p}]; ok {
		c.Attempts = attempts
	}
	return nil
}

func (m *MemoryStore) MarkCodeVerified(_ context.Context, email string, p Purpose, attempts int, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.codes[codeKey{email, p}]; ok {
		c.Attempts = attempts
		c.VerifiedAt = &at
	}
	return nil
}

func (m *MemoryStore) CreateUser(_ context.Context, u User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.Email]; ok {
		return nil
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	cp := u
	m.users[u.Email] = &cp
	return nil
}

func (m *MemoryStore) GetUser(_ context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[email]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MemoryStore) SetPassword(_ context.Context, email, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[email]; ok {
		u.PasswordHash = passwordHash
	}
	return nil
}
