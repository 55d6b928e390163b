package cache

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process SessionCache for tests and single-node deployments.
// Expiry is checked lazily on read.
type Memory struct {
	mu       sync.Mutex
	ttl      time.Duration
	sessions map[string]*memoryRecord
	byUser   map[string]map[string]struct{}
	now      func() time.Time
}

type memoryRecord struct {
	userID    string
	entries   map[string]Entry
	expiresAt time.Time
}

var _ SessionCache = (*Memory)(nil)

// NewMemory creates a memory cache whose reads slide expiry forward by ttl.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		ttl:      ttl,
		sessions: make(map[string]*memoryRecord),
		byUser:   make(map[string]map[string]struct{}),
		now:      time.Now,
	}
}

func (m *Memory) Put(_ context.Context, userID, sessionID string, entries map[string]Entry, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(entries) == 0 {
		m.dropLocked(sessionID)
		return nil
	}

	copied := make(map[string]Entry, len(entries))
	for name, entry := range entries {
		copied[name] = entry
	}
	m.sessions[sessionID] = &memoryRecord{
		userID:    userID,
		entries:   copied,
		expiresAt: m.now().Add(ttl),
	}
	if m.byUser[userID] == nil {
		m.byUser[userID] = make(map[string]struct{})
	}
	m.byUser[userID][sessionID] = struct{}{}
	return nil
}

func (m *Memory) Get(_ context.Context, sessionID, providerLowercaseName string) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.sessions[sessionID]
	if !ok {
		return Entry{}, ErrCacheMiss
	}
	if m.now().After(rec.expiresAt) {
		m.dropLocked(sessionID)
		return Entry{}, ErrCacheMiss
	}
	entry, ok := rec.entries[providerLowercaseName]
	if !ok {
		return Entry{}, ErrCacheMiss
	}

	// Sliding expiration: a successful read pushes expiry out again.
	rec.expiresAt = m.now().Add(m.ttl)
	return entry, nil
}

func (m *Memory) Invalidate(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropLocked(sessionID)
	return nil
}

func (m *Memory) InvalidateUser(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for sessionID := range m.byUser[userID] {
		m.dropLocked(sessionID)
	}
	return nil
}

func (m *Memory) dropLocked(sessionID string) {
	rec, ok := m.sessions[sessionID]
	if !ok {
		return
	}
	delete(m.sessions, sessionID)
	if set, ok := m.byUser[rec.userID]; ok {
		delete(set, sessionID)
		if len(set) == 0 {
			delete(m.byUser, rec.userID)
		}
	}
}
