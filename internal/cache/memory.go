package cache

import (
	"context"
	"sync"
	"time"

	"example.com/ribbit/internal/models"
)

// Memory is a single-process Cache. It backs development runs without Redis
// and the tests.
type Memory struct {
	mu         sync.Mutex
	now        func() time.Time
	feed       []models.Ribbit
	feedExpiry time.Time
	hasFeed    bool
	revoked    map[string]time.Time
}

func NewMemory() *Memory {
	return &Memory{
		now:     time.Now,
		revoked: make(map[string]time.Time),
	}
}

func (m *Memory) GetPublicFeed(ctx context.Context) ([]models.Ribbit, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.hasFeed || !m.now().Before(m.feedExpiry) {
		m.hasFeed = false
		m.feed = nil
		return nil, false, nil
	}
	out := make([]models.Ribbit, len(m.feed))
	copy(out, m.feed)
	return out, true, nil
}

func (m *Memory) SetPublicFeed(ctx context.Context, ribbits []models.Ribbit, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.feed = make([]models.Ribbit, len(ribbits))
	copy(m.feed, ribbits)
	m.feedExpiry = m.now().Add(ttl)
	m.hasFeed = true
	return nil
}

func (m *Memory) InvalidatePublicFeed(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.feed = nil
	m.hasFeed = false
	return nil
}

func (m *Memory) RevokeToken(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for id, exp := range m.revoked {
		if !now.Before(exp) {
			delete(m.revoked, id)
		}
	}
	m.revoked[tokenID] = now.Add(ttl)
	return nil
}

func (m *Memory) IsTokenRevoked(ctx context.Context, tokenID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	exp, ok := m.revoked[tokenID]
	if !ok {
		return false, nil
	}
	if !m.now().Before(exp) {
		delete(m.revoked, tokenID)
		return false, nil
	}
	return true, nil
}

func (m *Memory) Ping(ctx context.Context) error { return nil }

func (m *Memory) Close() error { return nil }
