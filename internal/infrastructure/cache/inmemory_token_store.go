package cache

import (
	"context"
	"sync"
	"time"
)

type tokenEntry struct {
	token     string
	expiresAt time.Time
}

// InMemoryTokenStore implements TokenStore with a map. Tokens are not shared
// across process instances.
type InMemoryTokenStore struct {
	mu        sync.RWMutex
	entries   map[string]tokenEntry
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	now       func() time.Time
}

// NewInMemoryTokenStore creates the store and starts its cleanup goroutine
func NewInMemoryTokenStore() *InMemoryTokenStore {
	store := &InMemoryTokenStore{
		entries:  make(map[string]tokenEntry),
		stopChan: make(chan struct{}),
		now:      time.Now,
	}

	store.wg.Add(1)
	go store.cleanupLoop()

	return store
}

// Get returns the token if present and unexpired
func (s *InMemoryTokenStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	if !ok || !s.now().Before(e.expiresAt) {
		return "", ErrTokenNotFound
	}
	return e.token, nil
}

// Set stores the token with a TTL
func (s *InMemoryTokenStore) Set(ctx context.Context, key, token string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = tokenEntry{token: token, expiresAt: s.now().Add(ttl)}
	return nil
}

// Delete removes the token
func (s *InMemoryTokenStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (s *InMemoryTokenStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopChan)
		s.wg.Wait()
	})
	return nil
}

func (s *InMemoryTokenStore) cleanupLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

func (s *InMemoryTokenStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, key)
		}
	}
}

// Size returns the number of entries, expired ones included until cleanup runs
func (s *InMemoryTokenStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

var _ TokenStore = (*InMemoryTokenStore)(nil)
