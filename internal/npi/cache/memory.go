package cache

import (
	"context"
	"sync"
	"time"

	"npi-gateway/internal/npi/domain"
	"npi-gateway/internal/npi/models"
)

// MemoryStore is the process-local tier: a map of CacheEntry guarded by a
// RWMutex. Expired entries are evicted lazily when read.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]models.CacheEntry
	clock   Clock
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMemoryClock sets the clock used for expiry checks.
func WithMemoryClock(clock Clock) MemoryOption {
	return func(s *MemoryStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewMemoryStore creates an empty in-memory tier.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]models.CacheEntry),
		clock:   time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Name returns the tier label.
func (s *MemoryStore) Name() string { return TierMemory }

// Get returns the cached result for npi if present and unexpired.
// The error is always nil; the signature matches Tier.
func (s *MemoryStore) Get(_ context.Context, npi domain.NPI) (models.ValidationResult, bool, error) {
	key := npi.String()
	now := s.clock()

	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return models.ValidationResult{}, false, nil
	}
	if entry.Expired(now) {
		s.mu.Lock()
		// a concurrent Set may have refreshed the entry since the read lock was released
		if current, ok := s.entries[key]; ok && current.Expired(now) {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return models.ValidationResult{}, false, nil
	}
	return entry.Result, true, nil
}

// Set stores result under npi until now+ttl.
func (s *MemoryStore) Set(_ context.Context, npi domain.NPI, result models.ValidationResult, ttl time.Duration) error {
	if err := validateTTL(ttl); err != nil {
		return err
	}
	entry := models.CacheEntry{
		Result:    result.Fresh(),
		ExpiresAt: s.clock().Add(ttl),
	}
	s.mu.Lock()
	s.entries[npi.String()] = entry
	s.mu.Unlock()
	return nil
}

// Delete removes npi. Deleting an absent key is not an error.
func (s *MemoryStore) Delete(_ context.Context, npi domain.NPI) error {
	s.mu.Lock()
	delete(s.entries, npi.String())
	s.mu.Unlock()
	return nil
}

// Len returns the number of entries, including expired ones not yet evicted.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Clear drops every entry.
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	s.entries = make(map[string]models.CacheEntry)
	s.mu.Unlock()
}
