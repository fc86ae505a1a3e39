package responsecache

import (
	"context"
	"sync"
	"time"
)

// DefaultMaxEntries bounds a MemoryStore built without an explicit limit.
const DefaultMaxEntries = 1024

type entry struct {
	payload   []byte
	expiresAt time.Time
}

// MemoryStore caches vendor responses in process memory for tests/dev.
// Expired entries are swept on write and the store never holds more than maxEntries.
type MemoryStore struct {
	mu         sync.RWMutex
	entries    map[string]entry
	maxEntries int
	now        func() time.Time
}

// NewMemoryStore constructs an empty cache holding at most maxEntries responses.
func NewMemoryStore(maxEntries int) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &MemoryStore{
		entries:    make(map[string]entry),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Get returns a cached payload unless it has expired.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if s.expired(e.expiresAt, s.now()) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return nil, false, nil
	}
	return append([]byte(nil), e.payload...), true, nil
}

// Set caches the payload; a non-positive ttl keeps it until overwritten or evicted.
func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	exp := time.Time{}
	if ttl > 0 {
		exp = now.Add(ttl)
	}
	if _, exists := s.entries[key]; !exists && len(s.entries) >= s.maxEntries {
		s.sweepLocked(now)
		for len(s.entries) >= s.maxEntries {
			s.evictLocked()
		}
	}
	s.entries[key] = entry{payload: append([]byte(nil), value...), expiresAt: exp}
	return nil
}

// Len reports how many entries are held, expired ones included until swept.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *MemoryStore) sweepLocked(now time.Time) {
	for key, e := range s.entries {
		if s.expired(e.expiresAt, now) {
			delete(s.entries, key)
		}
	}
}

// evictLocked drops the entry closest to expiry; entries without a ttl go last.
func (s *MemoryStore) evictLocked() {
	var (
		victim string
		soon   time.Time
		found  bool
	)
	for key, e := range s.entries {
		switch {
		case !found:
		case e.expiresAt.IsZero():
			continue
		case !soon.IsZero() && !e.expiresAt.Before(soon):
			continue
		}
		victim, soon, found = key, e.expiresAt, true
	}
	if found {
		delete(s.entries, victim)
	}
}

func (s *MemoryStore) expired(ts, now time.Time) bool {
	if ts.IsZero() {
		return false
	}
	return ts.Before(now)
}
