// Package session holds the key/value stores provider credentials live in
// between requests.
package session

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type entry struct {
	value   string
	expires time.Time
}

// MemoryStore is an in-process store with per-key TTLs. A zero TTL never expires.
type MemoryStore struct {
	mu      sync.RWMutex
	clock   clockwork.Clock
	entries map[string]entry
}

func NewMemoryStore(clock clockwork.Clock) *MemoryStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryStore{clock: clock, entries: make(map[string]entry)}
}

func (s *MemoryStore) Get(name string) (string, bool) {
	s.mu.RLock()
	e, ok := s.entries[name]
	s.mu.RUnlock()
	if !ok {
		return "", false
	}
	if !e.expires.IsZero() && !s.clock.Now().Before(e.expires) {
		s.mu.Lock()
		delete(s.entries, name)
		s.mu.Unlock()
		return "", false
	}
	return e.value, true
}

func (s *MemoryStore) Set(name, value string, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if value == "" {
		delete(s.entries, name)
		return
	}
	e := entry{value: value}
	if ttl > 0 {
		e.expires = s.clock.Now().Add(ttl)
	}
	s.entries[name] = e
}

// Snapshot copies the live entries, mostly for tests and debugging output.
func (s *MemoryStore) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := s.clock.Now()
	out := make(map[string]string, len(s.entries))
	for k, e := range s.entries {
		if e.expires.IsZero() || now.Before(e.expires) {
			out[k] = e.value
		}
	}
	return out
}
