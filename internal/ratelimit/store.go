package ratelimit

import (
	"sync"
	"time"
)

// Store holds accounting entries for a Limiter. A single mutex guards the
// whole map so that a read-decide-write sequence on an entry is atomic.
type Store struct {
	mu      sync.Mutex
	entries map[Key]*Entry
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		entries: make(map[Key]*Entry),
	}
}

// Update runs fn against the entry for key while holding the store lock.
// fn works on a copy; the copy replaces the stored entry only when fn
// returns true. found reports whether the key was present.
func (s *Store) Update(key Key, fn func(e *Entry, found bool) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var e Entry
	existing, found := s.entries[key]
	if found {
		e = *existing
	}

	if fn(&e, found) {
		s.entries[key] = &e
	}
}

// Get returns a copy of the entry for key.
func (s *Store) Get(key Key) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Delete removes the entry for key.
func (s *Store) Delete(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// Len returns the number of tracked entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep removes entries whose window began more than retention before now,
// unless a lockout is still active. It returns the number removed.
func (s *Store) Sweep(now time.Time, retention time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, e := range s.entries {
		if now.Sub(e.WindowStart) > retention && !e.BlockedAt(now) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}
