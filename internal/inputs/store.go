// Package inputs keeps the latest raw value of every input source and
// signals the controller when one of them changes.
package inputs

import (
	"sort"
	"sync"
	"time"
)

// Entry is one raw input as shown on the status API.
type Entry struct {
	Key     string
	Value   string
	Updated time.Time
}

// Store is a thread-safe map of raw input key to latest payload.
type Store struct {
	mu      sync.RWMutex
	entries map[string]Entry
	changes chan struct{}
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		entries: make(map[string]Entry),
		changes: make(chan struct{}, 1),
	}
}

// Put records value for key and reports whether it differs from the
// previous value. A change wakes the reader of Changes; bursts of changes
// coalesce into a single wake-up.
func (s *Store) Put(key, value string, now time.Time) bool {
	s.mu.Lock()
	prev, ok := s.entries[key]
	s.entries[key] = Entry{Key: key, Value: value, Updated: now}
	s.mu.Unlock()

	if ok && prev.Value == value {
		return false
	}
	select {
	case s.changes <- struct{}{}:
	default:
	}
	return true
}

// Get returns the latest value for key.
func (s *Store) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	return e.Value, ok
}

// Snapshot returns a copy of all values, safe to use after the call.
func (s *Store) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.entries))
	for k, e := range s.entries {
		out[k] = e.Value
	}
	return out
}

// Entries returns all inputs sorted by key.
func (s *Store) Entries() []Entry {
	s.mu.RLock()
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Changes delivers a signal after one or more inputs changed.
func (s *Store) Changes() <-chan struct{} {
	return s.changes
}
