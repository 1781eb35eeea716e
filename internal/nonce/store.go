// Package nonce keeps the OIDC login state → nonce pairs between the login
// redirect and the launch form post. Each state can be taken once.
package nonce

import (
	"errors"
	"strings"
	"sync"
	"time"
)

// Store is safe for concurrent use and purges expired entries on writes.
type Store struct {
	mu       sync.Mutex
	entries  map[string]entry
	useCount uint64
	purgeN   uint64
	now      func() time.Time
}

type entry struct {
	nonce string
	until time.Time
}

// NewStore creates a store that purges expired entries every purgeEvery
// writes; purgeEvery <= 0 means 1024.
func NewStore(purgeEvery int) *Store {
	if purgeEvery <= 0 {
		purgeEvery = 1024
	}
	return &Store{
		entries: make(map[string]entry, 1024),
		purgeN:  uint64(purgeEvery),
		now:     time.Now,
	}
}

// Put records nonce under state for ttl. A live state cannot be overwritten.
func (s *Store) Put(state, nonce string, ttl time.Duration) error {
	state = strings.TrimSpace(state)
	if state == "" || nonce == "" {
		return errors.New("nonce: state and nonce are required")
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.useCount++
	if s.useCount%s.purgeN == 0 {
		s.purgeLocked(now)
	}
	if e, ok := s.entries[state]; ok && e.until.After(now) {
		return errors.New("nonce: state already in use")
	}
	s.entries[state] = entry{nonce: nonce, until: now.Add(ttl)}
	return nil
}

// Take returns and removes the nonce stored under state. It reports false
// for unknown, expired or already taken states.
func (s *Store) Take(state string) (string, bool) {
	state = strings.TrimSpace(state)
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[state]
	if !ok {
		return "", false
	}
	delete(s.entries, state)
	if !e.until.After(now) {
		return "", false
	}
	return e.nonce, true
}

// Len reports the number of stored entries, expired ones included.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Store) purgeLocked(now time.Time) {
	for k, e := range s.entries {
		if !e.until.After(now) {
			delete(s.entries, k)
		}
	}
}
