// Package presence caches which users are online, as reported by the
// global presence channel.
package presence

import (
	"slices"
	"sync"

	"github.com/matheus3301/layover/internal/bus"
)

// Store is the session-wide set of online user ids.
type Store struct {
	mu     sync.RWMutex
	online map[string]struct{}
	bus    *bus.Bus
}

// NewStore creates an empty store. b may be nil.
func NewStore(b *bus.Bus) *Store {
	return &Store{online: make(map[string]struct{}), bus: b}
}

// SetAll replaces the set with exactly ids.
func (s *Store) SetAll(ids []string) {
	next := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id != "" {
			next[id] = struct{}{}
		}
	}
	s.mu.Lock()
	changed := !sameKeys(s.online, next)
	s.online = next
	s.mu.Unlock()
	if changed {
		s.publish()
	}
}

// Add marks id online. Adding an online id changes nothing.
func (s *Store) Add(id string) {
	if id == "" {
		return
	}
	s.mu.Lock()
	_, had := s.online[id]
	s.online[id] = struct{}{}
	s.mu.Unlock()
	if !had {
		s.publish()
	}
}

// Remove marks id offline. Removing an absent id changes nothing.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	_, had := s.online[id]
	delete(s.online, id)
	s.mu.Unlock()
	if had {
		s.publish()
	}
}

// IsOnline reports whether id is in the set.
func (s *Store) IsOnline(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.online[id]
	return ok
}

// Snapshot returns the online ids, sorted.
func (s *Store) Snapshot() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.online))
	for id := range s.online {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (s *Store) publish() {
	s.bus.Emit(bus.KindPresenceChanged, s.Snapshot())
}

func sameKeys(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
