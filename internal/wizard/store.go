package wizard

import (
	"sync"
	"time"
)

// Store keeps one wizard State per identity.
type Store struct {
	mu sync.Mutex
	m  map[string]*entry
}

type entry struct {
	state     State
	updatedAt time.Time
}

func NewStore() *Store {
	return &Store{m: make(map[string]*entry)}
}

func (s *Store) Get(ownerID string) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.getOrCreateLocked(ownerID).state.clone()
}

// Update runs fn against a copy of the owner's state and keeps the copy only
// when fn succeeds. The returned State is the state after the call.
func (s *Store) Update(ownerID string, fn func(*State) error) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.getOrCreateLocked(ownerID)
	next := e.state.clone()
	if fn != nil {
		if err := fn(&next); err != nil {
			return e.state.clone(), err
		}
	}
	e.state = next
	e.updatedAt = time.Now()
	return next.clone(), nil
}

func (s *Store) Reset(ownerID string) State {
	st, _ := s.Update(ownerID, func(st *State) error {
		st.Reset()
		return nil
	})
	return st
}

// Forget drops the owner's state entirely, e.g. after logout.
func (s *Store) Forget(ownerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, ownerID)
}

// Len reports how many identities currently hold wizard state.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}

func (s *Store) getOrCreateLocked(ownerID string) *entry {
	if e, ok := s.m[ownerID]; ok {
		return e
	}
	e := &entry{state: Initial(), updatedAt: time.Now()}
	s.m[ownerID] = e
	return e
}
