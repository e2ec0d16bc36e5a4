package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("session not found")
	// ErrExpired is returned with the session it removed, so the caller can
	// report the sign-out.
	ErrExpired = errors.New("session expired")
)

type Session struct {
	Token        string
	UserID       string
	Email        string
	DisplayName  string
	CreatedAt    time.Time
	LastActivity time.Time
}

type Options struct {
	// IdleTimeout expires sessions not used for this long. Zero keeps them
	// until Delete.
	IdleTimeout time.Duration
	Now         func() time.Time
}

type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
	idle     time.Duration
	now      func() time.Time
}

func NewStore(opts Options) *Store {
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Store{
		sessions: make(map[string]*Session),
		idle:     opts.IdleTimeout,
		now:      now,
	}
}

// Create opens a new session for the user and returns it with a fresh token.
func (s *Store) Create(userID, email, displayName string) Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	sess := &Session{
		Token:        uuid.NewString(),
		UserID:       userID,
		Email:        email,
		DisplayName:  displayName,
		CreatedAt:    now,
		LastActivity: now,
	}
	s.sessions[sess.Token] = sess
	return *sess
}

// Lookup returns the live session for token and marks it active. An idle
// session is removed and returned together with ErrExpired.
func (s *Store) Lookup(token string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[token]
	if !ok {
		return Session{}, ErrNotFound
	}
	now := s.now()
	if s.expiredLocked(sess, now) {
		delete(s.sessions, token)
		return *sess, ErrExpired
	}
	sess.LastActivity = now
	return *sess, nil
}

func (s *Store) Delete(token string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[token]
	if !ok {
		return Session{}, false
	}
	delete(s.sessions, token)
	return *sess, true
}

// Active reports whether the user still holds any live session.
func (s *Store) Active(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for _, sess := range s.sessions {
		if sess.UserID == userID && !s.expiredLocked(sess, now) {
			return true
		}
	}
	return false
}

// Sweep drops expired sessions and returns them.
func (s *Store) Sweep() []Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var expired []Session
	for token, sess := range s.sessions {
		if s.expiredLocked(sess, now) {
			expired = append(expired, *sess)
			delete(s.sessions, token)
		}
	}
	return expired
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Store) expiredLocked(sess *Session, now time.Time) bool {
	return s.idle > 0 && now.Sub(sess.LastActivity) > s.idle
}
