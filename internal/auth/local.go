package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/session"
)

var identityNamespace = uuid.MustParse("6f1f3a52-4c1b-4f0e-9a43-2f4f1b0c9d11")

type LocalOptions struct {
	IdleTimeout time.Duration
	Now         func() time.Time
	Logger      *slog.Logger
}

// Local is a passwordless provider: any well-formed email signs in, and the
// same email always maps to the same identity.
type Local struct {
	sessions *session.Store
	logger   *slog.Logger

	mu     sync.Mutex
	subs   map[int]func(Change)
	nextID int
}

func NewLocal(opts LocalOptions) *Local {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Local{
		sessions: session.NewStore(session.Options{IdleTimeout: opts.IdleTimeout, Now: opts.Now}),
		logger:   logger,
		subs:     make(map[int]func(Change)),
	}
}

// IdentityFor returns the identity an email signs in as.
func IdentityFor(email, displayName string) Identity {
	email = strings.ToLower(strings.TrimSpace(email))
	return Identity{
		ID:          uuid.NewSHA1(identityNamespace, []byte(email)).String(),
		Email:       email,
		DisplayName: strings.TrimSpace(displayName),
	}
}

func (l *Local) Login(ctx context.Context, c Credentials) (Identity, string, error) {
	if err := ctx.Err(); err != nil {
		return Identity{}, "", err
	}
	addr, err := mail.ParseAddress(strings.TrimSpace(c.Email))
	if err != nil {
		return Identity{}, "", fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}

	displayName := c.DisplayName
	if displayName == "" {
		displayName = addr.Name
	}
	id := IdentityFor(addr.Address, displayName)
	sess := l.sessions.Create(id.ID, id.Email, id.DisplayName)

	l.logger.Info("user signed in", "user_id", id.ID)
	l.emit(Change{Kind: ChangeLogin, Identity: id})
	return id, sess.Token, nil
}

func (l *Local) Logout(ctx context.Context, token string) error {
	sess, ok := l.sessions.Delete(token)
	if !ok {
		return ErrUnauthenticated
	}
	id := identityOf(sess)

	l.logger.Info("user signed out", "user_id", id.ID)
	l.emit(Change{Kind: ChangeLogout, Identity: id, SignedOut: !l.sessions.Active(id.ID)})
	return nil
}

func (l *Local) Authenticate(ctx context.Context, token string) (Identity, error) {
	if strings.TrimSpace(token) == "" {
		return Identity{}, ErrUnauthenticated
	}
	sess, err := l.sessions.Lookup(token)
	if errors.Is(err, session.ErrExpired) {
		l.expire(sess)
	}
	if err != nil {
		return Identity{}, ErrUnauthenticated
	}
	return identityOf(sess), nil
}

// Sweep expires idle sessions and notifies subscribers about each.
func (l *Local) Sweep() int {
	expired := l.sessions.Sweep()
	for _, sess := range expired {
		l.expire(sess)
	}
	return len(expired)
}

func (l *Local) expire(sess session.Session) {
	id := identityOf(sess)
	l.logger.Info("session expired", "user_id", id.ID)
	l.emit(Change{Kind: ChangeExpired, Identity: id, SignedOut: !l.sessions.Active(id.ID)})
}

// Subscribe registers fn for every Change. Callbacks run synchronously on
// the goroutine that caused the change.
func (l *Local) Subscribe(fn func(Change)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := l.nextID
	l.nextID++
	l.subs[id] = fn

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.subs, id)
	}
}

func (l *Local) emit(c Change) {
	l.mu.Lock()
	subs := make([]func(Change), 0, len(l.subs))
	for _, fn := range l.subs {
		subs = append(subs, fn)
	}
	l.mu.Unlock()

	for _, fn := range subs {
		fn(c)
	}
}

func identityOf(s session.Session) Identity {
	return Identity{ID: s.UserID, Email: s.Email, DisplayName: s.DisplayName}
}
