package auth

import (
	"context"
	"errors"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthenticated    = errors.New("not authenticated")
)

// Identity is an authenticated user. ID is opaque and stable for the same
// account.
type Identity struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name,omitempty"`
}

// State is the session state as the front ends see it.
type State struct {
	Identity *Identity `json:"user"`
	Loading  bool      `json:"is_loading"`
}

type Credentials struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name,omitempty"`
}

type ChangeKind string

const (
	ChangeLogin   ChangeKind = "login"
	ChangeLogout  ChangeKind = "logout"
	ChangeExpired ChangeKind = "expired"
)

// Change is delivered to subscribers whenever a session starts or ends.
// SignedOut is set when the identity holds no session anymore.
type Change struct {
	Kind      ChangeKind
	Identity  Identity
	SignedOut bool
}

type Provider interface {
	Login(ctx context.Context, c Credentials) (Identity, string, error)
	Logout(ctx context.Context, token string) error
	Authenticate(ctx context.Context, token string) (Identity, error)
	Subscribe(fn func(Change)) (unsubscribe func())
}

type ctxKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok && id.ID != ""
}
