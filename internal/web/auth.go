package web

import (
	"errors"
	"net/http"
	"strings"

	"github.com/blink-new/ai-headshot-generator-platform-9xjz6qh9/internal/auth"
)

// requireAuth resolves the bearer token and puts the identity on the request
// context before calling next.
func (s *Server) requireAuth(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeJSON(w, http.StatusUnauthorized, apiError{Error: auth.ErrUnauthenticated.Error()})
			return
		}

		id, err := s.auth.Authenticate(r.Context(), token)
		if err != nil {
			if !errors.Is(err, auth.ErrUnauthenticated) {
				s.logger.Error("authenticate failed", "err", err)
			}
			writeJSON(w, http.StatusUnauthorized, apiError{Error: auth.ErrUnauthenticated.Error()})
			return
		}

		next(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
	})
}

func bearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// identity returns the caller set by requireAuth.
func identity(r *http.Request) auth.Identity {
	id, _ := auth.FromContext(r.Context())
	return id
}
