// Package identity supplies the current authenticated principal.
package identity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"skillbadge/internal/domain"
	"skillbadge/internal/ledger"
)

// Identity is an authenticated caller.
type Identity struct {
	Principal domain.Principal
	Username  string
	Token     string
	ExpiresAt time.Time
}

// Provider reports the current identity, if one is present.
type Provider interface {
	Identity() (Identity, bool)
}

// Authenticator exchanges credentials for a token.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (ledger.TokenResponse, error)
}

// Session holds the identity of the running client. It is safe for concurrent use.
type Session struct {
	mu      sync.RWMutex
	current *Identity
	now     func() time.Time
}

func NewSession() *Session {
	return &Session{now: time.Now}
}

// Restore installs an identity from a previously issued token.
func (s *Session) Restore(token string) error {
	claims, err := Inspect(token)
	if err != nil {
		return err
	}
	principal, err := domain.ParsePrincipal(claims.Subject)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	id := Identity{
		Principal: principal,
		Username:  claims.Username,
		Token:     token,
	}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time
	}
	s.mu.Lock()
	s.current = &id
	s.mu.Unlock()
	return nil
}

func (s *Session) Login(ctx context.Context, auth Authenticator, username, password string) (Identity, error) {
	resp, err := auth.Login(ctx, username, password)
	if err != nil {
		return Identity{}, err
	}
	if err := s.Restore(resp.Token); err != nil {
		return Identity{}, err
	}
	id, _ := s.Identity()
	return id, nil
}

func (s *Session) Logout() {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
}

// Identity returns the current identity; expired identities are treated as absent.
func (s *Session) Identity() (Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return Identity{}, false
	}
	if !s.current.ExpiresAt.IsZero() && !s.now().Before(s.current.ExpiresAt) {
		return Identity{}, false
	}
	return *s.current, true
}

// Token implements ledger.TokenSource.
func (s *Session) Token() string {
	id, ok := s.Identity()
	if !ok {
		return ""
	}
	return id.Token
}
