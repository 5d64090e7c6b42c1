// Package ledger defines the remote badge ledger contract and its HTTP transport.
package ledger

import (
	"context"
	"errors"
	"sync"

	"skillbadge/internal/domain"
)

// ErrBackendUnavailable is returned when no ledger handle is ready at call time.
var ErrBackendUnavailable = errors.New("ledger backend not available")

// Backend is the remote service contract. Query methods are read-only; update
// methods (IssueBadge, SaveCallerUserProfile, AssignCallerUserRole) mutate the ledger.
// Absent results are reported as nil with a nil error.
type Backend interface {
	GetBadgesForUser(ctx context.Context, user domain.Principal) ([]domain.SkillBadge, error)
	VerifyBadge(ctx context.Context, id domain.BadgeID) (*domain.SkillBadge, error)
	GetAllBadges(ctx context.Context) ([]domain.SkillBadge, error)
	IssueBadge(ctx context.Context, owner domain.Principal, skillName string, description, level *string) (domain.BadgeID, error)

	GetCallerUserProfile(ctx context.Context) (*domain.UserProfile, error)
	GetUserProfile(ctx context.Context, user domain.Principal) (*domain.UserProfile, error)
	SaveCallerUserProfile(ctx context.Context, profile domain.UserProfile) error

	GetCallerUserRole(ctx context.Context) (domain.UserRole, error)
	IsCallerAdmin(ctx context.Context) (bool, error)
	AssignCallerUserRole(ctx context.Context, user domain.Principal, role domain.UserRole) error
}

// Source hands out the backend once it is ready.
type Source interface {
	Backend() (Backend, bool)
}

// Handle is a Source whose backend can be installed after construction,
// e.g. once the transport has connected.
type Handle struct {
	mu      sync.RWMutex
	backend Backend
}

func NewHandle(b Backend) *Handle {
	return &Handle{backend: b}
}

func (h *Handle) Set(b Backend) {
	h.mu.Lock()
	h.backend = b
	h.mu.Unlock()
}

func (h *Handle) Backend() (Backend, bool) {
	if h == nil {
		return nil, false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.backend, h.backend != nil
}
