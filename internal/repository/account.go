package repository

import (
	"context"

	"skillbadge/internal/domain"
)

// AccountRepository defines persistence operations for ledger logins.
type AccountRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, account *domain.Account) (int64, error)
	// CreateWithRole atomically inserts account and assigns pickRole(accounts before insert).
	CreateWithRole(ctx context.Context, account *domain.Account, pickRole func(existing int) domain.UserRole) (domain.UserRole, error)
	GetByUsername(ctx context.Context, username string) (*domain.Account, error)
	Count(ctx context.Context) (int, error)
}

// ProfileRepository stores one profile per principal.
type ProfileRepository interface {
	Init(ctx context.Context) error
	Get(ctx context.Context, owner domain.Principal) (*domain.UserProfile, error)
	Upsert(ctx context.Context, owner domain.Principal, profile domain.UserProfile) error
}

// RoleRepository stores explicit role assignments. Principals without a row are guests.
type RoleRepository interface {
	Init(ctx context.Context) error
	Get(ctx context.Context, principal domain.Principal) (domain.UserRole, error)
	Set(ctx context.Context, principal domain.Principal, role domain.UserRole) error
}
