package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"skillbadge/internal/domain"
	"skillbadge/internal/repository"
)

const createRolesTable = `
CREATE TABLE IF NOT EXISTS roles (
	principal TEXT PRIMARY KEY,
	role TEXT NOT NULL,
	updated_at DATETIME NOT NULL
);
`

const upsertRole = `
INSERT INTO roles (principal, role, updated_at)
VALUES (?, ?, ?)
ON CONFLICT(principal) DO UPDATE SET role=excluded.role, updated_at=excluded.updated_at`

type RoleRepository struct {
	db *sql.DB
}

func NewRoleRepository(db *sql.DB) repository.RoleRepository {
	return &RoleRepository{db: db}
}

func (r *RoleRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createRolesTable); err != nil {
		return fmt.Errorf("create roles table: %w", err)
	}
	return nil
}

func (r *RoleRepository) Get(ctx context.Context, principal domain.Principal) (domain.UserRole, error) {
	var role string
	err := r.db.QueryRowContext(ctx, `SELECT role FROM roles WHERE principal = ?`, principal.String()).Scan(&role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("role for %s: %w", principal, repository.ErrNotFound)
		}
		return "", fmt.Errorf("scan role: %w", err)
	}
	return domain.ParseUserRole(role)
}

func (r *RoleRepository) Set(ctx context.Context, principal domain.Principal, role domain.UserRole) error {
	_, err := r.db.ExecContext(ctx, upsertRole,
		principal.String(),
		role.String(),
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("set role: %w", err)
	}
	return nil
}
