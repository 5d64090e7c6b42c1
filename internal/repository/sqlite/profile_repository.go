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

const createProfilesTable = `
CREATE TABLE IF NOT EXISTS profiles (
	principal TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	email TEXT NULL,
	organization TEXT NULL,
	updated_at DATETIME NOT NULL
);
`

type ProfileRepository struct {
	db *sql.DB
}

func NewProfileRepository(db *sql.DB) repository.ProfileRepository {
	return &ProfileRepository{db: db}
}

func (r *ProfileRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createProfilesTable); err != nil {
		return fmt.Errorf("create profiles table: %w", err)
	}
	return nil
}

func (r *ProfileRepository) Get(ctx context.Context, owner domain.Principal) (*domain.UserProfile, error) {
	var (
		profile      domain.UserProfile
		email        sql.NullString
		organization sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `
SELECT name, email, organization
FROM profiles
WHERE principal = ?`, owner.String()).Scan(&profile.Name, &email, &organization)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("profile %s: %w", owner, repository.ErrNotFound)
		}
		return nil, fmt.Errorf("scan profile: %w", err)
	}
	profile.Email = stringPtr(email)
	profile.Organization = stringPtr(organization)
	return &profile, nil
}

func (r *ProfileRepository) Upsert(ctx context.Context, owner domain.Principal, profile domain.UserProfile) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO profiles (principal, name, email, organization, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(principal) DO UPDATE SET
	name=excluded.name,
	email=excluded.email,
	organization=excluded.organization,
	updated_at=excluded.updated_at`,
		owner.String(),
		profile.Name,
		nullString(profile.Email),
		nullString(profile.Organization),
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}
