package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"skillbadge/internal/repository"
)

// Open opens (or creates) the ledger database at path and ensures directories exist.
// ":memory:" opens a private in-memory database.
func Open(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	// single writer; also keeps an in-memory database on one connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000;`); err != nil {
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	return db, nil
}

// Repositories bundles every ledger table.
type Repositories struct {
	Badges   repository.BadgeRepository
	Accounts repository.AccountRepository
	Profiles repository.ProfileRepository
	Roles    repository.RoleRepository
}

func NewRepositories(db *sql.DB) Repositories {
	return Repositories{
		Badges:   NewBadgeRepository(db),
		Accounts: NewAccountRepository(db),
		Profiles: NewProfileRepository(db),
		Roles:    NewRoleRepository(db),
	}
}

// Init creates all tables.
func (r Repositories) Init(ctx context.Context) error {
	for _, init := range []func(context.Context) error{
		r.Badges.Init,
		r.Accounts.Init,
		r.Profiles.Init,
		r.Roles.Init,
	} {
		if err := init(ctx); err != nil {
			return err
		}
	}
	return nil
}
