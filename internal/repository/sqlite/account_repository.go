package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"skillbadge/internal/domain"
	"skillbadge/internal/repository"
)

const createAccountsTable = `
CREATE TABLE IF NOT EXISTS accounts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT NOT NULL UNIQUE,
	principal TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
`

type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) repository.AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createAccountsTable); err != nil {
		return fmt.Errorf("create accounts table: %w", err)
	}
	return nil
}

func (r *AccountRepository) Create(ctx context.Context, account *domain.Account) (int64, error) {
	return insertAccount(ctx, r.db, account)
}

// CreateWithRole inserts the account and its initial role in one IMMEDIATE
// transaction. pickRole sees the number of accounts that existed before the insert,
// so concurrent registrations on an empty ledger yield exactly one bootstrap role.
func (r *AccountRepository) CreateWithRole(ctx context.Context, account *domain.Account, pickRole func(existing int) domain.UserRole) (domain.UserRole, error) {
	conn, err := r.db.Conn(ctx)
	if err != nil {
		return "", fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, `BEGIN IMMEDIATE`); err != nil {
		return "", fmt.Errorf("begin registration: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_, _ = conn.ExecContext(context.WithoutCancel(ctx), `ROLLBACK`)
		}
	}()

	var existing int
	if err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&existing); err != nil {
		return "", fmt.Errorf("count accounts: %w", err)
	}
	role := pickRole(existing)

	if _, err := insertAccount(ctx, conn, account); err != nil {
		return "", err
	}
	if _, err := conn.ExecContext(ctx, upsertRole, account.Principal.String(), role.String(), account.CreatedAt); err != nil {
		return "", fmt.Errorf("set role: %w", err)
	}

	if _, err := conn.ExecContext(ctx, `COMMIT`); err != nil {
		return "", fmt.Errorf("commit registration: %w", err)
	}
	committed = true
	return role, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertAccount(ctx context.Context, db execer, account *domain.Account) (int64, error) {
	now := time.Now().UTC()
	account.CreatedAt = now
	account.UpdatedAt = now

	res, err := db.ExecContext(ctx, `
INSERT INTO accounts (username, principal, password_hash, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)`,
		account.Username,
		account.Principal.String(),
		account.PasswordHash,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unique") {
			return 0, fmt.Errorf("account %q: %w", account.Username, repository.ErrAlreadyExists)
		}
		return 0, fmt.Errorf("insert account: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("account last insert id: %w", err)
	}
	account.ID = id
	return id, nil
}

func (r *AccountRepository) GetByUsername(ctx context.Context, username string) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, username, principal, password_hash, created_at, updated_at
FROM accounts
WHERE username = ?`,
		username,
	)
	var (
		account   domain.Account
		principal string
	)
	if err := row.Scan(
		&account.ID,
		&account.Username,
		&principal,
		&account.PasswordHash,
		&account.CreatedAt,
		&account.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("account %q: %w", username, repository.ErrNotFound)
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}
	account.Principal = domain.Principal(principal)
	return &account, nil
}

func (r *AccountRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count accounts: %w", err)
	}
	return n, nil
}
