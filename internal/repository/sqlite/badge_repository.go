package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"skillbadge/internal/domain"
	"skillbadge/internal/repository"
)

const createBadgesTable = `
CREATE TABLE IF NOT EXISTS badges (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	owner TEXT NOT NULL,
	issuer TEXT NOT NULL,
	skill_name TEXT NOT NULL,
	description TEXT NULL,
	level TEXT NULL,
	verified INTEGER NOT NULL DEFAULT 1,
	issue_timestamp INTEGER NOT NULL,
	certificate_location TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_badges_owner ON badges(owner);
`

const badgeColumns = `id, owner, issuer, skill_name, description, level, verified, issue_timestamp`

type BadgeRepository struct {
	db *sql.DB
}

func NewBadgeRepository(db *sql.DB) repository.BadgeRepository {
	return &BadgeRepository{db: db}
}

func (r *BadgeRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createBadgesTable); err != nil {
		return fmt.Errorf("create badges table: %w", err)
	}
	return nil
}

func (r *BadgeRepository) Create(ctx context.Context, badge *domain.SkillBadge) (domain.BadgeID, error) {
	res, err := r.db.ExecContext(ctx, `
INSERT INTO badges (owner, issuer, skill_name, description, level, verified, issue_timestamp)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		badge.Owner.String(),
		badge.Issuer.String(),
		badge.SkillName,
		nullString(badge.Description),
		nullString(badge.Level),
		badge.Verified,
		badge.IssueTimestamp,
	)
	if err != nil {
		return 0, fmt.Errorf("insert badge: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id: %w", err)
	}
	badge.ID = domain.BadgeID(id)
	return badge.ID, nil
}

func (r *BadgeRepository) Get(ctx context.Context, id domain.BadgeID) (*domain.SkillBadge, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+badgeColumns+` FROM badges WHERE id=?`, int64(id))
	badge, err := scanBadge(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("badge %d: %w", id, repository.ErrNotFound)
		}
		return nil, err
	}
	return badge, nil
}

func (r *BadgeRepository) List(ctx context.Context) ([]domain.SkillBadge, error) {
	return r.query(ctx, `SELECT `+badgeColumns+` FROM badges ORDER BY id ASC`)
}

func (r *BadgeRepository) ListByOwner(ctx context.Context, owner domain.Principal) ([]domain.SkillBadge, error) {
	return r.query(ctx, `SELECT `+badgeColumns+` FROM badges WHERE owner=? ORDER BY id ASC`, owner.String())
}

func (r *BadgeRepository) ListUnarchived(ctx context.Context) ([]domain.SkillBadge, error) {
	return r.query(ctx, `SELECT `+badgeColumns+` FROM badges WHERE certificate_location='' ORDER BY id ASC`)
}

func (r *BadgeRepository) SetCertificateLocation(ctx context.Context, id domain.BadgeID, location string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE badges SET certificate_location=? WHERE id=?`, location, int64(id))
	if err != nil {
		return fmt.Errorf("update certificate location: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("badge %d: %w", id, repository.ErrNotFound)
	}
	return nil
}

func (r *BadgeRepository) CertificateLocation(ctx context.Context, id domain.BadgeID) (string, error) {
	var location string
	err := r.db.QueryRowContext(ctx, `SELECT certificate_location FROM badges WHERE id=?`, int64(id)).Scan(&location)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("badge %d: %w", id, repository.ErrNotFound)
		}
		return "", fmt.Errorf("query certificate location: %w", err)
	}
	return location, nil
}

func (r *BadgeRepository) query(ctx context.Context, stmt string, args ...any) ([]domain.SkillBadge, error) {
	rows, err := r.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query badges: %w", err)
	}
	defer rows.Close()

	badges := []domain.SkillBadge{}
	for rows.Next() {
		badge, err := scanBadge(rows)
		if err != nil {
			return nil, err
		}
		badges = append(badges, *badge)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate badges: %w", err)
	}
	return badges, nil
}

func scanBadge(scanner interface {
	Scan(dest ...any) error
}) (*domain.SkillBadge, error) {
	var (
		badge       domain.SkillBadge
		id          int64
		owner       string
		issuer      string
		description sql.NullString
		level       sql.NullString
	)
	if err := scanner.Scan(
		&id,
		&owner,
		&issuer,
		&badge.SkillName,
		&description,
		&level,
		&badge.Verified,
		&badge.IssueTimestamp,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan badge: %w", err)
	}
	badge.ID = domain.BadgeID(id)
	badge.Owner = domain.Principal(owner)
	badge.Issuer = domain.Principal(issuer)
	badge.Description = stringPtr(description)
	badge.Level = stringPtr(level)
	return &badge, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}
