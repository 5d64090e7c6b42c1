package repository

import (
	"context"

	"skillbadge/internal/domain"
)

// BadgeRepository persists issued badges. Rows are append-only apart from the
// certificate location recorded once a badge has been archived.
type BadgeRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, badge *domain.SkillBadge) (domain.BadgeID, error)
	Get(ctx context.Context, id domain.BadgeID) (*domain.SkillBadge, error)
	List(ctx context.Context) ([]domain.SkillBadge, error)
	ListByOwner(ctx context.Context, owner domain.Principal) ([]domain.SkillBadge, error)
	ListUnarchived(ctx context.Context) ([]domain.SkillBadge, error)
	SetCertificateLocation(ctx context.Context, id domain.BadgeID, location string) error
	CertificateLocation(ctx context.Context, id domain.BadgeID) (string, error)
}
