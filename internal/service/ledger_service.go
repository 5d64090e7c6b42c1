package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"skillbadge/internal/access"
	"skillbadge/internal/domain"
	"skillbadge/internal/repository"
)

var (
	// ErrInvalidInput marks requests rejected by validation.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnauthenticated is returned when an update call arrives from the anonymous principal.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrForbidden is returned when the caller's role lacks the required capability.
	ErrForbidden = errors.New("forbidden")
)

// Archiver receives newly issued badges for certificate archiving.
type Archiver interface {
	Enqueue(ctx context.Context, id domain.BadgeID) error
}

// LedgerService implements the ledger's query and update calls for a caller principal.
type LedgerService interface {
	BadgesForUser(ctx context.Context, user domain.Principal) ([]domain.SkillBadge, error)
	Badge(ctx context.Context, id domain.BadgeID) (*domain.SkillBadge, error)
	AllBadges(ctx context.Context) ([]domain.SkillBadge, error)
	IssueBadge(ctx context.Context, caller, owner domain.Principal, skillName string, description, level *string) (domain.BadgeID, error)

	CallerProfile(ctx context.Context, caller domain.Principal) (*domain.UserProfile, error)
	UserProfile(ctx context.Context, caller, user domain.Principal) (*domain.UserProfile, error)
	SaveCallerProfile(ctx context.Context, caller domain.Principal, profile domain.UserProfile) error

	CallerRole(ctx context.Context, caller domain.Principal) (domain.UserRole, error)
	IsAdmin(ctx context.Context, caller domain.Principal) (bool, error)
	AssignRole(ctx context.Context, caller, user domain.Principal, role domain.UserRole) error

	CertificateLocation(ctx context.Context, id domain.BadgeID) (string, error)
}

type LedgerConfig struct {
	Badges   repository.BadgeRepository
	Profiles repository.ProfileRepository
	Roles    repository.RoleRepository
	Archiver Archiver
	Logger   *logrus.Logger
	Now      func() time.Time
}

type ledgerService struct {
	badges   repository.BadgeRepository
	profiles repository.ProfileRepository
	roles    repository.RoleRepository
	archiver Archiver
	logger   *logrus.Logger
	now      func() time.Time
}

func NewLedgerService(cfg LedgerConfig) LedgerService {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &ledgerService{
		badges:   cfg.Badges,
		profiles: cfg.Profiles,
		roles:    cfg.Roles,
		archiver: cfg.Archiver,
		logger:   cfg.Logger,
		now:      cfg.Now,
	}
}

func (s *ledgerService) BadgesForUser(ctx context.Context, user domain.Principal) ([]domain.SkillBadge, error) {
	return s.badges.ListByOwner(ctx, user)
}

func (s *ledgerService) Badge(ctx context.Context, id domain.BadgeID) (*domain.SkillBadge, error) {
	badge, err := s.badges.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return badge, nil
}

func (s *ledgerService) AllBadges(ctx context.Context) ([]domain.SkillBadge, error) {
	return s.badges.List(ctx)
}

func (s *ledgerService) IssueBadge(ctx context.Context, caller, owner domain.Principal, skillName string, description, level *string) (domain.BadgeID, error) {
	if err := s.require(ctx, caller, access.MintBadge); err != nil {
		return 0, err
	}
	owner, err := domain.ParsePrincipal(owner.String())
	if err != nil {
		return 0, fmt.Errorf("%w: owner: %v", ErrInvalidInput, err)
	}
	skillName = strings.TrimSpace(skillName)
	if skillName == "" {
		return 0, fmt.Errorf("%w: skill name is required", ErrInvalidInput)
	}

	badge := &domain.SkillBadge{
		Owner:          owner,
		Issuer:         caller,
		SkillName:      skillName,
		Description:    domain.OptionalString(domain.StringValue(description)),
		Level:          domain.OptionalString(domain.StringValue(level)),
		Verified:       true,
		IssueTimestamp: s.now().UnixNano(),
	}
	id, err := s.badges.Create(ctx, badge)
	if err != nil {
		return 0, err
	}

	s.logger.Infof("issued badge %d (%s) to %s", id, skillName, owner)
	if s.archiver != nil {
		if err := s.archiver.Enqueue(ctx, id); err != nil {
			s.logger.Warnf("queue certificate for badge %d: %v", id, err)
		}
	}
	return id, nil
}

func (s *ledgerService) CallerProfile(ctx context.Context, caller domain.Principal) (*domain.UserProfile, error) {
	if caller.IsAnonymous() {
		return nil, ErrUnauthenticated
	}
	return s.profile(ctx, caller)
}

// UserProfile is visible to its owner and to admins.
func (s *ledgerService) UserProfile(ctx context.Context, caller, user domain.Principal) (*domain.UserProfile, error) {
	if caller != user {
		if err := s.require(ctx, caller, access.AssignRole); err != nil {
			return nil, err
		}
	}
	return s.profile(ctx, user)
}

func (s *ledgerService) profile(ctx context.Context, user domain.Principal) (*domain.UserProfile, error) {
	profile, err := s.profiles.Get(ctx, user)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return profile, nil
}

func (s *ledgerService) SaveCallerProfile(ctx context.Context, caller domain.Principal, profile domain.UserProfile) error {
	if err := s.require(ctx, caller, access.ManageProfile); err != nil {
		return err
	}
	profile.Name = strings.TrimSpace(profile.Name)
	if profile.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	profile.Email = domain.OptionalString(domain.StringValue(profile.Email))
	profile.Organization = domain.OptionalString(domain.StringValue(profile.Organization))
	return s.profiles.Upsert(ctx, caller, profile)
}

func (s *ledgerService) CallerRole(ctx context.Context, caller domain.Principal) (domain.UserRole, error) {
	if caller.IsAnonymous() {
		return domain.RoleGuest, nil
	}
	role, err := s.roles.Get(ctx, caller)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.RoleGuest, nil
		}
		return "", err
	}
	return role, nil
}

func (s *ledgerService) IsAdmin(ctx context.Context, caller domain.Principal) (bool, error) {
	role, err := s.CallerRole(ctx, caller)
	if err != nil {
		return false, err
	}
	return role == domain.RoleAdmin, nil
}

func (s *ledgerService) AssignRole(ctx context.Context, caller, user domain.Principal, role domain.UserRole) error {
	if err := s.require(ctx, caller, access.AssignRole); err != nil {
		return err
	}
	user, err := domain.ParsePrincipal(user.String())
	if err != nil {
		return fmt.Errorf("%w: user: %v", ErrInvalidInput, err)
	}
	if _, err := domain.ParseUserRole(role.String()); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := s.roles.Set(ctx, user, role); err != nil {
		return err
	}
	s.logger.Infof("%s assigned role %s to %s", caller, role, user)
	return nil
}

func (s *ledgerService) CertificateLocation(ctx context.Context, id domain.BadgeID) (string, error) {
	return s.badges.CertificateLocation(ctx, id)
}

func (s *ledgerService) require(ctx context.Context, caller domain.Principal, capability access.Capability) error {
	if caller.IsAnonymous() {
		return ErrUnauthenticated
	}
	role, err := s.CallerRole(ctx, caller)
	if err != nil {
		return err
	}
	if err := access.Require(role, capability); err != nil {
		return fmt.Errorf("%w: %v", ErrForbidden, err)
	}
	return nil
}
