package client

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"skillbadge/internal/domain"
	"skillbadge/internal/query"
)

// IssueBadgeParams are the inputs of a mint. Blank Description or Level are sent as absent.
type IssueBadgeParams struct {
	Owner       domain.Principal
	SkillName   string
	Description string
	Level       string
}

type AssignRoleParams struct {
	User domain.Principal
	Role domain.UserRole
}

func (c *Client) initMutations() {
	c.issue = query.NewMutation(c.issueBadge, query.MutationOptions[IssueBadgeParams, domain.BadgeID]{
		OnSuccess: func(ctx context.Context, p IssueBadgeParams, id domain.BadgeID) {
			c.invalidate(OpCallerBadges, OpBadge, OpAllBadges)
			c.logger.WithFields(logrus.Fields{
				"badge_id": id.String(),
				"owner":    p.Owner.String(),
				"skill":    p.SkillName,
			}).Info("badge issued")
		},
		OnError: func(ctx context.Context, p IssueBadgeParams, err error) {
			c.logger.WithField("owner", p.Owner.String()).WithError(err).Error("issue badge failed")
		},
	})

	c.saveProfile = query.NewMutation(c.saveCallerProfile, query.MutationOptions[domain.UserProfile, struct{}]{
		OnSuccess: func(context.Context, domain.UserProfile, struct{}) {
			c.invalidate(OpCurrentUserProfile, OpUserProfile)
		},
		OnError: func(_ context.Context, _ domain.UserProfile, err error) {
			c.logger.WithError(err).Error("save profile failed")
		},
	})

	c.assignRole = query.NewMutation(c.assignCallerUserRole, query.MutationOptions[AssignRoleParams, struct{}]{
		OnSuccess: func(_ context.Context, p AssignRoleParams, _ struct{}) {
			c.invalidate(OpCallerUserRole, OpIsCallerAdmin)
			c.logger.WithFields(logrus.Fields{"user": p.User.String(), "role": p.Role.String()}).Info("role assigned")
		},
		OnError: func(_ context.Context, p AssignRoleParams, err error) {
			c.logger.WithField("user", p.User.String()).WithError(err).Error("assign role failed")
		},
	})
}

// IssueBadge mints a badge. On success the caller's badge list, single-badge
// lookups and the full listing are invalidated before IssueBadge returns.
func (c *Client) IssueBadge(ctx context.Context, params IssueBadgeParams) (domain.BadgeID, error) {
	return c.issue.Run(ctx, params)
}

// IssueStatus reports the state of the most recent IssueBadge call.
func (c *Client) IssueStatus() query.MutationStatus {
	return c.issue.Status()
}

func (c *Client) SaveCallerProfile(ctx context.Context, profile domain.UserProfile) error {
	_, err := c.saveProfile.Run(ctx, profile)
	return err
}

func (c *Client) AssignCallerUserRole(ctx context.Context, user domain.Principal, role domain.UserRole) error {
	_, err := c.assignRole.Run(ctx, AssignRoleParams{User: user, Role: role})
	return err
}

func (c *Client) issueBadge(ctx context.Context, p IssueBadgeParams) (domain.BadgeID, error) {
	backend, ready := c.backends.Backend()
	if !ready {
		return 0, ErrBackendUnavailable
	}
	if strings.TrimSpace(p.Owner.String()) == "" {
		return 0, fmt.Errorf("%w: owner is required", ErrInvalidInput)
	}
	skill := strings.TrimSpace(p.SkillName)
	if skill == "" {
		return 0, fmt.Errorf("%w: skill name is required", ErrInvalidInput)
	}
	return backend.IssueBadge(ctx, p.Owner, skill, domain.OptionalString(p.Description), domain.OptionalString(p.Level))
}

func (c *Client) saveCallerProfile(ctx context.Context, profile domain.UserProfile) (struct{}, error) {
	backend, ready := c.backends.Backend()
	if !ready {
		return struct{}{}, ErrBackendUnavailable
	}
	profile.Name = strings.TrimSpace(profile.Name)
	if profile.Name == "" {
		return struct{}{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	profile.Email = domain.OptionalString(domain.StringValue(profile.Email))
	profile.Organization = domain.OptionalString(domain.StringValue(profile.Organization))
	return struct{}{}, backend.SaveCallerUserProfile(ctx, profile)
}

func (c *Client) assignCallerUserRole(ctx context.Context, p AssignRoleParams) (struct{}, error) {
	backend, ready := c.backends.Backend()
	if !ready {
		return struct{}{}, ErrBackendUnavailable
	}
	if p.User == "" {
		return struct{}{}, fmt.Errorf("%w: user is required", ErrInvalidInput)
	}
	if _, err := domain.ParseUserRole(p.Role.String()); err != nil {
		return struct{}{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return struct{}{}, backend.AssignCallerUserRole(ctx, p.User, p.Role)
}

func (c *Client) invalidate(operations ...string) {
	for _, op := range operations {
		c.cache.Invalidate(query.NewKey(op))
	}
}
