package client

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"skillbadge/internal/access"
	"skillbadge/internal/domain"
	"skillbadge/internal/ledger"
	"skillbadge/internal/query"
)

// CallerBadges lists the badges owned by the current identity. Without a ready
// backend or an identity it returns nil without contacting the ledger.
func (c *Client) CallerBadges(ctx context.Context, opts ...ReadOption) ([]domain.SkillBadge, error) {
	backend, ready := c.backends.Backend()
	id, signedIn := c.identity.Identity()
	key := query.NewKey(OpCallerBadges, id.Principal.String())

	badges, err := query.Fetch(ctx, c.cache, query.Query[[]domain.SkillBadge]{
		Key:     key,
		Enabled: ready && signedIn,
		Refresh: applyReadOptions(opts).refresh,
		Fn: func(ctx context.Context) ([]domain.SkillBadge, error) {
			return backend.GetBadgesForUser(ctx, id.Principal)
		},
	})
	return badges, c.reportRead(key, err)
}

// BadgeByID looks up a single badge for display. A blank id or an unready backend
// yields nil. An id that is not a number is logged and yields nil; it never reaches
// the ledger.
func (c *Client) BadgeByID(ctx context.Context, rawID string, opts ...ReadOption) (*domain.SkillBadge, error) {
	backend, ready := c.backends.Backend()
	if !ready || strings.TrimSpace(rawID) == "" {
		return nil, nil
	}
	id, err := domain.ParseBadgeID(rawID)
	if err != nil {
		c.logger.WithField("badge_id", rawID).Warn("invalid badge ID")
		return nil, nil
	}
	return c.fetchBadge(ctx, backend, id, applyReadOptions(opts).refresh)
}

// VerifyBadge is the employer-facing lookup. Malformed ids fail with
// ErrInvalidBadgeID before any remote call; an unknown id yields nil, nil.
func (c *Client) VerifyBadge(ctx context.Context, rawID string, opts ...ReadOption) (*domain.SkillBadge, error) {
	backend, ready := c.backends.Backend()
	if !ready {
		return nil, ErrBackendUnavailable
	}
	id, err := domain.ParseBadgeID(rawID)
	if err != nil {
		c.logger.WithField("badge_id", rawID).Warn("rejected verification of malformed badge ID")
		return nil, err
	}
	return c.fetchBadge(ctx, backend, id, applyReadOptions(opts).refresh)
}

func (c *Client) fetchBadge(ctx context.Context, backend ledger.Backend, id domain.BadgeID, refresh bool) (*domain.SkillBadge, error) {
	key := query.NewKey(OpBadge, id.String())
	badge, err := query.Fetch(ctx, c.cache, query.Query[*domain.SkillBadge]{
		Key:     key,
		Enabled: true,
		Refresh: refresh,
		Fn: func(ctx context.Context) (*domain.SkillBadge, error) {
			return backend.VerifyBadge(ctx, id)
		},
	})
	return badge, c.reportRead(key, err)
}

func (c *Client) AllBadges(ctx context.Context, opts ...ReadOption) ([]domain.SkillBadge, error) {
	backend, ready := c.backends.Backend()
	key := query.NewKey(OpAllBadges)
	badges, err := query.Fetch(ctx, c.cache, query.Query[[]domain.SkillBadge]{
		Key:     key,
		Enabled: ready,
		Refresh: applyReadOptions(opts).refresh,
		Fn:      backendCall(backend, ledger.Backend.GetAllBadges),
	})
	return badges, c.reportRead(key, err)
}

func (c *Client) CallerProfile(ctx context.Context, opts ...ReadOption) (*domain.UserProfile, error) {
	backend, ready := c.backends.Backend()
	id, signedIn := c.identity.Identity()
	key := query.NewKey(OpCurrentUserProfile, id.Principal.String())
	profile, err := query.Fetch(ctx, c.cache, query.Query[*domain.UserProfile]{
		Key:     key,
		Enabled: ready && signedIn,
		Refresh: applyReadOptions(opts).refresh,
		Fn:      backendCall(backend, ledger.Backend.GetCallerUserProfile),
	})
	return profile, c.reportRead(key, err)
}

func (c *Client) UserProfile(ctx context.Context, user domain.Principal, opts ...ReadOption) (*domain.UserProfile, error) {
	backend, ready := c.backends.Backend()
	key := query.NewKey(OpUserProfile, user.String())
	profile, err := query.Fetch(ctx, c.cache, query.Query[*domain.UserProfile]{
		Key:     key,
		Enabled: ready && user != "",
		Refresh: applyReadOptions(opts).refresh,
		Fn: func(ctx context.Context) (*domain.UserProfile, error) {
			return backend.GetUserProfile(ctx, user)
		},
	})
	return profile, c.reportRead(key, err)
}

// CallerRole resolves the current identity's role. Callers without an identity are guests.
func (c *Client) CallerRole(ctx context.Context, opts ...ReadOption) (domain.UserRole, error) {
	backend, ready := c.backends.Backend()
	id, signedIn := c.identity.Identity()
	key := query.NewKey(OpCallerUserRole, id.Principal.String())
	role, err := query.Fetch(ctx, c.cache, query.Query[domain.UserRole]{
		Key:     key,
		Enabled: ready && signedIn,
		Refresh: applyReadOptions(opts).refresh,
		Fn:      backendCall(backend, ledger.Backend.GetCallerUserRole),
	})
	if err != nil {
		return domain.RoleGuest, c.reportRead(key, err)
	}
	if role == "" {
		role = domain.RoleGuest
	}
	return role, nil
}

func (c *Client) IsCallerAdmin(ctx context.Context, opts ...ReadOption) (bool, error) {
	backend, ready := c.backends.Backend()
	id, signedIn := c.identity.Identity()
	key := query.NewKey(OpIsCallerAdmin, id.Principal.String())
	admin, err := query.Fetch(ctx, c.cache, query.Query[bool]{
		Key:     key,
		Enabled: ready && signedIn,
		Refresh: applyReadOptions(opts).refresh,
		Fn:      backendCall(backend, ledger.Backend.IsCallerAdmin),
	})
	return admin, c.reportRead(key, err)
}

// RequireCapability checks the caller's role before a gated action such as minting.
func (c *Client) RequireCapability(ctx context.Context, capability access.Capability) error {
	role, err := c.CallerRole(ctx)
	if err != nil {
		return err
	}
	return access.Require(role, capability)
}

func backendCall[T any](backend ledger.Backend, call func(ledger.Backend, context.Context) (T, error)) func(context.Context) (T, error) {
	return func(ctx context.Context) (T, error) {
		return call(backend, ctx)
	}
}

func (c *Client) reportRead(key query.Key, err error) error {
	if err == nil {
		return nil
	}
	c.logger.WithFields(logrus.Fields{"query": key.String()}).WithError(err).Error("ledger query failed")
	return err
}
