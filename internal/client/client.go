// Package client is the badge data layer: cache-aware reads over the ledger's query
// calls and invalidating mutations over its update calls.
package client

import (
	"errors"

	"github.com/sirupsen/logrus"

	"skillbadge/internal/domain"
	"skillbadge/internal/identity"
	"skillbadge/internal/ledger"
	"skillbadge/internal/query"
)

// Cache key operations. Keys are the operation followed by its principal or badge id.
const (
	OpCallerBadges       = "callerBadges"
	OpBadge              = "badge"
	OpAllBadges          = "allBadges"
	OpCurrentUserProfile = "currentUserProfile"
	OpUserProfile        = "userProfile"
	OpCallerUserRole     = "callerUserRole"
	OpIsCallerAdmin      = "isCallerAdmin"
)

var (
	ErrBackendUnavailable = ledger.ErrBackendUnavailable
	ErrInvalidBadgeID     = domain.ErrInvalidBadgeID
	// ErrInvalidInput is returned for mutation parameters rejected before any remote call.
	ErrInvalidInput = errors.New("invalid input")
)

type Config struct {
	Backend  ledger.Source
	Identity identity.Provider
	Cache    *query.Cache
	Logger   *logrus.Logger
}

type Client struct {
	backends ledger.Source
	identity identity.Provider
	cache    *query.Cache
	logger   *logrus.Logger

	issue       *query.Mutation[IssueBadgeParams, domain.BadgeID]
	saveProfile *query.Mutation[domain.UserProfile, struct{}]
	assignRole  *query.Mutation[AssignRoleParams, struct{}]
}

func New(cfg Config) *Client {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Backend == nil {
		cfg.Backend = ledger.NewHandle(nil)
	}
	if cfg.Identity == nil {
		cfg.Identity = anonymous{}
	}
	if cfg.Cache == nil {
		cfg.Cache = query.NewCache(query.Options{Logger: cfg.Logger})
	}
	c := &Client{
		backends: cfg.Backend,
		identity: cfg.Identity,
		cache:    cfg.Cache,
		logger:   cfg.Logger,
	}
	c.initMutations()
	return c
}

// Cache returns the cache shared by every read of this client.
func (c *Client) Cache() *query.Cache {
	return c.cache
}

type anonymous struct{}

func (anonymous) Identity() (identity.Identity, bool) { return identity.Identity{}, false }

type readOptions struct {
	refresh bool
}

type ReadOption func(*readOptions)

// WithRefresh bypasses a fresh cache entry.
func WithRefresh() ReadOption {
	return func(o *readOptions) { o.refresh = true }
}

func applyReadOptions(opts []ReadOption) readOptions {
	var ro readOptions
	for _, opt := range opts {
		opt(&ro)
	}
	return ro
}
