// Package access maps ledger roles to the actions they unlock.
package access

import (
	"errors"
	"fmt"

	"skillbadge/internal/domain"
)

// ErrAccessDenied is returned when a role lacks a capability.
var ErrAccessDenied = errors.New("access denied")

type Capability string

const (
	VerifyBadge   Capability = "verify_badge"
	ViewPortfolio Capability = "view_portfolio"
	ManageProfile Capability = "manage_profile"
	MintBadge     Capability = "mint_badge"
	AssignRole    Capability = "assign_role"
)

var grants = map[domain.UserRole]map[Capability]bool{
	domain.RoleGuest: {
		VerifyBadge: true,
	},
	domain.RoleUser: {
		VerifyBadge:   true,
		ViewPortfolio: true,
		ManageProfile: true,
	},
	domain.RoleAdmin: {
		VerifyBadge:   true,
		ViewPortfolio: true,
		ManageProfile: true,
		MintBadge:     true,
		AssignRole:    true,
	},
}

func Allows(role domain.UserRole, c Capability) bool {
	return grants[role][c]
}

// Require returns ErrAccessDenied unless role grants c.
func Require(role domain.UserRole, c Capability) error {
	if !Allows(role, c) {
		return fmt.Errorf("%w: role %q cannot %s", ErrAccessDenied, role, c)
	}
	return nil
}
