package domain

import (
	"fmt"
	"strings"
)

type UserRole string

const (
	RoleAdmin UserRole = "admin"
	RoleUser  UserRole = "user"
	RoleGuest UserRole = "guest"
)

// ParseUserRole validates a role name.
func ParseUserRole(raw string) (UserRole, error) {
	switch role := UserRole(strings.ToLower(strings.TrimSpace(raw))); role {
	case RoleAdmin, RoleUser, RoleGuest:
		return role, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, raw)
	}
}

func (r UserRole) String() string {
	return string(r)
}
