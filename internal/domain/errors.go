package domain

import "errors"

var (
	// ErrInvalidBadgeID is returned when a badge identifier is not a non-negative integer.
	ErrInvalidBadgeID = errors.New("invalid badge ID format")
	// ErrInvalidPrincipal is returned for malformed textual principals.
	ErrInvalidPrincipal = errors.New("invalid principal")
	// ErrInvalidRole is returned for unknown role names.
	ErrInvalidRole = errors.New("invalid user role")
)
