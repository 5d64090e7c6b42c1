package repository

import "errors"

var (
	// ErrNotFound is returned by Get-style lookups when no row matches.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when a unique constraint rejects an insert.
	ErrAlreadyExists = errors.New("already exists")
)
