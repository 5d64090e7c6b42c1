package domain

import "time"

// Account is a login registered with the reference ledger. Each account owns one principal.
type Account struct {
	ID           int64
	Username     string
	Principal    Principal
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
