package domain

// UserProfile is owned and mutated only by the principal it belongs to.
type UserProfile struct {
	Name         string
	Email        *string
	Organization *string
}
