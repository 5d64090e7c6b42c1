package domain

import (
	"strconv"
	"strings"
	"time"
)

// BadgeID is the ledger's native badge identifier.
type BadgeID uint64

// String returns the decimal form used in URLs and cache keys.
func (id BadgeID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// ParseBadgeID coerces a user supplied identifier into a BadgeID.
func ParseBadgeID(raw string) (BadgeID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, ErrInvalidBadgeID
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, ErrInvalidBadgeID
	}
	return BadgeID(v), nil
}

// SkillBadge is an issued skill credential. Issuance fields never change.
type SkillBadge struct {
	ID             BadgeID
	Owner          Principal
	Issuer         Principal
	SkillName      string
	Description    *string
	Level          *string
	Verified       bool
	IssueTimestamp int64 // nanoseconds since the Unix epoch
}

// IssuedAt converts the ledger timestamp into a time.Time.
func (b SkillBadge) IssuedAt() time.Time {
	return time.Unix(0, b.IssueTimestamp).UTC()
}

// OptionalString returns nil for blank values, mirroring the ledger's optional fields.
func OptionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// StringValue dereferences an optional string.
func StringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
