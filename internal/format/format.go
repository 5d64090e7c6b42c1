package format

import (
	"time"

	"skillbadge/internal/domain"
)

// Timestamp renders a nanosecond ledger timestamp as "January 2, 2006".
func Timestamp(ns int64) string {
	return time.Unix(0, ns).UTC().Format("January 2, 2006")
}

// Principal shortens long principals to their first 8 and last 6 characters.
func Principal(p string) string {
	if len(p) <= 16 {
		return p
	}
	return p[:8] + "..." + p[len(p)-6:]
}

func BadgeID(id domain.BadgeID) string {
	return "#" + id.String()
}
