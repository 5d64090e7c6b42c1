package format

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimestamp(t *testing.T) {
	ns := time.Date(2024, time.July, 4, 15, 30, 0, 0, time.UTC).UnixNano()
	assert.Equal(t, "July 4, 2024", Timestamp(ns))
}

func TestPrincipal(t *testing.T) {
	assert.Equal(t, "aaaaa-aa", Principal("aaaaa-aa"))
	assert.Equal(t, "1234567890123456", Principal("1234567890123456"))
	assert.Equal(t, "abcdefgh...uvwxyz", Principal("abcdefghijklmnopqrstuvwxyz"))
}

func TestBadgeID(t *testing.T) {
	assert.Equal(t, "#7", BadgeID(7))
}
