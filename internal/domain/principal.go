package domain

import (
	"crypto/sha256"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"strings"
)

const maxPrincipalBytes = 29

var principalEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Principal is the textual form of a ledger identity, e.g. "aaaaa-aa".
type Principal string

// AnonymousPrincipal identifies callers that have not authenticated.
var AnonymousPrincipal = PrincipalFromBytes([]byte{0x04})

// PrincipalFromBytes encodes raw principal bytes into their canonical textual form.
func PrincipalFromBytes(raw []byte) Principal {
	buf := make([]byte, 4+len(raw))
	binary.BigEndian.PutUint32(buf, crc32.ChecksumIEEE(raw))
	copy(buf[4:], raw)

	encoded := strings.ToLower(principalEncoding.EncodeToString(buf))
	var sb strings.Builder
	for i := 0; i < len(encoded); i += 5 {
		if i > 0 {
			sb.WriteByte('-')
		}
		end := i + 5
		if end > len(encoded) {
			end = len(encoded)
		}
		sb.WriteString(encoded[i:end])
	}
	return Principal(sb.String())
}

// NewSelfAuthenticatingPrincipal derives a principal from seed material.
func NewSelfAuthenticatingPrincipal(seed []byte) Principal {
	sum := sha256.Sum224(seed)
	raw := append(sum[:], 0x02)
	return PrincipalFromBytes(raw)
}

// ParsePrincipal validates the checksum and canonical form of a textual principal.
func ParsePrincipal(text string) (Principal, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidPrincipal)
	}
	compact := strings.ToUpper(strings.ReplaceAll(text, "-", ""))
	decoded, err := principalEncoding.DecodeString(compact)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPrincipal, err)
	}
	if len(decoded) < 4 {
		return "", fmt.Errorf("%w: too short", ErrInvalidPrincipal)
	}
	raw := decoded[4:]
	if len(raw) > maxPrincipalBytes {
		return "", fmt.Errorf("%w: too long", ErrInvalidPrincipal)
	}
	if binary.BigEndian.Uint32(decoded[:4]) != crc32.ChecksumIEEE(raw) {
		return "", fmt.Errorf("%w: checksum mismatch", ErrInvalidPrincipal)
	}
	canonical := PrincipalFromBytes(raw)
	if string(canonical) != text {
		return "", fmt.Errorf("%w: not in canonical form", ErrInvalidPrincipal)
	}
	return canonical, nil
}

func (p Principal) String() string {
	return string(p)
}

func (p Principal) IsAnonymous() bool {
	return p == AnonymousPrincipal
}
