package pairing

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2b"
)

const (
	minPhoneDigits = 10
	maxPhoneDigits = 15

	// identitySuffix is the user server of the messaging network.
	identitySuffix = "@s.whatsapp.net"

	sessionIDBytes = 12
)

// NormalizePhone strips visual separators and validates the result.
// '+' and letters are rejected rather than stripped.
func NormalizePhone(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '.', r == '(', r == ')':
		default:
			return "", ErrInvalidNumber
		}
	}
	n := b.String()
	if len(n) < minPhoneDigits || len(n) > maxPhoneDigits {
		return "", ErrInvalidNumber
	}
	return n, nil
}

// DigitsOnly drops every non-digit character. Used by the legacy pull route.
func DigitsOnly(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// SessionIDFor derives the session id from a normalized number.
func SessionIDFor(phone string) string {
	sum := blake2b.Sum256([]byte("pairgate/session/" + phone))
	return hex.EncodeToString(sum[:sessionIDBytes])
}

// SelfIdentity is the canonical identity of the account behind phone.
func SelfIdentity(phone string) string {
	return phone + identitySuffix
}
