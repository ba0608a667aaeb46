// Package token generates the opaque secret tokens that gate attendee
// access to an event's submission flow.
package token

import (
	"crypto/rand"
	"fmt"
)

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// Length is the number of characters in a secret token.
const Length = 32

// New returns a fresh 32-character alphanumeric token. Uniqueness is not
// guaranteed here; callers rely on the database's unique constraint and
// regenerate on collision.
func New() (string, error) {
	buf := make([]byte, Length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	for i, b := range buf {
		buf[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(buf), nil
}
