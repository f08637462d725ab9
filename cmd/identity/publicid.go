package identity

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
)

// PublicIDLength is the length of a public identifier.
const PublicIDLength = 8

const publicIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// Bytes at or above this value are discarded so every symbol is equally likely.
const publicIDRejectAbove = 256 - 256%len(publicIDAlphabet)

// randReader is swapped in tests.
var randReader io.Reader = rand.Reader

// ExistsFunc reports whether a public id is already taken.
type ExistsFunc func(ctx context.Context, publicID string) (bool, error)

// NewPublicID draws PublicIDLength symbols uniformly from [A-Za-z0-9].
func NewPublicID() (string, error) {
	out := make([]byte, 0, PublicIDLength)
	buf := make([]byte, PublicIDLength*2)

	for len(out) < PublicIDLength {
		if _, err := io.ReadFull(randReader, buf); err != nil {
			return "", fmt.Errorf("identity: public id entropy: %w", err)
		}
		for _, b := range buf {
			if int(b) >= publicIDRejectAbove {
				continue
			}
			out = append(out, publicIDAlphabet[int(b)%len(publicIDAlphabet)])
			if len(out) == PublicIDLength {
				break
			}
		}
	}
	return string(out), nil
}

// GenerateUnique returns a fresh public id for which exists reports false.
//
// There is no attempt cap: with 62^8 possible ids a collision streak long
// enough to matter is not expected at this service's scale. An error from
// exists, from the random source or from ctx aborts generation.
func GenerateUnique(ctx context.Context, exists ExistsFunc) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		id, err := NewPublicID()
		if err != nil {
			return "", err
		}

		taken, err := exists(ctx, id)
		if err != nil {
			return "", fmt.Errorf("identity: public id lookup: %w", err)
		}
		if !taken {
			return id, nil
		}
	}
}

// ValidPublicID reports whether s has the shape of a public id.
func ValidPublicID(s string) bool {
	if len(s) != PublicIDLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		default:
			return false
		}
	}
	return true
}
