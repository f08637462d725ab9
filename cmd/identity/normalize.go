package identity

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeUsername trims surrounding whitespace and applies Unicode NFC so
// visually identical names compare equal. Usernames stay case-sensitive.
func NormalizeUsername(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// NormalizeEmail performs case-insensitive canonicalization.
func NormalizeEmail(s string) string {
	return strings.ToLower(norm.NFC.String(strings.TrimSpace(s)))
}
