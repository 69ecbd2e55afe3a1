package util

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeEmail canonicalizes an account identifier: NFKC
// normalization, trimmed whitespace, lowercased. Two visually identical
// addresses must map to the same storage key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFKC.String(email)))
}

// NormalizePassword applies NFKC so the same passphrase typed on
// different keyboards/IMEs verifies consistently.
func NormalizePassword(password string) string {
	return norm.NFKC.String(password)
}
