package util

import (
	"unicode"
)

const maxIdentifierLength = 256

// IsValidIdentifier reports whether s can be used as a device identifier or
// display name. Control characters are rejected.
func IsValidIdentifier(s string) bool {
	if s == "" || len(s) > maxIdentifierLength {
		return false
	}
	for _, r := range s {
		if unicode.IsControl(r) {
			return false
		}
	}
	return true
}
