package auth

import (
	"crypto/subtle"
)

// SecureCompareTokens compares two secrets in constant time.
// Used for static operator tokens such as the metrics scrape token.
func SecureCompareTokens(provided, expected string) bool {
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) == 1
}
