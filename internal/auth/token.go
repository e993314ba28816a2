package auth

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
)

// Accepted Authorization schemes. "Token" is kept for older clients.
var schemes = []string{"Bearer", "Token"}

// KeyFromHeader extracts the opaque key from an Authorization header value.
func KeyFromHeader(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", ErrMissingToken
	}
	scheme, key, found := strings.Cut(header, " ")
	if !found {
		return "", ErrInvalidToken
	}
	for _, accepted := range schemes {
		if strings.EqualFold(scheme, accepted) {
			key = strings.TrimSpace(key)
			if !ValidKey(key) {
				return "", ErrInvalidToken
			}
			return key, nil
		}
	}
	return "", ErrInvalidToken
}

// ValidKey reports whether key looks like an issued key (40 lowercase hex chars).
func ValidKey(key string) bool {
	if len(key) != 40 {
		return false
	}
	for _, r := range key {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}

func HashToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return fmt.Sprintf("%x", sum)
}
