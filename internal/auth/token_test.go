package auth

import (
	"errors"
	"testing"
)

const sampleKey = "0123456789abcdef0123456789abcdef01234567"

func TestKeyFromHeaderAcceptsBothSchemes(t *testing.T) {
	for _, header := range []string{"Bearer " + sampleKey, "Token " + sampleKey, "bearer  " + sampleKey} {
		key, err := KeyFromHeader(header)
		if err != nil {
			t.Fatalf("KeyFromHeader(%q) error = %v", header, err)
		}
		if key != sampleKey {
			t.Fatalf("KeyFromHeader(%q) = %q", header, key)
		}
	}
}

func TestKeyFromHeaderMissing(t *testing.T) {
	if _, err := KeyFromHeader("  "); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected ErrMissingToken, got %v", err)
	}
}

func TestKeyFromHeaderRejectsMalformed(t *testing.T) {
	cases := []string{
		sampleKey,
		"Basic " + sampleKey,
		"Bearer short",
		"Bearer 0123456789ABCDEF0123456789ABCDEF01234567",
	}
	for _, header := range cases {
		if _, err := KeyFromHeader(header); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("KeyFromHeader(%q) expected ErrInvalidToken, got %v", header, err)
		}
	}
}

func TestHashTokenIsStable(t *testing.T) {
	if HashToken(sampleKey) != HashToken(sampleKey) {
		t.Fatal("expected stable hash")
	}
	if HashToken(sampleKey) == HashToken(sampleKey[:39]+"8") {
		t.Fatal("expected different hash for different key")
	}
	if len(HashToken(sampleKey)) != 64 {
		t.Fatalf("expected sha256 hex digest, got %q", HashToken(sampleKey))
	}
}
