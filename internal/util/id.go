package util

import (
	"crypto/rand"
	"encoding/hex"
)

// KeyBytes yields a 40 character hex key.
const KeyBytes = 20

func NewKey() string {
	bytes := make([]byte, KeyBytes)
	_, _ = rand.Read(bytes)
	return hex.EncodeToString(bytes)
}
