// Package google resolves OAuth access tokens into Google account details.
package google

import (
	"context"
	"errors"
)

// Lookup failure classes. Every class is reported to API callers the same
// way; the distinction only reaches the logs.
var (
	ErrTimeoutOrUnreachable = errors.New("google userinfo timeout or unreachable")
	ErrClient               = errors.New("google userinfo rejected the token")
	ErrServer               = errors.New("google userinfo server error")
	ErrMalformed            = errors.New("google userinfo malformed response")
)

type Account struct {
	Email   string
	Name    string
	Picture string
}

type Client interface {
	Lookup(ctx context.Context, accessToken string) (Account, error)
}
