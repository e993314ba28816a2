package google

import (
	"context"
	"fmt"
)

const (
	FakeValidToken = "valid_token"
	FakeEmail      = "mocked_email@google.com"
	FakeName       = "mocked name"
)

// Fake answers from a fixed token table, for tests and offline development.
type Fake struct {
	Accounts map[string]Account
}

// NewFake knows a single token, FakeValidToken.
func NewFake() *Fake {
	return &Fake{Accounts: map[string]Account{
		FakeValidToken: {Email: FakeEmail, Name: FakeName},
	}}
}

func (f *Fake) Lookup(_ context.Context, accessToken string) (Account, error) {
	account, ok := f.Accounts[accessToken]
	if !ok {
		return Account{}, fmt.Errorf("%w: status 401", ErrClient)
	}
	return account, nil
}
