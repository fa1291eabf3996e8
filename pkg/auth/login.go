package auth

import (
	"context"
	"errors"

	"github.com/dd0wney/cluso-filestore/pkg/accounts"
)

// Authenticator checks credentials against the account store and issues
// tokens for valid ones.
type Authenticator struct {
	store  accounts.Store
	scheme accounts.CredentialScheme
	tokens *TokenManager
}

func NewAuthenticator(store accounts.Store, scheme accounts.CredentialScheme, tokens *TokenManager) *Authenticator {
	if scheme == nil {
		scheme = accounts.PlaintextScheme{}
	}
	return &Authenticator{store: store, scheme: scheme, tokens: tokens}
}

// Login returns a signed token, or ErrInvalidCredentials.
func (a *Authenticator) Login(ctx context.Context, username, password string) (string, error) {
	acct, err := a.store.FindByUsername(ctx, username)
	if errors.Is(err, accounts.ErrAccountNotFound) {
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", err
	}
	if !a.scheme.Verify(acct.Password, password) {
		return "", ErrInvalidCredentials
	}
	return a.tokens.Issue(username)
}

// Tokens returns the token manager used to validate bearer tokens.
func (a *Authenticator) Tokens() *TokenManager {
	return a.tokens
}
