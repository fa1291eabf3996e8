// Package accounts holds user accounts and their persistence.
package accounts

import (
	"context"
)

// Account is a user of the file store. Username is the unique key. Password
// holds whatever the configured CredentialScheme produced.
type Account struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Store persists accounts. Implementations must be safe for concurrent use.
type Store interface {
	// Save stores a new account; ErrAccountExists if the username is taken.
	Save(ctx context.Context, a Account) error

	// FindByUsername returns the account or ErrAccountNotFound.
	FindByUsername(ctx context.Context, username string) (Account, error)

	// Delete removes the account; ErrAccountNotFound if absent.
	Delete(ctx context.Context, username string) error

	// ListAll returns every account ordered by username.
	ListAll(ctx context.Context) ([]Account, error)

	Close() error
}
