package accounts

import "errors"

var (
	// ErrAccountExists is returned by Save when the username is taken
	ErrAccountExists = errors.New("account already exists")

	// ErrAccountNotFound is returned when no account has the username
	ErrAccountNotFound = errors.New("account not found")
)
