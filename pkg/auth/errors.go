package auth

import "errors"

var (
	// ErrInvalidCredentials is returned by Login for an unknown user or a
	// wrong password. The two cases are not distinguished.
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
	ErrShortSecret  = errors.New("secret must be at least 32 characters")
)
