package accounts

import (
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// CredentialScheme decides how passwords are stored and compared. Account
// creation stores Hash(password); login calls Verify.
type CredentialScheme interface {
	Name() string
	Hash(password string) (string, error)
	Verify(stored, presented string) bool
}

// PlaintextScheme stores passwords as given and compares them directly. It
// matches clusters whose existing account data holds raw passwords; anyone
// who can read the account store can read every password.
type PlaintextScheme struct{}

func (PlaintextScheme) Name() string { return "plaintext" }

func (PlaintextScheme) Hash(password string) (string, error) { return password, nil }

func (PlaintextScheme) Verify(stored, presented string) bool {
	return subtle.ConstantTimeCompare([]byte(stored), []byte(presented)) == 1
}

// BcryptScheme stores bcrypt hashes. The hash is computed once on the node
// that creates the account and replicated as is.
type BcryptScheme struct {
	Cost int
}

func (BcryptScheme) Name() string { return "bcrypt" }

func (s BcryptScheme) Hash(password string) (string, error) {
	cost := s.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

func (BcryptScheme) Verify(stored, presented string) bool {
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(presented)) == nil
}

// SchemeByName returns the scheme for a configuration value.
func SchemeByName(name string) (CredentialScheme, error) {
	switch name {
	case "", "plaintext":
		return PlaintextScheme{}, nil
	case "bcrypt":
		return BcryptScheme{}, nil
	default:
		return nil, fmt.Errorf("unknown password scheme %q", name)
	}
}
