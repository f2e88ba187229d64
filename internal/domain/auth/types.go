// Package auth contains the domain types and logic for local accounts:
// the configured principals and their hashed secrets.
package auth

import (
	"errors"
	"strings"

	"github.com/Commandability/commandability-web-sub001/internal/domain/session"
)

// Sentinel errors for account lookups and secret verification.
var (
	ErrAccountNotFound = errors.New("account not found")
	ErrUnknownHashType = errors.New("unknown secret hash type")
)

// Account is a principal that can sign in with a secret.
type Account struct {
	Identity session.Identity
	// SecretHash is the Argon2id PHC string of the account secret.
	SecretHash string
}

// NormalizeEmail folds an email for lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
