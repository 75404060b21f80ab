// Package security provides cryptographic and authentication utilities.
// This file implements password hashing and verification backed by bcrypt.
package security

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost is the cost HashPassword falls back to when a caller
// passes a cost outside bcrypt's valid range (e.g. an unset config value
// left at its zero value). Production code gets its cost from
// config.AuthConfig.BcryptCost, not this constant directly.
const DefaultBcryptCost = bcrypt.DefaultCost

// HashPassword bcrypt-hashes password at the given cost factor, clamping
// to DefaultBcryptCost if cost falls outside bcrypt.MinCost..bcrypt.MaxCost
// so a misconfigured value never turns into a hashing panic.
func HashPassword(password string, cost int) (string, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultBcryptCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("security: hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword reports whether password matches hash, returning
// bcrypt.ErrMismatchedHashAndPassword (wrapped by callers as Unauthorized)
// on mismatch.
func VerifyPassword(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}
