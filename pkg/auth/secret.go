// Package auth holds the low-level secret handling shared by the service
// and its configuration.
package auth

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultHashCost = bcrypt.DefaultCost
	MinHashCost     = bcrypt.MinCost
	MaxHashCost     = bcrypt.MaxCost
)

var ErrWeakSecret = errors.New("secret is too weak")

// Common weak values rejected as signing secrets
var commonSecrets = map[string]bool{
	"secret":   true,
	"test":     true,
	"password": true,
	"12345":    true,
	"changeme": true,
	"admin":    true,
	"root":     true,
	"default":  true,
	"example":  true,
}

// HashSecret hashes a one-time secret such as a backup code
func HashSecret(secret string, cost int) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("secret cannot be empty")
	}
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash secret: %w", err)
	}
	return string(hashedBytes), nil
}

// CompareSecret reports whether secret matches hashedSecret
func CompareSecret(hashedSecret, secret string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashedSecret), []byte(secret)) == nil
}

// ValidateSigningSecret enforces a minimum length and rejects common values
func ValidateSigningSecret(secret string, minLength int) error {
	if len(secret) < minLength {
		return fmt.Errorf("%w: must be at least %d characters (got %d)", ErrWeakSecret, minLength, len(secret))
	}
	if commonSecrets[strings.ToLower(secret)] {
		return fmt.Errorf("%w: cannot be a common weak value", ErrWeakSecret)
	}
	return nil
}
