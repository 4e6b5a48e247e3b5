package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims are the bearer token claims accepted by the HTTP surface.
// Subject (sub) names the guarded subject the caller may act on.
type TokenClaims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// IsAdmin reports whether the token grants administrative access
func (c *TokenClaims) IsAdmin() bool {
	return c.Role == RoleAdmin
}

const (
	RoleAdmin  = "admin"
	RoleClient = "client"
)

// SignInResult is what the identity backend reports for a sign-in step
type SignInResult struct {
	UserID               string
	SessionToken         string
	SecondFactorRequired bool
	ChallengeID          string
}

// LoginStatus is the outcome category of a guarded login step
type LoginStatus string

const (
	LoginAuthenticated        LoginStatus = "authenticated"
	LoginSecondFactorRequired LoginStatus = "second_factor_required"
	LoginRateLimited          LoginStatus = "rate_limited"
	LoginLocked               LoginStatus = "locked"
	LoginInvalidCredentials   LoginStatus = "invalid_credentials"
)

// LoginOutcome is returned to the calling layer for presentation
type LoginOutcome struct {
	Status            LoginStatus
	Result            *SignInResult
	RetryAfterSeconds int
	RemainingAttempts int
	Method            SecondFactorMethod
	BackupCodesLow    bool
}
