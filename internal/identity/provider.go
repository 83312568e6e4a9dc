// Package identity describes the identity provider consumed by the console and ships an
// adapter for GoTrue-compatible auth servers.
package identity

import (
	"context"
	"errors"
	"fmt"

	"vouchr.org/internal/auth"
)

var (
	// ErrNoSession means the request carries no session credentials.
	ErrNoSession = errors.New("identity: no session")
	// ErrTokenExpired means the access token is well-formed but expired; a refresh may help.
	ErrTokenExpired = errors.New("identity: token expired")
	// ErrInvalidToken means the access or refresh token was rejected.
	ErrInvalidToken = errors.New("identity: invalid token")
)

// ProviderError wraps transport and upstream failures of a provider call.
type ProviderError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("identity: %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("identity: %s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Credentials are the raw tokens presented by a request.
type Credentials struct {
	AccessToken  string
	RefreshToken string
}

// Factors lists the verified second factors of the session user.
type Factors struct {
	Enrolled  bool
	FactorIDs []string
}

// Levels holds the current and next authenticator assurance levels.
type Levels struct {
	Current auth.AAL
	Next    auth.AAL
}

// Provider is the identity-provider contract. Every call takes the session explicitly.
type Provider interface {
	CurrentSession(ctx context.Context, creds Credentials) (auth.Session, error)
	ListSecondFactors(ctx context.Context, sess auth.Session) (Factors, error)
	AssuranceLevel(ctx context.Context, sess auth.Session) (Levels, error)
	RefreshSession(ctx context.Context, refreshToken string) (auth.Session, error)
}
