package auth

import (
	"context"
	"errors"
	"time"

	"github.com/platinummonkey/closingroom/pkg/contextkeys"
)

// Principal is the authenticated caller
type Principal struct {
	Subject       string    `json:"sub"`
	Issuer        string    `json:"iss"`
	Email         string    `json:"email,omitempty"`
	EmailVerified bool      `json:"email_verified"`
	Name          string    `json:"name,omitempty"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// DisplayName returns the name, falling back to the email and then the subject
func (p *Principal) DisplayName() string {
	switch {
	case p.Name != "":
		return p.Name
	case p.Email != "":
		return p.Email
	default:
		return p.Subject
	}
}

// Verifier turns a raw bearer token into a Principal
type Verifier interface {
	Verify(ctx context.Context, rawToken string) (*Principal, error)
}

var (
	// ErrInvalidToken is returned for malformed, expired or wrongly signed tokens
	ErrInvalidToken = errors.New("invalid or expired token")
	// ErrEmailNotVerified is returned when a verified email is required and missing
	ErrEmailNotVerified = errors.New("email address is not verified")
)

// PrincipalFromContext returns the principal stored by the auth middleware
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(contextkeys.AuthKey).(*Principal)
	return p, ok && p != nil
}
