// Package auth defines the bearer-token authenticator contract consumed by
// the authorization middleware. The middleware extracts the bearer
// credential from the request (or synthesizes one from the session) and
// awaits a single CheckAuthentication call; everything about how the token
// is verified lives behind the Authenticator interface.
//
// NewFromDiscovery builds the bundled implementation: JWT verification
// against the identity provider's published JWKS, located via OpenID
// Connect discovery.
package auth

import (
	"context"
	"errors"
)

// ErrUnauthorized indicates the presented credential failed validation or
// resolved to no identity.
var ErrUnauthorized = errors.New("auth: unauthorized")

// Identity is an authenticated principal. Implementations should be
// lightweight and safe for concurrent use.
type Identity interface {
	// Subject returns the principal's unique identifier (the directory
	// object id when present, else the token subject). Empty means the
	// credential did not resolve to a usable identity.
	Subject() string
	// Claims unmarshals the principal's claim set into ref.
	Claims(ref any) error
}

// Authenticator validates a presented bearer credential and resolves the
// identity behind it. Implementations return an error wrapping
// ErrUnauthorized for invalid credentials.
type Authenticator interface {
	CheckAuthentication(ctx context.Context, tok string) (Identity, error)
}
