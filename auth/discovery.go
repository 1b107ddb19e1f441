package auth

import (
	"context"
	"errors"
	"time"

	"github.com/authgate/authgate/internal/jwtauth"
)

// Option configures optional aspects of the discovery-based bearer
// authenticator (algorithms, leeway, issuer enforcement). Issuer and
// audience are required formal arguments to NewFromDiscovery.
type Option func(*jwtauth.Config)

// WithAllowedAlgs restricts allowed JWS algorithms. "none" is never
// allowed. Defaults to ["RS256"].
func WithAllowedAlgs(algs ...string) Option {
	return func(c *jwtauth.Config) {
		c.AllowedAlgs = append([]string(nil), algs...)
	}
}

// WithLeeway sets clock skew tolerance for time-based claims.
func WithLeeway(d time.Duration) Option {
	return func(c *jwtauth.Config) { c.Leeway = d }
}

// WithIssuerValidation toggles issuer-claim enforcement. Disabling it is
// intended for multi-tenant providers whose issuer varies per tenant; the
// discovery document is still fetched from the configured issuer URL.
func WithIssuerValidation(validate bool) Option {
	return func(c *jwtauth.Config) { c.ValidateIssuer = validate }
}

// NewFromDiscovery returns an Authenticator that verifies JWT bearer
// tokens using OpenID Connect discovery to locate the provider's JWKS.
//
// Required:
//   - issuer:   identity provider issuer URL (tenant-scoped)
//   - audience: expected audience ("aud") claim, i.e. the protected
//     resource identifier this API is registered as
func NewFromDiscovery(ctx context.Context, issuer, audience string, opts ...Option) (Authenticator, error) {
	cfg := jwtauth.DefaultConfig()
	cfg.Issuer = issuer
	cfg.ExpectedAudience = audience
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.ExpectedAudience == "" {
		return nil, errors.New("auth: audience is required")
	}
	internal, err := jwtauth.NewFromDiscovery(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &adapter{a: internal}, nil
}

// adapter wraps the internal authenticator to satisfy the public interface.
type adapter struct {
	a jwtauth.Authenticator
}

func (ad *adapter) CheckAuthentication(ctx context.Context, tok string) (Identity, error) {
	id, err := ad.a.CheckAuthentication(ctx, tok)
	if err != nil {
		// Map the internal sentinel to the public error used by callers.
		if errors.Is(err, jwtauth.ErrUnauthorized) {
			return nil, errors.Join(ErrUnauthorized, err)
		}
		return nil, err
	}
	return identityAdapter{id: id}, nil
}

type identityAdapter struct{ id jwtauth.Identity }

func (u identityAdapter) Subject() string      { return u.id.Subject() }
func (u identityAdapter) Claims(ref any) error { return u.id.Claims(ref) }
