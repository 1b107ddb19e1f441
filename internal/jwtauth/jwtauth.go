package jwtauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	keyfunc "github.com/MicahParks/keyfunc/v3"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
)

// Config controls validation behavior for bearer tokens: issuer, audience,
// algorithm and clock-skew policies.
type Config struct {
	Issuer string
	// ExpectedAudience is the protected resource identifier the API is
	// registered as with the authorization server.
	ExpectedAudience string
	AllowedAlgs      []string
	Leeway           time.Duration
	// ValidateIssuer, when false, skips issuer-claim enforcement on
	// presented tokens. Discovery still resolves metadata from Issuer.
	ValidateIssuer bool
}

// DefaultConfig returns a Config with safe defaults for algorithm, leeway
// and issuer enforcement.
func DefaultConfig() *Config {
	return &Config{
		AllowedAlgs:    []string{"RS256"},
		Leeway:         60 * time.Second,
		ValidateIssuer: true,
	}
}

// Identity is the internal claims carrier for validated tokens. It mirrors
// the minimal contract needed by the public auth package.
type Identity interface {
	Subject() string
	Claims(ref any) error
}

// identity is the concrete implementation of Identity.
type identity struct {
	subject string
	claims  map[string]any
}

func (u *identity) Subject() string { return u.subject }
func (u *identity) Claims(ref any) error {
	b, err := json.Marshal(u.claims)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, ref)
}

// Authenticator validates bearer tokens and returns a minimal Identity.
// Implementations MUST perform signature, audience and time validations.
type Authenticator interface {
	CheckAuthentication(ctx context.Context, tok string) (Identity, error)
}

// ErrUnauthorized indicates that the token failed validation (signature,
// issuer, audience, exp/nbf) and the request should be treated as
// unauthenticated.
var ErrUnauthorized = errors.New("jwtauth: unauthorized")

type discoveryAuthenticator struct {
	cfg     *Config
	iss     string
	keyfunc jwt.Keyfunc
}

// NewFromDiscovery performs OIDC discovery to obtain jwks_uri and issuer,
// and constructs an Authenticator enforcing the policies in Config. JWKS
// keys are auto-refreshed.
func NewFromDiscovery(ctx context.Context, cfg *Config) (*discoveryAuthenticator, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if cfg.Issuer == "" {
		return nil, errors.New("issuer is required")
	}

	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery failed: %w", err)
	}
	var meta struct {
		Issuer  string `json:"issuer"`
		JwksURI string `json:"jwks_uri"`
	}
	if err := provider.Claims(&meta); err != nil {
		return nil, fmt.Errorf("invalid discovery metadata: %w", err)
	}
	if meta.JwksURI == "" {
		return nil, errors.New("discovery incomplete: missing jwks_uri")
	}

	// Auto-refreshing JWKS
	kf, err := keyfunc.NewDefaultCtx(ctx, []string{meta.JwksURI})
	if err != nil {
		return nil, fmt.Errorf("jwks init failed: %w", err)
	}

	return &discoveryAuthenticator{
		cfg: cfg,
		iss: meta.Issuer,
		keyfunc: func(t *jwt.Token) (any, error) {
			// Enforce allowed algs
			alg := t.Method.Alg()
			allowed := false
			for _, a := range cfg.AllowedAlgs {
				if alg == a {
					allowed = true
					break
				}
			}
			if !allowed {
				return nil, fmt.Errorf("disallowed alg: %s", alg)
			}
			return kf.Keyfunc(t)
		},
	}, nil
}

func (a *discoveryAuthenticator) CheckAuthentication(ctx context.Context, tok string) (Identity, error) {
	if tok == "" {
		return nil, fmt.Errorf("%w: empty token", ErrUnauthorized)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods(a.cfg.AllowedAlgs),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(a.cfg.Leeway),
		jwt.WithAudience(a.cfg.ExpectedAudience),
	}
	if a.cfg.ValidateIssuer {
		opts = append(opts, jwt.WithIssuer(a.iss))
	}
	parser := jwt.NewParser(opts...)

	parsed, err := parser.Parse(tok, a.keyfunc)
	if err != nil {
		return nil, fmt.Errorf("%w: token parse/verify failed: %v", ErrUnauthorized, err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid claims type")
	}

	// The directory object id is the stable principal identifier; tokens
	// without one fall back to the subject claim.
	subject, _ := claims["oid"].(string)
	if subject == "" {
		subject, _ = claims["sub"].(string)
	}
	if subject == "" {
		return nil, fmt.Errorf("%w: no resolvable subject", ErrUnauthorized)
	}

	return &identity{subject: subject, claims: claims}, nil
}

var _ Authenticator = (*discoveryAuthenticator)(nil)
