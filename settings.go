package authgate

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/joeshaw/envdecode"

	"github.com/authgate/authgate/token"
)

// AuthSettings is the process-wide, immutable configuration for the
// authorization engine. It is supplied once at startup and never mutated.
type AuthSettings struct {
	// Authority is the identity provider base URL. ENV: AUTH_AUTHORITY
	Authority string `env:"AUTH_AUTHORITY,default=https://login.microsoftonline.com"`
	// Tenant is the directory tenant id or domain. ENV: AUTH_TENANT
	Tenant string `env:"AUTH_TENANT,required"`
	// ClientID identifies the registered application. ENV: AUTH_CLIENT_ID
	ClientID string `env:"AUTH_CLIENT_ID,required"`
	// ClientSecret authenticates the application. ENV: AUTH_CLIENT_SECRET
	ClientSecret string `env:"AUTH_CLIENT_SECRET,required"`
	// APIAppID is the protected-resource identifier tokens must be scoped
	// to (the expected audience claim). ENV: AUTH_API_APP_ID
	APIAppID string `env:"AUTH_API_APP_ID,required"`
	// RedirectURI is the registered redirect URI bound into auth-code
	// exchanges. ENV: AUTH_REDIRECT_URI
	RedirectURI string `env:"AUTH_REDIRECT_URI"`
	// ValidateIssuer toggles issuer-claim enforcement on presented bearer
	// tokens. ENV: AUTH_VALIDATE_ISSUER
	ValidateIssuer bool `env:"AUTH_VALIDATE_ISSUER,default=true"`
	// Scope is the space-delimited scope string requested during
	// interactive sign-in. ENV: AUTH_SCOPE
	Scope string `env:"AUTH_SCOPE,default=openid profile"`
	// LogLevel is the engine's logging verbosity: debug, info, warn or
	// error. ENV: AUTH_LOG_LEVEL
	LogLevel string `env:"AUTH_LOG_LEVEL,default=info"`
}

// SettingsFromEnv populates AuthSettings from the environment.
func SettingsFromEnv() (AuthSettings, error) {
	var s AuthSettings
	if err := envdecode.Decode(&s); err != nil {
		return AuthSettings{}, fmt.Errorf("authgate: decode settings: %w", err)
	}
	return s, nil
}

// Validate reports whether the settings are complete enough to start.
func (s AuthSettings) Validate() error {
	if s.Tenant == "" {
		return errors.New("authgate: tenant is required")
	}
	if s.ClientID == "" || s.ClientSecret == "" {
		return errors.New("authgate: client id and secret are required")
	}
	if s.APIAppID == "" {
		return errors.New("authgate: API app id is required")
	}
	return nil
}

// IssuerURL returns the tenant-scoped issuer used for bearer-token
// discovery.
func (s AuthSettings) IssuerURL() string {
	return strings.TrimSuffix(s.Authority, "/") + "/" + s.Tenant + "/v2.0"
}

// SlogLevel maps the configured verbosity onto a slog.Level.
func (s AuthSettings) SlogLevel() slog.Level {
	switch strings.ToLower(s.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// tokenConfig projects the settings into the acquirer's configuration.
func (s AuthSettings) tokenConfig(redirectURL string) token.Config {
	return token.Config{
		Authority:    s.Authority,
		Tenant:       s.Tenant,
		ClientID:     s.ClientID,
		ClientSecret: s.ClientSecret,
		RedirectURL:  redirectURL,
	}
}

// SecurityStrategy selects the credential-presentation model for an
// endpoint. It is fixed by the route owner, never inferred per request.
type SecurityStrategy string

const (
	// StrategyBearer expects the caller to present (or have session-cached)
	// an access token in the Authorization header.
	StrategyBearer SecurityStrategy = "oauth-bearer"
	// StrategyAuthCode expects the caller to have completed interactive
	// sign-in and hold an authorization code.
	StrategyAuthCode SecurityStrategy = "user-auth"
)
