// Package token performs silent token acquisition against an OAuth2
// identity provider's token endpoint and interprets what comes back. It
// covers the two grants the authorization engine drives (authorization code
// and client credentials), the typed provider failure carrying the
// provider's numeric error-code list, and unverified claim inspection for
// audience validation.
package token

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/authgate/authgate/internal/logctx"
)

// Result is the success outcome of a silent acquisition.
type Result struct {
	// AccessToken grants access to the requested resource.
	AccessToken string
	// RefreshToken is present only for delegated (auth-code) acquisitions.
	RefreshToken string
	// UserID is the human-facing principal identifier (upn or unique_name
	// claim), empty for client-credential acquisitions.
	UserID string
	// ObjectID is the directory object id ("oid" claim) of the principal.
	ObjectID string
}

// Acquirer obtains a token from the identity provider without interactive
// user participation. An empty authCode selects the client-credentials
// grant. Exactly one network call is made per invocation; retry policy
// belongs to the caller.
type Acquirer interface {
	AcquireSilently(ctx context.Context, resourceID, authCode string) (*Result, error)
}

// Config locates the provider's token endpoint and identifies this client.
type Config struct {
	// Authority is the base URL of the identity provider, e.g.
	// "https://login.microsoftonline.com".
	Authority string
	// Tenant is the directory tenant id or domain.
	Tenant string
	// ClientID / ClientSecret identify the registered application.
	ClientID     string
	ClientSecret string
	// RedirectURL must match the redirect URI registered with the provider;
	// it is bound into authorization-code exchanges.
	RedirectURL string
}

// AuthorityURL returns the tenant-scoped authority base.
func (c Config) AuthorityURL() string {
	return strings.TrimSuffix(c.Authority, "/") + "/" + c.Tenant
}

// TokenURL returns the provider's token endpoint.
func (c Config) TokenURL() string { return c.AuthorityURL() + "/oauth2/token" }

// AuthorizeURL returns the provider's interactive authorization endpoint.
func (c Config) AuthorizeURL() string { return c.AuthorityURL() + "/oauth2/authorize" }

// Client is the default Acquirer, speaking the provider's token endpoint
// via golang.org/x/oauth2. Timeouts and cancellation follow the supplied
// http.Client / context; no retry is performed here.
type Client struct {
	cfg  Config
	http *http.Client
	log  *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the transport used for token-endpoint calls.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger; logs are discarded when unset.
func WithLogger(log *slog.Logger) ClientOption {
	return func(c *Client) { c.log = log }
}

// NewClient returns an Acquirer for the given provider configuration.
func NewClient(cfg Config, opts ...ClientOption) (*Client, error) {
	if cfg.Tenant == "" {
		return nil, errors.New("token: tenant is required")
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("token: client id and secret are required")
	}
	c := &Client{cfg: cfg}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = http.DefaultClient
	}
	if c.log == nil {
		c.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c, nil
}

// AcquireSilently implements Acquirer. With an authCode it redeems the
// authorization-code grant binding resourceID, the registered redirect URI
// and the client credentials; without one it runs the client-credentials
// grant. Provider failures surface as *ProviderError so callers can inspect
// the numeric error-code list.
func (c *Client) AcquireSilently(ctx context.Context, resourceID, authCode string) (*Result, error) {
	grant := "client_credentials"
	if authCode != "" {
		grant = "authorization_code"
	}
	ctx = logctx.WithGrantData(ctx, &logctx.GrantData{GrantType: grant, Resource: resourceID})
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)

	if authCode != "" {
		conf := &oauth2.Config{
			ClientID:     c.cfg.ClientID,
			ClientSecret: c.cfg.ClientSecret,
			RedirectURL:  c.cfg.RedirectURL,
			Endpoint: oauth2.Endpoint{
				AuthURL:   c.cfg.AuthorizeURL(),
				TokenURL:  c.cfg.TokenURL(),
				AuthStyle: oauth2.AuthStyleInParams,
			},
		}
		tok, err := conf.Exchange(ctx, authCode, oauth2.SetAuthURLParam("resource", resourceID))
		if err != nil {
			c.log.DebugContext(ctx, "authorization-code grant failed", "resource", resourceID, "err", err)
			return nil, asProviderError(err)
		}
		c.log.DebugContext(ctx, "authorization-code grant succeeded", "resource", resourceID)
		return resultFromToken(tok), nil
	}

	conf := &clientcredentials.Config{
		ClientID:       c.cfg.ClientID,
		ClientSecret:   c.cfg.ClientSecret,
		TokenURL:       c.cfg.TokenURL(),
		EndpointParams: url.Values{"resource": {resourceID}},
		AuthStyle:      oauth2.AuthStyleInParams,
	}
	tok, err := conf.Token(ctx)
	if err != nil {
		c.log.DebugContext(ctx, "client-credentials grant failed", "resource", resourceID, "err", err)
		return nil, asProviderError(err)
	}
	c.log.DebugContext(ctx, "client-credentials grant succeeded", "resource", resourceID)
	return resultFromToken(tok), nil
}

// resultFromToken maps an oauth2 token (plus its id_token extra, when the
// provider returned one) into a Result. Principal identifiers come from the
// id_token when present, falling back to the access token's own claims.
// Neither token's signature is checked here: both arrived over the
// authenticated token-endpoint channel.
func resultFromToken(tok *oauth2.Token) *Result {
	res := &Result{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
	}
	if idt, ok := tok.Extra("id_token").(string); ok && idt != "" {
		fillIdentity(res, idt)
	}
	if res.UserID == "" || res.ObjectID == "" {
		fillIdentity(res, tok.AccessToken)
	}
	return res
}

func fillIdentity(res *Result, raw string) {
	claims, err := decodeClaims(raw)
	if err != nil {
		return
	}
	if res.UserID == "" {
		if upn, ok := claims["upn"].(string); ok {
			res.UserID = upn
		} else if un, ok := claims["unique_name"].(string); ok {
			res.UserID = un
		}
	}
	if res.ObjectID == "" {
		if oid, ok := claims["oid"].(string); ok {
			res.ObjectID = oid
		}
	}
}

// decodeClaims parses a JWT's claim payload without verifying its
// signature.
func decodeClaims(raw string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("token: decode claims: %w", err)
	}
	return claims, nil
}

// ValidateAudience reports whether raw's audience claim string-equals
// audience. The token's signature is deliberately not verified (signature
// trust is delegated to the provider's token endpoint); a malformed token
// or a non-string audience claim yields false, never an error.
func ValidateAudience(raw, audience string) bool {
	claims, err := decodeClaims(raw)
	if err != nil {
		return false
	}
	aud, ok := claims["aud"].(string)
	return ok && aud == audience
}
