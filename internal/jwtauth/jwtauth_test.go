package jwtauth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
)

type mockOIDC struct {
	srv      *httptest.Server
	issuer   string
	jwksPath string
}

func newMockOIDC(t *testing.T, keysJSON []byte) *mockOIDC {
	t.Helper()
	m := &mockOIDC{jwksPath: "/keys"}
	handler := http.NewServeMux()
	handler.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		meta := map[string]any{
			"issuer":                   m.issuer,
			"jwks_uri":                 m.issuer + m.jwksPath,
			"authorization_endpoint":   m.issuer + "/oauth2/authorize",
			"token_endpoint":           m.issuer + "/oauth2/token",
			"response_types_supported": []string{"code"},
		}
		_ = json.NewEncoder(w).Encode(meta)
	})
	handler.HandleFunc(m.jwksPath, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(keysJSON)
	})
	m.srv = httptest.NewServer(handler)
	t.Cleanup(m.srv.Close)
	m.issuer = m.srv.URL
	return m
}

func genRSA(t *testing.T) (*rsa.PrivateKey, string, []byte) {
	t.Helper()
	pk, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("gen key: %v", err)
	}
	kid := "test-key"
	jwk := jose.JSONWebKey{Key: &pk.PublicKey, KeyID: kid, Algorithm: "RS256", Use: "sig"}
	set := struct {
		Keys []jose.JSONWebKey `json:"keys"`
	}{Keys: []jose.JSONWebKey{jwk}}
	b, err := json.Marshal(set)
	if err != nil {
		t.Fatalf("marshal jwks: %v", err)
	}
	return pk, kid, b
}

func signToken(t *testing.T, pk *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = kid
	s, err := tok.SignedString(pk)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func baseConfig(issuer, aud string) *Config {
	cfg := DefaultConfig()
	cfg.Issuer = issuer
	cfg.ExpectedAudience = aud
	cfg.Leeway = 0
	return cfg
}

func TestAuthenticator_HappyPath(t *testing.T) {
	pk, kid, jwks := genRSA(t)
	oidc := newMockOIDC(t, jwks)

	aud := "api://protected"
	a, err := NewFromDiscovery(context.Background(), baseConfig(oidc.issuer, aud))
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	now := time.Now()
	tok := signToken(t, pk, kid, jwt.MapClaims{
		"iss": oidc.issuer,
		"sub": "user-123",
		"oid": "oid-123",
		"aud": aud,
		"exp": now.Add(time.Hour).Unix(),
		"iat": now.Unix(),
		"upn": "user@example.test",
	})

	id, err := a.CheckAuthentication(context.Background(), tok)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if id.Subject() != "oid-123" {
		t.Fatalf("subject = %s, want directory object id", id.Subject())
	}

	var out struct {
		UPN string `json:"upn"`
	}
	if err := id.Claims(&out); err != nil {
		t.Fatalf("claims: %v", err)
	}
	if out.UPN != "user@example.test" {
		t.Fatalf("claim roundtrip mismatch: %q", out.UPN)
	}
}

func TestAuthenticator_SubjectFallsBackToSub(t *testing.T) {
	pk, kid, jwks := genRSA(t)
	oidc := newMockOIDC(t, jwks)

	aud := "api://protected"
	a, err := NewFromDiscovery(context.Background(), baseConfig(oidc.issuer, aud))
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	now := time.Now()
	tok := signToken(t, pk, kid, jwt.MapClaims{
		"iss": oidc.issuer,
		"sub": "sub-only",
		"aud": aud,
		"exp": now.Add(time.Hour).Unix(),
	})

	id, err := a.CheckAuthentication(context.Background(), tok)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if id.Subject() != "sub-only" {
		t.Fatalf("subject = %s", id.Subject())
	}
}

func TestAuthenticator_AudienceMismatch(t *testing.T) {
	pk, kid, jwks := genRSA(t)
	oidc := newMockOIDC(t, jwks)

	a, err := NewFromDiscovery(context.Background(), baseConfig(oidc.issuer, "api://protected"))
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	now := time.Now()
	tok := signToken(t, pk, kid, jwt.MapClaims{
		"iss": oidc.issuer,
		"sub": "user-123",
		"aud": "api://other",
		"exp": now.Add(time.Hour).Unix(),
	})

	if _, err := a.CheckAuthentication(context.Background(), tok); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
}

func TestAuthenticator_ExpiredToken(t *testing.T) {
	pk, kid, jwks := genRSA(t)
	oidc := newMockOIDC(t, jwks)

	aud := "api://protected"
	a, err := NewFromDiscovery(context.Background(), baseConfig(oidc.issuer, aud))
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	tok := signToken(t, pk, kid, jwt.MapClaims{
		"iss": oidc.issuer,
		"sub": "user-123",
		"aud": aud,
		"exp": time.Now().Add(-time.Hour).Unix(),
	})

	if _, err := a.CheckAuthentication(context.Background(), tok); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
}

func TestAuthenticator_IssuerValidationToggle(t *testing.T) {
	pk, kid, jwks := genRSA(t)
	oidc := newMockOIDC(t, jwks)

	aud := "api://protected"
	now := time.Now()
	foreignIssuer := signToken(t, pk, kid, jwt.MapClaims{
		"iss": "https://some-other-tenant.example",
		"sub": "user-123",
		"aud": aud,
		"exp": now.Add(time.Hour).Unix(),
	})

	strict, err := NewFromDiscovery(context.Background(), baseConfig(oidc.issuer, aud))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := strict.CheckAuthentication(context.Background(), foreignIssuer); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("strict: err = %v, want ErrUnauthorized", err)
	}

	relaxedCfg := baseConfig(oidc.issuer, aud)
	relaxedCfg.ValidateIssuer = false
	relaxed, err := NewFromDiscovery(context.Background(), relaxedCfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := relaxed.CheckAuthentication(context.Background(), foreignIssuer); err != nil {
		t.Fatalf("relaxed: %v", err)
	}
}

func TestAuthenticator_DisallowedAlg(t *testing.T) {
	_, _, jwks := genRSA(t)
	oidc := newMockOIDC(t, jwks)

	aud := "api://protected"
	a, err := NewFromDiscovery(context.Background(), baseConfig(oidc.issuer, aud))
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	hs, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": oidc.issuer,
		"sub": "user-123",
		"aud": aud,
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("guessable"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := a.CheckAuthentication(context.Background(), hs); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
}

func TestAuthenticator_EmptyToken(t *testing.T) {
	_, _, jwks := genRSA(t)
	oidc := newMockOIDC(t, jwks)

	a, err := NewFromDiscovery(context.Background(), baseConfig(oidc.issuer, "api://protected"))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := a.CheckAuthentication(context.Background(), ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
}
