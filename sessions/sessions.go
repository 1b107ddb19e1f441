// Package sessions holds the per-caller mutable state the authorization
// middleware reads and writes, together with the cookie plumbing that binds
// that state to a browser or API client. The Session struct is a plain data
// contract: the middleware only reads and conditionally overwrites its
// fields, it never creates or destroys sessions itself.
//
// Storage is pluggable via the Store interface; memorystore and redisstore
// provide the two bundled backends.
package sessions

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// DefaultCookieName is the session cookie issued when no override is set.
const DefaultCookieName = "authgate.sid"

// DefaultTTL bounds how long an untouched session survives in the store.
const DefaultTTL = 12 * time.Hour

// ErrNotFound is returned by Store implementations when no session exists
// for the given id.
var ErrNotFound = errors.New("sessions: not found")

// Session is the per-caller state shared between the interactive sign-in
// routes and the request-time authorization middleware. All fields are
// optional; the zero value is a valid, unauthenticated session.
type Session struct {
	// ID is the opaque identifier carried by the session cookie.
	ID string `json:"id"`

	// IDToken is the raw OIDC id_token captured by the sign-in callback.
	IDToken string `json:"id_token,omitempty"`

	// AuthCode is the authorization code captured by the sign-in callback
	// and consumed by silent token acquisition.
	AuthCode string `json:"auth_code,omitempty"`

	// AccessToken caches the most recently acquired access token so later
	// requests can skip re-presenting credentials.
	AccessToken string `json:"access_token,omitempty"`

	// RefreshToken is the refresh token issued alongside the auth code. The
	// refresh endpoint copies it over AuthCode to retry acquisition.
	RefreshToken string `json:"refresh_token,omitempty"`

	// RedirectURL remembers the resource the caller originally requested so
	// the sign-in flow can land them back there.
	RedirectURL string `json:"redirect_url,omitempty"`

	// UseClientCredentials marks callers that want the service-to-service
	// client-credentials grant instead of a delegated flow.
	UseClientCredentials bool `json:"use_client_credentials,omitempty"`
}

// Store persists sessions keyed by their id. Implementations must be safe
// for concurrent use; per-session write ordering is the caller's problem
// (a single caller's requests are assumed serialized by the transport).
type Store interface {
	// Get returns the session for id, or ErrNotFound.
	Get(ctx context.Context, id string) (*Session, error)
	// Put stores or overwrites the session, refreshing its TTL.
	Put(ctx context.Context, sess *Session, ttl time.Duration) error
	// Delete removes the session. Deleting a missing session is not an error.
	Delete(ctx context.Context, id string) error
}

// Manager binds sessions to HTTP exchanges via a cookie. A nil *Manager is
// the "session support disabled" condition the middleware treats as a
// terminal authorization failure.
type Manager struct {
	store      Store
	cookieName string
	ttl        time.Duration
	secure     bool
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithCookieName overrides the session cookie name.
func WithCookieName(name string) ManagerOption {
	return func(m *Manager) { m.cookieName = name }
}

// WithTTL overrides the session lifetime applied on every save.
func WithTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) { m.ttl = ttl }
}

// WithSecureCookies marks issued cookies Secure. Leave off only for local
// plain-HTTP development.
func WithSecureCookies(secure bool) ManagerOption {
	return func(m *Manager) { m.secure = secure }
}

// SecureCookies reports whether issued cookies carry the Secure attribute.
// Cookies minted by other components on the same flow (state, for example)
// should follow the same setting.
func (m *Manager) SecureCookies() bool { return m.secure }

// NewManager returns a Manager backed by store.
func NewManager(store Store, opts ...ManagerOption) (*Manager, error) {
	if store == nil {
		return nil, errors.New("sessions: store is required")
	}
	m := &Manager{
		store:      store,
		cookieName: DefaultCookieName,
		ttl:        DefaultTTL,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Load returns the session for the request, creating (and cookie-binding) a
// fresh one when the request carries no usable session cookie. A freshly
// created session is persisted immediately so concurrent requests from the
// same caller converge on one id.
func (m *Manager) Load(w http.ResponseWriter, r *http.Request) (*Session, error) {
	if c, err := r.Cookie(m.cookieName); err == nil && c.Value != "" {
		sess, err := m.store.Get(r.Context(), c.Value)
		if err == nil {
			return sess, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("sessions: load %q: %w", c.Value, err)
		}
		// Stale cookie; fall through and mint a replacement.
	}

	sess := &Session{ID: uuid.NewString()}
	if err := m.store.Put(r.Context(), sess, m.ttl); err != nil {
		return nil, fmt.Errorf("sessions: create: %w", err)
	}
	// The provider's form_post callback is a cross-site POST; a Lax cookie
	// is omitted from it and the callback would bind the code to a fresh
	// session the caller never sees. SameSite=None keeps the cookie on that
	// leg, and browsers require Secure alongside None. Without Secure
	// (plain-HTTP development) Lax is the strictest mode that still works
	// same-site.
	sameSite := http.SameSiteLaxMode
	if m.secure {
		sameSite = http.SameSiteNoneMode
	}
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    sess.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: sameSite,
		MaxAge:   int(m.ttl / time.Second),
	})
	return sess, nil
}

// Save persists mutations made to a loaded session.
func (m *Manager) Save(ctx context.Context, sess *Session) error {
	if sess == nil || sess.ID == "" {
		return errors.New("sessions: cannot save session without id")
	}
	if err := m.store.Put(ctx, sess, m.ttl); err != nil {
		return fmt.Errorf("sessions: save %q: %w", sess.ID, err)
	}
	return nil
}

// Destroy removes the session from the store entirely. Sign-out keeps the
// session alive and only clears credential fields; Destroy is for expiry
// and administrative cleanup.
func (m *Manager) Destroy(ctx context.Context, sess *Session) error {
	if sess == nil || sess.ID == "" {
		return nil
	}
	return m.store.Delete(ctx, sess.ID)
}
