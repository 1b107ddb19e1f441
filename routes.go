package authgate

import (
	"errors"
	"io"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/authgate/authgate/httperr"
	"github.com/authgate/authgate/sessions"
)

// stateCookieName carries the OAuth state value between the sign-in
// redirect and the token callback.
const stateCookieName = "authgate.state"

// stateCookieMaxAge bounds how long a pending sign-in may take. The cookie
// is deleted after validation so this can be small.
const stateCookieMaxAge = 600

// Router returns the interactive auth route surface mounted under the
// configured base route: sign-in, the provider's form_post token callback,
// sign-out, token refresh, and the access-denied sink. Mount it on the
// server alongside the endpoints wrapped with Authenticate.
func (m *Middleware) Router() *mux.Router {
	root := mux.NewRouter()
	r := root.PathPrefix(m.baseRoute).Subrouter()
	r.HandleFunc("/oauth/signin", m.handleSignIn).Methods(http.MethodGet)
	r.HandleFunc("/oauth/getAToken", m.handleTokenCallback).Methods(http.MethodPost)
	r.HandleFunc("/oauth/signout", m.handleSignOut).Methods(http.MethodGet)
	r.HandleFunc("/oauth/refreshToken", m.handleRefreshToken).Methods(http.MethodGet)
	r.HandleFunc("/oauth/accessdenied", m.handleAccessDenied).Methods(http.MethodGet)
	return root
}

// handleSignIn sends the caller to the provider's authorization endpoint.
// The hybrid response (code id_token, form_post) lands on the token
// callback below.
func (m *Middleware) handleSignIn(w http.ResponseWriter, r *http.Request) {
	if _, err := m.loadSession(w, r); err != nil {
		m.errors.Handle(w, r, nil, err)
		return
	}

	state := uuid.NewString()
	http.SetCookie(w, m.stateCookie(state, stateCookieMaxAge))

	q := url.Values{
		"client_id":     {m.settings.ClientID},
		"response_type": {"code id_token"},
		"response_mode": {"form_post"},
		"redirect_uri":  {m.redirectURI},
		"resource":      {m.settings.APIAppID},
		"scope":         {m.settings.Scope},
		"state":         {state},
		"nonce":         {uuid.NewString()},
	}
	authorize := m.settings.tokenConfig(m.redirectURI).AuthorizeURL() + "?" + q.Encode()
	http.Redirect(w, r, authorize, http.StatusFound)
}

// handleTokenCallback receives the provider's form_post response after
// consent, stores the id_token and authorization code on the session, and
// returns the caller to the resource they originally requested.
func (m *Middleware) handleTokenCallback(w http.ResponseWriter, r *http.Request) {
	sess, err := m.loadSession(w, r)
	if err != nil {
		m.errors.Handle(w, r, nil, err)
		return
	}
	if err := r.ParseForm(); err != nil {
		m.errors.Handle(w, r, sess, httperr.BadRequest("malformed callback form"))
		return
	}

	if c, err := r.Cookie(stateCookieName); err != nil || c.Value == "" || c.Value != r.PostFormValue("state") {
		m.log.WarnContext(r.Context(), "state mismatch on token callback")
		m.errors.Handle(w, r, sess, httperr.Unauthorized(""))
		return
	}
	// One-shot: the state cookie dies with its validation.
	http.SetCookie(w, m.stateCookie("", -1))

	sess.IDToken = r.PostFormValue("id_token")
	sess.AuthCode = r.PostFormValue("code")
	if rt := r.PostFormValue("refresh_token"); rt != "" {
		sess.RefreshToken = rt
	}
	if err := m.sessions.Save(r.Context(), sess); err != nil {
		m.errors.Handle(w, r, sess, httperr.Internal(err.Error()))
		return
	}

	target := sess.RedirectURL
	if target == "" {
		target = "/"
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// handleSignOut clears the session's credential fields. The session itself
// survives; only its authority to act does not.
func (m *Middleware) handleSignOut(w http.ResponseWriter, r *http.Request) {
	sess, err := m.loadSession(w, r)
	if err != nil {
		m.errors.Handle(w, r, nil, err)
		return
	}
	m.log.InfoContext(r.Context(), "signing out")

	sess.IDToken = ""
	sess.AuthCode = ""
	sess.AccessToken = ""
	sess.RefreshToken = ""
	sess.RedirectURL = ""
	if err := m.sessions.Save(r.Context(), sess); err != nil {
		m.errors.Handle(w, r, sess, httperr.Internal(err.Error()))
		return
	}
	_, _ = io.WriteString(w, "Successfully signed out.")
}

// handleRefreshToken is the retry path for a failed auth-code acquisition:
// the refresh token becomes the new auth code and the caller is sent back
// to the resource that triggered the refresh.
func (m *Middleware) handleRefreshToken(w http.ResponseWriter, r *http.Request) {
	if m.sessions == nil {
		m.errors.Handle(w, r, nil, httperr.Internal("Session is not initialized"))
		return
	}
	sess, err := m.sessions.Load(w, r)
	if err != nil {
		m.errors.Handle(w, r, nil, httperr.Internal("Session is not initialized"))
		return
	}
	m.log.InfoContext(r.Context(), "refreshing token")

	sess.AuthCode = sess.RefreshToken
	if err := m.sessions.Save(r.Context(), sess); err != nil {
		m.errors.Handle(w, r, sess, httperr.Internal(err.Error()))
		return
	}
	if sess.RedirectURL == "" {
		m.errors.Handle(w, r, sess, httperr.Unauthorized("Cannot redirect to undefined url. Access denied."))
		return
	}
	http.Redirect(w, r, sess.RedirectURL, http.StatusFound)
}

// handleAccessDenied is where the provider lands callers who refused
// consent. The statusless error normalizes to 500 at the boundary.
func (m *Middleware) handleAccessDenied(w http.ResponseWriter, r *http.Request) {
	sess, _ := m.loadSession(w, r)
	m.errors.Handle(w, r, sess, errors.New("Access denied"))
}

// stateCookie builds the state cookie for both issuance and deletion. The
// cookie must survive the provider's cross-site form_post leg, so under TLS
// it is SameSite=None, which browsers only accept together with Secure.
// Plain-HTTP development falls back to Lax.
func (m *Middleware) stateCookie(value string, maxAge int) *http.Cookie {
	sameSite := http.SameSiteLaxMode
	if m.secureCookies {
		sameSite = http.SameSiteNoneMode
	}
	return &http.Cookie{
		Name:     stateCookieName,
		Value:    value,
		Path:     m.baseRoute,
		HttpOnly: true,
		Secure:   m.secureCookies,
		SameSite: sameSite,
		MaxAge:   maxAge,
	}
}

// loadSession wraps manager access with the strategy-independent
// session-support precondition.
func (m *Middleware) loadSession(w http.ResponseWriter, r *http.Request) (*sessions.Session, error) {
	if m.sessions == nil {
		return nil, httperr.Unauthorized(sessionRequiredMessage)
	}
	sess, err := m.sessions.Load(w, r)
	if err != nil {
		m.log.ErrorContext(r.Context(), "session load failed", "err", err)
		return nil, httperr.Unauthorized(sessionRequiredMessage)
	}
	return sess, nil
}
