package authgate

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/authgate/authgate/auth"
	"github.com/authgate/authgate/httperr"
	"github.com/authgate/authgate/internal/logctx"
	"github.com/authgate/authgate/sessions"
	"github.com/authgate/authgate/token"
)

const (
	authorizationHeader = "Authorization"
	authCodeHeader      = "X-Auth-Code"
)

// sessionRequiredMessage is the fixed rejection for transports without
// session support; every strategy fails on it before anything else runs.
const sessionRequiredMessage = "Session cookies must be enabled"

// Middleware is the request-time authorization decision engine. For each
// wrapped endpoint it inspects the caller's session and credentials and
// emits exactly one of: continue (run the endpoint), redirect (into a
// token-acquisition flow), or reject (boundary error handler).
type Middleware struct {
	settings AuthSettings
	authn    auth.Authenticator
	acquirer token.Acquirer
	sessions *sessions.Manager
	errors   *httperr.Handler
	log      *slog.Logger

	baseRoute       string
	redirectURI     string
	signInURL       string
	refreshTokenURL string
	secureCookies   bool
}

// Option configures a Middleware.
type Option func(*Middleware)

// WithLogger sets the logger used by the engine. Logs are discarded when
// unset.
func WithLogger(log *slog.Logger) Option {
	return func(m *Middleware) { m.log = log }
}

// WithAcquirer overrides the token acquirer; the default speaks the
// provider's token endpoint derived from the settings.
func WithAcquirer(a token.Acquirer) Option {
	return func(m *Middleware) { m.acquirer = a }
}

// New builds the engine. hostname and baseRoute anchor the interactive
// flow URLs (sign-in, token callback, refresh) that redirects point at; an
// empty baseRoute is a configuration failure and prevents startup. The
// session manager may be nil when the transport has no session support, in
// which case every request is rejected.
func New(settings AuthSettings, authn auth.Authenticator, mgr *sessions.Manager, hostname, baseRoute string, opts ...Option) (*Middleware, error) {
	if baseRoute == "" {
		return nil, errors.New("authgate: missing base API route")
	}
	if settings.Authority == "" {
		settings.Authority = "https://login.microsoftonline.com"
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	host := strings.TrimSuffix(hostname, "/")
	m := &Middleware{
		settings:        settings,
		authn:           authn,
		sessions:        mgr,
		baseRoute:       baseRoute,
		redirectURI:     host + baseRoute + "/oauth/getAToken",
		signInURL:       host + baseRoute + "/oauth/signin",
		refreshTokenURL: host + baseRoute + "/oauth/refreshToken",
	}
	if mgr != nil {
		m.secureCookies = mgr.SecureCookies()
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.log == nil {
		m.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if m.acquirer == nil {
		redirect := settings.RedirectURI
		if redirect == "" {
			redirect = m.redirectURI
		}
		acq, err := token.NewClient(settings.tokenConfig(redirect), token.WithLogger(m.log))
		if err != nil {
			return nil, err
		}
		m.acquirer = acq
	}
	m.errors = httperr.NewHandler(mgr, m.log)
	return m, nil
}

// SignInURL returns where unauthenticated callers are redirected.
func (m *Middleware) SignInURL() string { return m.signInURL }

// Authenticate wraps next with the authorization decision for strategy.
// Branches run in strict priority order and exactly one verdict is emitted
// per request.
func (m *Middleware) Authenticate(strategy SecurityStrategy, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logctx.WithRequestData(r.Context(), &logctx.RequestData{
			RequestID:  uuid.NewString(),
			Method:     r.Method,
			UserAgent:  r.UserAgent(),
			RemoteAddr: r.RemoteAddr,
			Path:       r.URL.Path,
		})
		r = r.WithContext(ctx)

		// Session support is a precondition for every strategy.
		if m.sessions == nil {
			m.errors.Handle(w, r, nil, httperr.Unauthorized(sessionRequiredMessage))
			return
		}
		sess, err := m.sessions.Load(w, r)
		if err != nil {
			m.log.ErrorContext(ctx, "session load failed", "err", err)
			m.errors.Handle(w, r, nil, httperr.Unauthorized(sessionRequiredMessage))
			return
		}
		ctx = logctx.WithAuthData(ctx, &logctx.AuthData{SessionID: sess.ID, Strategy: string(strategy)})
		r = r.WithContext(ctx)

		switch strategy {
		case StrategyBearer:
			m.authenticateBearer(w, r, sess, next)
		case StrategyAuthCode:
			m.authenticateAuthCode(w, r, sess, next)
		default:
			m.errors.Handle(w, r, sess, httperr.Unauthorized(""))
		}
	})
}

// authenticateBearer runs the bearer-strategy branch ladder: synthesized or
// presented header credential first, then the session's auth code, then
// client-credential intent, then interactive sign-in.
func (m *Middleware) authenticateBearer(w http.ResponseWriter, r *http.Request, sess *sessions.Session, next http.Handler) {
	ctx := r.Context()

	// A previously authenticated caller holds a session-cached access
	// token; treat it exactly as a freshly presented header credential.
	if r.Header.Get(authorizationHeader) == "" && sess.AccessToken != "" {
		r.Header.Set(authorizationHeader, "Bearer "+sess.AccessToken)
	}

	if h := r.Header.Get(authorizationHeader); h != "" {
		tok, ok := bearerToken(h)
		if !ok {
			m.errors.Handle(w, r, sess, httperr.Unauthorized(""))
			return
		}
		id, err := m.authn.CheckAuthentication(ctx, tok)
		if err != nil || id == nil || id.Subject() == "" {
			if err != nil {
				m.log.DebugContext(ctx, "bearer authentication failed", "err", err)
			}
			m.errors.Handle(w, r, sess, httperr.Unauthorized(""))
			return
		}
		next.ServeHTTP(w, r)
		return
	}

	if sess.AuthCode != "" {
		res, err := m.acquirer.AcquireSilently(ctx, m.settings.APIAppID, sess.AuthCode)
		if err != nil {
			if sess.AuthCode != sess.RefreshToken {
				// Retry path: swap in the refresh token and come back.
				http.Redirect(w, r, m.refreshTokenURL, http.StatusFound)
				return
			}
			// Code and refresh token are identical: a refresh was already
			// attempted, so there is nothing left to retry.
			m.errors.Handle(w, r, sess, httperr.Unauthorized(""))
			return
		}
		m.finalize(w, r, sess, res)
		return
	}

	if sess.UseClientCredentials {
		res, err := m.acquirer.AcquireSilently(ctx, m.settings.APIAppID, "")
		if err != nil {
			m.log.DebugContext(ctx, "client-credentials acquisition failed", "err", err)
			http.Redirect(w, r, m.signInURL, http.StatusFound)
			return
		}
		m.finalize(w, r, sess, res)
		return
	}

	http.Redirect(w, r, m.signInURL, http.StatusFound)
}

// authenticateAuthCode runs the auth-code strategy: redeem the stored (or
// header-supplied) code and gate on the resulting token's audience.
func (m *Middleware) authenticateAuthCode(w http.ResponseWriter, r *http.Request, sess *sessions.Session, next http.Handler) {
	ctx := r.Context()

	code := sess.AuthCode
	if code == "" {
		code = r.Header.Get(authCodeHeader)
	}
	if code == "" {
		// Remember where the caller was headed, then send them through the
		// interactive sign-in flow.
		sess.RedirectURL = r.URL.RequestURI()
		if err := m.sessions.Save(ctx, sess); err != nil {
			m.errors.Handle(w, r, sess, httperr.Internal(err.Error()))
			return
		}
		http.Redirect(w, r, m.signInURL, http.StatusFound)
		return
	}

	res, err := m.acquirer.AcquireSilently(ctx, m.settings.APIAppID, code)
	if err != nil {
		if token.IsCodeRedeemed(err) {
			// The code was already exchanged once; re-presenting it is a
			// benign double submission, not a security failure.
			next.ServeHTTP(w, r)
			return
		}
		m.errors.Handle(w, r, sess, httperr.Unauthorized(token.Message(err)))
		return
	}

	if !token.ValidateAudience(res.AccessToken, m.settings.APIAppID) {
		m.errors.Handle(w, r, sess, httperr.Unauthorized(""))
		return
	}
	next.ServeHTTP(w, r)
}

// bearerToken extracts the credential from an Authorization header value.
func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(prefix):]), true
}
