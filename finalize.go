package authgate

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/elnormous/contenttype"

	"github.com/authgate/authgate/httperr"
	"github.com/authgate/authgate/sessions"
	"github.com/authgate/authgate/token"
)

// diagQueryFlag requests a human-readable token dump instead of the normal
// redirect. Debug and test tooling only; never for production browser
// callers.
const diagQueryFlag = "authInfo"

var (
	plainMediaType = contenttype.NewMediaType("text/plain")
	jsonMediaType  = contenttype.NewMediaType("application/json")
	diagMediaTypes = []contenttype.MediaType{plainMediaType, jsonMediaType}
)

// finalize turns a successful silent acquisition into a response: a
// diagnostic dump when the caller asked for one, otherwise a redirect back
// to the originally requested resource with the token cached on the
// session, otherwise the raw token value.
func (m *Middleware) finalize(w http.ResponseWriter, r *http.Request, sess *sessions.Session, res *token.Result) {
	if r.URL.Query().Has(diagQueryFlag) {
		m.writeDiagnostic(w, r, res)
		return
	}

	if sess != nil {
		sess.AccessToken = res.AccessToken
		sess.RedirectURL = r.URL.RequestURI()
		if err := m.sessions.Save(r.Context(), sess); err != nil {
			m.errors.Handle(w, r, sess, httperr.Internal(err.Error()))
			return
		}
		// Close the loop: land the caller back on the endpoint they
		// originally asked for, now with a cached token.
		http.Redirect(w, r, sess.RedirectURL, http.StatusFound)
		return
	}

	_, _ = io.WriteString(w, res.AccessToken)
}

// writeDiagnostic renders the acquired identifiers and token, negotiating
// JSON for API tooling and plain text otherwise.
func (m *Middleware) writeDiagnostic(w http.ResponseWriter, r *http.Request, res *token.Result) {
	accepted, _, err := contenttype.GetAcceptableMediaType(r, diagMediaTypes)
	if err == nil && accepted.Matches(jsonMediaType) {
		w.Header().Set("Content-Type", jsonMediaType.String())
		_ = json.NewEncoder(w).Encode(map[string]string{
			"user_id":      res.UserID,
			"object_id":    res.ObjectID,
			"access_token": res.AccessToken,
		})
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = fmt.Fprintf(w, "UserId:%s\nObjectId:%s\nAccessToken=%s", res.UserID, res.ObjectID, res.AccessToken)
}
