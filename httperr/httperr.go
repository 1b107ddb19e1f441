// Package httperr defines the ErrorResponse shape produced by the
// authorization engine and the boundary handler that converts it into an
// HTTP response. Per-request failures inside the engine are never written
// directly; they are funneled through Handler so status normalization and
// credential scrubbing happen in exactly one place.
package httperr

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/authgate/authgate/sessions"
)

// ErrorResponse carries an HTTP status and a plain-text message across the
// engine boundary. A zero Status means "unclassified" and is normalized to
// 500 by the Handler.
type ErrorResponse struct {
	Status  int
	Message string
}

// Error implements the error interface.
func (e *ErrorResponse) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http %d", e.Status)
	}
	return fmt.Sprintf("http %d: %s", e.Status, e.Message)
}

// New builds an ErrorResponse with an explicit status.
func New(status int, message string) *ErrorResponse {
	return &ErrorResponse{Status: status, Message: message}
}

// BadRequest builds a 400 response.
func BadRequest(message string) *ErrorResponse {
	return New(http.StatusBadRequest, message)
}

// Unauthorized builds a 401 response. An empty message gets the fixed
// "Access denied" text so callers never leak a blank body.
func Unauthorized(message string) *ErrorResponse {
	if message == "" {
		message = "Access denied"
	}
	return New(http.StatusUnauthorized, message)
}

// Forbidden builds a 403 response.
func Forbidden(message string) *ErrorResponse {
	return New(http.StatusForbidden, message)
}

// Internal builds a 500 response.
func Internal(message string) *ErrorResponse {
	return New(http.StatusInternalServerError, message)
}

// Handler is the boundary error handler. It owns the final write for every
// rejected request: normalizing missing statuses to 500 and, on 401,
// clearing the session's cached credentials before the response goes out.
type Handler struct {
	sessions *sessions.Manager
	log      *slog.Logger
}

// NewHandler returns a Handler. The session manager may be nil when session
// support is disabled; logger may be nil to discard logs.
func NewHandler(mgr *sessions.Manager, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Handler{sessions: mgr, log: log}
}

// Handle writes err to the caller as a plain-text response. Non-ErrorResponse
// errors and zero statuses become 500. A 401 scrubs the session's IDToken and
// AccessToken so a rejected caller cannot keep replaying a cached credential.
func (h *Handler) Handle(w http.ResponseWriter, r *http.Request, sess *sessions.Session, err error) {
	resp := &ErrorResponse{}
	switch {
	case err == nil:
		// A nil error reaching the boundary is a caller bug; still answer.
		resp = Internal("")
	case !errors.As(err, &resp):
		resp = &ErrorResponse{Message: err.Error()}
	}
	if resp.Status == 0 {
		resp.Status = http.StatusInternalServerError
	}

	if resp.Status == http.StatusUnauthorized && sess != nil {
		sess.IDToken = ""
		sess.AccessToken = ""
		if h.sessions != nil {
			if serr := h.sessions.Save(r.Context(), sess); serr != nil {
				h.log.ErrorContext(r.Context(), "failed to scrub session credentials", "err", serr)
			}
		}
	}

	h.log.InfoContext(r.Context(), "request rejected", "status", resp.Status, "message", resp.Message)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(resp.Status)
	_, _ = fmt.Fprintln(w, resp.Message)
}
