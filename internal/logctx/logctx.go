// Package logctx enriches slog records with request-scoped attributes
// carried on the context, so components deep in the authorization flow can
// log without threading request metadata through every call.
package logctx

import (
	"context"
	"log/slog"
)

// Handler wraps another slog.Handler and appends any request, auth, and
// grant attributes found on the record's context.
type Handler struct {
	slog.Handler
}

func (h Handler) Handle(ctx context.Context, r slog.Record) error {
	if rd, ok := ctx.Value(requestDataKey{}).(*RequestData); ok {
		r.AddAttrs(slog.Group("req",
			slog.String("id", rd.RequestID),
			slog.String("method", rd.Method),
			slog.String("user_agent", rd.UserAgent),
			slog.String("remote_addr", rd.RemoteAddr),
			slog.String("path", rd.Path),
		))
	}

	if ad, ok := ctx.Value(authDataKey{}).(*AuthData); ok {
		r.AddAttrs(slog.Group("auth",
			slog.String("session_id", ad.SessionID),
			slog.String("strategy", ad.Strategy),
		))
	}

	if gd, ok := ctx.Value(grantDataKey{}).(*GrantData); ok {
		r.AddAttrs(slog.Group("grant",
			slog.String("type", gd.GrantType),
			slog.String("resource", gd.Resource),
		))
	}

	return h.Handler.Handle(ctx, r)
}

type requestDataKey struct{}

type RequestData struct {
	RequestID  string
	Method     string
	UserAgent  string
	RemoteAddr string
	Path       string
}

func WithRequestData(ctx context.Context, data *RequestData) context.Context {
	return context.WithValue(ctx, requestDataKey{}, data)
}

type authDataKey struct{}

type AuthData struct {
	SessionID string
	Strategy  string
}

func WithAuthData(ctx context.Context, data *AuthData) context.Context {
	return context.WithValue(ctx, authDataKey{}, data)
}

type grantDataKey struct{}

type GrantData struct {
	GrantType string
	Resource  string
}

func WithGrantData(ctx context.Context, data *GrantData) context.Context {
	return context.WithValue(ctx, grantDataKey{}, data)
}
