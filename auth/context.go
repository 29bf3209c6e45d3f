package auth

import (
	"context"
)

// contextKey is a custom type for context keys to avoid collisions with
// keys defined in other packages.
type contextKey string

const requestContextKey contextKey = "auth_request_context"

// RequestContext is the per-request authentication state. It is built once
// by Middleware.Authenticate and handed explicitly to downstream calls.
// A nil User means the request is anonymous.
type RequestContext struct {
	User *User
}

// Authenticated reports whether a user was resolved for the request.
func (rc *RequestContext) Authenticated() bool {
	return rc != nil && rc.User != nil
}

// UserID returns the resolved user's ID, or 0 for anonymous requests.
func (rc *RequestContext) UserID() int64 {
	if !rc.Authenticated() {
		return 0
	}
	return rc.User.ID
}

// NewContext returns a child of ctx carrying rc.
func NewContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey, rc)
}

// FromContext returns the RequestContext stored in ctx. Requests that never
// passed through the authentication middleware are anonymous.
func FromContext(ctx context.Context) *RequestContext {
	if rc, ok := ctx.Value(requestContextKey).(*RequestContext); ok && rc != nil {
		return rc
	}
	return &RequestContext{}
}
