package auth

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/user/contacts-api/apperror"
)

// Middleware resolves bearer tokens into a RequestContext.
type Middleware struct {
	service *Service
	log     *zap.Logger
}

func NewMiddleware(service *Service, log *zap.Logger) *Middleware {
	if log == nil {
		log = zap.NewNop()
	}
	return &Middleware{service: service, log: log}
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
// ok is false when the header is absent; a present but malformed header
// returns ErrMalformed.
func bearerToken(r *http.Request) (token string, ok bool, err error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", false, nil
	}
	scheme, value, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", true, ErrMalformed
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", true, ErrMalformed
	}
	return value, true, nil
}

// Authenticate builds the RequestContext for every request exactly once.
// Requests without an Authorization header continue as anonymous; requests
// with an invalid token are rejected with 401.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc := &RequestContext{}

		token, present, err := bearerToken(r)
		if present {
			if err == nil {
				rc.User, err = m.service.ResolveCurrentUser(r.Context(), token)
			}
			if err != nil {
				m.writeError(w, r, err)
				return
			}
		}

		next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), rc)))
	})
}

// RequireRole rejects requests whose RequestContext does not satisfy role:
// 401 for anonymous requests, 403 for an insufficient role.
func (m *Middleware) RequireRole(role Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := Require(FromContext(r.Context()), role); err != nil {
				m.writeError(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// writeError adds the WWW-Authenticate challenge to 401 responses.
func (m *Middleware) writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := ToAppError(err)
	if appErr.StatusCode() == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	apperror.WriteError(w, r, m.log, appErr)
}
