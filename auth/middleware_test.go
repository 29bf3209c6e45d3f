package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// whoami echoes the resolved username, or "anonymous".
var whoami = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	rc := FromContext(r.Context())
	if !rc.Authenticated() {
		_, _ = w.Write([]byte("anonymous"))
		return
	}
	_, _ = w.Write([]byte(rc.User.Username))
})

func loginToken(t *testing.T, f *serviceFixture, username, password string) *TokenPair {
	t.Helper()
	pair, err := f.svc.Login(context.Background(), username, password)
	require.NoError(t, err)
	return pair
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()
	f := newServiceFixture(t)
	f.register(t, "alice", "alice@example.com", "Secr3t!")
	pair := loginToken(t, f, "alice", "Secr3t!")

	mw := NewMiddleware(f.svc, zap.NewNop())
	h := mw.Authenticate(whoami)

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantBody   string
	}{
		{"no header", "", http.StatusOK, "anonymous"},
		{"valid bearer", "Bearer " + pair.AccessToken, http.StatusOK, "alice"},
		{"lowercase scheme", "bearer " + pair.AccessToken, http.StatusOK, "alice"},
		{"refresh token", "Bearer " + pair.RefreshToken, http.StatusUnauthorized, ""},
		{"basic scheme", "Basic YWxpY2U6U2VjcjN0IQ==", http.StatusUnauthorized, ""},
		{"empty token", "Bearer ", http.StatusUnauthorized, ""},
		{"garbage", "Bearer not.a.token", http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, tt.wantBody, rec.Body.String())
			} else {
				assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
				assert.JSONEq(t, `{"error":"could not validate credentials"}`, rec.Body.String())
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	t.Parallel()
	f := newServiceFixture(t)
	f.register(t, "user1", "user1@example.com", "Secr3t!")
	admin := f.register(t, "admin1", "admin1@example.com", "Secr3t!")

	stored, err := f.store.FindByID(context.Background(), admin.ID)
	require.NoError(t, err)
	stored.Role = RoleAdmin
	require.NoError(t, f.store.Save(context.Background(), stored))

	userPair := loginToken(t, f, "user1", "Secr3t!")
	adminPair := loginToken(t, f, "admin1", "Secr3t!")

	mw := NewMiddleware(f.svc, nil)
	adminOnly := mw.Authenticate(mw.RequireRole(RoleAdmin)(whoami))
	usersOnly := mw.Authenticate(mw.RequireRole(RoleUser)(whoami))

	do := func(h http.Handler, token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/users/set-role", nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusUnauthorized, do(adminOnly, "").Code)
	assert.Equal(t, http.StatusForbidden, do(adminOnly, userPair.AccessToken).Code)
	assert.Equal(t, http.StatusOK, do(adminOnly, adminPair.AccessToken).Code)

	assert.Equal(t, http.StatusUnauthorized, do(usersOnly, "").Code)
	assert.Equal(t, http.StatusOK, do(usersOnly, userPair.AccessToken).Code)
	assert.Equal(t, http.StatusOK, do(usersOnly, adminPair.AccessToken).Code)

	forbidden := do(adminOnly, userPair.AccessToken)
	assert.JSONEq(t, `{"error":"not enough permissions"}`, forbidden.Body.String())
}

func TestFromContext_DefaultsToAnonymous(t *testing.T) {
	t.Parallel()
	rc := FromContext(context.Background())
	require.NotNil(t, rc)
	assert.False(t, rc.Authenticated())
	assert.Zero(t, rc.UserID())
}
