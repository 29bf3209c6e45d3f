package auth

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTokens(t *testing.T, secret string, now func() time.Time) *TokenManager {
	t.Helper()
	m, err := NewTokenManager(secret, WithClock(now))
	require.NoError(t, err)
	return m
}

func TestTokenManager_IssueVerify(t *testing.T) {
	t.Parallel()
	m := newTestTokens(t, "test-secret", time.Now)

	tok, err := m.Issue("42", TokenAccess, time.Minute)
	require.NoError(t, err)

	sub, err := m.Verify(tok, TokenAccess)
	require.NoError(t, err)
	assert.Equal(t, "42", sub)
}

func TestTokenManager_TokensAreUnique(t *testing.T) {
	t.Parallel()
	fixed := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m := newTestTokens(t, "test-secret", func() time.Time { return fixed })

	a, err := m.Issue("42", TokenAccess, time.Minute)
	require.NoError(t, err)
	b, err := m.Issue("42", TokenAccess, time.Minute)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestTokenManager_WrongType(t *testing.T) {
	t.Parallel()
	m := newTestTokens(t, "test-secret", time.Now)

	pairs := []struct{ issued, expected TokenType }{
		{TokenAccess, TokenRefresh},
		{TokenRefresh, TokenAccess},
		{TokenResetPassword, TokenAccess},
		{TokenVerifyEmail, TokenResetPassword},
	}
	for _, p := range pairs {
		tok, err := m.Issue("7", p.issued, time.Hour)
		require.NoError(t, err)

		_, err = m.Verify(tok, p.expected)
		assert.ErrorIs(t, err, ErrWrongType, "%s verified as %s", p.issued, p.expected)
	}
}

func TestTokenManager_WrongSecret(t *testing.T) {
	t.Parallel()
	issuer := newTestTokens(t, "secret-a", time.Now)
	verifier := newTestTokens(t, "secret-b", time.Now)

	tok, err := issuer.Issue("7", TokenAccess, time.Hour)
	require.NoError(t, err)

	_, err = verifier.Verify(tok, TokenAccess)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestTokenManager_WrongSecretBeatsExpiry(t *testing.T) {
	t.Parallel()
	past := time.Now().Add(-2 * time.Hour)
	issuer := newTestTokens(t, "secret-a", func() time.Time { return past })
	verifier := newTestTokens(t, "secret-b", time.Now)

	tok, err := issuer.Issue("7", TokenAccess, time.Minute)
	require.NoError(t, err)

	_, err = verifier.Verify(tok, TokenAccess)
	assert.ErrorIs(t, err, ErrInvalidSignature)
	assert.NotErrorIs(t, err, ErrExpired)
}

func TestTokenManager_Expired(t *testing.T) {
	t.Parallel()
	now := time.Now()
	clock := now
	m := newTestTokens(t, "test-secret", func() time.Time { return clock })

	tok, err := m.Issue("7", TokenAccess, time.Minute)
	require.NoError(t, err)

	clock = now.Add(2 * time.Minute)
	_, err = m.Verify(tok, TokenAccess)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestTokenManager_ExpiredBeatsWrongType(t *testing.T) {
	t.Parallel()
	now := time.Now()
	clock := now
	m := newTestTokens(t, "test-secret", func() time.Time { return clock })

	tok, err := m.Issue("7", TokenAccess, time.Minute)
	require.NoError(t, err)

	clock = now.Add(time.Hour)
	_, err = m.Verify(tok, TokenRefresh)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestTokenManager_Malformed(t *testing.T) {
	t.Parallel()
	m := newTestTokens(t, "test-secret", time.Now)

	for _, tok := range []string{"", "not-a-token", "a.b.c", "eyJhbGciOiJIUzI1NiJ9.e30"} {
		_, err := m.Verify(tok, TokenAccess)
		assert.ErrorIs(t, err, ErrMalformed, "token %q", tok)
	}
}

func TestTokenManager_MissingExpiryIsMalformed(t *testing.T) {
	t.Parallel()
	m := newTestTokens(t, "test-secret", time.Now)

	raw := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		Type:             TokenAccess,
		RegisteredClaims: jwt.RegisteredClaims{Subject: "7"},
	})
	tok, err := raw.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = m.Verify(tok, TokenAccess)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestTokenManager_RejectsOtherAlgorithms(t *testing.T) {
	t.Parallel()
	m := newTestTokens(t, "test-secret", time.Now)

	claims := &Claims{
		Type: TokenAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "7",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	_, err = m.Verify(hs512, TokenAccess)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = m.Verify(none, TokenAccess)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestTokenManager_TamperedPayload(t *testing.T) {
	t.Parallel()
	m := newTestTokens(t, "test-secret", time.Now)

	tok, err := m.Issue("7", TokenRefresh, time.Hour)
	require.NoError(t, err)

	parts := strings.Split(tok, ".")
	require.Len(t, parts, 3)
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)
	forged := strings.Replace(string(payload), `"typ":"refresh"`, `"typ":"access"`, 1)
	parts[1] = base64.RawURLEncoding.EncodeToString([]byte(forged))

	_, err = m.Verify(strings.Join(parts, "."), TokenAccess)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestNewTokenManager_EmptySecret(t *testing.T) {
	t.Parallel()
	_, err := NewTokenManager("")
	assert.Error(t, err)
}

func TestTokenManager_IssueRequiresSubject(t *testing.T) {
	t.Parallel()
	m := newTestTokens(t, "test-secret", time.Now)
	_, err := m.Issue("", TokenAccess, time.Minute)
	assert.Error(t, err)
}
