package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenType names the purpose a token was issued for. A token is accepted
// only by a Verify call expecting exactly its type.
type TokenType string

const (
	TokenAccess        TokenType = "access"
	TokenRefresh       TokenType = "refresh"
	TokenVerifyEmail   TokenType = "verify_email"
	TokenResetPassword TokenType = "reset_password"
)

// Claims is the JWT payload. The subject is the user ID in decimal.
type Claims struct {
	Type TokenType `json:"typ"`
	jwt.RegisteredClaims
}

// TokenManager issues and verifies HS256-signed tokens with one secret key.
type TokenManager struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// TokenOption customizes a TokenManager.
type TokenOption func(*TokenManager)

// WithClock replaces time.Now, used for issuing and for expiry checks.
func WithClock(now func() time.Time) TokenOption {
	return func(m *TokenManager) { m.now = now }
}

// WithIssuer sets the iss claim on issued tokens.
func WithIssuer(issuer string) TokenOption {
	return func(m *TokenManager) { m.issuer = issuer }
}

// NewTokenManager returns a manager signing with secret.
func NewTokenManager(secret string, opts ...TokenOption) (*TokenManager, error) {
	if secret == "" {
		return nil, errors.New("auth.NewTokenManager: empty signing secret")
	}
	m := &TokenManager{secret: []byte(secret), now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Issue signs a token for subject valid for ttl from now. Every token gets a
// random jti, so two tokens issued within the same second still differ.
func (m *TokenManager) Issue(subject string, typ TokenType, ttl time.Duration) (string, error) {
	const op = "auth.TokenManager.Issue"

	if subject == "" {
		return "", fmt.Errorf("%s: empty subject", op)
	}
	now := m.now()
	claims := &Claims{
		Type: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("%s: failed to sign token: %w", op, err)
	}
	return signed, nil
}

// Verify checks token against the expected type and returns its subject.
// Checks run in this order: decoding (ErrMalformed), signature and algorithm
// (ErrInvalidSignature), expiry (ErrExpired), type (ErrWrongType).
func (m *TokenManager) Verify(token string, expected TokenType) (string, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)

	claims := &Claims{}
	_, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return "", classifyJWTError(err)
	}

	if claims.Type != expected {
		return "", fmt.Errorf("%w: expected %s, got %q", ErrWrongType, expected, claims.Type)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrMalformed)
	}
	return claims.Subject, nil
}

// classifyJWTError relies on jwt/v5 verifying the signature before it
// validates registered claims, so an expired token with a bad signature
// reports ErrInvalidSignature.
func classifyJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrExpired, err)
	default:
		// Missing exp, future nbf or other invalid claims.
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}
