package auth

import (
	"fmt"
	"strconv"
	"time"
)

// User represents a user in the system.
// PasswordHash is never serialized; the json:"-" tag keeps it out of API
// responses and out of the cache payload.
type User struct {
	ID            int64      `json:"id"`
	Username      string     `json:"username"`
	Email         string     `json:"email"`
	PasswordHash  string     `json:"-"`
	Role          Role       `json:"role" swaggertype:"string" enums:"user,admin"`
	IsActive      bool       `json:"is_active"`
	EmailVerified bool       `json:"email_verified"`
	AvatarURL     *string    `json:"avatar_url"`
	CreatedAt     time.Time  `json:"created_at"`
	LastLoginAt   *time.Time `json:"last_login_at,omitempty"`
}

// Subject returns the token subject that identifies u.
func (u *User) Subject() string {
	return strconv.FormatInt(u.ID, 10)
}

func parseSubject(subject string) (int64, error) {
	id, err := strconv.ParseInt(subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid subject %q", ErrMalformed, subject)
	}
	return id, nil
}

// TokenPair is the result of a successful login or refresh.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
}

// RegisterInput carries the fields needed to create an account.
type RegisterInput struct {
	Username string
	Email    string
	Password string
}
