package auth

import (
	"errors"

	"github.com/user/contacts-api/apperror"
)

// Errors returned by the auth package. Callers compare with errors.Is.
var (
	// ErrAuthFailed is returned by Login for an unknown identity and for a
	// wrong password alike.
	ErrAuthFailed      = errors.New("auth: invalid credentials")
	ErrUnauthenticated = errors.New("auth: not authenticated")
	ErrForbidden       = errors.New("auth: insufficient role")
	ErrUserNotFound    = errors.New("auth: user not found")
	ErrIdentityTaken   = errors.New("auth: username or email already registered")

	// Token verification failures.
	ErrMalformed        = errors.New("auth: malformed token")
	ErrInvalidSignature = errors.New("auth: invalid token signature")
	ErrExpired          = errors.New("auth: token expired")
	ErrWrongType        = errors.New("auth: wrong token type")
)

// IsTokenError reports whether err is one of the token verification failures.
func IsTokenError(err error) bool {
	return errors.Is(err, ErrMalformed) ||
		errors.Is(err, ErrInvalidSignature) ||
		errors.Is(err, ErrExpired) ||
		errors.Is(err, ErrWrongType)
}

// ToAppError maps auth errors onto HTTP-facing application errors. Messages
// are generic; the original error is kept as the cause for logging only.
func ToAppError(err error) *apperror.AppError {
	if appErr, ok := apperror.FromError(err); ok {
		return appErr
	}
	switch {
	case errors.Is(err, ErrAuthFailed):
		return apperror.NewAuthError("incorrect username or password", err)
	case errors.Is(err, ErrForbidden):
		return apperror.NewForbiddenError("not enough permissions", err)
	case errors.Is(err, ErrUnauthenticated), IsTokenError(err):
		return apperror.NewAuthError("could not validate credentials", err)
	case errors.Is(err, ErrUserNotFound):
		return apperror.NewNotFoundError("user not found", err)
	case errors.Is(err, ErrIdentityTaken):
		return apperror.NewConflictError("username or email already registered", err)
	default:
		return apperror.NewInternalError("an unexpected error occurred", err)
	}
}
