// Package apperror defines the application's error categories and how each
// one is rendered as an HTTP response. Domain packages return their own
// sentinel errors; handlers translate them into an *AppError at the edge.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType classifies an AppError and selects its HTTP status.
type ErrorType int

const (
	UnknownError ErrorType = iota
	DatabaseError
	AuthError      // missing, malformed or expired credentials
	ForbiddenError // authenticated but the role is insufficient
	NotFoundError
	ValidationError // request body failed struct validation
	BadRequestError
	InternalError
	ExternalServiceError // object storage, SMTP
	MigrationError
	ConflictError
	TooManyRequestsError
	PayloadTooLargeError
	ServiceUnavailableError // optional backend not configured or down
)

var statusByType = map[ErrorType]int{
	AuthError:               http.StatusUnauthorized,
	ForbiddenError:          http.StatusForbidden,
	NotFoundError:           http.StatusNotFound,
	ValidationError:         http.StatusBadRequest,
	BadRequestError:         http.StatusBadRequest,
	ConflictError:           http.StatusConflict,
	TooManyRequestsError:    http.StatusTooManyRequests,
	PayloadTooLargeError:    http.StatusRequestEntityTooLarge,
	ServiceUnavailableError: http.StatusServiceUnavailable,
	ExternalServiceError:    http.StatusBadGateway,
}

// AppError carries a client-safe Message and, in Err, the cause for logs.
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *AppError) Unwrap() error { return e.Err }

// StatusCode maps the error type to a response status. Types without an
// entry (database, migration, internal, unknown) are 500.
func (e *AppError) StatusCode() int {
	if status, ok := statusByType[e.Type]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// NewAppError creates an AppError of the given type.
func NewAppError(errType ErrorType, message string, cause error) *AppError {
	return &AppError{Type: errType, Message: message, Err: cause}
}

func NewDatabaseError(message string, cause error) *AppError {
	return NewAppError(DatabaseError, message, cause)
}

func NewAuthError(message string, cause error) *AppError {
	return NewAppError(AuthError, message, cause)
}

func NewForbiddenError(message string, cause error) *AppError {
	return NewAppError(ForbiddenError, message, cause)
}

func NewNotFoundError(message string, cause error) *AppError {
	return NewAppError(NotFoundError, message, cause)
}

func NewValidationError(message string, cause error) *AppError {
	return NewAppError(ValidationError, message, cause)
}

func NewBadRequestError(message string, cause error) *AppError {
	return NewAppError(BadRequestError, message, cause)
}

func NewInternalError(message string, cause error) *AppError {
	return NewAppError(InternalError, message, cause)
}

func NewExternalServiceError(message string, cause error) *AppError {
	return NewAppError(ExternalServiceError, message, cause)
}

func NewMigrationError(message string, cause error) *AppError {
	return NewAppError(MigrationError, message, cause)
}

func NewConflictError(message string, cause error) *AppError {
	return NewAppError(ConflictError, message, cause)
}

func NewTooManyRequestsError(message string, cause error) *AppError {
	return NewAppError(TooManyRequestsError, message, cause)
}

func NewPayloadTooLargeError(message string, cause error) *AppError {
	return NewAppError(PayloadTooLargeError, message, cause)
}

func NewServiceUnavailableError(message string, cause error) *AppError {
	return NewAppError(ServiceUnavailableError, message, cause)
}

// ErrorResponse is the JSON body of every error response.
type ErrorResponse struct {
	Error string `json:"error" example:"A description of the error"`
}

// ToResponse exposes only Message; the cause never reaches the client.
func (e *AppError) ToResponse() ErrorResponse {
	return ErrorResponse{Error: e.Message}
}

// FromError finds an *AppError anywhere in err's chain.
func FromError(err error) (*AppError, bool) {
	var ae *AppError
	if err != nil && errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// Is reports whether err wraps an AppError of type t.
func Is(err error, t ErrorType) bool {
	ae, ok := FromError(err)
	return ok && ae.Type == t
}
