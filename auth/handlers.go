package auth

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/user/contacts-api/apperror"
	"github.com/user/contacts-api/validation"
)

const maxBodyBytes = 1 << 20

// Handlers exposes the Service over HTTP.
type Handlers struct {
	service  *Service
	validate *validation.Validator
	log      *zap.Logger
}

func NewHandlers(service *Service, validate *validation.Validator, log *zap.Logger) *Handlers {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handlers{service: service, validate: validate, log: log}
}

// RegisterRoutes mounts the public account routes on r. limit wraps the
// login route; pass nil for no rate limiting.
func (h *Handlers) RegisterRoutes(r chi.Router, limit func(http.Handler) http.Handler) {
	r.Post("/register", h.HandleRegister())
	if limit != nil {
		r.With(limit).Post("/login", h.HandleLogin())
	} else {
		r.Post("/login", h.HandleLogin())
	}
	r.Post("/refresh", h.HandleRefreshToken())
	r.Get("/verify/{token}", h.HandleVerifyEmail())
	r.Post("/request-reset", h.HandleRequestReset())
	r.Post("/reset-password", h.HandleResetPassword())
}

// decodeAndValidate reads a JSON body into dst and validates it.
func (h *Handlers) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperror.NewBadRequestError("invalid request body", err)
	}
	return h.validate.Struct(dst)
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	apperror.WriteError(w, r, h.log, ToAppError(err))
}

// tokenLinkError maps failures of a single-use link token to 400, keeping
// 404 for users that no longer exist.
func tokenLinkError(err error) error {
	if IsTokenError(err) {
		return apperror.NewBadRequestError("invalid or expired token", err)
	}
	return err
}

// HandleRegister godoc
// @Summary Register a new user
// @Description Creates an account with the user role and sends a verification email.
// @Tags Users
// @Accept json
// @Produce json
// @Param body body auth.RegisterRequest true "Registration details"
// @Success 201 {object} auth.User
// @Failure 400 {object} apperror.ErrorResponse
// @Failure 409 {object} apperror.ErrorResponse "Username or email already registered"
// @Router /users/register [post]
func (h *Handlers) HandleRegister() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RegisterRequest
		if err := h.decodeAndValidate(w, r, &req); err != nil {
			h.writeError(w, r, err)
			return
		}

		user, err := h.service.Register(r.Context(), RegisterInput{
			Username: req.Username,
			Email:    req.Email,
			Password: req.Password,
		})
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		apperror.WriteJSON(w, http.StatusCreated, user)
	}
}

// HandleLogin godoc
// @Summary Log in
// @Description Accepts JSON or an OAuth2 password form (username, password). Username may also be an email.
// @Tags Users
// @Accept json,x-www-form-urlencoded
// @Produce json
// @Param body body auth.LoginRequest true "Credentials"
// @Success 200 {object} auth.TokenResponse
// @Failure 400 {object} apperror.ErrorResponse
// @Failure 401 {object} apperror.ErrorResponse "Incorrect username or password"
// @Failure 429 {object} apperror.ErrorResponse
// @Router /users/login [post]
func (h *Handlers) HandleLogin() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest

		mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if mediaType == "application/x-www-form-urlencoded" || mediaType == "multipart/form-data" {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
			if err := r.ParseForm(); err != nil {
				h.writeError(w, r, apperror.NewBadRequestError("invalid form body", err))
				return
			}
			req.Username = r.PostFormValue("username")
			req.Password = r.PostFormValue("password")
			if err := h.validate.Struct(&req); err != nil {
				h.writeError(w, r, err)
				return
			}
		} else if err := h.decodeAndValidate(w, r, &req); err != nil {
			h.writeError(w, r, err)
			return
		}

		pair, err := h.service.Login(r.Context(), req.Username, req.Password)
		if err != nil {
			if errors.Is(err, ErrAuthFailed) {
				w.Header().Set("WWW-Authenticate", "Bearer")
			}
			h.writeError(w, r, err)
			return
		}
		apperror.WriteJSON(w, http.StatusOK, newTokenResponse(pair))
	}
}

// HandleRefreshToken godoc
// @Summary Refresh the access token
// @Description Issues a new access token; the refresh token is returned unchanged.
// @Tags Users
// @Accept json
// @Produce json
// @Param body body auth.RefreshTokenRequest true "Refresh token"
// @Success 200 {object} auth.TokenResponse
// @Failure 400 {object} apperror.ErrorResponse
// @Failure 401 {object} apperror.ErrorResponse "Invalid, expired or wrong type of token"
// @Failure 404 {object} apperror.ErrorResponse "User no longer exists"
// @Router /users/refresh [post]
func (h *Handlers) HandleRefreshToken() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RefreshTokenRequest
		if err := h.decodeAndValidate(w, r, &req); err != nil {
			h.writeError(w, r, err)
			return
		}

		pair, err := h.service.Refresh(r.Context(), req.RefreshToken)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		apperror.WriteJSON(w, http.StatusOK, newTokenResponse(pair))
	}
}

// HandleVerifyEmail godoc
// @Summary Verify an email address
// @Description Redeems the token from the verification email.
// @Tags Users
// @Produce json
// @Param token path string true "Verification token"
// @Success 200 {object} auth.User
// @Failure 400 {object} apperror.ErrorResponse "Invalid or expired token"
// @Failure 404 {object} apperror.ErrorResponse
// @Router /users/verify/{token} [get]
func (h *Handlers) HandleVerifyEmail() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := h.service.VerifyEmail(r.Context(), chi.URLParam(r, "token"))
		if err != nil {
			h.writeError(w, r, tokenLinkError(err))
			return
		}
		apperror.WriteJSON(w, http.StatusOK, user)
	}
}

// HandleRequestReset godoc
// @Summary Request a password reset
// @Description Always answers with the same message whether or not the email is registered.
// @Tags Users
// @Accept json
// @Produce json
// @Param body body auth.RequestResetRequest true "Account email"
// @Success 200 {object} auth.MessageResponse
// @Failure 400 {object} apperror.ErrorResponse
// @Router /users/request-reset [post]
func (h *Handlers) HandleRequestReset() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RequestResetRequest
		if err := h.decodeAndValidate(w, r, &req); err != nil {
			h.writeError(w, r, err)
			return
		}
		if err := h.service.RequestPasswordReset(r.Context(), req.Email); err != nil {
			h.writeError(w, r, err)
			return
		}
		apperror.WriteJSON(w, http.StatusOK, MessageResponse{
			Message: "If the email is registered, a reset link has been sent",
		})
	}
}

// HandleResetPassword godoc
// @Summary Reset a password
// @Description Redeems a reset token and sets a new password.
// @Tags Users
// @Accept json
// @Produce json
// @Param body body auth.ResetPasswordRequest true "Reset token and new password"
// @Success 200 {object} auth.MessageResponse
// @Failure 400 {object} apperror.ErrorResponse "Invalid or expired token"
// @Failure 404 {object} apperror.ErrorResponse
// @Router /users/reset-password [post]
func (h *Handlers) HandleResetPassword() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ResetPasswordRequest
		if err := h.decodeAndValidate(w, r, &req); err != nil {
			h.writeError(w, r, err)
			return
		}
		if err := h.service.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
			h.writeError(w, r, tokenLinkError(err))
			return
		}
		apperror.WriteJSON(w, http.StatusOK, MessageResponse{Message: "Password has been reset"})
	}
}
