package users

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/user/contacts-api/apperror"
	"github.com/user/contacts-api/auth"
	"github.com/user/contacts-api/avatar"
)

// multipart framing allowance on top of the file itself
const formOverhead = 64 << 10

// Handlers serves the authenticated /users routes.
type Handlers struct {
	service  *Service
	maxBytes int64
	log      *zap.Logger
}

func NewHandlers(service *Service, maxAvatarBytes int64, log *zap.Logger) *Handlers {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handlers{service: service, maxBytes: maxAvatarBytes, log: log}
}

// RegisterRoutes mounts the profile routes. The caller has already applied
// authentication; admin wraps the admin-only routes and limit wraps /me.
// Either may be nil.
func (h *Handlers) RegisterRoutes(r chi.Router, admin, limit func(http.Handler) http.Handler) {
	withOpt := func(mw func(http.Handler) http.Handler) chi.Router {
		if mw == nil {
			return r
		}
		return r.With(mw)
	}
	withOpt(limit).Get("/me", h.HandleMe())
	withOpt(admin).Post("/avatar", h.HandleUploadAvatar())
	withOpt(admin).Post("/set-role", h.HandleSetRole())
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	apperror.WriteError(w, r, h.log, auth.ToAppError(err))
}

// HandleMe godoc
// @Summary Current user
// @Tags Users
// @Produce json
// @Security BearerAuth
// @Success 200 {object} auth.User
// @Failure 401 {object} apperror.ErrorResponse
// @Failure 429 {object} apperror.ErrorResponse
// @Router /users/me [get]
func (h *Handlers) HandleMe() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rc := auth.FromContext(r.Context())
		if !rc.Authenticated() {
			h.writeError(w, r, auth.ErrUnauthenticated)
			return
		}
		apperror.WriteJSON(w, http.StatusOK, rc.User)
	}
}

// HandleUploadAvatar godoc
// @Summary Upload avatar
// @Description Stores an image (jpeg, png, webp or gif) as the caller's avatar. Admin only.
// @Tags Users
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param file formData file true "Avatar image"
// @Success 200 {object} auth.User
// @Failure 400 {object} apperror.ErrorResponse
// @Failure 403 {object} apperror.ErrorResponse
// @Failure 413 {object} apperror.ErrorResponse
// @Failure 503 {object} apperror.ErrorResponse "Storage not configured"
// @Router /users/avatar [post]
func (h *Handlers) HandleUploadAvatar() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rc := auth.FromContext(r.Context())

		r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+formOverhead)
		file, header, err := r.FormFile("file")
		if err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				h.writeError(w, r, apperror.NewPayloadTooLargeError("file too large", err))
				return
			}
			h.writeError(w, r, apperror.NewBadRequestError("multipart field \"file\" is required", err))
			return
		}
		defer file.Close()

		if header.Size > h.maxBytes {
			h.writeError(w, r, apperror.NewPayloadTooLargeError("file too large", nil))
			return
		}

		// The content type is sniffed from the data; the client's header is
		// only used when sniffing is inconclusive.
		head := make([]byte, 512)
		n, err := io.ReadFull(file, head)
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
			h.writeError(w, r, apperror.NewBadRequestError("could not read file", err))
			return
		}
		head = head[:n]
		contentType := http.DetectContentType(head)
		if !avatar.Allowed(contentType) {
			if declared := header.Header.Get("Content-Type"); avatar.Allowed(declared) && contentType == "application/octet-stream" {
				contentType = declared
			}
		}

		body := io.MultiReader(bytes.NewReader(head), file)
		u, err := h.service.UploadAvatar(r.Context(), rc.UserID(), body, header.Size, contentType)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		apperror.WriteJSON(w, http.StatusOK, u)
	}
}

// HandleSetRole godoc
// @Summary Change a user's role
// @Tags Users
// @Produce json
// @Security BearerAuth
// @Param user_id query int true "Target user ID"
// @Param role query string true "New role" Enums(user, admin)
// @Success 200 {object} auth.User
// @Failure 400 {object} apperror.ErrorResponse
// @Failure 403 {object} apperror.ErrorResponse
// @Failure 404 {object} apperror.ErrorResponse
// @Router /users/set-role [post]
func (h *Handlers) HandleSetRole() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		userID, err := strconv.ParseInt(q.Get("user_id"), 10, 64)
		if err != nil || userID <= 0 {
			h.writeError(w, r, apperror.NewBadRequestError("user_id must be a positive integer", err))
			return
		}
		role, err := auth.ParseRole(q.Get("role"))
		if err != nil {
			h.writeError(w, r, apperror.NewBadRequestError("role must be one of: user, admin", err))
			return
		}

		u, err := h.service.SetRole(r.Context(), userID, role)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		apperror.WriteJSON(w, http.StatusOK, u)
	}
}
