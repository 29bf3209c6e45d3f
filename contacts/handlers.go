package contacts

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/user/contacts-api/apperror"
	"github.com/user/contacts-api/auth"
	"github.com/user/contacts-api/validation"
)

const maxBodyBytes = 64 << 10

// Handler serves /contacts. Every route expects Authenticate to have run.
type Handler struct {
	service  *Service
	validate *validation.Validator
	log      *zap.Logger
}

func NewHandler(service *Service, validate *validation.Validator, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{service: service, validate: validate, log: log}
}

// RegisterRoutes mounts the contact routes on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.HandleCreate())
	r.Get("/", h.HandleList())
	r.Get("/search", h.HandleSearch())
	r.Get("/birthdays/upcoming", h.HandleUpcomingBirthdays())
	r.Get("/{id}", h.HandleGet())
	r.Put("/{id}", h.HandleUpdate())
	r.Delete("/{id}", h.HandleDelete())
}

// toAppError maps contact errors to HTTP errors and defers the rest to
// the auth mapping.
func toAppError(err error) *apperror.AppError {
	switch {
	case errors.Is(err, ErrNotFound):
		return apperror.NewNotFoundError("contact not found", err)
	case errors.Is(err, ErrDuplicateEmail):
		return apperror.NewConflictError("contact with this email already exists", err)
	case errors.Is(err, ErrInvalidQuery):
		msg := err.Error()
		if i := strings.LastIndex(msg, ErrInvalidQuery.Error()+": "); i >= 0 {
			msg = msg[i+len(ErrInvalidQuery.Error())+2:]
		}
		return apperror.NewBadRequestError(msg, err)
	}
	return auth.ToAppError(err)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	apperror.WriteError(w, r, h.log, toAppError(err))
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (Input, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()

	var req ContactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return Input{}, apperror.NewBadRequestError("invalid request body", err)
	}
	req.normalize()
	if err := h.validate.Struct(&req); err != nil {
		return Input{}, err
	}
	in, err := req.toInput()
	if err != nil {
		return Input{}, apperror.NewValidationError("birthday must be a date formatted as YYYY-MM-DD", err)
	}
	return in, nil
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperror.NewBadRequestError("contact id must be a positive integer", err)
	}
	return id, nil
}

// queryInt reads an integer query parameter, returning def when absent.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperror.NewBadRequestError(name+" must be an integer", err)
	}
	return v, nil
}

// HandleCreate godoc
// @Summary Create a contact
// @Tags Contacts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body contacts.ContactRequest true "Contact"
// @Success 201 {object} contacts.Contact
// @Failure 400 {object} apperror.ErrorResponse
// @Failure 401 {object} apperror.ErrorResponse
// @Failure 409 {object} apperror.ErrorResponse "Email already used by another contact"
// @Router /contacts [post]
func (h *Handler) HandleCreate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in, err := h.decode(w, r)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		c, err := h.service.Create(r.Context(), auth.FromContext(r.Context()), in)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		apperror.WriteJSON(w, http.StatusCreated, c)
	}
}

// HandleList godoc
// @Summary List contacts
// @Tags Contacts
// @Produce json
// @Security BearerAuth
// @Param skip query int false "Offset" default(0) minimum(0)
// @Param limit query int false "Page size" default(100) minimum(1) maximum(100)
// @Success 200 {array} contacts.Contact
// @Failure 400 {object} apperror.ErrorResponse
// @Failure 401 {object} apperror.ErrorResponse
// @Router /contacts [get]
func (h *Handler) HandleList() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		skip, err := queryInt(r, "skip", 0)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		limit, err := queryInt(r, "limit", DefaultLimit)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		list, err := h.service.List(r.Context(), auth.FromContext(r.Context()), skip, limit)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		apperror.WriteJSON(w, http.StatusOK, list)
	}
}

// HandleSearch godoc
// @Summary Search contacts
// @Description Case-insensitive substring match over first name, last name, email and phone.
// @Tags Contacts
// @Produce json
// @Security BearerAuth
// @Param q query string true "Search term"
// @Success 200 {array} contacts.Contact
// @Failure 400 {object} apperror.ErrorResponse
// @Failure 401 {object} apperror.ErrorResponse
// @Router /contacts/search [get]
func (h *Handler) HandleSearch() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := strings.TrimSpace(r.URL.Query().Get("q"))
		list, err := h.service.Search(r.Context(), auth.FromContext(r.Context()), q)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		apperror.WriteJSON(w, http.StatusOK, list)
	}
}

// HandleUpcomingBirthdays godoc
// @Summary Upcoming birthdays
// @Description Contacts whose next birthday is within the given number of days, soonest first.
// @Tags Contacts
// @Produce json
// @Security BearerAuth
// @Param days query int false "Window in days" default(7) minimum(0) maximum(366)
// @Success 200 {array} contacts.Contact
// @Failure 400 {object} apperror.ErrorResponse
// @Failure 401 {object} apperror.ErrorResponse
// @Router /contacts/birthdays/upcoming [get]
func (h *Handler) HandleUpcomingBirthdays() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		days, err := queryInt(r, "days", DefaultDays)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		list, err := h.service.UpcomingBirthdays(r.Context(), auth.FromContext(r.Context()), days)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		apperror.WriteJSON(w, http.StatusOK, list)
	}
}

// HandleGet godoc
// @Summary Get a contact
// @Tags Contacts
// @Produce json
// @Security BearerAuth
// @Param id path int true "Contact ID"
// @Success 200 {object} contacts.Contact
// @Failure 400 {object} apperror.ErrorResponse
// @Failure 401 {object} apperror.ErrorResponse
// @Failure 404 {object} apperror.ErrorResponse
// @Router /contacts/{id} [get]
func (h *Handler) HandleGet() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		c, err := h.service.Get(r.Context(), auth.FromContext(r.Context()), id)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		apperror.WriteJSON(w, http.StatusOK, c)
	}
}

// HandleUpdate godoc
// @Summary Replace a contact
// @Tags Contacts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Contact ID"
// @Param body body contacts.ContactRequest true "Contact"
// @Success 200 {object} contacts.Contact
// @Failure 400 {object} apperror.ErrorResponse
// @Failure 401 {object} apperror.ErrorResponse
// @Failure 404 {object} apperror.ErrorResponse
// @Failure 409 {object} apperror.ErrorResponse
// @Router /contacts/{id} [put]
func (h *Handler) HandleUpdate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		in, err := h.decode(w, r)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		c, err := h.service.Update(r.Context(), auth.FromContext(r.Context()), id, in)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		apperror.WriteJSON(w, http.StatusOK, c)
	}
}

// HandleDelete godoc
// @Summary Delete a contact
// @Tags Contacts
// @Produce json
// @Security BearerAuth
// @Param id path int true "Contact ID"
// @Success 200 {boolean} boolean true
// @Failure 400 {object} apperror.ErrorResponse
// @Failure 401 {object} apperror.ErrorResponse
// @Failure 404 {object} apperror.ErrorResponse
// @Router /contacts/{id} [delete]
func (h *Handler) HandleDelete() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		if err := h.service.Delete(r.Context(), auth.FromContext(r.Context()), id); err != nil {
			h.writeError(w, r, err)
			return
		}
		apperror.WriteJSON(w, http.StatusOK, true)
	}
}
