// Package health serves liveness and readiness probes.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/user/contacts-api/apperror"
)

// Check reports whether a dependency is reachable.
type Check func(ctx context.Context) error

// Handler exposes /healthz and /readyz.
type Handler struct {
	checks  map[string]Check
	timeout time.Duration
	log     *zap.Logger
}

// New creates a Handler. Named checks run on every /readyz request.
func New(log *zap.Logger, checks map[string]Check) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{checks: checks, timeout: 2 * time.Second, log: log}
}

// RegisterRoutes mounts the probes on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", h.HandleLive())
	r.Get("/readyz", h.HandleReady())
}

// HandleLive always answers ok while the process serves requests.
func (h *Handler) HandleLive() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		apperror.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// HandleReady answers 503 naming every failing dependency.
func (h *Handler) HandleReady() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
		defer cancel()

		failed := map[string]string{}
		for name, check := range h.checks {
			if err := check(ctx); err != nil {
				h.log.Warn("readiness check failed", zap.String("check", name), zap.Error(err))
				failed[name] = err.Error()
			}
		}
		if len(failed) > 0 {
			apperror.WriteJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
				"status": "unavailable",
				"failed": failed,
			})
			return
		}
		apperror.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
