package apperror

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// WriteJSON serializes data to JSON and writes it with the given status.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	// Headers are already sent, so an encoding failure cannot be reported.
	_ = json.NewEncoder(w).Encode(data)
}

// WriteError renders err as a standardized ErrorResponse. Errors that are not
// already an *AppError become a 500 with a generic message. Server-side
// failures are logged with their cause; client errors only at debug level.
func WriteError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	appErr, ok := FromError(err)
	if !ok {
		appErr = NewInternalError("an unexpected error occurred", err)
	}

	if log != nil {
		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", appErr.StatusCode()),
			zap.Error(err),
		}
		if appErr.StatusCode() >= http.StatusInternalServerError {
			log.Error("request failed", fields...)
		} else {
			log.Debug("request rejected", fields...)
		}
	}

	WriteJSON(w, appErr.StatusCode(), appErr.ToResponse())
}
