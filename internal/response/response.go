package response

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	appErrors "github.com/unclebandit/storecast-backend/internal/errors"
)

type ErrorBody struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func Error(w http.ResponseWriter, status int, msg string, details any) {
	JSON(w, status, ErrorBody{Error: msg, Details: details})
}

// FromError writes err with the status its type maps to. Unknown errors are
// logged and reported as a generic 500.
func FromError(w http.ResponseWriter, logger *zap.Logger, err error) {
	var upstream *appErrors.UpstreamError
	switch {
	case appErrors.IsValidation(err):
		Error(w, http.StatusBadRequest, err.Error(), nil)
	case appErrors.IsNotFound(err):
		Error(w, http.StatusNotFound, err.Error(), nil)
	case appErrors.IsConflict(err):
		Error(w, http.StatusConflict, err.Error(), nil)
	case appErrors.IsRender(err):
		Error(w, http.StatusUnprocessableEntity, "Template render failed", err.Error())
	case errors.As(err, &upstream):
		var details any
		if upstream.Body != "" {
			var parsed any
			if json.Unmarshal([]byte(upstream.Body), &parsed) == nil {
				details = parsed
			} else {
				details = upstream.Body
			}
		} else if upstream.Err != nil {
			details = upstream.Err.Error()
		}
		logger.Warn("upstream request failed", zap.String("service", upstream.Service), zap.Error(err))
		Error(w, http.StatusBadGateway, upstream.Error(), details)
	default:
		logger.Error("request failed", zap.Error(err))
		Error(w, http.StatusInternalServerError, "Internal server error", nil)
	}
}
