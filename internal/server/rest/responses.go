package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/dmitrijs2005/userhub/internal/common"
	"github.com/dmitrijs2005/userhub/internal/logging"
)

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, messageResponse{Message: msg})
}

// writeError translates a service error into a status code and body.
// Unexpected errors are logged as common.ErrorInternal and reported
// without detail.
func writeError(w http.ResponseWriter, r *http.Request, l logging.Logger, err error) {
	var verr *common.ValidationError

	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: verr.Message, Field: verr.Field})
	case errors.Is(err, common.ErrorAlreadyExists):
		writeMessage(w, http.StatusBadRequest, "user already exist")
	case errors.Is(err, common.ErrorInvalidCredentials):
		writeMessage(w, http.StatusBadRequest, "invalid email or password")
	case errors.Is(err, common.ErrorNotFound):
		writeMessage(w, http.StatusNotFound, "user not found")
	case errors.Is(err, common.ErrorForbidden):
		writeMessage(w, http.StatusForbidden, "access denied")
	case errors.Is(err, common.ErrorExternalService):
		l.Error(r.Context(), "external service failure", "method", r.Method, "path", r.URL.Path, "error", err)
		writeMessage(w, http.StatusBadGateway, "image service unavailable, please try again later")
	default:
		if !errors.Is(err, common.ErrorInternal) {
			err = fmt.Errorf("%w: %w", common.ErrorInternal, err)
		}
		l.Error(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeMessage(w, http.StatusInternalServerError, "internal server error")
	}
}
