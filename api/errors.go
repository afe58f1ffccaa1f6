package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	backend "github.com/DiOS-Analysis/Backend"
	"github.com/DiOS-Analysis/Backend/job"
)

type messageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, messageResponse{Message: msg})
}

// errBadRequest marks client input errors raised by the handlers.
var errBadRequest = errors.New("bad request")

// mapError converts engine and store errors into HTTP responses. Anything
// unrecognised is a store failure and is logged at error.
func (a *API) mapError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, backend.ErrNotFound):
		writeMessage(w, http.StatusNotFound, err.Error())
	case errors.Is(err, backend.ErrJobAlreadyExists),
		errors.Is(err, backend.ErrWorkerAlreadyExists):
		writeMessage(w, http.StatusConflict, err.Error())
	case errors.Is(err, errBadRequest),
		errors.Is(err, job.ErrUnknownType),
		errors.Is(err, job.ErrUnknownState):
		writeMessage(w, http.StatusBadRequest, err.Error())
	default:
		a.logger.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		writeMessage(w, http.StatusInternalServerError, "internal error")
	}
}

// decodeBody decodes the JSON request body into v.
func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.Join(errBadRequest, err)
	}
	return nil
}
