package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeValidation(w http.ResponseWriter, errs quiz.ValidationErrors) {
	writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"errors": errs})
}

// fail maps service errors onto status codes. Anything unrecognised is
// logged and reported as a bare 500.
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	var verrs quiz.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		writeValidation(w, verrs)
	case errors.Is(err, quiz.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, quiz.ErrForbidden):
		http.Error(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, quiz.ErrFinished):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, quiz.ErrInvalid), errors.Is(err, quiz.ErrUnknownType):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		a.log.Error("request failed",
			zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

// idParam parses a positive int64 path parameter.
func idParam(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, name+" must be a positive integer", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}
