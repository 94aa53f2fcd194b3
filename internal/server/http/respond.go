package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/codely-app/snippetd/internal/errs"
)

// Client-facing failure messages. Token mismatch, absence, expiry, and
// consumption all collapse into 404s so probing reveals nothing.
const (
	msgNotFound         = "Invalid snippet or access token"
	msgExpired          = "Snippet has expired"
	msgConsumed         = "This snippet has already been viewed"
	msgInvalidPassword  = "Invalid password"
	msgPasswordRequired = "Password required"
	msgRateLimited      = "Rate limit exceeded. Please try again later."
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// respondError maps sentinel errors to the HTTP failure contract.
func respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		writeError(w, http.StatusNotFound, msgNotFound)
	case errors.Is(err, errs.ErrExpired):
		writeError(w, http.StatusNotFound, msgExpired)
	case errors.Is(err, errs.ErrConsumed):
		writeError(w, http.StatusNotFound, msgConsumed)
	case errors.Is(err, errs.ErrPasswordRequired):
		writeError(w, http.StatusForbidden, msgPasswordRequired)
	case errors.Is(err, errs.ErrInvalidPassword), errors.Is(err, errs.ErrDecryptionFailed):
		writeError(w, http.StatusForbidden, msgInvalidPassword)
	case errors.Is(err, errs.ErrValidation):
		writeError(w, http.StatusBadRequest, validationMessage(err))
	case errors.Is(err, errs.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, msgRateLimited)
	case errors.Is(err, errs.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "conflict")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// validationMessage strips the sentinel prefix so clients see only the
// human-readable part.
func validationMessage(err error) string {
	msg := err.Error()
	if rest, ok := strings.CutPrefix(msg, errs.ErrValidation.Error()+": "); ok {
		return rest
	}
	return msg
}
