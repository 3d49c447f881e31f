package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"maritimeacademy/site-admin/internal/auth"
	"maritimeacademy/site-admin/internal/backend"
	"maritimeacademy/site-admin/internal/content"
	"maritimeacademy/site-admin/internal/docstore"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, map[string]any{"success": true, "data": data})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"success": false, "error": message})
}

// writeServiceError maps an error from the service layer to a status code.
// Token errors are checked before not-found because a missing session is
// both.
func writeServiceError(w http.ResponseWriter, log *slog.Logger, err error, fallback string) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, auth.ErrUnauthorized),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpired):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, auth.ErrWeakPassword),
		errors.Is(err, auth.ErrInvalidInput),
		errors.Is(err, content.ErrInvalidInput),
		errors.Is(err, docstore.ErrInvalidDocument):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, docstore.ErrNotFound):
		writeError(w, http.StatusNotFound, notFoundMessage(err))
	case errors.Is(err, docstore.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, backend.ErrTimeout):
		writeError(w, http.StatusGatewayTimeout, "backend request timed out")
	case errors.Is(err, backend.ErrNetwork), errors.Is(err, backend.ErrUpstream):
		writeError(w, http.StatusBadGateway, "backend unavailable")
	default:
		log.Error(fallback, "error", err)
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

func notFoundMessage(err error) string {
	switch {
	case errors.Is(err, auth.ErrAccountNotFound):
		return "user not found"
	case errors.Is(err, auth.ErrSessionNotFound):
		return "session not found"
	case errors.Is(err, content.ErrEventNotFound):
		return "event not found"
	case errors.Is(err, content.ErrArticleNotFound):
		return "article not found"
	}
	return "not found"
}

var errBadBody = errors.New("invalid request body")

// decodeJSON reads one JSON value from the body into v.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("%w: body exceeds %d bytes", errBadBody, tooLarge.Limit)
		}
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", errBadBody)
		}
		return errBadBody
	}
	return nil
}

// pathID returns the single segment after prefix, or false when the path
// has none or more than one.
func pathID(urlPath, prefix string) (string, bool) {
	id := strings.TrimSpace(strings.TrimPrefix(urlPath, prefix))
	if id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}
