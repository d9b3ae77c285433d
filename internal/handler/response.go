// Package handler turns HTTP requests into service calls and service
// results into JSON.
//
// Every response uses one envelope:
//
//	{"success": true,  "data": ...}            single value
//	{"success": true,  "templates": [...]}     named collection
//	{"success": false, "error": "message"}     any failure
//
// Handlers never decide status codes for domain failures themselves; they
// hand the error to writeError, which maps the apperror taxonomy to HTTP.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/devxboard/internal/apperror"
	"github.com/sakif/devxboard/internal/auth"
)

// maxBodyBytes bounds request bodies. A template may carry many blocks of
// up to 100k characters each.
const maxBodyBytes = 8 << 20

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Field   string `json:"field,omitempty"`
}

type dataResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

// writeJSON sends a JSON response with the given status code. Headers must
// be set before WriteHeader; the body comes last.
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		if err := json.NewEncoder(w).Encode(body); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, dataResponse{Success: true, Data: data})
}

// writeCollection writes {"success": true, "<name>": items}.
func writeCollection(w http.ResponseWriter, name string, items any) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true, name: items})
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"success": true, "message": message})
}

// writeError maps a service error to a status code. Only *AppError messages
// reach the client; anything else becomes a generic 500 and is logged.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		logger.Error("unhandled error", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "An internal error occurred"})
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, apperror.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, apperror.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, apperror.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, apperror.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, apperror.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, apperror.ErrTimeout):
		status = http.StatusGatewayTimeout
	default:
		logger.Error("upstream error", slog.String("error", err.Error()))
	}

	writeJSON(w, status, errorResponse{Error: appErr.Message, Field: appErr.Field})
}

// decodeJSON reads the body into dst. An empty body leaves dst untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return apperror.ValidationFailed("body", "request body is too large")
	}
	return apperror.ValidationFailed("body", "request body must be valid JSON")
}

// caller returns the signed-in profile id or "" for anonymous requests.
func caller(r *http.Request) string {
	id, _ := auth.ProfileIDFromContext(r.Context())
	return id
}

// requireCaller returns the signed-in profile id, or writes 401 and
// returns false.
func requireCaller(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (string, bool) {
	id := caller(r)
	if id == "" {
		writeError(w, logger, apperror.Unauthorized("valid authentication required"))
		return "", false
	}
	return id, true
}

// checkClaimedUser rejects a user_id in the body or query that is not the
// authenticated caller. An empty claim is accepted.
func checkClaimedUser(w http.ResponseWriter, logger *slog.Logger, callerID, claimed string) bool {
	if claimed != "" && claimed != callerID {
		writeError(w, logger, apperror.Forbidden("user_id does not match the signed-in user"))
		return false
	}
	return true
}

// intParam parses a path parameter as a non-negative integer.
func intParam(r *http.Request, name string) (int, error) {
	v, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil || v < 0 {
		return 0, apperror.ValidationFailed(name, name+" must be a non-negative integer")
	}
	return v, nil
}

// intQuery parses an optional query parameter.
func intQuery(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperror.ValidationFailed(name, name+" must be an integer")
	}
	return v, nil
}
