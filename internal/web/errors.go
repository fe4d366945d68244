package web

// errors.go turns service errors into API responses.
//
//  1. Handler calls respondError(w, r, err)
//  2. The status code comes from the error's catalog kind
//  3. core.MapError supplies the user message and support code
//  4. The technical error is logged with the request id
//  5. Validation errors also list their row issues

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/catalogsync/internal/catalog"
	"github.com/JonMunkholm/catalogsync/internal/core"
	"github.com/JonMunkholm/catalogsync/internal/ingest"
)

// ErrorResponse is the JSON body of every API error.
type ErrorResponse struct {
	Error   string                   `json:"error"`
	Message string                   `json:"message"`
	Action  string                   `json:"action,omitempty"`
	Code    string                   `json:"code"`
	Issues  []ingest.ValidationError `json:"issues,omitempty"`
}

// statusFor picks the HTTP status for err.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrTooManyUploads):
		return http.StatusTooManyRequests
	case errors.Is(err, errFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, catalog.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, catalog.ErrAuthorization):
		return http.StatusForbidden
	case errors.Is(err, catalog.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, catalog.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, catalog.ErrExternalService):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// respondError logs err and writes its user-facing form.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := core.MapError(err)

	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	slog.Log(r.Context(), level, "request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", msg.Code,
		"request_id", middleware.GetReqID(r.Context()),
	)

	if status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", "5")
	}
	writeJSON(w, status, ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
		Issues:  core.ValidationIssues(err),
	})
}

var (
	errBadRequest   = errors.New("invalid request body")
	errFileTooLarge = errors.New("file too large")
)
