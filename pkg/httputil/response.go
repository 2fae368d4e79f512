package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	apperrors "github.com/utafrali/searchandising/pkg/errors"
	"github.com/utafrali/searchandising/pkg/logger"
	"github.com/utafrali/searchandising/pkg/validator"
)

// MaxBodyBytes caps request bodies read by handlers.
const MaxBodyBytes = 1 << 20

// Response is the standard JSON response envelope.
type Response struct {
	Data  any            `json:"data,omitempty"`
	Error *ErrorResponse `json:"error,omitempty"`
}

// ErrorResponse represents an error in the standard response format.
type ErrorResponse struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent; nothing meaningful can be done if encoding fails.
	_ = json.NewEncoder(w).Encode(v)
}

// sentinelResponse maps bare sentinel errors to a code, a public message and
// a status. Errors carrying an AppError are answered from the AppError.
func sentinelResponse(err error) (code, message string, status int) {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return "NOT_FOUND", "resource not found", http.StatusNotFound
	case errors.Is(err, apperrors.ErrInvalidInput):
		return "INVALID_INPUT", err.Error(), http.StatusBadRequest
	case errors.Is(err, apperrors.ErrCompilation):
		return "RULE_COMPILATION_ERROR", err.Error(), http.StatusUnprocessableEntity
	case errors.Is(err, apperrors.ErrDataIntegrity):
		return "DATA_INTEGRITY", err.Error(), http.StatusUnprocessableEntity
	case errors.Is(err, apperrors.ErrEngineCommunication):
		return "ENGINE_UNAVAILABLE", "search engine unavailable", http.StatusBadGateway
	case errors.Is(err, apperrors.ErrServiceUnavail):
		return "SERVICE_UNAVAILABLE", "service unavailable", http.StatusServiceUnavailable
	}
	return "INTERNAL_ERROR", "an internal error occurred", http.StatusInternalServerError
}

// WriteError writes a standardized error response based on the error type.
// Server side failures are logged with the request-scoped logger when the
// RequestLogger middleware is mounted, fallback otherwise.
func WriteError(w http.ResponseWriter, r *http.Request, err error, fallback *slog.Logger) {
	l := logger.FromContext(r.Context())
	if l == slog.Default() {
		l = fallback
	}
	requestID := logger.CorrelationIDFromContext(r.Context())

	var (
		code, message string
		status        int
	)
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		code, message, status = appErr.Code, appErr.Message, appErr.Status
	} else {
		code, message, status = sentinelResponse(err)
	}

	if status >= http.StatusInternalServerError {
		l.ErrorContext(r.Context(), "request failed",
			slog.String("error", err.Error()),
			slog.String("code", code),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
	}

	WriteJSON(w, status, Response{
		Error: &ErrorResponse{Code: code, Message: message, RequestID: requestID},
	})
}

// WriteValidationError writes a standardized validation error response.
// It handles ValidationError from the validator package and returns field-level errors.
func WriteValidationError(w http.ResponseWriter, err error) {
	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		WriteJSON(w, http.StatusBadRequest, Response{
			Error: &ErrorResponse{
				Code:    "VALIDATION_ERROR",
				Message: "request validation failed",
				Fields:  valErr.Fields(),
			},
		})
		return
	}

	WriteJSON(w, http.StatusBadRequest, Response{
		Error: &ErrorResponse{Code: "INVALID_INPUT", Message: err.Error()},
	})
}

// WriteInvalidParameter writes a 400 response naming a malformed parameter.
func WriteInvalidParameter(w http.ResponseWriter, message string) {
	WriteJSON(w, http.StatusBadRequest, Response{
		Error: &ErrorResponse{Code: "INVALID_PARAMETER", Message: message},
	})
}

// ParseID parses a positive numeric identifier. If invalid, it writes a 400
// response and returns false, signaling the caller to return early.
func ParseID(w http.ResponseWriter, name, param string) (int64, bool) {
	id, err := strconv.ParseInt(param, 10, 64)
	if err != nil || id <= 0 {
		WriteInvalidParameter(w, name+" must be a positive integer: "+param)
		return 0, false
	}
	return id, true
}

// ParseStoreID parses a store id, where 0 is the admin scope.
func ParseStoreID(w http.ResponseWriter, param string) (int64, bool) {
	if param == "" {
		return 0, true
	}
	id, err := strconv.ParseInt(param, 10, 64)
	if err != nil || id < 0 {
		WriteInvalidParameter(w, "store_id must be a non-negative integer: "+param)
		return 0, false
	}
	return id, true
}
