package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors. The last four form the indexing/compilation taxonomy and are
// matched with errors.Is by the sync run bookkeeping.
var (
	ErrNotFound            = errors.New("resource not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrInternal            = errors.New("internal error")
	ErrServiceUnavail      = errors.New("service unavailable")
	ErrConfiguration       = errors.New("configuration error")
	ErrEngineCommunication = errors.New("engine communication error")
	ErrCompilation         = errors.New("rule compilation error")
	ErrDataIntegrity       = errors.New("data integrity warning")
)

// AppError represents a structured application error with HTTP status mapping.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound creates a 404 error.
func NotFound(resource string, id any) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s with id %v not found", resource, id),
		Status:  http.StatusNotFound,
		Err:     ErrNotFound,
	}
}

// InvalidInput creates a 400 error.
func InvalidInput(message string) *AppError {
	return &AppError{
		Code:    "INVALID_INPUT",
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     ErrInvalidInput,
	}
}

// Internal creates a 500 error.
func Internal(err error) *AppError {
	return &AppError{
		Code:    "INTERNAL_ERROR",
		Message: "an internal error occurred",
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

// Configuration reports incomplete or inconsistent sync metadata. It aborts
// the current run and marks it invalid.
func Configuration(message string) *AppError {
	return &AppError{
		Code:    "CONFIGURATION_ERROR",
		Message: message,
		Status:  http.StatusInternalServerError,
		Err:     ErrConfiguration,
	}
}

// EngineCommunication wraps a failed bulk, scroll or search call.
func EngineCommunication(op string, err error) *AppError {
	return &AppError{
		Code:    "ENGINE_UNAVAILABLE",
		Message: fmt.Sprintf("search engine %s failed", op),
		Status:  http.StatusBadGateway,
		Err:     errors.Join(ErrEngineCommunication, err),
	}
}

// Compilation reports malformed condition data. Callers must not replace the
// failed filter with a match-all or match-none fallback.
func Compilation(message string) *AppError {
	return &AppError{
		Code:    "RULE_COMPILATION_ERROR",
		Message: message,
		Status:  http.StatusUnprocessableEntity,
		Err:     ErrCompilation,
	}
}

// DataIntegrity flags a single upstream record with an unexpected shape.
func DataIntegrity(message string) *AppError {
	return &AppError{
		Code:    "DATA_INTEGRITY",
		Message: message,
		Status:  http.StatusUnprocessableEntity,
		Err:     ErrDataIntegrity,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	return fmt.Errorf("%s: %w", message, err)
}

// HTTPStatus returns the HTTP status code for the given error.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrCompilation), errors.Is(err, ErrDataIntegrity):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrEngineCommunication):
		return http.StatusBadGateway
	case errors.Is(err, ErrServiceUnavail):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// MarksRunInvalid reports whether err belongs to the classes that invalidate
// a sync run: configuration and engine communication failures.
func MarksRunInvalid(err error) bool {
	return errors.Is(err, ErrConfiguration) || errors.Is(err, ErrEngineCommunication)
}
