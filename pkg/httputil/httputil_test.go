package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/utafrali/searchandising/pkg/errors"
	"github.com/utafrali/searchandising/pkg/logger"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

// --- WriteJSON ---

func TestWriteJSON_SetsContentType(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusOK, Response{Data: "hello"})

	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWriteJSON_ErrorPayload(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusBadRequest, Response{
		Error: &ErrorResponse{Code: "INVALID", Message: "bad input"},
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INVALID", resp.Error.Code)
	assert.Equal(t, "bad input", resp.Error.Message)
}

func TestResponse_OmitsEmptyFields(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusOK, Response{Data: "ok"})

	var raw map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&raw))
	_, hasError := raw["error"]
	assert.False(t, hasError)

	rec = httptest.NewRecorder()
	WriteJSON(rec, http.StatusBadRequest, Response{Error: &ErrorResponse{Code: "ERR", Message: "msg"}})

	raw = nil
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&raw))
	_, hasData := raw["data"]
	assert.False(t, hasData)
}

// --- WriteError ---

func TestWriteError_AppErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not found", apperrors.NotFound("category", 7), http.StatusNotFound, "NOT_FOUND"},
		{"invalid input", apperrors.InvalidInput("bad sort"), http.StatusBadRequest, "INVALID_INPUT"},
		{"compilation", apperrors.Compilation("unknown attribute"), http.StatusUnprocessableEntity, "RULE_COMPILATION_ERROR"},
		{"configuration", apperrors.Configuration("no options"), http.StatusInternalServerError, "CONFIGURATION_ERROR"},
		{"engine", apperrors.EngineCommunication("search", errors.New("refused")), http.StatusBadGateway, "ENGINE_UNAVAILABLE"},
		{"wrapped", fmt.Errorf("category 6: %w", apperrors.Compilation("bad rule")), http.StatusUnprocessableEntity, "RULE_COMPILATION_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/test", nil)

			WriteError(rec, req, tt.err, testLogger())

			assert.Equal(t, tt.status, rec.Code)
			resp := decode(t, rec)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}
}

func TestWriteError_Sentinels(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{apperrors.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{apperrors.ErrInvalidInput, http.StatusBadRequest, "INVALID_INPUT"},
		{apperrors.ErrCompilation, http.StatusUnprocessableEntity, "RULE_COMPILATION_ERROR"},
		{apperrors.ErrEngineCommunication, http.StatusBadGateway, "ENGINE_UNAVAILABLE"},
		{apperrors.ErrServiceUnavail, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"},
		{fmt.Errorf("something unexpected"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/test", nil)

			WriteError(rec, req, tt.err, testLogger())

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decode(t, rec).Error.Code)
		})
	}
}

func TestWriteError_InternalMessageIsGeneric(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)

	WriteError(rec, req, errors.New("dial tcp 10.0.0.3:5432: refused"), testLogger())

	assert.Equal(t, "an internal error occurred", decode(t, rec).Error.Message)
}

func TestWriteError_RequestID(t *testing.T) {
	rec := httptest.NewRecorder()
	ctx := logger.WithCorrelationID(context.Background(), "corr-123")
	req := httptest.NewRequest(http.MethodGet, "/test", nil).WithContext(ctx)

	WriteError(rec, req, apperrors.NotFound("search term", 9), testLogger())
	assert.Equal(t, "corr-123", decode(t, rec).Error.RequestID)

	rec = httptest.NewRecorder()
	WriteError(rec, httptest.NewRequest(http.MethodGet, "/test", nil), apperrors.ErrNotFound, testLogger())

	var raw map[string]map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&raw))
	_, hasRequestID := raw["error"]["request_id"]
	assert.False(t, hasRequestID)
}

// --- WriteValidationError ---

func TestWriteValidationError_NonValidationError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteValidationError(rec, fmt.Errorf("not a validation error"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode(t, rec)
	assert.Equal(t, "INVALID_INPUT", resp.Error.Code)
	assert.Equal(t, "not a validation error", resp.Error.Message)
}

// --- ParseID / ParseStoreID ---

func TestParseID(t *testing.T) {
	rec := httptest.NewRecorder()
	id, ok := ParseID(rec, "category_id", "42")
	assert.True(t, ok)
	assert.Equal(t, int64(42), id)
	assert.Equal(t, http.StatusOK, rec.Code)

	for _, param := range []string{"", "0", "-3", "abc"} {
		rec := httptest.NewRecorder()
		_, ok := ParseID(rec, "category_id", param)
		assert.False(t, ok, param)
		assert.Equal(t, http.StatusBadRequest, rec.Code, param)

		resp := decode(t, rec)
		assert.Equal(t, "INVALID_PARAMETER", resp.Error.Code)
		assert.Contains(t, resp.Error.Message, "category_id")
	}
}

func TestParseStoreID(t *testing.T) {
	rec := httptest.NewRecorder()

	id, ok := ParseStoreID(rec, "")
	assert.True(t, ok)
	assert.Equal(t, int64(0), id)

	id, ok = ParseStoreID(rec, "3")
	assert.True(t, ok)
	assert.Equal(t, int64(3), id)

	_, ok = ParseStoreID(rec, "-1")
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
