package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fin-ner/wizard/internal/results"
	"github.com/fin-ner/wizard/internal/session"
	"github.com/fin-ner/wizard/internal/wizard"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigHandler_HandleGetConfig(t *testing.T) {
	catalog, err := results.DefaultCatalog()
	require.NoError(t, err)

	tests := []struct {
		name     string
		key      string
		wantAuth bool
	}{
		{"auth disabled without key", "", false},
		{"auth enabled with key", "pk_test_123", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewConfigHandler(tt.key, catalog, "1.2.3")

			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/api/config", nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			if assert.NoError(t, h.HandleGetConfig(c)) {
				assert.Equal(t, http.StatusOK, rec.Code)
				var resp clientConfig
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
				assert.Equal(t, tt.wantAuth, resp.AuthEnabled)
				assert.Equal(t, tt.key, resp.PublishableKey)
				assert.Len(t, resp.Analyses, 3)
				assert.Equal(t, "/results", resp.ResultsPath)
				assert.True(t, resp.DefaultFeatures.NER)
				assert.False(t, resp.DefaultFeatures.Clauses)
			}
		})
	}
}

func TestHealthHandler_HandleHealth(t *testing.T) {
	env := newTestEnv(t, instantRunner())
	env.newSession(t)

	rec := env.do(t, http.MethodGet, "/api/health", "", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, "test", resp["version"])
	assert.Equal(t, float64(1), resp["activeSessions"])
	// Health checks do not create sessions
	assert.Empty(t, rec.Result().Cookies())
}

func TestWizardError(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{wizard.ErrNoFiles, http.StatusUnprocessableEntity, "VALIDATION_NOTICE"},
		{wizard.ErrNoFeatures, http.StatusUnprocessableEntity, "VALIDATION_NOTICE"},
		{wizard.ErrInvalidTransition, http.StatusConflict, "CONFLICT"},
		{wizard.ErrWrongStep, http.StatusConflict, "CONFLICT"},
		{wizard.ErrProcessingRunning, http.StatusConflict, "CONFLICT"},
		{wizard.ErrFinished, http.StatusConflict, "CONFLICT"},
		{fmt.Errorf("wrapped: %w", wizard.ErrClosed), http.StatusConflict, "CONFLICT"},
		{session.ErrTooManySessions, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"},
		{errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			apiErr := wizardError(tt.err)
			assert.Equal(t, tt.wantStatus, apiErr.Status)
			assert.Equal(t, tt.wantCode, apiErr.Code)
		})
	}
}

func TestErrorHandler(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"api error", NewNotFoundError("file", "abc"), http.StatusNotFound, "NOT_FOUND"},
		{"echo error", echo.NewHTTPError(http.StatusMethodNotAllowed, "nope"), http.StatusMethodNotAllowed, "HTTP_ERROR"},
		{"plain error", errors.New("boom"), http.StatusInternalServerError, "UNKNOWN_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

			ErrorHandler(tt.err, c)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCode, decodeAPIError(t, rec).Code)
		})
	}
}
