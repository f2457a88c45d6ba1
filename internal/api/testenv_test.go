package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fin-ner/wizard/internal/models"
	"github.com/fin-ner/wizard/internal/results"
	"github.com/fin-ner/wizard/internal/session"
	"github.com/fin-ner/wizard/internal/sessionstore"
	"github.com/fin-ner/wizard/internal/task"
	"github.com/fin-ner/wizard/internal/testutil"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
)

// testEnv is a fully wired echo instance over in-memory collaborators.
type testEnv struct {
	e        *echo.Echo
	sessions *session.Manager
	blobs    *testutil.MockStorage
	backend  *testutil.MockBackend
}

func newTestEnv(t *testing.T, runner task.Runner) *testEnv {
	t.Helper()

	blobs := testutil.NewMockStorage()
	mgr := session.NewManager(session.Config{
		Store:  sessionstore.NewMemory(),
		Blobs:  blobs,
		Runner: runner,
	})
	t.Cleanup(mgr.Close)

	catalog, err := results.DefaultCatalog()
	require.NoError(t, err)

	env := &testEnv{
		e:        echo.New(),
		sessions: mgr,
		blobs:    blobs,
		backend:  testutil.NewMockBackend(),
	}
	SetupMiddleware(env.e)
	RegisterRoutes(env.e, NewHandlers(&Dependencies{
		Sessions:          mgr,
		Blobs:             blobs,
		Catalog:           catalog,
		Backend:           env.backend,
		AllowedExtensions: []string{".pdf", ".docx", ".txt"},
		Version:           "test",
	}))
	return env
}

// instantRunner completes as soon as it starts.
func instantRunner() task.Runner {
	return task.RunnerFunc(func(ctx context.Context, _ task.Job, report func(int)) error {
		report(50)
		return nil
	})
}

// gatedRunner reports 0 and waits until release is closed or receives.
type gatedRunner struct {
	release chan error
}

func newGatedRunner() *gatedRunner {
	return &gatedRunner{release: make(chan error, 1)}
}

func (r *gatedRunner) Run(ctx context.Context, _ task.Job, report func(int)) error {
	report(0)
	select {
	case err := <-r.release:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (env *testEnv) do(t *testing.T, method, path, sessionID string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	if sessionID != "" {
		req.Header.Set(SessionHeader, sessionID)
	}
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) doJSON(t *testing.T, method, path, sessionID string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(data)
	}
	return env.do(t, method, path, sessionID, body, echo.MIMEApplicationJSON)
}

// newSession creates a session and returns its id.
func (env *testEnv) newSession(t *testing.T) string {
	t.Helper()
	rec := env.do(t, http.MethodGet, "/api/wizard", "", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	id := rec.Header().Get(SessionHeader)
	require.NotEmpty(t, id)
	return id
}

func (env *testEnv) addFiles(t *testing.T, sessionID string, names ...string) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartFiles(t, names...)
	return env.do(t, http.MethodPost, "/api/wizard/files", sessionID, body, contentType)
}

// toReview stages one file, keeps the default features, and moves to Review.
func (env *testEnv) toReview(t *testing.T, sessionID string) {
	t.Helper()
	require.Equal(t, http.StatusCreated, env.addFiles(t, sessionID, "report.pdf").Code)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/wizard/next", sessionID, nil, "").Code)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/wizard/review", sessionID, nil, "").Code)
}

func multipartFiles(t *testing.T, names ...string) (io.Reader, string) {
	t.Helper()
	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)
	for _, name := range names {
		part, err := writer.CreateFormFile("file", name)
		require.NoError(t, err)
		part.Write([]byte("contents of " + name))
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func decodeSnapshot(t *testing.T, rec *httptest.ResponseRecorder) models.WizardSnapshot {
	t.Helper()
	var snap models.WizardSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap), rec.Body.String())
	return snap
}

func decodeAPIError(t *testing.T, rec *httptest.ResponseRecorder) APIError {
	t.Helper()
	var apiErr APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr), rec.Body.String())
	return apiErr
}
