// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"context"
	"io"

	"github.com/fin-ner/wizard/internal/session"
	"github.com/fin-ner/wizard/internal/wizard"
	"github.com/labstack/echo/v4"
)

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// ConfigHandler exposes client configuration to the SPA
type ConfigHandler interface {
	HandleGetConfig(c echo.Context) error
}

// WizardHandler handles the upload, features and review steps
type WizardHandler interface {
	HandleGetWizard(c echo.Context) error
	HandleMountWizard(c echo.Context) error
	HandleTeardownWizard(c echo.Context) error
	HandleAddFiles(c echo.Context) error
	HandleRemoveFile(c echo.Context) error
	HandleSetFeatures(c echo.Context) error
	HandleToggleFeature(c echo.Context) error
	HandleNext(c echo.Context) error
	HandleReview(c echo.Context) error
	HandleBack(c echo.Context) error
	HandleReset(c echo.Context) error
	HandleProcess(c echo.Context) error
}

// StreamHandler pushes wizard events to the client
type StreamHandler interface {
	HandleProgressStream(c echo.Context) error
	HandleWebSocket(c echo.Context) error
}

// ResultsHandler serves the results page data
type ResultsHandler interface {
	HandleHandoff(c echo.Context) error
	HandleResults(c echo.Context) error
	HandleResultsMsgpack(c echo.Context) error
	HandleResultTab(c echo.Context) error
}

// ProxyHandler forwards single documents and chat messages to the analysis backend
type ProxyHandler interface {
	HandleDocumentUpload(c echo.Context) error
	HandleChat(c echo.Context) error
}

// SessionManager defines the interface for session management
// This allows mocking in tests
type SessionManager interface {
	Ensure(id string) (*session.State, bool, error)
	GetSession(id string) (*session.State, bool)
	Wizard(id string) (*wizard.Wizard, bool)
	Remount(id string) (*wizard.Wizard, bool)
	Teardown(id string) bool
	TouchSession(id string) bool
	Count() int
}

// BackendClient is the analysis backend as seen by the proxy handlers
type BackendClient interface {
	Upload(ctx context.Context, name string, r io.Reader) (string, error)
	Chat(ctx context.Context, message string) (string, error)
}

// BackendRecorder records proxied backend calls
type BackendRecorder interface {
	RecordBackendCall(endpoint string, degraded bool)
}
