// routes.go - Route registration helpers
// This file provides a clean way to register all API routes
package api

import (
	"log/slog"

	"github.com/fin-ner/wizard/internal/results"
	"github.com/fin-ner/wizard/internal/storage"
	"github.com/labstack/echo/v4"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Sessions          SessionManager
	Blobs             storage.Store
	Catalog           *results.Catalog
	Backend           BackendClient
	Recorder          BackendRecorder
	AllowedExtensions []string
	// WebSocketReadLimit caps client WebSocket messages in bytes
	WebSocketReadLimit int64
	PublishableKey     string
	Version            string
	Logger             *slog.Logger
}

// Handlers holds all handler instances
type Handlers struct {
	Health  HealthHandler
	Config  ConfigHandler
	Wizard  WizardHandler
	Stream  StreamHandler
	Results ResultsHandler
	Proxy   ProxyHandler

	sessions SessionManager
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	return &Handlers{
		Health:   NewHealthHandler(deps.Version, deps.Sessions),
		Config:   NewConfigHandler(deps.PublishableKey, deps.Catalog, deps.Version),
		Wizard:   NewWizardHandler(deps.Sessions, deps.Blobs, deps.AllowedExtensions, deps.Logger),
		Stream:   NewStreamHandler(deps.Sessions, deps.WebSocketReadLimit, deps.Logger),
		Results:  NewResultsHandler(deps.Catalog),
		Proxy:    NewProxyHandler(deps.Backend, deps.Recorder, deps.Logger),
		sessions: deps.Sessions,
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	apiGroup := e.Group("/api")

	// Session-independent routes
	apiGroup.GET("/health", handlers.Health.HandleHealth)
	apiGroup.GET("/config", handlers.Config.HandleGetConfig)
	apiGroup.POST("/documents/upload", handlers.Proxy.HandleDocumentUpload)
	apiGroup.POST("/chat", handlers.Proxy.HandleChat)

	withSession := SessionMiddleware(handlers.sessions)

	// Wizard routes
	wizardGroup := apiGroup.Group("/wizard", withSession)
	wizardGroup.GET("", handlers.Wizard.HandleGetWizard)
	wizardGroup.POST("", handlers.Wizard.HandleMountWizard)
	wizardGroup.DELETE("", handlers.Wizard.HandleTeardownWizard)
	wizardGroup.POST("/files", handlers.Wizard.HandleAddFiles)
	wizardGroup.DELETE("/files/:id", handlers.Wizard.HandleRemoveFile)
	wizardGroup.PUT("/features", handlers.Wizard.HandleSetFeatures)
	wizardGroup.POST("/features/:kind/toggle", handlers.Wizard.HandleToggleFeature)
	wizardGroup.POST("/next", handlers.Wizard.HandleNext)
	wizardGroup.POST("/review", handlers.Wizard.HandleReview)
	wizardGroup.POST("/back", handlers.Wizard.HandleBack)
	wizardGroup.POST("/reset", handlers.Wizard.HandleReset)
	wizardGroup.POST("/process", handlers.Wizard.HandleProcess)
	wizardGroup.GET("/progress", handlers.Stream.HandleProgressStream)

	// WebSocket endpoint
	apiGroup.GET("/ws/wizard", handlers.Stream.HandleWebSocket, withSession)

	// Results routes
	apiGroup.GET("/handoff", handlers.Results.HandleHandoff, withSession)
	resultsGroup := apiGroup.Group("/results", withSession)
	resultsGroup.GET("", handlers.Results.HandleResults)
	resultsGroup.GET("/msgpack", handlers.Results.HandleResultsMsgpack)
	resultsGroup.GET("/:kind", handlers.Results.HandleResultTab)
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo) {
	// Use custom error handler
	e.HTTPErrorHandler = ErrorHandler
}
