// handlers_config.go - Client configuration handler
package api

import (
	"net/http"

	"github.com/fin-ner/wizard/internal/models"
	"github.com/fin-ner/wizard/internal/results"
	"github.com/labstack/echo/v4"
)

// ConfigHandlerImpl implements the ConfigHandler interface
type ConfigHandlerImpl struct {
	publishableKey string
	catalog        *results.Catalog
	version        string
}

// NewConfigHandler creates a new config handler
func NewConfigHandler(publishableKey string, catalog *results.Catalog, version string) ConfigHandler {
	return &ConfigHandlerImpl{
		publishableKey: publishableKey,
		catalog:        catalog,
		version:        version,
	}
}

// clientConfig is what the SPA needs before it renders
type clientConfig struct {
	AuthEnabled     bool                    `json:"authEnabled"`
	PublishableKey  string                  `json:"publishableKey,omitempty"`
	Analyses        []results.Tab           `json:"analyses"`
	DefaultFeatures models.FeatureSelection `json:"defaultFeatures"`
	ResultsPath     string                  `json:"resultsPath"`
	Version         string                  `json:"version"`
}

// HandleGetConfig returns the client configuration
func (h *ConfigHandlerImpl) HandleGetConfig(c echo.Context) error {
	return c.JSON(http.StatusOK, clientConfig{
		AuthEnabled:     h.publishableKey != "",
		PublishableKey:  h.publishableKey,
		Analyses:        h.catalog.Tabs,
		DefaultFeatures: models.DefaultFeatures(),
		ResultsPath:     models.ResultsPath,
		Version:         h.version,
	})
}
