// handlers_results.go - Results page handlers
package api

import (
	"net/http"
	"slices"

	"github.com/fin-ner/wizard/internal/models"
	"github.com/fin-ner/wizard/internal/results"
	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"
)

// ResultsHandlerImpl implements the ResultsHandler interface
type ResultsHandlerImpl struct {
	catalog *results.Catalog
}

// NewResultsHandler creates a new results handler
func NewResultsHandler(catalog *results.Catalog) ResultsHandler {
	return &ResultsHandlerImpl{catalog: catalog}
}

// tabResponse is one analysis view with its sample payload
type tabResponse struct {
	results.Tab
	Selected bool           `json:"selected"`
	Data     map[string]any `json:"data"`
}

func (h *ResultsHandlerImpl) selection(c echo.Context) (results.Selection, models.HandoffRecord, error) {
	state, err := sessionFrom(c)
	if err != nil {
		return results.Selection{}, models.HandoffRecord{}, err
	}
	rec, err := state.Handoff.Read(c.Request().Context())
	if err != nil {
		return results.Selection{}, rec, NewInternalError("failed to read handoff", err)
	}
	return results.Select(h.catalog, rec), rec, nil
}

// HandleHandoff returns the raw handoff record
func (h *ResultsHandlerImpl) HandleHandoff(c echo.Context) error {
	_, rec, err := h.selection(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}

// HandleResults returns the tabs the results page should show
func (h *ResultsHandlerImpl) HandleResults(c echo.Context) error {
	sel, _, err := h.selection(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sel)
}

// HandleResultsMsgpack returns the tab selection in MessagePack format
func (h *ResultsHandlerImpl) HandleResultsMsgpack(c echo.Context) error {
	sel, _, err := h.selection(c)
	if err != nil {
		return err
	}

	data, err := msgpack.Marshal(sel)
	if err != nil {
		return NewInternalError("failed to encode msgpack", err)
	}
	return c.Blob(http.StatusOK, "application/msgpack", data)
}

// HandleResultTab returns the sample payload of one analysis view
func (h *ResultsHandlerImpl) HandleResultTab(c echo.Context) error {
	kind, err := models.ParseAnalysisKind(c.Param("kind"))
	if err != nil {
		return NewNotFoundError("analysis", c.Param("kind"))
	}
	tab, ok := h.catalog.Tab(kind)
	if !ok {
		return NewNotFoundError("analysis", string(kind))
	}

	sel, _, err := h.selection(c)
	if err != nil {
		return err
	}
	data := tab.Sample
	if data == nil {
		data = map[string]any{}
	}
	return c.JSON(http.StatusOK, tabResponse{
		Tab:      tab,
		Selected: slices.Contains(sel.Kinds(), kind),
		Data:     data,
	})
}
