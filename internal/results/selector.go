package results

import "github.com/fin-ner/wizard/internal/models"

// Selection is what the results page renders.
type Selection struct {
	Tabs          []Tab               `json:"tabs" msgpack:"tabs"`
	ActiveTab     models.AnalysisKind `json:"activeTab" msgpack:"activeTab"`
	UploadedFiles []string            `json:"uploadedFiles" msgpack:"uploadedFiles"`
	// Fallback is set when nothing was selected and every tab is shown.
	Fallback bool `json:"fallback" msgpack:"fallback"`
}

// Select keeps the catalog tabs whose kind is enabled in rec, in catalog
// order, and makes the first one active. With nothing enabled (for example
// when the results page is opened directly) it shows the whole catalog.
func Select(c *Catalog, rec models.HandoffRecord) Selection {
	sel := Selection{
		Tabs:          make([]Tab, 0, len(c.Tabs)),
		UploadedFiles: rec.UploadedFileNames,
	}
	if sel.UploadedFiles == nil {
		sel.UploadedFiles = []string{}
	}

	for _, t := range c.Tabs {
		if rec.SelectedAnalyses.Enabled(t.Kind) {
			sel.Tabs = append(sel.Tabs, t)
		}
	}
	if len(sel.Tabs) == 0 {
		sel.Tabs = append(sel.Tabs, c.Tabs...)
		sel.Fallback = true
	}
	if len(sel.Tabs) > 0 {
		sel.ActiveTab = sel.Tabs[0].Kind
	}
	return sel
}

// Kinds returns the kinds of the selected tabs in order.
func (s Selection) Kinds() []models.AnalysisKind {
	kinds := make([]models.AnalysisKind, len(s.Tabs))
	for i, t := range s.Tabs {
		kinds[i] = t.Kind
	}
	return kinds
}
