// handlers_wizard.go - Wizard step handlers
package api

import (
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"slices"
	"strings"

	"github.com/fin-ner/wizard/internal/models"
	"github.com/fin-ner/wizard/internal/staging"
	"github.com/fin-ner/wizard/internal/storage"
	"github.com/fin-ner/wizard/internal/wizard"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// WizardHandlerImpl implements the WizardHandler interface
type WizardHandlerImpl struct {
	sessions    SessionManager
	blobs       storage.Store
	allowedExts []string
	logger      *slog.Logger
}

// NewWizardHandler creates a new wizard handler. An empty allowedExts
// accepts every file type.
func NewWizardHandler(sessions SessionManager, blobs storage.Store, allowedExts []string, logger *slog.Logger) WizardHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WizardHandlerImpl{
		sessions:    sessions,
		blobs:       blobs,
		allowedExts: allowedExts,
		logger:      logger,
	}
}

// wizardResponse wraps a snapshot with the result of an action
type wizardResponse struct {
	Started *bool                 `json:"started,omitempty"`
	Added   []models.FileEntry    `json:"added,omitempty"`
	Removed *bool                 `json:"removed,omitempty"`
	Wizard  models.WizardSnapshot `json:"wizard"`
}

// setFeaturesRequest replaces the whole feature selection
type setFeaturesRequest struct {
	NER       *bool `json:"ner"`
	Sentiment *bool `json:"sentiment"`
	Clauses   *bool `json:"clauses"`
}

func (r *setFeaturesRequest) validate() error {
	switch {
	case r.NER == nil:
		return NewValidationError("ner")
	case r.Sentiment == nil:
		return NewValidationError("sentiment")
	case r.Clauses == nil:
		return NewValidationError("clauses")
	}
	return nil
}

func (r *setFeaturesRequest) selection() models.FeatureSelection {
	return models.FeatureSelection{NER: *r.NER, Sentiment: *r.Sentiment, Clauses: *r.Clauses}
}

// currentWizard returns the wizard mounted for the request's session
func (h *WizardHandlerImpl) currentWizard(c echo.Context) (*wizard.Wizard, error) {
	state, err := sessionFrom(c)
	if err != nil {
		return nil, err
	}
	w, ok := h.sessions.Wizard(state.ID)
	if !ok {
		return nil, NewNotFoundError("session", state.ID)
	}
	return w, nil
}

// HandleGetWizard returns the current wizard snapshot
func (h *WizardHandlerImpl) HandleGetWizard(c echo.Context) error {
	w, err := h.currentWizard(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, w.Snapshot())
}

// HandleMountWizard replaces the session's wizard with a fresh one
func (h *WizardHandlerImpl) HandleMountWizard(c echo.Context) error {
	state, err := sessionFrom(c)
	if err != nil {
		return err
	}
	w, ok := h.sessions.Remount(state.ID)
	if !ok {
		return NewNotFoundError("session", state.ID)
	}
	return c.JSON(http.StatusCreated, w.Snapshot())
}

// HandleTeardownWizard closes the session's wizard
func (h *WizardHandlerImpl) HandleTeardownWizard(c echo.Context) error {
	state, err := sessionFrom(c)
	if err != nil {
		return err
	}
	if !h.sessions.Teardown(state.ID) {
		return NewNotFoundError("session", state.ID)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleAddFiles stages the multipart "file" fields and stores their bytes
func (h *WizardHandlerImpl) HandleAddFiles(c echo.Context) error {
	w, err := h.currentWizard(c)
	if err != nil {
		return err
	}

	form, err := c.MultipartForm()
	if err != nil {
		return NewBadRequestError("invalid multipart form", err)
	}
	headers := form.File["file"]
	if len(headers) == 0 {
		return NewValidationError("file")
	}

	for _, fh := range headers {
		if !h.allowed(fh.Filename) {
			return NewBadRequestError(fmt.Sprintf("file type not allowed: %s", fh.Filename), nil)
		}
	}

	// Content is stored before staging; every staged entry has a blob.
	seen := make(map[string]bool, len(headers))
	candidates := make([]staging.Candidate, 0, len(headers))
	for _, fh := range headers {
		if seen[fh.Filename] {
			continue
		}
		seen[fh.Filename] = true
		id := uuid.New().String()
		if err := h.saveBlob(id, fh); err != nil {
			h.deleteBlobs(candidates, nil)
			return NewInternalError("failed to store file", err)
		}
		candidates = append(candidates, staging.Candidate{ID: id, Name: fh.Filename, SizeBytes: fh.Size})
	}

	added, err := w.AddFiles(candidates...)
	h.deleteBlobs(candidates, added)
	if err != nil {
		return wizardError(err)
	}

	return c.JSON(http.StatusCreated, wizardResponse{Added: added, Wizard: w.Snapshot()})
}

func (h *WizardHandlerImpl) saveBlob(id string, fh *multipart.FileHeader) error {
	src, err := fh.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	_, err = h.blobs.Save(id, src)
	return err
}

// deleteBlobs removes the stored content of candidates that were not staged.
func (h *WizardHandlerImpl) deleteBlobs(candidates []staging.Candidate, staged []models.FileEntry) {
	for _, c := range candidates {
		if slices.ContainsFunc(staged, func(e models.FileEntry) bool { return e.ID == c.ID }) {
			continue
		}
		if err := h.blobs.Delete(c.ID); err != nil {
			h.logger.Warn("deleting unstaged file failed", "file_id", c.ID, "error", err)
		}
	}
}

func (h *WizardHandlerImpl) allowed(name string) bool {
	if len(h.allowedExts) == 0 {
		return true
	}
	return slices.Contains(h.allowedExts, strings.ToLower(filepath.Ext(name)))
}

// HandleRemoveFile unstages a file by id
func (h *WizardHandlerImpl) HandleRemoveFile(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}
	w, err := h.currentWizard(c)
	if err != nil {
		return err
	}

	removed, err := w.RemoveFile(id)
	if err != nil {
		return wizardError(err)
	}
	if !removed {
		return NewNotFoundError("file", id)
	}
	return c.JSON(http.StatusOK, wizardResponse{Removed: &removed, Wizard: w.Snapshot()})
}

// HandleSetFeatures replaces the feature selection
func (h *WizardHandlerImpl) HandleSetFeatures(c echo.Context) error {
	var req setFeaturesRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if err := req.validate(); err != nil {
		return err
	}
	w, err := h.currentWizard(c)
	if err != nil {
		return err
	}

	if err := w.SetFeatures(req.selection()); err != nil {
		return wizardError(err)
	}
	return c.JSON(http.StatusOK, w.Snapshot())
}

// HandleToggleFeature flips one analysis
func (h *WizardHandlerImpl) HandleToggleFeature(c echo.Context) error {
	kind, err := models.ParseAnalysisKind(c.Param("kind"))
	if err != nil {
		return NewNotFoundError("analysis", c.Param("kind"))
	}
	w, err := h.currentWizard(c)
	if err != nil {
		return err
	}

	if _, err := w.ToggleFeature(kind); err != nil {
		return wizardError(err)
	}
	return c.JSON(http.StatusOK, w.Snapshot())
}

// HandleNext moves from Upload to Features
func (h *WizardHandlerImpl) HandleNext(c echo.Context) error {
	return h.step(c, (*wizard.Wizard).Next)
}

// HandleReview moves from Features to Review
func (h *WizardHandlerImpl) HandleReview(c echo.Context) error {
	return h.step(c, (*wizard.Wizard).Review)
}

// HandleBack moves one step back
func (h *WizardHandlerImpl) HandleBack(c echo.Context) error {
	return h.step(c, (*wizard.Wizard).Back)
}

// HandleReset returns the wizard to its initial state
func (h *WizardHandlerImpl) HandleReset(c echo.Context) error {
	return h.step(c, (*wizard.Wizard).Reset)
}

func (h *WizardHandlerImpl) step(c echo.Context, action func(*wizard.Wizard) error) error {
	w, err := h.currentWizard(c)
	if err != nil {
		return err
	}
	if err := action(w); err != nil {
		return wizardError(err)
	}
	return c.JSON(http.StatusOK, w.Snapshot())
}

// HandleProcess starts processing from the Review step. A second request
// while a run is active is accepted without starting another one.
func (h *WizardHandlerImpl) HandleProcess(c echo.Context) error {
	w, err := h.currentWizard(c)
	if err != nil {
		return err
	}

	started, err := w.StartProcessing()
	if err != nil {
		return wizardError(err)
	}
	status := http.StatusOK
	if started {
		status = http.StatusAccepted
	}
	return c.JSON(status, wizardResponse{Started: &started, Wizard: w.Snapshot()})
}
