// handlers_proxy.go - Analysis backend proxy handlers
package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/fin-ner/wizard/internal/backend"
	"github.com/labstack/echo/v4"
)

// ProxyHandlerImpl implements the ProxyHandler interface
type ProxyHandlerImpl struct {
	backend  BackendClient
	recorder BackendRecorder
	logger   *slog.Logger
}

// NewProxyHandler creates a new proxy handler. recorder may be nil.
func NewProxyHandler(client BackendClient, recorder BackendRecorder, logger *slog.Logger) ProxyHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProxyHandlerImpl{backend: client, recorder: recorder, logger: logger}
}

// documentUploadResponse mirrors the backend's upload response
type documentUploadResponse struct {
	Message  string `json:"message"`
	Degraded bool   `json:"degraded"`
}

// chatRequest is a single chat message
type chatRequest struct {
	Message string `json:"message"`
}

func (r *chatRequest) validate() error {
	if strings.TrimSpace(r.Message) == "" {
		return NewValidationError("message")
	}
	return nil
}

// chatResponse mirrors the backend's chat response
type chatResponse struct {
	Reply    string `json:"reply"`
	Degraded bool   `json:"degraded"`
}

// HandleDocumentUpload forwards one file to the backend. Backend failures
// are reported in the message, never as an error status.
func (h *ProxyHandlerImpl) HandleDocumentUpload(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return NewValidationNotice("Please select a file!")
	}
	src, err := fh.Open()
	if err != nil {
		return NewBadRequestError("failed to read uploaded file", err)
	}
	defer src.Close()

	msg, err := h.backend.Upload(c.Request().Context(), fh.Filename, src)
	degraded := err != nil
	if degraded {
		h.logger.Warn("backend upload failed", "file", fh.Filename, "error", err)
	}
	h.record("upload", degraded)

	return c.JSON(http.StatusOK, documentUploadResponse{
		Message:  backend.UploadMessage(msg, err),
		Degraded: degraded,
	})
}

// HandleChat forwards a chat message to the backend
func (h *ProxyHandlerImpl) HandleChat(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if err := req.validate(); err != nil {
		return err
	}

	reply, err := h.backend.Chat(c.Request().Context(), req.Message)
	degraded := err != nil
	if degraded {
		h.logger.Warn("backend chat failed", "error", err)
	}
	h.record("chat", degraded)

	return c.JSON(http.StatusOK, chatResponse{
		Reply:    backend.ChatMessage(reply, err),
		Degraded: degraded,
	})
}

func (h *ProxyHandlerImpl) record(endpoint string, degraded bool) {
	if h.recorder != nil {
		h.recorder.RecordBackendCall(endpoint, degraded)
	}
}
