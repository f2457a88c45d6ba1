// handlers_stream.go - Server-sent wizard events
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/fin-ner/wizard/internal/models"
	"github.com/fin-ner/wizard/internal/wizard"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// EventSnapshot is the first event on every stream, carrying the state at
// the time the client connected.
const EventSnapshot wizard.EventType = "snapshot"

const (
	defaultStreamTimeout = 5 * time.Minute
	heartbeatInterval    = 15 * time.Second
)

// StreamHandlerImpl implements the StreamHandler interface
type StreamHandlerImpl struct {
	sessions  SessionManager
	upgrader  websocket.Upgrader
	timeout   time.Duration
	heartbeat time.Duration
	readLimit int64
	logger    *slog.Logger
}

// NewStreamHandler creates a new stream handler. readLimit caps the size of
// client WebSocket messages; zero means no limit.
func NewStreamHandler(sessions SessionManager, readLimit int64, logger *slog.Logger) StreamHandler {
	h := newStreamHandler(sessions, logger)
	h.readLimit = readLimit
	return h
}

func newStreamHandler(sessions SessionManager, logger *slog.Logger) *StreamHandlerImpl {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamHandlerImpl{
		sessions: sessions,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Allow connections from dev server
				return true
			},
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
		},
		timeout:   defaultStreamTimeout,
		heartbeat: heartbeatInterval,
		logger:    logger,
	}
}

func (h *StreamHandlerImpl) currentWizard(c echo.Context) (*wizard.Wizard, error) {
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

// HandleProgressStream streams wizard events via SSE until the run
// completes or fails, the wizard is torn down, or the client goes away.
func (h *StreamHandlerImpl) HandleProgressStream(c echo.Context) error {
	w, err := h.currentWizard(c)
	if err != nil {
		return err
	}

	// Subscribe first so nothing between the snapshot and the first event is lost
	events, cancel := w.Subscribe()
	defer cancel()

	// Set SSE headers
	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)

	// Streams outlive the server's write timeout
	_ = http.NewResponseController(c.Response().Writer).SetWriteDeadline(time.Time{})

	snap := w.Snapshot()
	h.sendSSEData(c, wizard.Event{Type: EventSnapshot, Snapshot: snap})
	if snap.Finished || (snap.Task.State == models.TaskStateFailed && !snap.Task.IsRunning) {
		return nil
	}

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()
	timeout := time.NewTimer(h.timeout)
	defer timeout.Stop()

	for {
		select {
		case <-c.Request().Context().Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				h.sendSSEError(c, "wizard closed")
				return nil
			}
			h.sendSSEData(c, ev)
			if ev.Terminal() {
				return nil
			}
		case <-heartbeat.C:
			fmt.Fprint(c.Response(), ": ping\n\n")
			c.Response().Flush()
		case <-timeout.C:
			h.sendSSEError(c, "stream timeout")
			return nil
		}
	}
}

func (h *StreamHandlerImpl) sendSSEData(c echo.Context, data interface{}) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		h.logger.Error("encoding stream event", "error", err)
		return
	}
	fmt.Fprintf(c.Response(), "data: %s\n\n", jsonData)
	c.Response().Flush()
}

func (h *StreamHandlerImpl) sendSSEError(c echo.Context, message string) {
	h.sendSSEData(c, map[string]string{"error": message})
}
