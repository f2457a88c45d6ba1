package api

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/fin-ner/wizard/internal/wizard"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// WebSocket message types
const (
	// Client -> Server messages
	MsgTypePing     = "ping"
	MsgTypeSnapshot = "snapshot"

	// Server -> Client messages
	MsgTypeConnected = "connected"
	MsgTypePong      = "pong"
	MsgTypeEvent     = "wizard"
	MsgTypeClosed    = "closed"
	MsgTypeError     = "error"
)

const wsWriteWait = 10 * time.Second

// WebSocket message structure
type WSMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// WebSocket error response
type WSErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// wsConn serializes writes from the event loop and the reader
type wsConn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *wsConn) send(msg WSMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return c.ws.WriteJSON(msg)
}

// HandleWebSocket upgrades the connection and streams every wizard event of
// the session. Unlike the SSE stream it stays open across runs until the
// client disconnects or the wizard is torn down.
func (h *StreamHandlerImpl) HandleWebSocket(c echo.Context) error {
	w, err := h.currentWizard(c)
	if err != nil {
		return err
	}
	state, _ := sessionFrom(c)

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()
	if h.readLimit > 0 {
		ws.SetReadLimit(h.readLimit)
	}
	conn := &wsConn{ws: ws}

	events, cancel := w.Subscribe()
	defer cancel()

	logger := h.logger.With("session_id", state.ID)
	logger.Debug("websocket client connected")

	// Send welcome message
	conn.send(WSMessage{
		Type:      MsgTypeConnected,
		ID:        state.ID,
		Payload:   mustJSON(wizard.Event{Type: EventSnapshot, Snapshot: w.Snapshot()}),
		Timestamp: time.Now().UnixMilli(),
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var msg WSMessage
			if err := ws.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					logger.Warn("websocket connection error", "error", err)
				}
				return
			}

			switch msg.Type {
			case MsgTypePing:
				// Respond with pong to keep connection alive
				conn.send(WSMessage{Type: MsgTypePong, ID: msg.ID, Timestamp: time.Now().UnixMilli()})
			case MsgTypeSnapshot:
				conn.send(WSMessage{
					Type:      MsgTypeEvent,
					ID:        msg.ID,
					Payload:   mustJSON(wizard.Event{Type: EventSnapshot, Snapshot: w.Snapshot()}),
					Timestamp: time.Now().UnixMilli(),
				})
			default:
				h.sendError(conn, "Unknown message type: "+msg.Type, "INVALID_TYPE")
			}
		}
	}()

	for {
		select {
		case <-done:
			logger.Debug("websocket client disconnected")
			return nil
		case ev, ok := <-events:
			if !ok {
				conn.send(WSMessage{Type: MsgTypeClosed, Timestamp: time.Now().UnixMilli()})
				return nil
			}
			if err := conn.send(WSMessage{
				Type:      MsgTypeEvent,
				Payload:   mustJSON(ev),
				Timestamp: time.Now().UnixMilli(),
			}); err != nil {
				return nil
			}
		}
	}
}

func (h *StreamHandlerImpl) sendError(conn *wsConn, message, code string) {
	conn.send(WSMessage{
		Type:      MsgTypeError,
		Payload:   mustJSON(WSErrorResponse{Message: message, Code: code}),
		Timestamp: time.Now().UnixMilli(),
	})
}

func mustJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`null`)
	}
	return data
}
