package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/fin-ner/wizard/internal/backend"
	"github.com/fin-ner/wizard/internal/testutil"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedCalls struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordedCalls) RecordBackendCall(endpoint string, degraded bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, fmt.Sprintf("%s:%t", endpoint, degraded))
}

func TestProxyHandler_HandleDocumentUpload(t *testing.T) {
	tests := []struct {
		name         string
		fileName     string
		uploadFunc   func(string, []byte) (string, error)
		wantStatus   int
		wantMessage  string
		wantDegraded bool
	}{
		{
			name:        "backend message passed through",
			fileName:    "q3.pdf",
			uploadFunc:  func(string, []byte) (string, error) { return "Extracted 12 entities", nil },
			wantStatus:  http.StatusOK,
			wantMessage: "Extracted 12 entities",
		},
		{
			name:         "backend unreachable",
			fileName:     "q3.pdf",
			uploadFunc:   func(string, []byte) (string, error) { return "", backend.ErrUnreachable },
			wantStatus:   http.StatusOK,
			wantMessage:  "Error uploading file",
			wantDegraded: true,
		},
		{
			name:        "no file selected",
			wantStatus:  http.StatusUnprocessableEntity,
			wantMessage: "Please select a file!",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockBackend()
			mock.UploadFunc = tt.uploadFunc
			recorder := &recordedCalls{}
			h := NewProxyHandler(mock, recorder, nil)

			body := new(bytes.Buffer)
			writer := multipart.NewWriter(body)
			if tt.fileName != "" {
				part, _ := writer.CreateFormFile("file", tt.fileName)
				part.Write([]byte("%PDF-1.7"))
			}
			writer.Close()

			e := echo.New()
			req := httptest.NewRequest(http.MethodPost, "/api/documents/upload", body)
			req.Header.Set(echo.HeaderContentType, writer.FormDataContentType())
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			err := h.HandleDocumentUpload(c)
			if tt.wantStatus != http.StatusOK {
				apiErr, ok := err.(*APIError)
				require.True(t, ok, "expected APIError, got %T", err)
				assert.Equal(t, tt.wantStatus, apiErr.Status)
				assert.Equal(t, tt.wantMessage, apiErr.Message)
				assert.Zero(t, mock.UploadCount())
				return
			}

			if assert.NoError(t, err) {
				assert.Equal(t, http.StatusOK, rec.Code)
				var resp documentUploadResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
				assert.Equal(t, tt.wantMessage, resp.Message)
				assert.Equal(t, tt.wantDegraded, resp.Degraded)
				assert.Equal(t, "%PDF-1.7", string(mock.Uploads[tt.fileName]))
				assert.Equal(t, []string{fmt.Sprintf("upload:%t", tt.wantDegraded)}, recorder.calls)
			}
		})
	}
}

func TestProxyHandler_HandleChat(t *testing.T) {
	tests := []struct {
		name         string
		body         string
		chatFunc     func(string) (string, error)
		wantStatus   int
		wantReply    string
		wantDegraded bool
	}{
		{
			name:       "reply passed through",
			body:       `{"message":"What is EBITDA?"}`,
			wantStatus: http.StatusOK,
			wantReply:  "You said: What is EBITDA?",
		},
		{
			name:         "unreachable",
			body:         `{"message":"hello"}`,
			chatFunc:     func(string) (string, error) { return "", backend.ErrUnreachable },
			wantStatus:   http.StatusOK,
			wantReply:    "Server unreachable",
			wantDegraded: true,
		},
		{
			name:         "bad response",
			body:         `{"message":"hello"}`,
			chatFunc:     func(string) (string, error) { return "", backend.ErrBadResponse },
			wantStatus:   http.StatusOK,
			wantReply:    "Backend error",
			wantDegraded: true,
		},
		{
			name:       "blank message",
			body:       `{"message":"   "}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "invalid json",
			body:       `{"message":`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockBackend()
			mock.ChatFunc = tt.chatFunc
			h := NewProxyHandler(mock, nil, nil)

			e := echo.New()
			req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(tt.body))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			err := h.HandleChat(c)
			if tt.wantStatus != http.StatusOK {
				apiErr, ok := err.(*APIError)
				require.True(t, ok, "expected APIError, got %T", err)
				assert.Equal(t, tt.wantStatus, apiErr.Status)
				assert.Empty(t, mock.Messages)
				return
			}

			if assert.NoError(t, err) {
				var resp chatResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
				assert.Equal(t, tt.wantReply, resp.Reply)
				assert.Equal(t, tt.wantDegraded, resp.Degraded)
			}
		})
	}
}
