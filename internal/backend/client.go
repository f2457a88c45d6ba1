// Package backend talks to the document analysis backend that receives
// uploads and answers chat messages.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

// Messages shown to the user when the backend does not answer usefully.
const (
	UploadDefaultMessage  = "File processed successfully!"
	UploadFallbackMessage = "Error uploading file"
	ChatUnreachableReply  = "Server unreachable"
	ChatErrorReply        = "Backend error"
)

var (
	// ErrUnreachable means no response was received.
	ErrUnreachable = errors.New("backend: unreachable")
	// ErrBadResponse means a response arrived but could not be used.
	ErrBadResponse = errors.New("backend: bad response")
)

// Config configures a Client. Zero values use defaults.
type Config struct {
	BaseURL            string
	Timeout            time.Duration
	RequestsPerSecond  float64
	Burst              int
	BreakerFailures    uint32
	BreakerOpenTimeout time.Duration
	HTTPClient         *http.Client
}

func (c Config) normalize() Config {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = 10
	}
	if c.Burst <= 0 {
		c.Burst = 20
	}
	if c.BreakerFailures == 0 {
		c.BreakerFailures = 5
	}
	if c.BreakerOpenTimeout <= 0 {
		c.BreakerOpenTimeout = 30 * time.Second
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	return c
}

// Client calls the backend through a rate limiter and a circuit breaker.
type Client struct {
	base    *url.URL
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[[]byte]
	logger  *slog.Logger
}

// New creates a backend client.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	cfg = cfg.normalize()
	if logger == nil {
		logger = slog.Default()
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing backend url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("backend url %q must be http or https", cfg.BaseURL)
	}

	c := &Client{
		base:    base,
		http:    cfg.HTTPClient,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		logger:  logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "backend",
		MaxRequests: 1,
		Timeout:     cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		IsSuccessful: func(err error) bool {
			// A backend that answers badly is still up.
			return err == nil || errors.Is(err, ErrBadResponse)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit_breaker_state_change", "operation", name, "from", from.String(), "to", to.String())
		},
	})
	return c, nil
}

// Upload sends one file as multipart field "file" to /upload and returns
// the backend's message.
func (c *Client) Upload(ctx context.Context, name string, r io.Reader) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return "", fmt.Errorf("creating form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", fmt.Errorf("reading %s: %w", name, err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("closing form: %w", err)
	}

	raw, err := c.do(ctx, "/upload", mw.FormDataContentType(), body.Bytes())
	if err != nil {
		return "", err
	}
	var resp struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("%w: decoding upload response: %v", ErrBadResponse, err)
	}
	if resp.Message == "" {
		return UploadDefaultMessage, nil
	}
	return resp.Message, nil
}

// Chat sends a message to /chat and returns the reply.
func (c *Client) Chat(ctx context.Context, message string) (string, error) {
	payload, err := json.Marshal(map[string]string{"message": message})
	if err != nil {
		return "", err
	}
	raw, err := c.do(ctx, "/chat", "application/json", payload)
	if err != nil {
		return "", err
	}
	var resp struct {
		Reply *string `json:"reply"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("%w: decoding chat response: %v", ErrBadResponse, err)
	}
	if resp.Reply == nil {
		return "", fmt.Errorf("%w: chat response has no reply", ErrBadResponse)
	}
	return *resp.Reply, nil
}

func (c *Client) do(ctx context.Context, path, contentType string, body []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	raw, err := c.breaker.Execute(func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base.String()+path, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
		}
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, fmt.Errorf("%w: reading response: %v", ErrUnreachable, err)
		}
		if resp.StatusCode >= 300 {
			return nil, fmt.Errorf("%w: %s returned %d", ErrBadResponse, path, resp.StatusCode)
		}
		return data, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	if err != nil {
		c.logger.Warn("backend request failed", "path", path, "error", err)
	}
	return raw, err
}

// UploadMessage returns the message to show for an Upload result.
func UploadMessage(msg string, err error) string {
	if err != nil {
		return UploadFallbackMessage
	}
	return msg
}

// ChatMessage returns the reply to show for a Chat result.
func ChatMessage(reply string, err error) string {
	switch {
	case err == nil:
		return reply
	case errors.Is(err, ErrUnreachable):
		return ChatUnreachableReply
	default:
		return ChatErrorReply
	}
}
