// Package events publishes wizard completion events for downstream
// consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/fin-ner/wizard/internal/models"
	"github.com/nats-io/nats.go"
)

// DefaultSubject is used when no subject is configured.
const DefaultSubject = "finner.handoff.completed"

// HandoffCompleted is published after a wizard hands off to the results page.
type HandoffCompleted struct {
	SessionID         string                `json:"sessionId"`
	SelectedAnalyses  []models.AnalysisKind `json:"selectedAnalyses"`
	UploadedFileNames []string              `json:"uploadedFileNames"`
	CompletedAt       time.Time             `json:"completedAt"`
}

// NewHandoffCompleted builds the event for a written handoff record.
func NewHandoffCompleted(sessionID string, rec models.HandoffRecord, at time.Time) HandoffCompleted {
	names := rec.UploadedFileNames
	if names == nil {
		names = []string{}
	}
	return HandoffCompleted{
		SessionID:         sessionID,
		SelectedAnalyses:  rec.SelectedAnalyses.Kinds(),
		UploadedFileNames: names,
		CompletedAt:       at.UTC(),
	}
}

// Publisher sends events.
type Publisher interface {
	PublishHandoff(ctx context.Context, ev HandoffCompleted) error
	Close()
}

// Noop drops every event.
type Noop struct{}

func (Noop) PublishHandoff(context.Context, HandoffCompleted) error { return nil }
func (Noop) Close()                                                 {}

type conn interface {
	Publish(subject string, data []byte) error
	Close()
}

// NATSPublisher publishes events as JSON on a NATS subject.
type NATSPublisher struct {
	conn    conn
	subject string
}

// NATSOptions configures the NATS connection.
type NATSOptions struct {
	Name           string
	ConnectTimeout time.Duration
	ReconnectWait  time.Duration
	MaxReconnects  int
}

// NewNATS connects to url. The connection keeps retrying in the background
// when the server is not up yet.
func NewNATS(url, subject string, opts NATSOptions, logger *slog.Logger) (*NATSPublisher, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	if opts.Name == "" {
		opts.Name = "fin-ner-wizard"
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 2 * time.Second
	}
	if opts.ReconnectWait <= 0 {
		opts.ReconnectWait = 2 * time.Second
	}
	if opts.MaxReconnects <= 0 {
		opts.MaxReconnects = 60
	}
	if logger == nil {
		logger = slog.Default()
	}

	nc, err := nats.Connect(
		url,
		nats.Name(opts.Name),
		nats.Timeout(opts.ConnectTimeout),
		nats.ReconnectWait(opts.ReconnectWait),
		nats.MaxReconnects(opts.MaxReconnects),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATSPublisher{conn: nc, subject: subject}, nil
}

// PublishHandoff encodes ev and publishes it.
func (p *NATSPublisher) PublishHandoff(ctx context.Context, ev HandoffCompleted) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	return nil
}

// Subject returns the subject events are published on.
func (p *NATSPublisher) Subject() string {
	return p.subject
}

func (p *NATSPublisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}
