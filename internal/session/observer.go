package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/fin-ner/wizard/internal/events"
	"github.com/fin-ner/wizard/internal/models"
	"github.com/fin-ner/wizard/internal/wizard"
	"github.com/jonboulle/clockwork"
)

// Recorder receives session and wizard measurements. *metrics.Metrics
// satisfies it.
type Recorder interface {
	RecordAction(action, result string)
	RecordTask(outcome string, elapsed time.Duration)
	RecordHandoffWrite(err error)
	SetActiveSessions(n int)
}

type nopRecorder struct{}

func (nopRecorder) RecordAction(string, string)      {}
func (nopRecorder) RecordTask(string, time.Duration) {}
func (nopRecorder) RecordHandoffWrite(error)         {}
func (nopRecorder) SetActiveSessions(int)            {}

// Publisher announces completed handoffs.
type Publisher interface {
	PublishHandoff(ctx context.Context, ev events.HandoffCompleted) error
}

// observer feeds wizard notifications to the recorder and publisher.
type observer struct {
	recorder  Recorder
	publisher Publisher
	clock     clockwork.Clock
	logger    *slog.Logger
	ctx       context.Context
}

// ActionResult classifies a wizard action error for metrics.
func ActionResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case wizard.IsValidation(err):
		return "validation"
	case errors.Is(err, wizard.ErrClosed):
		return "closed"
	default:
		return "conflict"
	}
}

func (o *observer) Transition(action string, err error) {
	o.recorder.RecordAction(action, ActionResult(err))
}

func (o *observer) TaskFinished(outcome string, elapsed time.Duration) {
	o.recorder.RecordTask(outcome, elapsed)
}

func (o *observer) HandoffWritten(sessionID string, rec models.HandoffRecord, err error) {
	o.recorder.RecordHandoffWrite(err)
	if err != nil || o.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(o.ctx, 2*time.Second)
	defer cancel()
	ev := events.NewHandoffCompleted(sessionID, rec, o.clock.Now())
	if err := o.publisher.PublishHandoff(ctx, ev); err != nil {
		o.logger.Warn("publishing handoff event failed", "session_id", sessionID, "error", err)
	}
}
