package wizard

import (
	"time"

	"github.com/fin-ner/wizard/internal/models"
)

// Task outcomes passed to Observer.TaskFinished.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
)

// Observer is notified about wizard activity. Calls are made outside the
// wizard lock.
type Observer interface {
	Transition(action string, err error)
	TaskFinished(outcome string, elapsed time.Duration)
	HandoffWritten(sessionID string, rec models.HandoffRecord, err error)
}

// NopObserver ignores every notification.
type NopObserver struct{}

func (NopObserver) Transition(string, error)                           {}
func (NopObserver) TaskFinished(string, time.Duration)                 {}
func (NopObserver) HandoffWritten(string, models.HandoffRecord, error) {}
