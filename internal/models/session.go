package models

import (
	"fmt"
	"strings"
)

// WizardStep is a position in the wizard flow. Steps are strictly ordered.
type WizardStep int

const (
	StepUpload WizardStep = iota
	StepFeatures
	StepReview
)

var stepNames = [...]string{"upload", "features", "review"}

func (s WizardStep) String() string {
	if s < StepUpload || s > StepReview {
		return fmt.Sprintf("step(%d)", int(s))
	}
	return stepNames[s]
}

// MarshalText encodes the step by name.
func (s WizardStep) MarshalText() ([]byte, error) {
	if s < StepUpload || s > StepReview {
		return nil, fmt.Errorf("invalid wizard step %d", int(s))
	}
	return []byte(stepNames[s]), nil
}

// UnmarshalText decodes a step name.
func (s *WizardStep) UnmarshalText(b []byte) error {
	name := strings.ToLower(string(b))
	for i, n := range stepNames {
		if n == name {
			*s = WizardStep(i)
			return nil
		}
	}
	return fmt.Errorf("unknown wizard step %q", string(b))
}

// TaskState represents the lifecycle state of a processing task.
type TaskState string

const (
	TaskStateIdle    TaskState = "idle"
	TaskStateRunning TaskState = "running"
	TaskStateFailed  TaskState = "failed"
)

// ProcessingTask is the wizard's view of the current processing run.
type ProcessingTask struct {
	Progress  int       `json:"progress"` // 0-100
	IsRunning bool      `json:"isRunning"`
	State     TaskState `json:"state"`
	Error     string    `json:"error,omitempty"`
}

// IdleTask returns a task in its reset state.
func IdleTask() ProcessingTask {
	return ProcessingTask{State: TaskStateIdle}
}

// ResultsPath is where the client navigates once processing has handed off.
const ResultsPath = "/results"

// WizardSnapshot is a point-in-time copy of a wizard's state.
type WizardSnapshot struct {
	SessionID  string           `json:"sessionId"`
	Step       WizardStep       `json:"step"`
	Files      []FileEntry      `json:"files"`
	Features   FeatureSelection `json:"features"`
	Task       ProcessingTask   `json:"task"`
	CanAdvance bool             `json:"canAdvance"`
	CanReview  bool             `json:"canReview"`
	CanGoBack  bool             `json:"canGoBack"`
	CanReset   bool             `json:"canReset"`
	CanProcess bool             `json:"canProcess"`
	Finished   bool             `json:"finished"`
	Redirect   string           `json:"redirect,omitempty"`
}
