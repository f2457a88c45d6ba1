// Package task runs document processing in the background and reports
// progress in a shape that does not depend on how the work is done.
package task

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/fin-ner/wizard/internal/models"
)

// Job is the input of a processing run.
type Job struct {
	SessionID string
	Files     []models.FileEntry
	Features  models.FeatureSelection
}

// Runner performs a processing run, calling report with progress values
// between 0 and 100. A nil return means the run completed.
type Runner interface {
	Run(ctx context.Context, job Job, report func(progress int)) error
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, job Job, report func(progress int)) error

// Run calls f.
func (f RunnerFunc) Run(ctx context.Context, job Job, report func(progress int)) error {
	return f(ctx, job, report)
}

// Callbacks receive task events. They are called sequentially from the
// task goroutine, in the order the runner issued them.
type Callbacks struct {
	OnProgress func(progress int)
	OnComplete func()
	OnFailed   func(err error)
}

// Task is a running processing job.
type Task struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	progress int
	stopped  bool
}

// Start launches the runner on its own goroutine.
func Start(parent context.Context, r Runner, job Job, cb Callbacks) *Task {
	ctx, cancel := context.WithCancel(parent)
	t := &Task{
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go t.run(ctx, r, job, cb)
	return t
}

func (t *Task) run(ctx context.Context, r Runner, job Job, cb Callbacks) {
	defer close(t.done)
	defer t.cancel()

	err := t.safeRun(ctx, r, job, cb)
	if ctx.Err() != nil || t.isStopped() {
		return
	}
	if err != nil {
		if cb.OnFailed != nil {
			cb.OnFailed(err)
		}
		return
	}
	// Completion always follows a final 100.
	t.report(ctx, cb, 100)
	if cb.OnComplete != nil {
		cb.OnComplete()
	}
}

func (t *Task) safeRun(ctx context.Context, r Runner, job Job, cb Callbacks) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("processing panicked: %v", rec)
		}
	}()
	return r.Run(ctx, job, func(p int) { t.report(ctx, cb, p) })
}

// report clamps progress to [0,100], drops values that would go backwards,
// and suppresses everything once the task was stopped.
func (t *Task) report(ctx context.Context, cb Callbacks, p int) {
	if ctx.Err() != nil {
		return
	}
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}

	t.mu.Lock()
	if t.stopped || p < t.progress || (p == t.progress && p != 0) {
		t.mu.Unlock()
		return
	}
	t.progress = p
	t.mu.Unlock()

	if cb.OnProgress != nil {
		cb.OnProgress(p)
	}
}

// Progress returns the last reported progress.
func (t *Task) Progress() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.progress
}

// Done is closed once the task goroutine has exited.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Stop cancels the run and waits for the goroutine to exit. No callback
// fires after Stop returns. It is safe to call Stop more than once.
func (t *Task) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
	t.cancel()
	<-t.done
}

func (t *Task) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// IsCanceled reports whether err comes from a stopped run.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}
