// Package wizard implements the three-step document analysis flow: stage
// files, choose analyses, review and process.
package wizard

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fin-ner/wizard/internal/models"
	"github.com/fin-ner/wizard/internal/staging"
	"github.com/fin-ner/wizard/internal/task"
	"github.com/jonboulle/clockwork"
)

// HandoffWriter persists the record read by the results page.
type HandoffWriter interface {
	Write(ctx context.Context, rec models.HandoffRecord) error
}

// EventType identifies a wizard event.
type EventType string

const (
	EventStep      EventType = "step"
	EventFiles     EventType = "files"
	EventFeatures  EventType = "features"
	EventProgress  EventType = "progress"
	EventCompleted EventType = "completed"
	EventFailed    EventType = "failed"
	EventReset     EventType = "reset"
)

// Event is delivered to subscribers after every state change.
type Event struct {
	Type     EventType             `json:"type"`
	Snapshot models.WizardSnapshot `json:"snapshot"`
}

// Terminal reports whether no further progress follows this event.
func (e Event) Terminal() bool {
	return e.Type == EventCompleted || e.Type == EventFailed
}

const subscriberBuffer = 32

type discardHandoff struct{}

func (discardHandoff) Write(context.Context, models.HandoffRecord) error { return nil }

// Options configures a Wizard.
type Options struct {
	SessionID string
	Runner    task.Runner
	Handoff   HandoffWriter
	Observer  Observer
	Logger    *slog.Logger
	Clock     clockwork.Clock
	// Discard is called with entries that left staging so their content can
	// be released.
	Discard func(entries []models.FileEntry)
	// Context bounds processing runs and handoff writes.
	Context context.Context
}

// Wizard holds the state of one wizard instance. All methods are safe for
// concurrent use.
type Wizard struct {
	opts   Options
	ctx    context.Context
	logger *slog.Logger
	clock  clockwork.Clock

	mu       sync.Mutex
	step     models.WizardStep
	files    *staging.Store
	features models.FeatureSelection
	task     models.ProcessingTask
	running  *task.Task
	started  time.Time
	gen      uint64
	finished bool
	closed   bool

	subs    map[int]chan Event
	nextSub int

	// Mirrors of task.IsRunning and closed, readable without w.mu.
	busy atomic.Bool
	down atomic.Bool
}

// New creates a wizard on the Upload step with default features.
func New(opts Options) *Wizard {
	if opts.Observer == nil {
		opts.Observer = NopObserver{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	if opts.Runner == nil {
		opts.Runner = task.NewSimulated(opts.Clock, task.SimulatedConfig{})
	}
	if opts.Handoff == nil {
		opts.Handoff = discardHandoff{}
	}
	return &Wizard{
		opts:     opts,
		ctx:      opts.Context,
		logger:   opts.Logger.With("session_id", opts.SessionID),
		clock:    opts.Clock,
		step:     models.StepUpload,
		files:    staging.New(),
		features: models.DefaultFeatures(),
		task:     models.IdleTask(),
		subs:     make(map[int]chan Event),
	}
}

// Snapshot returns the current state.
func (w *Wizard) Snapshot() models.WizardSnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshotLocked()
}

func (w *Wizard) snapshotLocked() models.WizardSnapshot {
	running := w.task.IsRunning
	hasFiles := w.files.Len() > 0
	hasFeatures := w.features.Any()
	open := !w.finished && !w.closed

	s := models.WizardSnapshot{
		SessionID:  w.opts.SessionID,
		Step:       w.step,
		Files:      w.files.Entries(),
		Features:   w.features,
		Task:       w.task,
		CanAdvance: open && w.step == models.StepUpload && hasFiles,
		CanReview:  open && w.step == models.StepFeatures && hasFeatures,
		CanGoBack:  open && (w.step == models.StepFeatures || (w.step == models.StepReview && !running)),
		CanReset:   open && !running,
		CanProcess: open && w.step == models.StepReview && !running && hasFiles && hasFeatures,
		Finished:   w.finished,
	}
	if w.finished {
		s.Redirect = models.ResultsPath
	}
	return s
}

// Running reports whether a processing run is in progress, including the
// handoff write that ends it. It does not wait for w.mu.
func (w *Wizard) Running() bool {
	return w.busy.Load()
}

// setTaskLocked must be called with w.mu held.
func (w *Wizard) setTaskLocked(t models.ProcessingTask) {
	w.task = t
	w.busy.Store(t.IsRunning)
}

// checkMutable must be called with w.mu held.
func (w *Wizard) checkMutable() error {
	switch {
	case w.closed:
		return ErrClosed
	case w.finished:
		return ErrFinished
	case w.task.IsRunning:
		return ErrProcessingRunning
	}
	return nil
}

// AddFiles stages candidates on the Upload step. Candidates whose name is
// already staged are dropped.
func (w *Wizard) AddFiles(candidates ...staging.Candidate) ([]models.FileEntry, error) {
	w.mu.Lock()
	err := w.checkMutable()
	if err == nil && w.step != models.StepUpload {
		err = ErrWrongStep
	}
	if err != nil {
		w.mu.Unlock()
		w.opts.Observer.Transition("add_files", err)
		return nil, err
	}
	added := w.files.Add(candidates...)
	if len(added) > 0 {
		w.emitLocked(EventFiles)
	}
	w.mu.Unlock()

	w.opts.Observer.Transition("add_files", nil)
	return added, nil
}

// RemoveFile unstages a file. Unknown ids are a no-op.
func (w *Wizard) RemoveFile(id string) (bool, error) {
	w.mu.Lock()
	err := w.checkMutable()
	if err == nil && w.step != models.StepUpload {
		err = ErrWrongStep
	}
	if err != nil {
		w.mu.Unlock()
		w.opts.Observer.Transition("remove_file", err)
		return false, err
	}
	entry, found := w.files.Get(id)
	if found {
		w.files.Remove(id)
		w.emitLocked(EventFiles)
	}
	w.mu.Unlock()

	if found {
		w.discard([]models.FileEntry{entry})
	}
	w.opts.Observer.Transition("remove_file", nil)
	return found, nil
}

// SetFeatures replaces the feature selection on the Features step. The
// all-false selection is accepted here and rejected by Review.
func (w *Wizard) SetFeatures(fs models.FeatureSelection) error {
	w.mu.Lock()
	err := w.checkMutable()
	if err == nil && w.step != models.StepFeatures {
		err = ErrWrongStep
	}
	if err == nil {
		w.features = fs
		w.emitLocked(EventFeatures)
	}
	w.mu.Unlock()

	w.opts.Observer.Transition("set_features", err)
	return err
}

// ToggleFeature flips one analysis and returns the new selection.
func (w *Wizard) ToggleFeature(kind models.AnalysisKind) (models.FeatureSelection, error) {
	w.mu.Lock()
	err := w.checkMutable()
	if err == nil && w.step != models.StepFeatures {
		err = ErrWrongStep
	}
	if err == nil {
		w.features = w.features.With(kind, !w.features.Enabled(kind))
		w.emitLocked(EventFeatures)
	}
	fs := w.features
	w.mu.Unlock()

	w.opts.Observer.Transition("toggle_feature", err)
	return fs, err
}

// Next moves from Upload to Features. It needs at least one staged file.
func (w *Wizard) Next() error {
	return w.transition("next", func() error {
		if w.step != models.StepUpload {
			return ErrInvalidTransition
		}
		if w.files.Len() == 0 {
			return ErrNoFiles
		}
		w.step = models.StepFeatures
		return nil
	})
}

// Review moves from Features to Review. It needs at least one analysis.
func (w *Wizard) Review() error {
	return w.transition("review", func() error {
		if w.step != models.StepFeatures {
			return ErrInvalidTransition
		}
		if !w.features.Any() {
			return ErrNoFeatures
		}
		w.step = models.StepReview
		return nil
	})
}

// Back moves one step backwards. It is refused while processing runs.
func (w *Wizard) Back() error {
	return w.transition("back", func() error {
		if w.step == models.StepUpload {
			return ErrInvalidTransition
		}
		w.step--
		return nil
	})
}

func (w *Wizard) transition(action string, fn func() error) error {
	w.mu.Lock()
	err := w.checkMutable()
	if err == nil {
		err = fn()
	}
	if err == nil {
		w.emitLocked(EventStep)
	}
	w.mu.Unlock()

	w.opts.Observer.Transition(action, err)
	return err
}

// Reset clears staged files, restores default features, clears the task and
// returns to Upload. It is refused while processing runs.
func (w *Wizard) Reset() error {
	w.mu.Lock()
	if err := w.checkMutable(); err != nil {
		w.mu.Unlock()
		w.opts.Observer.Transition("reset", err)
		return err
	}
	removed := w.files.Clear()
	w.features = models.DefaultFeatures()
	w.setTaskLocked(models.IdleTask())
	w.step = models.StepUpload
	w.emitLocked(EventReset)
	w.mu.Unlock()

	w.discard(removed)
	w.opts.Observer.Transition("reset", nil)
	return nil
}

// StartProcessing launches a processing run from the Review step. It
// returns false without error when a run is already in progress.
func (w *Wizard) StartProcessing() (bool, error) {
	w.mu.Lock()
	var err error
	switch {
	case w.closed:
		err = ErrClosed
	case w.finished:
		err = ErrFinished
	case w.step != models.StepReview:
		err = ErrInvalidTransition
	case w.task.IsRunning:
		w.mu.Unlock()
		return false, nil
	case w.files.Len() == 0:
		err = ErrNoFiles
	case !w.features.Any():
		err = ErrNoFeatures
	}
	if err != nil {
		w.mu.Unlock()
		w.opts.Observer.Transition("process", err)
		return false, err
	}

	w.gen++
	gen := w.gen
	job := task.Job{
		SessionID: w.opts.SessionID,
		Files:     w.files.Entries(),
		Features:  w.features,
	}
	w.setTaskLocked(models.ProcessingTask{Progress: 0, IsRunning: true, State: models.TaskStateRunning})
	w.started = w.clock.Now()
	w.running = task.Start(w.ctx, w.opts.Runner, job, task.Callbacks{
		OnProgress: func(p int) { w.onProgress(gen, p) },
		OnComplete: func() { w.onComplete(gen) },
		OnFailed:   func(err error) { w.onFailed(gen, err) },
	})
	w.emitLocked(EventProgress)
	w.mu.Unlock()

	w.logger.Info("processing started", "files", len(job.Files), "analyses", job.Features.Kinds())
	w.opts.Observer.Transition("process", nil)
	return true, nil
}

func (w *Wizard) onProgress(gen uint64, p int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if gen != w.gen || w.closed || !w.task.IsRunning {
		return
	}
	w.task.Progress = p
	w.emitLocked(EventProgress)
}

// onComplete writes the handoff outside w.mu. The task stays running until
// the write returns, so the wizard refuses changes meanwhile and Close waits
// for the write through Task.Stop.
func (w *Wizard) onComplete(gen uint64) {
	w.mu.Lock()
	if gen != w.gen || w.closed || !w.task.IsRunning {
		w.mu.Unlock()
		return
	}
	rec := models.HandoffRecord{
		SelectedAnalyses:  w.features,
		UploadedFileNames: w.files.Names(),
	}
	w.mu.Unlock()

	err := w.opts.Handoff.Write(w.ctx, rec)

	w.mu.Lock()
	if gen != w.gen || w.closed {
		w.mu.Unlock()
		return
	}
	elapsed := w.clock.Since(w.started)
	w.running = nil

	if err != nil {
		w.setTaskLocked(models.ProcessingTask{
			Progress: w.task.Progress,
			State:    models.TaskStateFailed,
			Error:    fmt.Sprintf("saving results: %v", err),
		})
		w.emitLocked(EventFailed)
		w.mu.Unlock()

		w.logger.Error("handoff write failed", "error", err)
		w.opts.Observer.HandoffWritten(w.opts.SessionID, rec, err)
		w.opts.Observer.TaskFinished(OutcomeFailed, elapsed)
		return
	}

	w.setTaskLocked(models.IdleTask())
	w.finished = true
	w.emitLocked(EventCompleted)
	w.mu.Unlock()

	w.logger.Info("processing completed", "elapsed", elapsed, "files", len(rec.UploadedFileNames))
	w.opts.Observer.HandoffWritten(w.opts.SessionID, rec, nil)
	w.opts.Observer.TaskFinished(OutcomeCompleted, elapsed)
}

func (w *Wizard) onFailed(gen uint64, err error) {
	w.mu.Lock()
	if gen != w.gen || w.closed || !w.task.IsRunning {
		w.mu.Unlock()
		return
	}
	elapsed := w.clock.Since(w.started)
	w.running = nil
	w.setTaskLocked(models.ProcessingTask{
		Progress: w.task.Progress,
		State:    models.TaskStateFailed,
		Error:    err.Error(),
	})
	w.emitLocked(EventFailed)
	w.mu.Unlock()

	w.logger.Warn("processing failed", "error", err)
	w.opts.Observer.TaskFinished(OutcomeFailed, elapsed)
}

// Close tears the wizard down. A running task is canceled and Close waits
// for it, so no progress is delivered afterwards. Subscriber channels are
// closed.
func (w *Wizard) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	w.closed = true
	w.down.Store(true)
	w.gen++
	running := w.running
	w.running = nil
	w.setTaskLocked(models.IdleTask())
	removed := w.files.Clear()
	for id, ch := range w.subs {
		close(ch)
		delete(w.subs, id)
	}
	w.mu.Unlock()

	// Callbacks take w.mu, so the task is stopped outside the lock.
	if running != nil {
		running.Stop()
	}
	w.discard(removed)
	return nil
}

// Closed reports whether Close was called.
func (w *Wizard) Closed() bool {
	return w.down.Load()
}

// Subscribe returns a channel of events in the order they happened and a
// function that ends the subscription. Slow subscribers lose events rather
// than block the wizard. The channel is closed by cancel or Close.
func (w *Wizard) Subscribe() (<-chan Event, func()) {
	w.mu.Lock()
	defer w.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	if w.closed {
		close(ch)
		return ch, func() {}
	}
	id := w.nextSub
	w.nextSub++
	w.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			w.mu.Lock()
			defer w.mu.Unlock()
			if c, ok := w.subs[id]; ok {
				close(c)
				delete(w.subs, id)
			}
		})
	}
}

func (w *Wizard) emitLocked(t EventType) {
	if len(w.subs) == 0 {
		return
	}
	ev := Event{Type: t, Snapshot: w.snapshotLocked()}
	for _, ch := range w.subs {
		select {
		case ch <- ev:
			continue
		default:
		}
		if !ev.Terminal() {
			w.logger.Debug("dropping wizard event for slow subscriber", "type", t)
			continue
		}
		// Make room so a slow subscriber still learns the run ended.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- ev:
		default:
		}
	}
}

func (w *Wizard) discard(entries []models.FileEntry) {
	if len(entries) > 0 && w.opts.Discard != nil {
		w.opts.Discard(entries)
	}
}
