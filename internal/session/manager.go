// Package session owns the per-browser-session wizard and handoff state.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/fin-ner/wizard/internal/handoff"
	"github.com/fin-ner/wizard/internal/models"
	"github.com/fin-ner/wizard/internal/sessionstore"
	"github.com/fin-ner/wizard/internal/storage"
	"github.com/fin-ner/wizard/internal/task"
	"github.com/fin-ner/wizard/internal/wizard"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// DefaultMaxSessions limits concurrent sessions to prevent memory exhaustion
const DefaultMaxSessions = 1000

// SessionKeepAliveWindow is how long to keep sessions that are actively being used
const SessionKeepAliveWindow = 5 * time.Minute

// ErrTooManySessions is returned when no session can be evicted to make room.
var ErrTooManySessions = errors.New("too many active sessions")

// Config wires a Manager to its collaborators. Only Store is required.
type Config struct {
	Store       sessionstore.Store
	Blobs       storage.Store
	Runner      task.Runner
	Recorder    Recorder
	Publisher   Publisher
	Clock       clockwork.Clock
	Logger      *slog.Logger
	MaxSessions int
}

// State is everything the server keeps for one browser session.
type State struct {
	ID           string
	Wizard       *wizard.Wizard
	Handoff      *handoff.Store
	LastAccessed time.Time
}

// Manager handles active wizard sessions.
type Manager struct {
	sessions map[string]*State
	mu       sync.RWMutex

	cfg      Config
	clock    clockwork.Clock
	logger   *slog.Logger
	observer *observer
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewManager creates a new session manager.
func NewManager(cfg Config) *Manager {
	if cfg.Store == nil {
		cfg.Store = sessionstore.NewMemory()
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Recorder == nil {
		cfg.Recorder = nopRecorder{}
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultMaxSessions
	}
	if cfg.Runner == nil {
		cfg.Runner = task.NewSimulated(cfg.Clock, task.SimulatedConfig{})
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		sessions: make(map[string]*State),
		cfg:      cfg,
		clock:    cfg.Clock,
		logger:   cfg.Logger,
		ctx:      ctx,
		cancel:   cancel,
	}
	m.observer = &observer{
		recorder:  cfg.Recorder,
		publisher: cfg.Publisher,
		clock:     cfg.Clock,
		logger:    cfg.Logger,
		ctx:       ctx,
	}
	return m
}

// Ensure returns the session for id, creating it when it does not exist.
// A well-formed id that is unknown (for example after a restart) is kept so
// the session's stored handoff stays reachable. Any other id is replaced by
// a fresh one.
func (m *Manager) Ensure(id string) (*State, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if state, ok := m.sessions[id]; ok {
		state.LastAccessed = m.clock.Now()
		return state, false, nil
	}
	if _, err := uuid.Parse(id); err != nil {
		id = uuid.New().String()
	}

	if len(m.sessions) >= m.cfg.MaxSessions {
		if !m.evictOldestLocked() {
			return nil, false, ErrTooManySessions
		}
	}

	state := &State{
		ID:           id,
		Handoff:      handoff.New(sessionstore.NewArea(m.cfg.Store, id), m.logger.With("session_id", id)),
		LastAccessed: m.clock.Now(),
	}
	state.Wizard = m.newWizard(state)
	m.sessions[id] = state
	m.cfg.Recorder.SetActiveSessions(len(m.sessions))

	m.logger.Debug("session created", "session_id", id)
	return state, true, nil
}

func (m *Manager) newWizard(state *State) *wizard.Wizard {
	return wizard.New(wizard.Options{
		SessionID: state.ID,
		Runner:    m.cfg.Runner,
		Handoff:   state.Handoff,
		Observer:  m.observer,
		Logger:    m.logger,
		Clock:     m.clock,
		Discard:   m.discardBlobs,
		Context:   m.ctx,
	})
}

// evictOldestLocked tears down the least recently used session that is not
// processing. It must be called with m.mu held.
func (m *Manager) evictOldestLocked() bool {
	var oldest *State
	for _, state := range m.sessions {
		if state.Wizard != nil && state.Wizard.Running() {
			continue
		}
		if oldest == nil || state.LastAccessed.Before(oldest.LastAccessed) {
			oldest = state
		}
	}
	if oldest == nil {
		return false
	}
	m.removeLocked(oldest)
	m.logger.Info("evicted session to free capacity", "session_id", oldest.ID)
	return true
}

// GetSession returns a session by ID.
func (m *Manager) GetSession(id string) (*State, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.sessions[id]
	return state, ok
}

// Wizard returns the mounted wizard of a session, mounting one when the
// previous one was torn down.
func (m *Manager) Wizard(id string) (*wizard.Wizard, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	if state.Wizard == nil || state.Wizard.Closed() {
		state.Wizard = m.newWizard(state)
	}
	return state.Wizard, true
}

// Remount replaces the session's wizard with a fresh one. The previous
// wizard is closed, canceling any processing run.
func (m *Manager) Remount(id string) (*wizard.Wizard, bool) {
	m.mu.Lock()
	state, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return nil, false
	}
	old := state.Wizard
	state.Wizard = m.newWizard(state)
	w := state.Wizard
	m.mu.Unlock()

	if old != nil {
		old.Close()
	}
	return w, true
}

// Teardown closes the session's wizard, canceling any processing run. The
// session and its handoff record survive.
func (m *Manager) Teardown(id string) bool {
	m.mu.Lock()
	state, ok := m.sessions[id]
	var w *wizard.Wizard
	if ok {
		w = state.Wizard
		state.Wizard = nil
	}
	m.mu.Unlock()

	if w != nil {
		w.Close()
	}
	return ok
}

// TouchSession updates the LastAccessed timestamp for a session.
func (m *Manager) TouchSession(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[id]
	if !ok {
		return false
	}
	state.LastAccessed = m.clock.Now()
	return true
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CleanupOldSessions removes sessions not accessed within maxAge, but keeps
// sessions accessed within SessionKeepAliveWindow and sessions that are
// processing. Expired sessions lose their stored handoff record.
func (m *Manager) CleanupOldSessions(maxAge time.Duration) int {
	now := m.clock.Now()
	cutoff := now.Add(-maxAge)
	keepAliveCutoff := now.Add(-SessionKeepAliveWindow)

	m.mu.Lock()
	var expired []*State
	for _, state := range m.sessions {
		if state.LastAccessed.After(keepAliveCutoff) || !state.LastAccessed.Before(cutoff) {
			continue
		}
		if state.Wizard != nil && state.Wizard.Running() {
			continue
		}
		expired = append(expired, state)
	}
	for _, state := range expired {
		delete(m.sessions, state.ID)
	}
	m.cfg.Recorder.SetActiveSessions(len(m.sessions))
	m.mu.Unlock()

	for _, state := range expired {
		m.release(state)
		m.logger.Info("cleaned up aged session", "session_id", state.ID,
			"idle", now.Sub(state.LastAccessed).Round(time.Second))
	}
	return len(expired)
}

// Run removes aged sessions every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval, maxAge time.Duration) error {
	ticker := m.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			m.CleanupOldSessions(maxAge)
		}
	}
}

// Close tears down every session. Stored handoff records are kept.
func (m *Manager) Close() {
	m.mu.Lock()
	states := make([]*State, 0, len(m.sessions))
	for _, state := range m.sessions {
		states = append(states, state)
	}
	m.sessions = make(map[string]*State)
	m.mu.Unlock()

	m.cancel()
	for _, state := range states {
		if state.Wizard != nil {
			state.Wizard.Close()
		}
	}
}

// removeLocked drops a session from the map and releases it in the
// background. It must be called with m.mu held.
func (m *Manager) removeLocked(state *State) {
	delete(m.sessions, state.ID)
	m.cfg.Recorder.SetActiveSessions(len(m.sessions))
	go m.release(state)
}

func (m *Manager) release(state *State) {
	if state.Wizard != nil {
		state.Wizard.Close()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.cfg.Store.Drop(ctx, state.ID); err != nil {
		m.logger.Warn("dropping session storage failed", "session_id", state.ID, "error", err)
	}
}

func (m *Manager) discardBlobs(entries []models.FileEntry) {
	if m.cfg.Blobs == nil {
		return
	}
	for _, e := range entries {
		if err := m.cfg.Blobs.Delete(e.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			m.logger.Warn("deleting staged file failed", "file_id", e.ID, "error", err)
		}
	}
}
