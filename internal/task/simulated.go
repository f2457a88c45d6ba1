package task

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

// Simulated defaults.
const (
	DefaultInterval    = 200 * time.Millisecond
	DefaultStep        = 10
	DefaultSettleDelay = 500 * time.Millisecond
)

// SimulatedConfig tunes the simulated runner. Zero values use the defaults.
type SimulatedConfig struct {
	Interval    time.Duration
	Step        int
	SettleDelay time.Duration
}

// Simulated advances progress on a fixed cadence without doing any work.
// It never fails.
type Simulated struct {
	clock       clockwork.Clock
	interval    time.Duration
	step        int
	settleDelay time.Duration
}

// NewSimulated creates a simulated runner on the given clock.
func NewSimulated(clock clockwork.Clock, cfg SimulatedConfig) *Simulated {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Step <= 0 {
		cfg.Step = DefaultStep
	}
	if cfg.SettleDelay < 0 {
		cfg.SettleDelay = 0
	}
	if cfg.SettleDelay == 0 {
		cfg.SettleDelay = DefaultSettleDelay
	}
	return &Simulated{
		clock:       clock,
		interval:    cfg.Interval,
		step:        cfg.Step,
		settleDelay: cfg.SettleDelay,
	}
}

// Run ticks progress up to 100 and returns after the settle delay.
func (s *Simulated) Run(ctx context.Context, _ Job, report func(progress int)) error {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	progress := 0
	for progress < 100 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
		}
		progress += s.step
		if progress >= 100 {
			break
		}
		report(progress)
	}

	// The ticker is stopped and the settle timer armed before 100 is
	// reported, so an observer of 100 only ever sees the settle wait pending.
	ticker.Stop()
	settle := s.clock.NewTimer(s.settleDelay)
	defer settle.Stop()
	report(100)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-settle.Chan():
		return nil
	}
}
