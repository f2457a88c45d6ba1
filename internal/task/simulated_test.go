package task

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan int) int {
	t.Helper()
	select {
	case p := <-ch:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("no progress reported")
		return -1
	}
}

func TestSimulated_TicksToCompletion(t *testing.T) {
	fc := clockwork.NewFakeClock()
	sim := NewSimulated(fc, SimulatedConfig{})

	progress := make(chan int, 16)
	done := make(chan error, 1)
	go func() {
		done <- sim.Run(context.Background(), Job{}, func(p int) { progress <- p })
	}()

	var seen []int
	for i := 0; i < 10; i++ {
		fc.BlockUntil(1)
		fc.Advance(DefaultInterval)
		seen = append(seen, receive(t, progress))
	}
	assert.Equal(t, []int{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}, seen)

	// 100 is reported before the settle delay elapses.
	select {
	case err := <-done:
		t.Fatalf("finished before settle delay: %v", err)
	default:
	}

	fc.BlockUntil(1)
	fc.Advance(DefaultSettleDelay)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not finish after settle delay")
	}
}

func TestSimulated_ClampsOvershoot(t *testing.T) {
	fc := clockwork.NewFakeClock()
	sim := NewSimulated(fc, SimulatedConfig{Step: 40, Interval: time.Second, SettleDelay: time.Second})

	progress := make(chan int, 8)
	done := make(chan error, 1)
	go func() {
		done <- sim.Run(context.Background(), Job{}, func(p int) { progress <- p })
	}()

	var seen []int
	for i := 0; i < 3; i++ {
		fc.BlockUntil(1)
		fc.Advance(time.Second)
		seen = append(seen, receive(t, progress))
	}
	assert.Equal(t, []int{40, 80, 100}, seen)

	fc.BlockUntil(1)
	fc.Advance(time.Second)
	require.NoError(t, <-done)
}

func TestSimulated_CancelStopsTicking(t *testing.T) {
	fc := clockwork.NewFakeClock()
	sim := NewSimulated(fc, SimulatedConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	progress := make(chan int, 16)
	done := make(chan error, 1)
	go func() {
		done <- sim.Run(ctx, Job{}, func(p int) { progress <- p })
	}()

	fc.BlockUntil(1)
	fc.Advance(DefaultInterval)
	assert.Equal(t, 10, receive(t, progress))

	cancel()
	err := <-done
	assert.ErrorIs(t, err, context.Canceled)

	// the ticker is gone: advancing the clock reports nothing
	fc.Advance(10 * DefaultInterval)
	assert.Empty(t, progress)
}

func TestNewSimulated_Defaults(t *testing.T) {
	sim := NewSimulated(nil, SimulatedConfig{})
	assert.Equal(t, DefaultInterval, sim.interval)
	assert.Equal(t, DefaultStep, sim.step)
	assert.Equal(t, DefaultSettleDelay, sim.settleDelay)
}
