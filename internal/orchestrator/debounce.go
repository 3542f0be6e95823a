package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rubiojr/tripcost/internal/metrics"
	"github.com/rubiojr/tripcost/internal/trip"
)

// DefaultDebounce is the quiet period before a weather lookup fires.
const DefaultDebounce = 600 * time.Millisecond

var ErrClosed = errors.New("orchestrator closed")

type debounced struct {
	done chan error
}

// Debouncer coalesces bursts of calls into the last one. Each
// orchestrator owns its own Debouncer so instances never share timers.
type Debouncer struct {
	window time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	pending *debounced
	closed  bool
}

func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{window: window}
}

// Do runs fn once the window elapses without a newer call. It returns nil
// after fn ran, trip.ErrStale when a newer call replaced this one, or the
// context error.
func (d *Debouncer) Do(ctx context.Context, fn func()) error {
	call := &debounced{done: make(chan error, 1)}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	if d.pending != nil {
		d.pending.done <- trip.ErrStale
		metrics.DebouncedCalls.Inc()
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.pending = call
	d.timer = time.AfterFunc(d.window, func() {
		d.mu.Lock()
		if d.pending != call {
			d.mu.Unlock()
			return
		}
		d.pending = nil
		d.mu.Unlock()

		fn()
		call.done <- nil
	})
	d.mu.Unlock()

	select {
	case err := <-call.done:
		return err
	case <-ctx.Done():
		d.mu.Lock()
		if d.pending == call {
			d.pending = nil
			d.timer.Stop()
		}
		d.mu.Unlock()
		return ctx.Err()
	}
}

// Close stops the timer; a pending call receives ErrClosed.
func (d *Debouncer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	if d.timer != nil {
		d.timer.Stop()
	}
	if d.pending != nil {
		d.pending.done <- ErrClosed
		d.pending = nil
	}
}
