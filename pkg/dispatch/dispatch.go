// Package dispatch provides the single-threaded loop that runs unit event
// callbacks, inbound request handlers and interrupt signal handlers one at a
// time.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"sync"

	"github.com/fwctl/fwctl-go/pkg/unit"
)

// Dispatcher errors.
var (
	ErrRunning = errors.New("dispatcher already running")
	ErrStopped = errors.New("dispatcher stopped")
)

// Dispatcher queues callbacks and runs them in order on the goroutine
// calling Run.
type Dispatcher struct {
	logger *slog.Logger

	mu      sync.Mutex
	queue   []func()
	running bool
	quit    bool
	wake    chan struct{}
	stopped chan struct{}
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// New creates an idle dispatcher.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		logger:  slog.Default(),
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("component", "dispatch")
	return d
}

// Post queues fn. It never blocks. Callbacks posted after Quit are dropped.
func (d *Dispatcher) Post(fn func()) {
	d.mu.Lock()
	if d.quit {
		d.mu.Unlock()
		return
	}
	d.queue = append(d.queue, fn)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Quit makes Run return once the current callback finishes. Queued
// callbacks are dropped. Quit is idempotent.
func (d *Dispatcher) Quit() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.quit {
		return
	}
	d.quit = true
	d.queue = nil
	close(d.stopped)
}

// Done is closed by Quit.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.stopped
}

// Run executes callbacks until Quit is called or ctx is done. It returns nil
// after Quit and the context error otherwise.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return ErrRunning
	}
	d.running = true
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.running = false
		d.mu.Unlock()
	}()

	for {
		fn, quit := d.next()
		if quit {
			d.logger.Debug("dispatcher stopped")
			return nil
		}
		if fn != nil {
			fn()
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.stopped:
		case <-d.wake:
		}
	}
}

func (d *Dispatcher) next() (func(), bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.quit {
		return nil, true
	}
	if len(d.queue) == 0 {
		return nil, false
	}
	fn := d.queue[0]
	d.queue[0] = nil
	d.queue = d.queue[1:]
	return fn, false
}

// Do runs fn on the loop and waits for it to finish. It returns ErrStopped
// if the dispatcher quits first.
func (d *Dispatcher) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	d.Post(func() {
		defer close(done)
		fn()
	})

	select {
	case <-done:
		return nil
	case <-d.stopped:
		// fn may have finished just before Quit.
		select {
		case <-done:
			return nil
		default:
			return ErrStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HandleSignals delivers the given OS signals to fn on the loop. The
// returned function stops delivery.
func (d *Dispatcher) HandleSignals(fn func(os.Signal), sigs ...os.Signal) (stop func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case sig := <-ch:
				d.logger.Debug("signal received", "signal", sig)
				d.Post(func() { fn(sig) })
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			signal.Stop(ch)
			close(done)
		})
	}
}

var _ unit.Scheduler = (*Dispatcher)(nil)
