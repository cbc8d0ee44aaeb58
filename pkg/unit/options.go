package unit

import (
	"log/slog"

	"github.com/fwctl/fwctl-go/pkg/log"
)

// Scheduler runs callbacks on the host event loop.
type Scheduler interface {
	// Post queues fn. It must not block and must run queued functions one
	// at a time in order.
	Post(fn func())
}

// SchedulerFunc adapts a function to Scheduler.
type SchedulerFunc func(fn func())

// Post calls f(fn).
func (f SchedulerFunc) Post(fn func()) { f(fn) }

// Inline runs callbacks directly on the event reader. Callbacks scheduled
// inline must not issue transactions or call Unlisten.
var Inline Scheduler = SchedulerFunc(func(fn func()) { fn() })

type options struct {
	scheduler Scheduler
	logger    *slog.Logger
	protocol  log.Logger
}

// Option configures a Session.
type Option func(*options)

// WithScheduler sets where event callbacks and inbound request handlers
// run. The default is Inline.
func WithScheduler(s Scheduler) Option {
	return func(o *options) {
		if s != nil {
			o.scheduler = s
		}
	}
}

// WithLogger sets the operational logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithProtocolLogger sets the protocol event logger.
func WithProtocolLogger(l log.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.protocol = l
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		scheduler: Inline,
		logger:    slog.Default(),
		protocol:  log.NoopLogger{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
