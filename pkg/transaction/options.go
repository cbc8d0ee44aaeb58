package transaction

import "time"

// Default timeouts.
const (
	DefaultRequestTimeout      = 100 * time.Millisecond
	DefaultFCPTimeout          = 200 * time.Millisecond
	DefaultEFWTimeout          = 200 * time.Millisecond
	DefaultNotificationTimeout = 100 * time.Millisecond
)

type options struct {
	timeout time.Duration
}

// Option configures a transaction helper.
type Option func(*options)

// WithTimeout sets how long to wait for a response. FCP restarts the wait
// on every INTERIM response.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

func buildOptions(def time.Duration, opts []Option) options {
	o := options{timeout: def}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
