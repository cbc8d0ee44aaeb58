// Package probe finds the first unit on a list of hwdep nodes that one of
// the protocol variants can open.
package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fwctl/fwctl-go/pkg/hal"
	"github.com/fwctl/fwctl-go/pkg/unit"
)

// ErrNoDeviceFound indicates no candidate opened any path.
var ErrNoDeviceFound = errors.New("no device found")

// Candidate is one protocol variant and its constructor.
type Candidate struct {
	Variant unit.Variant
	Open    unit.Opener
}

// DefaultCandidates returns DICE, EFW and Generic in that order.
func DefaultCandidates() []Candidate {
	return Candidates(unit.Variants...)
}

// Candidates returns the candidates for the given variants, in order.
func Candidates(variants ...unit.Variant) []Candidate {
	out := make([]Candidate, 0, len(variants))
	for _, v := range variants {
		out = append(out, Candidate{Variant: v, Open: unit.OpenerFor(v)})
	}
	return out
}

type options struct {
	logger  *slog.Logger
	session []unit.Option
}

// Option configures Run.
type Option func(*options)

// WithLogger sets the logger used for per-attempt diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithSessionOptions passes opts to the session constructor.
func WithSessionOptions(opts ...unit.Option) Option {
	return func(o *options) {
		o.session = append(o.session, opts...)
	}
}

// Run tries every candidate on every path, paths first, and returns the
// first session that opens. Failed attempts leave nothing open. If none
// succeeds the error wraps ErrNoDeviceFound joined with every attempt's
// error.
func Run(ctx context.Context, driver hal.Driver, paths []string, candidates []Candidate, opts ...Option) (*unit.Session, error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger.With("component", "probe")

	var attempts []error
	for _, path := range paths {
		for _, c := range candidates {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			s, err := c.Open(driver, path, o.session...)
			if err == nil {
				logger.Info("unit found", "path", path, "variant", c.Variant)
				return s, nil
			}
			logger.Debug("probe attempt failed", "path", path, "variant", c.Variant, "error", err)
			attempts = append(attempts, fmt.Errorf("%s as %s: %w", path, c.Variant, err))
		}
	}

	if len(attempts) == 0 {
		return nil, ErrNoDeviceFound
	}
	return nil, fmt.Errorf("%w: %w", ErrNoDeviceFound, errors.Join(attempts...))
}
