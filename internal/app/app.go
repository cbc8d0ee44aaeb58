// Package app owns the unit session and everything bound to it for the
// lifetime of the fwctl process.
//
// Start probes the configured nodes, subscribes to unit events, listens,
// registers the responder and runs the startup transactions for the
// detected variant. Close tears everything down in reverse order.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/fwctl/fwctl-go/pkg/config"
	"github.com/fwctl/fwctl-go/pkg/dispatch"
	"github.com/fwctl/fwctl-go/pkg/hal"
	"github.com/fwctl/fwctl-go/pkg/log"
	"github.com/fwctl/fwctl-go/pkg/probe"
	"github.com/fwctl/fwctl-go/pkg/quadlet"
	"github.com/fwctl/fwctl-go/pkg/responder"
	"github.com/fwctl/fwctl-go/pkg/transaction"
	"github.com/fwctl/fwctl-go/pkg/unit"
	"github.com/fwctl/fwctl-go/pkg/wire"
)

// App errors.
var (
	ErrAlreadyStarted = errors.New("app already started")
	ErrNotStarted     = errors.New("app not started")
)

// State is the lifecycle state of an App.
type State uint8

const (
	StateIdle State = iota
	StateStarting
	StateRunning
	StateStopped
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateStarting:
		return "STARTING"
	case StateRunning:
		return "RUNNING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// App is the owning context of one unit.
type App struct {
	cfg      *config.Config
	driver   hal.Driver
	disp     *dispatch.Dispatcher
	logger   *slog.Logger
	protocol log.Logger

	outMu sync.Mutex
	out   io.Writer

	mu        sync.Mutex
	state     State
	session   *unit.Session
	subs      []*unit.Subscription
	responder *responder.Responder
	requester *transaction.Requester
	fcp       *transaction.FCP
	efw       *transaction.EFW
	dice      *transaction.DICE
}

// Option configures an App.
type Option func(*App)

// WithOutput sets where diagnostics are printed. The default is stdout.
func WithOutput(w io.Writer) Option {
	return func(a *App) {
		if w != nil {
			a.out = w
		}
	}
}

// WithLogger sets the operational logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithProtocolLogger sets the protocol event logger handed to the session.
func WithProtocolLogger(l log.Logger) Option {
	return func(a *App) {
		if l != nil {
			a.protocol = l
		}
	}
}

// New creates an idle App. Unit callbacks run on disp.
func New(cfg *config.Config, driver hal.Driver, disp *dispatch.Dispatcher, opts ...Option) *App {
	a := &App{
		cfg:      cfg,
		driver:   driver,
		disp:     disp,
		logger:   slog.Default(),
		protocol: log.NoopLogger{},
		out:      os.Stdout,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With("component", "app")
	return a
}

// State returns the lifecycle state.
func (a *App) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Session returns the live session, or nil before Start.
func (a *App) Session() *unit.Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session
}

// Start opens the first unit found on paths and brings it up. On failure
// everything acquired so far is released and the App is stopped.
func (a *App) Start(ctx context.Context, paths []string) error {
	a.mu.Lock()
	if a.state != StateIdle {
		a.mu.Unlock()
		return ErrAlreadyStarted
	}
	a.state = StateStarting
	a.mu.Unlock()

	if err := a.start(ctx, paths); err != nil {
		a.Close()
		return err
	}

	a.mu.Lock()
	a.state = StateRunning
	a.mu.Unlock()
	return nil
}

func (a *App) start(ctx context.Context, paths []string) error {
	variants, err := a.cfg.VariantList()
	if err != nil {
		return err
	}

	s, err := probe.Run(ctx, a.driver, paths, probe.Candidates(variants...),
		probe.WithLogger(a.logger),
		probe.WithSessionOptions(
			unit.WithScheduler(a.disp),
			unit.WithLogger(a.logger),
			unit.WithProtocolLogger(a.protocol),
		))
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.session = s
	a.mu.Unlock()

	a.printIdentity(s.Identity())
	a.subscribe(s)

	if err := s.Listen(); err != nil {
		return err
	}
	a.println("listening.")

	a.mu.Lock()
	a.requester = transaction.NewRequester(s, transaction.WithTimeout(a.cfg.Timeouts.Request))
	a.mu.Unlock()

	if a.cfg.Responder.Enabled {
		r := responder.New(a.handleRequest)
		if err := r.Register(s, a.cfg.Responder.Base, a.cfg.Responder.Length); err != nil {
			return fmt.Errorf("register responder: %w", err)
		}
		a.mu.Lock()
		a.responder = r
		a.mu.Unlock()
	}

	return a.runStartup(ctx, s)
}

func (a *App) subscribe(s *unit.Session) {
	subs := []*unit.Subscription{
		s.Subscribe(unit.EventLockStatus, func(ev unit.Event) {
			if ev.Locked {
				a.println("streaming is locked.")
			} else {
				a.println("streaming is unlocked.")
			}
		}),
		s.Subscribe(unit.EventDisconnected, func(unit.Event) {
			a.println("disconnected.")
			a.disp.Quit()
		}),
		s.Subscribe(unit.EventBusUpdate, func(ev unit.Event) {
			a.printf("bus reset: generation %d\n", ev.Generation)
		}),
	}
	if s.Variant() == unit.VariantDICE {
		subs = append(subs, s.Subscribe(unit.EventNotified, func(ev unit.Event) {
			a.printf("DICE notification: %08x\n", ev.Notification)
		}))
	}

	a.mu.Lock()
	a.subs = subs
	a.mu.Unlock()
}

// handleRequest prints every inbound request and leaves it unanswered.
func (a *App) handleRequest(tcode wire.TCode, frame quadlet.Frame) (quadlet.Frame, bool) {
	a.printf("Requested with tcode %d:\n", uint8(tcode))
	a.printLines(frame.Lines())
	return nil, false
}

func (a *App) runStartup(ctx context.Context, s *unit.Session) error {
	startup := a.cfg.Startup

	if s.Variant() != unit.VariantDICE && startup.FCP.Enabled {
		cmd, err := a.cfg.FCPCommand()
		if err != nil {
			return err
		}
		fcp, err := transaction.NewFCP(s, transaction.WithTimeout(a.cfg.Timeouts.FCP))
		if err != nil {
			return fmt.Errorf("fcp: %w", err)
		}
		a.mu.Lock()
		a.fcp = fcp
		a.mu.Unlock()

		resp, err := fcp.Transact(ctx, cmd)
		if err != nil {
			return fmt.Errorf("fcp transaction: %w", err)
		}
		a.println("FCP Response:")
		for i, b := range resp {
			a.printf(" [%02d]: 0x%02x\n", i, b)
		}
	}

	if s.Variant() == unit.VariantEFW && startup.EFW.Enabled {
		efw, err := transaction.NewEFW(s, transaction.WithTimeout(a.cfg.Timeouts.EFW))
		if err != nil {
			return fmt.Errorf("efw: %w", err)
		}
		a.mu.Lock()
		a.efw = efw
		a.mu.Unlock()

		params, err := efw.Transact(ctx, startup.EFW.Category, startup.EFW.Command, quadlet.Frame(startup.EFW.Params))
		if err != nil {
			return fmt.Errorf("efw transaction: %w", err)
		}
		a.println("EFW Response:")
		for i, q := range params {
			a.printf(" [%02d]: %08x\n", i, q)
		}
	}

	if s.Variant() == unit.VariantDICE && startup.DICE.Enabled {
		dice, err := transaction.NewDICE(s, transaction.WithTimeout(a.cfg.Timeouts.Notification))
		if err != nil {
			return fmt.Errorf("dice: %w", err)
		}
		a.mu.Lock()
		a.dice = dice
		a.mu.Unlock()

		frame := quadlet.Frame(startup.DICE.Frame)
		if err := dice.Transact(ctx, startup.DICE.Address, frame, startup.DICE.Bit); err != nil {
			return fmt.Errorf("dice transaction: %w", err)
		}
	}

	return nil
}

// Read reads one quadlet at the hex address text and renders it as
// "0x%08x".
func (a *App) Read(ctx context.Context, addr string) (string, error) {
	offset, err := quadlet.ParseAddress(addr)
	if err != nil {
		return "", err
	}

	a.mu.Lock()
	req := a.requester
	a.mu.Unlock()
	if req == nil {
		return "", ErrNotStarted
	}

	frame, err := req.Read(ctx, offset, 1)
	if err != nil {
		return "", err
	}
	return quadlet.Format(frame[0]), nil
}

// Close unregisters the responder, releases the transaction helpers, stops
// listening and releases the session, in that order. It is idempotent.
func (a *App) Close() {
	a.mu.Lock()
	if a.state == StateStopped {
		a.mu.Unlock()
		return
	}
	a.state = StateStopped
	s, r := a.session, a.responder
	fcp, efw, dice := a.fcp, a.efw, a.dice
	subs := a.subs
	a.responder, a.fcp, a.efw, a.dice, a.requester, a.subs = nil, nil, nil, nil, nil, nil
	a.mu.Unlock()

	if r != nil {
		if err := r.Unregister(); err != nil {
			a.logger.Warn("unregister responder failed", "error", err)
		}
	}
	var helpers []interface{ Close() error }
	if fcp != nil {
		helpers = append(helpers, fcp)
	}
	if efw != nil {
		helpers = append(helpers, efw)
	}
	if dice != nil {
		helpers = append(helpers, dice)
	}
	for _, h := range helpers {
		if err := h.Close(); err != nil {
			a.logger.Warn("close transaction helper failed", "error", err)
		}
	}
	for _, sub := range subs {
		sub.Cancel()
	}
	if s == nil {
		return
	}
	s.Unlisten()
	if err := s.Close(); err != nil {
		a.logger.Warn("close session failed", "error", err)
	}
	a.logger.Debug("app closed")
}

func (a *App) printIdentity(id unit.Identity) {
	a.printf("type: %s\n", id.Variant)
	a.printf("card: %d\n", id.Card)
	a.printf("device: %s\n", id.Device)
	a.printf("GUID: %016x\n", id.GUID)
}

func (a *App) println(s string) {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	fmt.Fprintln(a.out, s)
}

func (a *App) printf(format string, args ...any) {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	fmt.Fprintf(a.out, format, args...)
}

func (a *App) printLines(lines []string) {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	for _, l := range lines {
		fmt.Fprintln(a.out, l)
	}
}
