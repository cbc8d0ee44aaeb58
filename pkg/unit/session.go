package unit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fwctl/fwctl-go/pkg/hal"
	"github.com/fwctl/fwctl-go/pkg/log"
	"github.com/fwctl/fwctl-go/pkg/wire"
)

// Session states reported in protocol logs.
const (
	stateOpen         = "OPEN"
	stateListening    = "LISTENING"
	stateDisconnected = "DISCONNECTED"
	stateClosed       = "CLOSED"
)

// result completes a pending request.
type result struct {
	ev  hal.Event
	err error
}

// Session is an opened unit bound to one protocol variant.
type Session struct {
	id      string
	path    string
	variant Variant
	dev     hal.Device
	info    hal.Info

	sched    Scheduler
	logger   *slog.Logger
	protocol log.Logger

	mu           sync.Mutex
	listening    bool
	disconnected bool
	released     bool
	streaming    bool
	generation   uint32
	cancel       context.CancelFunc
	done         chan struct{}
	nextClosure  uint64
	pending      map[uint64]chan result
	claims       map[uint64]*Claim
	nextObserver uint64
	observers    map[uint64]func(hal.Event)
	subs         map[EventKind][]*Subscription
}

// Open opens path under variant v. If the unit's family does not match v,
// the device is closed again and ErrVariantMismatch is returned.
func Open(driver hal.Driver, path string, v Variant, opts ...Option) (*Session, error) {
	dev, err := driver.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	info := dev.Info()
	if !v.Accepts(info.Family) {
		_ = dev.Close()
		return nil, fmt.Errorf("%w: %s is %s, not %s", ErrVariantMismatch, path, info.Family, v)
	}

	o := buildOptions(opts)
	id := uuid.NewString()
	s := &Session{
		id:        id,
		path:      path,
		variant:   v,
		dev:       dev,
		info:      info,
		sched:     o.scheduler,
		logger:    o.logger.With("component", "unit", "session", id[:8], "path", path),
		protocol:  o.protocol,
		pending:   make(map[uint64]chan result),
		claims:    make(map[uint64]*Claim),
		observers: make(map[uint64]func(hal.Event)),
		subs:      make(map[EventKind][]*Subscription),
	}
	s.logger.Debug("session opened", "variant", v, "family", info.Family, "guid", fmt.Sprintf("%016x", info.GUID))
	s.logState("", stateOpen, v.String())
	return s, nil
}

// ID returns the session identifier used in protocol logs.
func (s *Session) ID() string { return s.id }

// Path returns the hwdep node path.
func (s *Session) Path() string { return s.path }

// Variant returns the protocol variant the session was opened under.
func (s *Session) Variant() Variant { return s.variant }

// Identity describes the unit.
func (s *Session) Identity() Identity {
	return Identity{
		Variant: s.variant,
		Family:  s.info.Family,
		Card:    s.info.Card,
		Device:  s.info.Device,
		GUID:    s.info.GUID,
	}
}

// Listening returns true between Listen and Unlisten.
func (s *Session) Listening() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listening
}

// Streaming returns true while kernel streaming holds the lock. It is
// sampled by Listen and kept current by lock status events.
func (s *Session) Streaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streaming
}

// Generation returns the bus generation last seen by the session.
func (s *Session) Generation() (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usableLocked(); err != nil {
		return 0, err
	}
	return s.generation, nil
}

// Closed returns true once the unit is disconnected or the session closed.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released || s.disconnected
}

// Released returns true after Close.
func (s *Session) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

// usableLocked checks the session can carry traffic.
func (s *Session) usableLocked() error {
	if s.released || s.disconnected {
		return ErrSessionClosed
	}
	if !s.listening {
		return ErrNotReady
	}
	return nil
}

// Listen starts event delivery. It fails with ErrListen if the session is
// already listening or the unit cannot be queried.
func (s *Session) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released || s.disconnected {
		return ErrSessionClosed
	}
	if s.listening {
		return fmt.Errorf("%w: already listening", ErrListen)
	}

	gen, err := s.dev.Generation()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrListen, deviceError(err))
	}

	// Taking the lock succeeds only while no stream is running.
	streaming := false
	switch err := s.dev.Lock(); {
	case err == nil:
		if err := s.dev.Unlock(); err != nil {
			return fmt.Errorf("%w: %w", ErrListen, deviceError(err))
		}
	case errors.Is(err, hal.ErrBusy):
		streaming = true
	default:
		return fmt.Errorf("%w: %w", ErrListen, deviceError(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.listening = true
	s.generation = gen
	s.streaming = streaming
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.read(ctx, s.done)

	s.logger.Info("listening", "generation", gen, "streaming", streaming)
	s.logState(stateOpen, stateListening, "")
	return nil
}

// Unlisten stops event delivery. Pending requests fail with ErrNotReady.
// It must not be called from a callback running inline on the reader.
func (s *Session) Unlisten() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	wasListening := s.listening
	s.cancel, s.done = nil, nil
	s.listening = false
	pending := s.pending
	s.pending = make(map[uint64]chan result)
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	failPending(pending, ErrNotReady)

	if wasListening {
		s.logger.Debug("stopped listening")
		s.logState(stateListening, stateOpen, "")
	}
}

// Close stops listening, releases every claim and closes the device. After
// Close no callback runs. Close is idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	s.Unlisten()

	s.mu.Lock()
	s.released = true
	claims := s.claims
	s.claims = make(map[uint64]*Claim)
	s.observers = make(map[uint64]func(hal.Event))
	subs := s.subs
	s.subs = make(map[EventKind][]*Subscription)
	s.mu.Unlock()

	for _, c := range claims {
		c.released.Store(true)
	}
	for _, list := range subs {
		for _, sub := range list {
			sub.cancelled.Store(true)
		}
	}

	err := s.dev.Close()
	s.logger.Debug("session closed")
	s.logState("", stateClosed, "")
	if err != nil && !errors.Is(err, hal.ErrDisconnected) {
		return fmt.Errorf("close %s: %w", s.path, err)
	}
	return nil
}

// Lock forbids kernel streaming on the unit. It returns an error wrapping
// hal.ErrBusy while streaming runs.
func (s *Session) Lock() error {
	if s.Closed() {
		return ErrSessionClosed
	}
	if err := s.dev.Lock(); err != nil {
		return fmt.Errorf("lock: %w", deviceError(err))
	}
	return nil
}

// Unlock releases the streaming lock taken with Lock.
func (s *Session) Unlock() error {
	if s.Closed() {
		return ErrSessionClosed
	}
	if err := s.dev.Unlock(); err != nil {
		return fmt.Errorf("unlock: %w", deviceError(err))
	}
	return nil
}

// Request sends one asynchronous request in the current generation and
// waits for its response. Responses arriving after ctx is done are
// dropped. Closure and Generation of req are set by the session.
func (s *Session) Request(ctx context.Context, req hal.Request) (wire.RCode, []byte, error) {
	s.mu.Lock()
	if err := s.usableLocked(); err != nil {
		s.mu.Unlock()
		return 0, nil, err
	}
	s.nextClosure++
	req.Closure = s.nextClosure
	req.Generation = s.generation
	ch := make(chan result, 1)
	s.pending[req.Closure] = ch
	s.mu.Unlock()

	s.logPacket(log.DirectionOut, log.CategoryRequest, req.TCode, req.Offset, nil, req.Generation, req.Closure, req.Data, nil)
	start := time.Now()

	if err := s.dev.SendRequest(req); err != nil {
		s.dropPending(req.Closure)
		err = deviceError(err)
		s.logError(log.LayerBus, err, "send request")
		return 0, nil, err
	}

	select {
	case r := <-ch:
		if r.err != nil {
			return 0, nil, r.err
		}
		latency := time.Since(start)
		rcode := r.ev.RCode
		s.logPacket(log.DirectionIn, log.CategoryResponse, req.TCode, req.Offset, &rcode, req.Generation, req.Closure, r.ev.Data, &latency)
		return rcode, r.ev.Data, nil
	case <-ctx.Done():
		s.dropPending(req.Closure)
		return 0, nil, ctx.Err()
	}
}

func (s *Session) dropPending(closure uint64) {
	s.mu.Lock()
	delete(s.pending, closure)
	s.mu.Unlock()
}

func failPending(pending map[uint64]chan result, err error) {
	for _, ch := range pending {
		ch <- result{err: err}
	}
}

// SendVendor writes a vendor frame to the hwdep node.
func (s *Session) SendVendor(frame []byte) error {
	s.mu.Lock()
	err := s.usableLocked()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if err := s.dev.WriteVendor(frame); err != nil {
		return fmt.Errorf("vendor write: %w", deviceError(err))
	}
	return nil
}

// Observe registers fn to see every event read from the device, before the
// session handles it. fn runs on the event reader and must not block. The
// returned function removes the observer.
func (s *Session) Observe(fn func(hal.Event)) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return func() {}
	}
	s.nextObserver++
	id := s.nextObserver
	s.observers[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

// read is the event reader. It exits when ctx is cancelled or the device
// goes away.
func (s *Session) read(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		ev, err := s.dev.NextEvent(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, hal.ErrClosed) {
				return
			}
			if !errors.Is(err, hal.ErrDisconnected) {
				s.logger.Warn("event read failed", "error", err)
				s.logError(log.LayerHwdep, err, "read event")
			}
			s.disconnect()
			return
		}
		s.handle(ev)
	}
}

func (s *Session) handle(ev hal.Event) {
	s.mu.Lock()
	observers := make([]func(hal.Event), 0, len(s.observers))
	for _, fn := range s.observers {
		observers = append(observers, fn)
	}
	s.mu.Unlock()
	for _, fn := range observers {
		fn(ev)
	}

	switch ev.Type {
	case hal.EventResponse:
		s.mu.Lock()
		ch, ok := s.pending[ev.Closure]
		delete(s.pending, ev.Closure)
		s.mu.Unlock()
		if !ok {
			s.logger.Debug("late response dropped", "closure", ev.Closure, "rcode", ev.RCode)
			return
		}
		ch <- result{ev: ev}

	case hal.EventRequest:
		s.dispatchRequest(ev)

	case hal.EventBusReset:
		s.mu.Lock()
		s.generation = ev.Generation
		s.mu.Unlock()
		s.logger.Debug("bus reset", "generation", ev.Generation)
		s.emit(Event{Kind: EventBusUpdate, Generation: ev.Generation})

	case hal.EventLockStatus:
		s.mu.Lock()
		s.streaming = ev.Locked
		s.mu.Unlock()
		s.emit(Event{Kind: EventLockStatus, Locked: ev.Locked})

	case hal.EventDICENotification:
		s.emit(Event{Kind: EventNotified, Notification: ev.Notification})

	case hal.EventEFWResponse:
		// Consumed by observers.
	}
}

// disconnect marks the unit gone, fails pending requests and emits the
// final event.
func (s *Session) disconnect() {
	s.mu.Lock()
	s.disconnected = true
	s.listening = false
	pending := s.pending
	s.pending = make(map[uint64]chan result)
	s.mu.Unlock()

	failPending(pending, ErrSessionClosed)
	s.logger.Info("unit disconnected")
	s.logState(stateListening, stateDisconnected, "")
	s.emit(Event{Kind: EventDisconnected})
}

// Log records a protocol event stamped with the session identity.
func (s *Session) Log(ev log.Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	ev.SessionID = s.id
	ev.Path = s.path
	ev.GUID = s.info.GUID
	ev.Variant = s.variant.String()
	s.protocol.Log(ev)
}

func (s *Session) logPacket(dir log.Direction, cat log.Category, tcode wire.TCode, offset uint64,
	rcode *wire.RCode, gen uint32, handle uint64, data []byte, latency *time.Duration) {
	payload, truncated := log.Truncate(data)
	s.Log(log.Event{
		Direction: dir,
		Layer:     log.LayerBus,
		Category:  cat,
		Packet: &log.PacketEvent{
			TCode:      tcode,
			Offset:     offset,
			RCode:      rcode,
			Generation: gen,
			Handle:     handle,
			Size:       len(data),
			Data:       payload,
			Truncated:  truncated,
			Latency:    latency,
		},
	})
}

func (s *Session) logNotification(ev Event) {
	var value uint32
	switch ev.Kind {
	case EventLockStatus:
		if ev.Locked {
			value = 1
		}
	case EventBusUpdate:
		value = ev.Generation
	case EventNotified:
		value = ev.Notification
	}
	s.Log(log.Event{
		Direction:    log.DirectionIn,
		Layer:        log.LayerHwdep,
		Category:     log.CategoryNotification,
		Notification: &log.NotificationEvent{Kind: ev.Kind.String(), Value: value},
	})
}

func (s *Session) logState(from, to, reason string) {
	s.Log(log.Event{
		Layer:       log.LayerUnit,
		Category:    log.CategoryState,
		StateChange: &log.StateChangeEvent{OldState: from, NewState: to, Reason: reason},
	})
}

func (s *Session) logError(layer log.Layer, err error, op string) {
	s.Log(log.Event{
		Layer:    layer,
		Category: log.CategoryError,
		Error:    &log.ErrorEventData{Layer: layer, Message: err.Error(), Context: op},
	})
}
