package unit

import "sync/atomic"

// EventKind identifies a unit event.
type EventKind uint8

const (
	// EventLockStatus reports a change of the kernel streaming lock.
	EventLockStatus EventKind = iota
	// EventDisconnected reports removal of the unit. It is the last event of
	// a session.
	EventDisconnected
	// EventBusUpdate reports a bus reset and the new generation.
	EventBusUpdate
	// EventNotified carries vendor notification bits (DICE).
	EventNotified
)

// String returns the event name.
func (k EventKind) String() string {
	switch k {
	case EventLockStatus:
		return "lock-status"
	case EventDisconnected:
		return "disconnected"
	case EventBusUpdate:
		return "bus-update"
	case EventNotified:
		return "notified"
	default:
		return "unknown"
	}
}

// Event is a unit event delivered to subscribers.
type Event struct {
	Kind EventKind

	// Locked is set for EventLockStatus.
	Locked bool

	// Generation is set for EventBusUpdate.
	Generation uint32

	// Notification is set for EventNotified.
	Notification uint32
}

// Subscription binds a callback to one event kind of a session.
type Subscription struct {
	s         *Session
	kind      EventKind
	fn        func(Event)
	cancelled atomic.Bool
}

// Kind returns the subscribed event kind.
func (sub *Subscription) Kind() EventKind {
	return sub.kind
}

// Cancel stops delivery. Callbacks already queued on the scheduler are
// skipped. Cancel is idempotent.
func (sub *Subscription) Cancel() {
	if sub.cancelled.Swap(true) {
		return
	}
	sub.s.unsubscribe(sub)
}

// Subscribe registers fn for events of kind. On a closed session the
// returned subscription is inert.
func (s *Session) Subscribe(kind EventKind, fn func(Event)) *Subscription {
	sub := &Subscription{s: s, kind: kind, fn: fn}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		sub.cancelled.Store(true)
		return sub
	}
	s.subs[kind] = append(s.subs[kind], sub)
	return sub
}

func (s *Session) unsubscribe(sub *Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.subs[sub.kind]
	for i, x := range list {
		if x == sub {
			s.subs[sub.kind] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// emit queues ev for every current subscriber of its kind.
func (s *Session) emit(ev Event) {
	s.mu.Lock()
	subs := append([]*Subscription(nil), s.subs[ev.Kind]...)
	s.mu.Unlock()

	s.logNotification(ev)
	if len(subs) == 0 {
		return
	}
	s.sched.Post(func() {
		for _, sub := range subs {
			if sub.cancelled.Load() || s.Released() {
				continue
			}
			sub.fn(ev)
		}
	})
}
