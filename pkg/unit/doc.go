// Package unit implements the session with one FireWire audio unit.
//
// A Session is opened under one protocol variant (DICE, EFW or Generic) and
// owns the device handle for the rest of the process. Opening under a
// variant the unit does not speak fails with ErrVariantMismatch and leaves
// nothing open, so callers can try the next variant on the same path.
//
// # Lifecycle
//
//	open ──Listen──▶ listening ──Unlisten──▶ open
//	  │                  │
//	  └──Close───────────┴──disconnected──▶ closed
//
// Listen starts the event reader and tracks the bus generation; every
// transaction and address window claim requires a listening session and
// fails with ErrNotReady otherwise. Once the unit is disconnected or the
// session is closed, every operation fails with ErrSessionClosed.
//
// # Events
//
// Subscribe binds a callback to one EventKind. Callbacks run on the
// Scheduler given with WithScheduler, in the order the bus delivered the
// events. After the disconnected event no further events are delivered, and
// after Close no callback runs again.
//
// The event reader completes pending requests itself, so a callback running
// on the scheduler may issue transactions without deadlocking.
package unit
