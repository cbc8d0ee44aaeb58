// Package transaction implements the outbound transactions of a unit session.
//
// Four shapes are provided, each bound to one listening unit.Session:
//
//   - Requester: plain read, write and compare-swap transactions against the
//     unit's address space. Every variant supports them.
//   - FCP: AV/C command/response exchanges over the FCP registers. All
//     variants except DICE.
//   - EFW: Echo Fireworks commands framed over the hwdep node. Fireworks
//     units only.
//   - DICE: a write followed by a wait for a notification bit. DICE units
//     only.
//
// All calls block until the response arrives, the transaction times out or
// the context is done. A response arriving after a timeout is dropped.
// Before the session listens every call fails with unit.ErrNotReady, and
// after it is closed with unit.ErrSessionClosed.
package transaction
