// Package hal defines the hardware abstraction between the unit session and
// the host's FireWire audio stack.
//
// A Device pairs the two kernel interfaces the Linux ALSA FireWire drivers
// expose for one unit:
//   - the ALSA hwdep node (identity, streaming lock, vendor frames, DICE
//     notifications), and
//   - the firewire character device of the node (asynchronous requests,
//     address window allocation, inbound requests, bus resets).
//
// The session drives a Device from a single reader goroutine calling
// NextEvent, and issues requests from any goroutine. Implementations must
// make every method other than NextEvent safe for concurrent use.
//
// Two implementations ship with the module: package linux talks to the
// kernel through ioctl and epoll, and package sim provides a simulated unit
// for tests and the -simulate mode of fwctl.
package hal
