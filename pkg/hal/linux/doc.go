// Package linux implements the hal interfaces on top of the Linux ALSA
// FireWire drivers and the firewire character device.
//
// Opening a unit opens two nodes:
//   - the ALSA hwdep node (/dev/snd/hwCxDy), queried with
//     SNDRV_FIREWIRE_IOCTL_GET_INFO for the device family, card index, GUID
//     and the name of the node's firewire character device, and used for the
//     streaming lock, EFW frames, and DICE and lock-status events;
//   - the firewire character device (/dev/fwN), used for asynchronous
//     requests, address window allocation and inbound requests, with the
//     REQUEST2 event ABI.
//
// Both descriptors are non-blocking and multiplexed with epoll; an eventfd
// wakes the poller on context cancellation and Close. The package is pure Go
// and uses golang.org/x/sys/unix for system calls.
//
// # Requirements
//
// The user needs read/write access to both nodes, which usually means
// membership of the audio group and a udev rule for /dev/fw*.
package linux
