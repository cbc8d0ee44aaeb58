package main

import (
	"context"
	"flag"
	"log/slog"
	"strings"
	"time"

	"github.com/fwctl/fwctl-go/pkg/hal"
	"github.com/fwctl/fwctl-go/pkg/hal/sim"
	"github.com/fwctl/fwctl-go/pkg/quadlet"
	"github.com/fwctl/fwctl-go/pkg/wire"
)

// simPath is where the simulated unit is attached.
const simPath = "/dev/snd/hwC0D0"

var simFamily string

func init() {
	flag.StringVar(&simFamily, "simulate-family", "dice", "Simulated unit family: dice, fireworks, bebob, oxfw")
}

// newSimulation attaches one simulated unit of the selected family.
func newSimulation() (*sim.Driver, *sim.Unit, []string) {
	family := wire.FamilyDICE
	switch strings.ToLower(simFamily) {
	case "fireworks", "efw":
		family = wire.FamilyFireworks
	case "bebob":
		family = wire.FamilyBeBoB
	case "oxfw":
		family = wire.FamilyOXFW
	}

	u := sim.NewUnit(hal.Info{
		Family: family,
		Card:   0,
		Device: "fw1",
		GUID:   0x00130e0401400045,
	})

	// Registers read by the console.
	u.SetQuadlet(0xfffff0000980, 0x00000001)
	u.SetQuadlet(0xfffff0000984, 0x00000000)
	for i := uint64(0); i < 8; i++ {
		u.SetQuadlet(0xffffe0000000+i*quadlet.Size, uint32(i))
	}

	u.NotifyOnWrite(0xffffe0000074, 0x20)
	u.HandleAVC(func(cmd []byte) [][]byte {
		resp := append([]byte(nil), cmd...)
		resp[0] = byte(wire.AVCImplementedStable)
		return [][]byte{resp}
	})
	u.HandleEFW(func(category, command uint32, params quadlet.Frame) (wire.EFWStatus, quadlet.Frame) {
		return wire.EFWStatusOK, params
	})

	driver := sim.NewDriver()
	driver.Attach(simPath, u)
	return driver, u, []string{simPath}
}

// runSimulation makes the unit send a write into the responder window every
// interval and, for DICE units, raise a notification.
func runSimulation(ctx context.Context, u *sim.Unit, logger *slog.Logger) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	var count uint32
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			count++
			frame := quadlet.Frame{count}
			n := u.InjectRequest(wire.WriteCode(len(frame)), wire.FCPResponseAddress, frame.Bytes())
			logger.Debug("simulated inbound write", "count", count, "windows", n)
			if u.Info().Family == wire.FamilyDICE {
				u.Notify(1 << (count % 8))
			}
		}
	}
}
