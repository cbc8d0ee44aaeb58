package app

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fwctl/fwctl-go/pkg/config"
	"github.com/fwctl/fwctl-go/pkg/dispatch"
	"github.com/fwctl/fwctl-go/pkg/hal"
	"github.com/fwctl/fwctl-go/pkg/hal/sim"
	"github.com/fwctl/fwctl-go/pkg/probe"
	"github.com/fwctl/fwctl-go/pkg/quadlet"
	"github.com/fwctl/fwctl-go/pkg/transaction"
	"github.com/fwctl/fwctl-go/pkg/wire"
)

const testPath = "/dev/snd/hwC0D0"

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type fixture struct {
	unit *sim.Unit
	disp *dispatch.Dispatcher
	app  *App
	out  *syncBuffer
	errc chan error
}

func newFixture(t *testing.T, family wire.Family, cfg *config.Config) *fixture {
	t.Helper()
	u := sim.NewUnit(hal.Info{Family: family, Card: 2, Device: "fw1", GUID: 0x0001f2fffe000001})
	u.SetQuadlet(0xfffff0000980, 0x42)
	u.HandleAVC(func(cmd []byte) [][]byte {
		resp := append([]byte(nil), cmd...)
		resp[0] = byte(wire.AVCImplementedStable)
		return [][]byte{resp}
	})
	u.HandleEFW(func(category, command uint32, params quadlet.Frame) (wire.EFWStatus, quadlet.Frame) {
		return wire.EFWStatusOK, params
	})
	u.NotifyOnWrite(0xffffe0000074, 0x20)

	driver := sim.NewDriver()
	driver.Attach(testPath, u)

	if cfg == nil {
		cfg = config.Default()
	}
	f := &fixture{
		unit: u,
		disp: dispatch.New(),
		out:  &syncBuffer{},
		errc: make(chan error, 1),
	}
	f.app = New(cfg, driver, f.disp, WithOutput(f.out))

	go func() { f.errc <- f.disp.Run(context.Background()) }()
	t.Cleanup(func() {
		f.app.Close()
		f.disp.Quit()
		<-f.errc
	})
	return f
}

// settle waits until every callback posted so far has run.
func (f *fixture) settle(t *testing.T) {
	t.Helper()
	require.NoError(t, f.disp.Do(context.Background(), func() {}))
}

func TestStartGenericUnit(t *testing.T) {
	f := newFixture(t, wire.FamilyBeBoB, nil)

	require.NoError(t, f.app.Start(context.Background(), []string{testPath}))
	assert.Equal(t, StateRunning, f.app.State())
	f.settle(t)

	out := f.out.String()
	assert.Contains(t, out, "type: GENERIC\n")
	assert.Contains(t, out, "card: 2\n")
	assert.Contains(t, out, "device: fw1\n")
	assert.Contains(t, out, "GUID: 0001f2fffe000001\n")
	assert.Contains(t, out, "listening.\n")
	assert.Contains(t, out, "FCP Response:\n [00]: 0x0c\n [01]: 0xff\n [02]: 0x19\n")
	assert.NotContains(t, out, "EFW Response:")

	// The FCP response also lands in the responder window.
	assert.Contains(t, out, "Requested with tcode 1:\n [00]: 0x0cff1900\n [01]: 0xffffffff\n")
	assert.NotEmpty(t, f.unit.Released())
}

func TestStartEFWUnit(t *testing.T) {
	f := newFixture(t, wire.FamilyFireworks, nil)

	require.NoError(t, f.app.Start(context.Background(), []string{testPath}))
	f.settle(t)

	out := f.out.String()
	assert.Contains(t, out, "type: EFW\n")
	assert.Contains(t, out, "FCP Response:\n")
	assert.Contains(t, out, "EFW Response:\n [00]: 00000005\n")
}

func TestStartDICEUnit(t *testing.T) {
	f := newFixture(t, wire.FamilyDICE, nil)

	require.NoError(t, f.app.Start(context.Background(), []string{testPath}))
	f.settle(t)

	out := f.out.String()
	assert.Contains(t, out, "type: DICE\n")
	assert.Contains(t, out, "DICE notification: 00000020\n")
	assert.NotContains(t, out, "FCP Response:")

	v, ok := f.unit.Quadlet(0xffffe0000074)
	require.True(t, ok)
	assert.Equal(t, uint32(0x30c), v)
}

func TestStartNoDevice(t *testing.T) {
	f := newFixture(t, wire.FamilyBeBoB, nil)

	err := f.app.Start(context.Background(), []string{"/dev/snd/hwC9D0"})
	assert.ErrorIs(t, err, probe.ErrNoDeviceFound)
	assert.Equal(t, StateStopped, f.app.State())
	assert.Nil(t, f.app.Session())
}

func TestStartTwice(t *testing.T) {
	f := newFixture(t, wire.FamilyBeBoB, nil)

	require.NoError(t, f.app.Start(context.Background(), []string{testPath}))
	assert.ErrorIs(t, f.app.Start(context.Background(), []string{testPath}), ErrAlreadyStarted)
}

func TestStartupFailureReleasesUnit(t *testing.T) {
	cfg := config.Default()
	cfg.Timeouts.FCP = 20 * time.Millisecond
	f := newFixture(t, wire.FamilyBeBoB, cfg)
	f.unit.HandleAVC(func([]byte) [][]byte { return nil })

	err := f.app.Start(context.Background(), []string{testPath})
	assert.ErrorIs(t, err, transaction.ErrTimeout)
	assert.Equal(t, StateStopped, f.app.State())
	assert.Equal(t, 0, f.unit.OpenHandles())
	assert.Equal(t, 0, f.unit.Allocations())
}

func TestStartupFCPCommandFilled(t *testing.T) {
	cfg := config.Default()
	cfg.Startup.FCP.Command = "01ff1900"
	f := newFixture(t, wire.FamilyBeBoB, cfg)

	seen := make(chan []byte, 1)
	f.unit.HandleAVC(func(cmd []byte) [][]byte {
		select {
		case seen <- append([]byte(nil), cmd...):
		default:
		}
		resp := append([]byte(nil), cmd...)
		resp[0] = byte(wire.AVCImplementedStable)
		return [][]byte{resp}
	})

	require.NoError(t, f.app.Start(context.Background(), []string{testPath}))
	select {
	case cmd := <-seen:
		assert.Equal(t, []byte{0x01, 0xff, 0x19, 0x00, 0xff, 0xff, 0xff, 0xff}, cmd)
	default:
		t.Fatal("unit received no AV/C command")
	}
}

func TestStartupTransactionsDisabled(t *testing.T) {
	cfg := config.Default()
	cfg.Responder.Enabled = false
	cfg.Startup.FCP.Enabled = false
	f := newFixture(t, wire.FamilyBeBoB, cfg)
	f.unit.HandleAVC(func([]byte) [][]byte { return nil })

	require.NoError(t, f.app.Start(context.Background(), []string{testPath}))
	assert.Equal(t, 0, f.unit.Allocations())
	assert.NotContains(t, f.out.String(), "FCP Response:")
}

func TestRead(t *testing.T) {
	f := newFixture(t, wire.FamilyBeBoB, nil)
	require.NoError(t, f.app.Start(context.Background(), []string{testPath}))

	for _, addr := range []string{"0xfffff0000980", "fffff0000980"} {
		got, err := f.app.Read(context.Background(), addr)
		require.NoError(t, err)
		assert.Equal(t, "0x00000042", got)
	}

	_, err := f.app.Read(context.Background(), "not-hex")
	assert.Error(t, err)

	_, err = f.app.Read(context.Background(), "0x1fffff0000980")
	assert.ErrorIs(t, err, quadlet.ErrAddressRange)

	_, err = f.app.Read(context.Background(), "0xfffff0000984")
	var ioErr *transaction.IOError
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, wire.RCodeAddressError, ioErr.RCode)
}

func TestReadBeforeStart(t *testing.T) {
	f := newFixture(t, wire.FamilyBeBoB, nil)
	_, err := f.app.Read(context.Background(), "0xfffff0000980")
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestDisconnectQuitsDispatcher(t *testing.T) {
	f := newFixture(t, wire.FamilyBeBoB, nil)
	require.NoError(t, f.app.Start(context.Background(), []string{testPath}))

	f.unit.Disconnect()
	select {
	case <-f.disp.Done():
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not quit")
	}
	assert.Contains(t, f.out.String(), "disconnected.\n")

	f.app.Close()
	assert.Equal(t, StateStopped, f.app.State())
}

func TestBusResetPrinted(t *testing.T) {
	f := newFixture(t, wire.FamilyBeBoB, nil)
	require.NoError(t, f.app.Start(context.Background(), []string{testPath}))

	gen := f.unit.BusReset()
	require.Eventually(t, func() bool {
		return strings.Contains(f.out.String(), "bus reset: generation ")
	}, time.Second, 5*time.Millisecond)
	assert.Contains(t, f.out.String(), fmt.Sprintf("bus reset: generation %d\n", gen))
}

func TestCloseReleasesEverything(t *testing.T) {
	f := newFixture(t, wire.FamilyBeBoB, nil)
	require.NoError(t, f.app.Start(context.Background(), []string{testPath}))
	s := f.app.Session()
	require.NotNil(t, s)

	f.app.Close()
	f.app.Close()

	assert.Equal(t, StateStopped, f.app.State())
	assert.True(t, s.Released())
	assert.Equal(t, 0, f.unit.OpenHandles())
	assert.Equal(t, 0, f.unit.Allocations())

	_, err := f.app.Read(context.Background(), "0xfffff0000980")
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "IDLE", StateIdle.String())
	assert.Equal(t, "RUNNING", StateRunning.String())
	assert.Equal(t, "UNKNOWN", State(99).String())
}
