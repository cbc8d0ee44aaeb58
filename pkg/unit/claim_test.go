package unit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fwctl/fwctl-go/pkg/hal/sim"
	"github.com/fwctl/fwctl-go/pkg/wire"
)

func answer(data []byte) RequestHandler {
	return func(InboundRequest) (Reply, bool) {
		return Reply{RCode: wire.RCodeComplete, Data: data}, true
	}
}

type mockScheduler struct {
	mock.Mock
}

func (m *mockScheduler) Post(fn func()) {
	m.Called(fn)
	fn()
}

func TestExclusiveClaimRunsOnScheduler(t *testing.T) {
	sched := &mockScheduler{}
	sched.On("Post", mock.Anything).Return()
	u, s := listening(t, wire.FamilyBeBoB, WithScheduler(sched))

	_, err := s.Claim(0xfffff0000d00, 0x100, answer(nil))
	require.NoError(t, err)
	_, err = s.Claim(0xfffff0000d00, 0x200, func(InboundRequest) (Reply, bool) {
		return Reply{}, false
	}, Shared())
	require.NoError(t, err)

	require.Equal(t, 2, u.InjectRequest(wire.TCodeWriteQuadletRequest, 0xfffff0000d00, []byte{0, 0, 0, 1}))
	require.Eventually(t, func() bool {
		return len(u.Responses()) == 1 && len(u.Released()) == 1
	}, time.Second, time.Millisecond)
	sched.AssertNumberOfCalls(t, "Post", 1)
}

func TestClaimConflict(t *testing.T) {
	u, s := listening(t, wire.FamilyBeBoB)

	c, err := s.Claim(0xfffff0000d00, 0x100, answer(nil))
	require.NoError(t, err)
	assert.Equal(t, uint64(0xfffff0000d00), c.Base())
	assert.Equal(t, uint64(0x100), c.Length())

	_, err = s.Claim(0xfffff0000d80, 0x100, answer(nil))
	assert.ErrorIs(t, err, ErrAddressConflict)

	// Shared claims never conflict.
	_, err = s.Claim(0xfffff0000d00, 0x200, answer(nil), Shared())
	require.NoError(t, err)
	assert.Equal(t, 2, u.Allocations())

	// Adjacent windows do not overlap.
	_, err = s.Claim(0xfffff0000e00, 0x100, answer(nil))
	require.NoError(t, err)
}

func TestClaimServesRequest(t *testing.T) {
	u, s := listening(t, wire.FamilyBeBoB)

	got := make(chan InboundRequest, 1)
	_, err := s.Claim(0xfffff0000d00, 0x100, func(req InboundRequest) (Reply, bool) {
		got <- req
		return Reply{RCode: wire.RCodeComplete, Data: []byte{0, 0, 0, 1}}, true
	})
	require.NoError(t, err)

	require.Equal(t, 1, u.InjectRequest(wire.TCodeReadQuadletRequest, 0xfffff0000d04, nil))

	select {
	case req := <-got:
		assert.Equal(t, wire.TCodeReadQuadletRequest, req.TCode)
		assert.Equal(t, uint64(0xfffff0000d04), req.Offset)
		assert.Equal(t, uint32(sim.LocalNodeID+2), req.Source)
	case <-time.After(time.Second):
		t.Fatal("handler not called")
	}

	require.Eventually(t, func() bool { return len(u.Responses()) == 1 }, time.Second, time.Millisecond)
	resp := u.Responses()[0]
	assert.Equal(t, wire.RCodeComplete, resp.RCode)
	assert.Equal(t, []byte{0, 0, 0, 1}, resp.Data)
	assert.Empty(t, u.Released())
}

func TestClaimSuppressedRequestIsReleased(t *testing.T) {
	u, s := listening(t, wire.FamilyBeBoB)

	_, err := s.Claim(0xfffff0000d00, 0x100, func(InboundRequest) (Reply, bool) {
		return Reply{}, false
	})
	require.NoError(t, err)

	require.Equal(t, 1, u.InjectRequest(wire.TCodeWriteQuadletRequest, 0xfffff0000d00, []byte{0, 0, 0, 9}))
	require.Eventually(t, func() bool { return len(u.Released()) == 1 }, time.Second, time.Millisecond)
	assert.Empty(t, u.Responses())
}

func TestClaimRelease(t *testing.T) {
	u, s := listening(t, wire.FamilyBeBoB)

	c, err := s.Claim(0xfffff0000d00, 0x100, answer(nil))
	require.NoError(t, err)
	require.Equal(t, 1, u.Allocations())

	require.NoError(t, c.Release())
	require.NoError(t, c.Release())
	assert.Equal(t, 0, u.Allocations())
	assert.Equal(t, 0, u.InjectRequest(wire.TCodeReadQuadletRequest, 0xfffff0000d00, nil))

	// The window can be claimed again.
	_, err = s.Claim(0xfffff0000d00, 0x100, answer(nil))
	require.NoError(t, err)
}

func TestClaimReleaseAfterClose(t *testing.T) {
	_, s := listening(t, wire.FamilyBeBoB)
	c, err := s.Claim(0xfffff0000d00, 0x100, answer(nil))
	require.NoError(t, err)

	require.NoError(t, s.Close())
	assert.NoError(t, c.Release())
}

func TestClaimRejectedByKernel(t *testing.T) {
	d, u := attach(wire.FamilyBeBoB)
	other, err := d.Open(testPath)
	require.NoError(t, err)
	defer other.Close()
	_, err = other.Allocate(0xfffff0001000, 0x100, 1)
	require.NoError(t, err)

	s, err := OpenGeneric(d, testPath)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Listen())

	_, err = s.Claim(0xfffff0001000, 0x10, answer(nil))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrAddressConflict)
	assert.Equal(t, 1, u.Allocations())
}
