package proxy

import (
	"net"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atasvc/sonata/internal/clock"
	"github.com/atasvc/sonata/internal/obserr"
	"github.com/atasvc/sonata/internal/wire"
)

// discardConn accepts every write without blocking so a *Proxy can be
// exercised with no real socket on the other end.
type discardConn struct{ closed bool }

func (c *discardConn) Read(b []byte) (int, error)         { return 0, net.ErrClosed }
func (c *discardConn) Write(b []byte) (int, error)        { return len(b), nil }
func (c *discardConn) Close() error                       { c.closed = true; return nil }
func (c *discardConn) LocalAddr() net.Addr                { return dummyAddr{} }
func (c *discardConn) RemoteAddr() net.Addr               { return dummyAddr{} }
func (c *discardConn) SetDeadline(t time.Time) error      { return nil }
func (c *discardConn) SetReadDeadline(t time.Time) error  { return nil }
func (c *discardConn) SetWriteDeadline(t time.Time) error { return nil }

type dummyAddr struct{}

func (dummyAddr) Network() string { return "test" }
func (dummyAddr) String() string  { return "test" }

type fakeActivity struct {
	errs []struct {
		kind     obserr.Kind
		severity obserr.Severity
		message  string
	}
}

func (f *fakeActivity) ComponentError(p *Proxy, kind obserr.Kind, severity obserr.Severity, message string) {
	f.errs = append(f.errs, struct {
		kind     obserr.Kind
		severity obserr.Severity
		message  string
	}{kind, severity, message})
}

func TestAttachRejectsSecondActivity(t *testing.T) {
	p := New("dx1", wire.ClassDX, &discardConn{}, nil)
	a1, a2 := &fakeActivity{}, &fakeActivity{}

	assert.True(t, p.Attach(a1))
	assert.False(t, p.Attach(a2), "a proxy already attached to one activity refuses a second")

	got, ok := p.Attached()
	require.True(t, ok)
	assert.Same(t, a1, got)
}

func TestDetachIsIdempotentAndReopensAttach(t *testing.T) {
	p := New("dx1", wire.ClassDX, &discardConn{}, nil)
	a1 := &fakeActivity{}
	require.True(t, p.Attach(a1))

	p.Detach()
	p.Detach() // idempotent

	_, ok := p.Attached()
	assert.False(t, ok)

	a2 := &fakeActivity{}
	assert.True(t, p.Attach(a2), "detach frees the proxy for a new attach")
}

func TestReportErrorDropsWithNoAttachedActivity(t *testing.T) {
	p := New("dx1", wire.ClassDX, &discardConn{}, nil)
	// Must not panic with nothing attached.
	p.ReportError(obserr.ComponentDisconnect, obserr.Error, "link lost")
}

func TestReportErrorForwardsToAttachedActivity(t *testing.T) {
	p := New("dx1", wire.ClassDX, &discardConn{}, nil)
	a := &fakeActivity{}
	require.True(t, p.Attach(a))

	p.ReportError(obserr.ComponentDisconnect, obserr.Fatal, "link lost")

	require.Len(t, a.errs, 1)
	assert.Equal(t, obserr.ComponentDisconnect, a.errs[0].kind)
	assert.Equal(t, obserr.Fatal, a.errs[0].severity)
}

func TestSendMarshalsFrameAndAdvancesMessageNumber(t *testing.T) {
	p := New("dx1", wire.ClassDX, &discardConn{}, nil)
	clk := clock.NewFake(time.Unix(1_700_000_000, 0))

	require.NoError(t, p.Send(wire.CodeFor(wire.ClassDX, wire.OffsetDomainCommandsBase), 7, nil, clk))
	require.NoError(t, p.Send(wire.CodeFor(wire.ClassDX, wire.OffsetDomainCommandsBase), 7, nil, clk))

	assert.Equal(t, uint32(2), p.msgCounter, "message numbers are a monotonic per-proxy counter")
}

func TestShutdownMarksDisconnected(t *testing.T) {
	p := New("dx1", wire.ClassDX, &discardConn{}, nil)
	clk := clock.NewFake(time.Unix(1_700_000_000, 0))

	require.NoError(t, p.Shutdown(clk))
	assert.Equal(t, Disconnected, p.State())
}

func TestResetSocketClosesConnAndFiresDisconnectHook(t *testing.T) {
	conn := &discardConn{}
	var hookCalledWith *Proxy
	p := New("dx1", wire.ClassDX, conn, func(pp *Proxy) { hookCalledWith = pp })

	p.ResetSocket()

	assert.True(t, conn.closed)
	assert.Equal(t, Disconnected, p.State())
	assert.Same(t, p, hookCalledWith)
}

// failingConn always errors on Write, to drive the circuit breaker open.
type failingConn struct{ discardConn }

func (f *failingConn) Write(b []byte) (int, error) { return 0, assertErr("write failed") }

func TestSendTripsBreakerAfterConsecutiveFailures(t *testing.T) {
	p := New("dx1", wire.ClassDX, &failingConn{}, nil)
	clk := clock.NewFake(time.Unix(1_700_000_000, 0))

	code := wire.CodeFor(wire.ClassDX, wire.OffsetDomainCommandsBase)
	for i := 0; i < 3; i++ {
		assert.Error(t, p.Send(code, 1, nil, clk))
	}
	// The breaker has now seen 3 consecutive failures and trips open,
	// short-circuiting the 4th call before it ever reaches the socket.
	err := p.Send(code, 1, nil, clk)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
}

func TestHandshakeStateString(t *testing.T) {
	assert.Equal(t, "connecting", Connecting.String())
	assert.Equal(t, "intrinsics-pending", IntrinsicsPending.String())
	assert.Equal(t, "ready", Ready.String())
	assert.Equal(t, "disconnected", Disconnected.String())
}
