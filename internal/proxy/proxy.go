// Package proxy implements the per-component proxy and component-manager
// machinery: one Proxy per connected hardware
// process, owned by a ComponentManager, with a reactor-driven handshake and
// a single componentError hook that forwards classified failures to at most
// one attached activity.
package proxy

import (
	"bufio"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"

	"github.com/atasvc/sonata/internal/clock"
	"github.com/atasvc/sonata/internal/obserr"
	"github.com/atasvc/sonata/internal/wire"
)

// HandshakeState is the proxy's connection lifecycle state.
type HandshakeState int

const (
	Connecting HandshakeState = iota
	IntrinsicsPending
	Ready
	Disconnected
)

func (s HandshakeState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case IntrinsicsPending:
		return "intrinsics-pending"
	case Ready:
		return "ready"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Intrinsics is the cached per-device version/hostname/hardware-limits
// record fetched once at handshake time.
type Intrinsics struct {
	InterfaceVersion string
	Hostname         string
	HardwareLimits   map[string]float64
}

// Status is the cached per-device status record, refreshed on demand by
// RequestStatusUpdate.
type Status struct {
	AsOf   time.Time
	Fields map[string]any
}

// ErrorHook is the single callback a Proxy uses to forward a classified
// failure to its attached activity.
type ErrorHook func(p *Proxy, kind obserr.Kind, severity obserr.Severity, message string)

// Activity is the minimal surface a Proxy needs from whatever holds its
// non-owning reference, so this package never imports the activity layer.
type Activity interface {
	ComponentError(p *Proxy, kind obserr.Kind, severity obserr.Severity, message string)
}

// Proxy owns one connected device: its framed socket, cached status and
// intrinsics, and handshake state. It is owned by its ComponentManager;
// an activity borrows it via Attach/Detach (non-owning) and must Detach
// before the activity completes.
type Proxy struct {
	name  string
	class wire.ComponentClass

	mu         sync.RWMutex
	conn       net.Conn
	reader     *bufio.Reader
	state      HandshakeState
	intrinsics Intrinsics
	status     Status

	attached   atomic.Pointer[attachedActivity]
	msgCounter uint32

	breaker        *gobreaker.CircuitBreaker
	disconnectHook func(*Proxy)
}

type attachedActivity struct {
	activity Activity
}

// New wraps an accepted connection as a fresh, not-yet-handshaken Proxy.
func New(name string, class wire.ComponentClass, conn net.Conn, onDisconnect func(*Proxy)) *Proxy {
	return &Proxy{
		name:           name,
		class:          class,
		conn:           conn,
		reader:         bufio.NewReader(conn),
		state:          Connecting,
		disconnectHook: onDisconnect,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}),
	}
}

func (p *Proxy) GetName() string            { return p.name }
func (p *Proxy) Class() wire.ComponentClass { return p.class }

func (p *Proxy) GetIntrinsics() Intrinsics {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.intrinsics
}

func (p *Proxy) GetCachedStatus() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

func (p *Proxy) State() HandshakeState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

func (p *Proxy) setState(s HandshakeState) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

func (p *Proxy) setIntrinsics(i Intrinsics) {
	p.mu.Lock()
	p.intrinsics = i
	p.mu.Unlock()
}

func (p *Proxy) setStatus(s Status) {
	p.mu.Lock()
	p.status = s
	p.mu.Unlock()
}

// nextMessageNumber returns the next 1-based monotonic sender counter for
// this proxy's outbound frames.
func (p *Proxy) nextMessageNumber() uint32 {
	return atomic.AddUint32(&p.msgCounter, 1)
}

// Send marshals and writes a frame to the device, routed through the
// proxy's circuit breaker: repeated send failures against a wedged device
// back off instead of hammering a dead socket on every watchdog tick.
func (p *Proxy) Send(code wire.Code, activityID int32, body []byte, clk clock.Clock) error {
	_, err := p.breaker.Execute(func() (any, error) {
		sec, usec := wire.NowTimestamp(clk.Now())
		h := wire.Header{
			Code:          code,
			MessageNumber: p.nextMessageNumber(),
			ActivityID:    activityID,
			TimestampSec:  sec,
			TimestampUsec: usec,
		}
		p.mu.RLock()
		conn := p.conn
		p.mu.RUnlock()
		return nil, wire.Marshal(conn, h, body)
	})
	return err
}

// RequestStatusUpdate sends REQUEST_STATUS for this proxy's class; the
// response is applied to the cached Status by the manager's reactor loop
// when SEND_STATUS arrives.
func (p *Proxy) RequestStatusUpdate(clk clock.Clock) error {
	return p.Send(wire.RequestStatus(p.class), wire.NoActivityID, nil, clk)
}

// Stop tells the device to stop its current operation without dropping the
// link, the first step of the watchdog-expiry sequence.
func (p *Proxy) Stop(activityID int32, clk clock.Clock) error {
	return p.Send(wire.Stop(p.class), activityID, nil, clk)
}

// Shutdown tells the device to shut down and marks the proxy disconnected.
func (p *Proxy) Shutdown(clk clock.Clock) error {
	err := p.Send(wire.CodeFor(p.class, wire.OffsetDomainCommandsBase), wire.NoActivityID, nil, clk)
	p.setState(Disconnected)
	return err
}

// ResetSocketCmd tells the device to reset its socket, the last step of the
// watchdog-expiry sequence, before this side also closes its end via
// ResetSocket.
func (p *Proxy) ResetSocketCmd(clk clock.Clock) error {
	return p.Send(wire.ResetSocket(p.class), wire.NoActivityID, nil, clk)
}

// ResetSocket closes and clears the underlying connection; the manager is
// responsible for noticing via its accept loop if the device reconnects.
func (p *Proxy) ResetSocket() {
	p.mu.Lock()
	if p.conn != nil {
		p.conn.Close()
	}
	p.state = Disconnected
	p.mu.Unlock()
	if p.disconnectHook != nil {
		p.disconnectHook(p)
	}
}

// Attach bracket-borrows this proxy to an activity. It returns false if the
// proxy is already attached to a different activity.
func (p *Proxy) Attach(a Activity) bool {
	return p.attached.CompareAndSwap(nil, &attachedActivity{activity: a})
}

// Detach releases the non-owning reference. Idempotent.
func (p *Proxy) Detach() {
	p.attached.Store(nil)
}

// Attached reports the currently attached activity, if any.
func (p *Proxy) Attached() (Activity, bool) {
	a := p.attached.Load()
	if a == nil {
		return nil, false
	}
	return a.activity, true
}

// ReportError classifies and forwards a device-originated failure to the
// attached activity, if any. With no attached activity there is nothing to
// terminate, so the error is dropped.
func (p *Proxy) ReportError(kind obserr.Kind, severity obserr.Severity, message string) {
	if a, ok := p.Attached(); ok {
		a.ComponentError(p, kind, severity, message)
	}
}
