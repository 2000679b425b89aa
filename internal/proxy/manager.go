package proxy

import (
	"fmt"
	"net"
	"sync"

	"github.com/atasvc/sonata/internal/clock"
	"github.com/atasvc/sonata/internal/obserr"
	"github.com/atasvc/sonata/internal/telemetry/logging"
	"github.com/atasvc/sonata/internal/wire"
)

// PostHandshakeHook runs class-specific setup once a proxy's intrinsics are
// verified, e.g. the detector hook that sends current configuration, the
// permanent RFI mask, and both birdie masks to the detector.
type PostHandshakeHook func(p *Proxy) error

// Manager owns every proxy of one component class: it binds a listening
// endpoint, runs the accept-handshake-hook sequence, and guarantees a proxy
// handed to an activity stays alive until the activity releases it, even if
// its socket closes in between.
type Manager struct {
	class            wire.ComponentClass
	expectedIfaceVer string
	postHandshake    PostHandshakeHook
	clk              clock.Clock
	log              logging.Logger

	mu      sync.RWMutex
	proxies map[string]*Proxy
	names   []string // accept order, for naming unnamed connections
}

// NewManager constructs a Manager for one component class.
func NewManager(class wire.ComponentClass, expectedInterfaceVersion string, hook PostHandshakeHook, clk clock.Clock, log logging.Logger) *Manager {
	return &Manager{
		class:            class,
		expectedIfaceVer: expectedInterfaceVersion,
		postHandshake:    hook,
		clk:              clk,
		log:              log,
		proxies:          make(map[string]*Proxy),
	}
}

// Serve binds ln and accepts connections until ln is closed, constructing a
// fresh Proxy per accept and running it through the handshake.
func (m *Manager) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return fmt.Errorf("proxy: accept: %w", err)
		}
		go m.handleAccept(conn)
	}
}

func (m *Manager) handleAccept(conn net.Conn) {
	name := conn.RemoteAddr().String()
	p := New(name, m.class, conn, m.onDisconnect)

	m.mu.Lock()
	m.proxies[name] = p
	m.names = append(m.names, name)
	m.mu.Unlock()

	p.setState(IntrinsicsPending)
	if err := p.Send(wire.RequestIntrinsics(m.class), wire.NoActivityID, nil, m.clk); err != nil {
		m.log.Warn("proxy: request-intrinsics send failed", "proxy", name, "err", err)
		p.ResetSocket()
		return
	}
}

// HandleIntrinsics applies a SEND_INTRINSICS body the reactor read for p,
// verifies the interface version, and on success runs the class-specific
// post-handshake hook. A version mismatch forces immediate
// disconnect.
func (m *Manager) HandleIntrinsics(p *Proxy, in Intrinsics) error {
	if in.InterfaceVersion != m.expectedIfaceVer {
		m.log.Error("proxy: interface version mismatch, disconnecting",
			"proxy", p.GetName(), "expected", m.expectedIfaceVer, "got", in.InterfaceVersion)
		p.ResetSocket()
		return obserr.New(obserr.VersionMismatch, fmt.Sprintf("proxy %s: expected %s got %s", p.GetName(), m.expectedIfaceVer, in.InterfaceVersion))
	}
	p.setIntrinsics(in)
	p.setState(Ready)
	if m.postHandshake != nil {
		if err := m.postHandshake(p); err != nil {
			m.log.Error("proxy: post-handshake hook failed", "proxy", p.GetName(), "err", err)
			return err
		}
	}
	return nil
}

// HandleStatus applies a SEND_STATUS body the reactor read for p.
func (m *Manager) HandleStatus(p *Proxy, s Status) {
	p.setStatus(s)
}

// onDisconnect removes a proxy from the manager's set and, if it was
// attached, lets the activity's own completion path notice via its next
// proxy access; this manager does not force-detach so the activity's
// bookkeeping stays exclusively the activity's job.
func (m *Manager) onDisconnect(p *Proxy) {
	m.mu.Lock()
	delete(m.proxies, p.GetName())
	m.mu.Unlock()
	if a, ok := p.Attached(); ok {
		a.ComponentError(p, obserr.ComponentDisconnect, obserr.Error, "link lost")
	}
}

// ByName returns a live proxy by name.
func (m *Manager) ByName(name string) (*Proxy, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.proxies[name]
	return p, ok
}

// All returns every currently connected proxy of this class.
func (m *Manager) All() []*Proxy {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Proxy, 0, len(m.proxies))
	for _, p := range m.proxies {
		out = append(out, p)
	}
	return out
}

// Ready returns every proxy currently in the Ready handshake state.
func (m *Manager) Ready() []*Proxy {
	all := m.All()
	out := all[:0]
	for _, p := range all {
		if p.State() == Ready {
			out = append(out, p)
		}
	}
	return out
}
