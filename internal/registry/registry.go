// Package registry binds the static expected-components tree (C3) to the
// live per-class component managers (C4), resolving the proxy subsets an
// activity needs for a given synthesis beam.
package registry

import (
	"github.com/atasvc/sonata/internal/observe"
	"github.com/atasvc/sonata/internal/proxy"
	"github.com/atasvc/sonata/internal/topology"
)

// Managers bundles one *proxy.Manager per component class the activity
// fleet spans.
type Managers struct {
	Tscope      *proxy.Manager
	IFC         *proxy.Manager
	TestSig     *proxy.Manager
	DX          *proxy.Manager
	Archiver    *proxy.Manager
	Channelizer *proxy.Manager
}

// Registry implements obsstrategy.ProxyRegistry.
type Registry struct {
	tree     *topology.Tree
	managers Managers
}

func New(tree *topology.Tree, managers Managers) *Registry {
	return &Registry{tree: tree, managers: managers}
}

// ProxiesForBeam resolves every live proxy relevant to beamName: the DXs it
// owns plus the owning IF chain, following the topology tree.
func (r *Registry) ProxiesForBeam(beamName string) observe.ProxySets {
	out := observe.ProxySets{
		Tscope:      namedSet(r.managers.Tscope),
		IFC:         make(map[string]*proxy.Proxy),
		TestSig:     namedSet(r.managers.TestSig),
		DX:          make(map[string]*proxy.Proxy),
		Archiver:    namedSet(r.managers.Archiver),
		Channelizer: namedSet(r.managers.Channelizer),
	}
	if r.tree == nil {
		return out
	}
	if ifcName, ok := r.tree.IFCOf(beamName); ok && r.managers.IFC != nil {
		if p, ok := r.managers.IFC.ByName(ifcName); ok {
			out.IFC[ifcName] = p
		}
	}
	if r.managers.DX != nil {
		for _, dxName := range r.tree.DXs(beamName) {
			if p, ok := r.managers.DX.ByName(dxName); ok {
				out.DX[dxName] = p
			}
		}
	}
	return out
}

func namedSet(m *proxy.Manager) map[string]*proxy.Proxy {
	out := make(map[string]*proxy.Proxy)
	if m == nil {
		return out
	}
	for _, p := range m.Ready() {
		out[p.GetName()] = p
	}
	return out
}
