package registry

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atasvc/sonata/internal/clock"
	"github.com/atasvc/sonata/internal/proxy"
	"github.com/atasvc/sonata/internal/telemetry/logging"
	"github.com/atasvc/sonata/internal/topology"
	"github.com/atasvc/sonata/internal/wire"
)

func testTree(t *testing.T) *topology.Tree {
	t.Helper()
	manifest := `sonata expected components v1.0
Site site1 IfcList ifc1
Ifc ifc1 BeamList beam1
Beam beam1 DxList dx1 dx2
`
	tr, err := topology.Parse(strings.NewReader(manifest))
	require.NoError(t, err)
	return tr
}

func testManager(class wire.ComponentClass) *proxy.Manager {
	clk := clock.NewFake(time.Unix(1_700_000_000, 0))
	return proxy.NewManager(class, "1.0", nil, clk, logging.New(nil))
}

func TestProxiesForBeamNilTreeReturnsEmptySetsWithoutPanic(t *testing.T) {
	r := New(nil, Managers{
		Tscope: testManager(wire.ClassTscope),
		DX:     testManager(wire.ClassDX),
	})

	out := r.ProxiesForBeam("beam1")
	assert.Empty(t, out.IFC)
	assert.Empty(t, out.DX)
	assert.NotNil(t, out.Tscope)
}

func TestProxiesForBeamMissingManagersResolveToEmptyMaps(t *testing.T) {
	r := New(testTree(t), Managers{})

	out := r.ProxiesForBeam("beam1")
	assert.Empty(t, out.Tscope)
	assert.Empty(t, out.IFC)
	assert.Empty(t, out.TestSig)
	assert.Empty(t, out.DX)
	assert.Empty(t, out.Archiver)
	assert.Empty(t, out.Channelizer)
}

func TestProxiesForBeamUnknownBeamResolvesNothing(t *testing.T) {
	r := New(testTree(t), Managers{DX: testManager(wire.ClassDX), IFC: testManager(wire.ClassIFC)})

	out := r.ProxiesForBeam("does-not-exist")
	assert.Empty(t, out.DX)
	assert.Empty(t, out.IFC)
}
