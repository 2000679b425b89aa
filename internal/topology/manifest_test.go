package topology

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validManifest = `
# comment line
sonata expected components v1.0
Site hat-creek IfcList ifc1
Ifc ifc1 BeamList beam1 beam2
Beam beam1 DxList dx1 dx2
Beam beam2 DxList dx3
BeamToAtaBeams beam1 beam1a beam1b
BeamToAtaBeams beam2 beam2a
`

func parseValid(t *testing.T) *Tree {
	t.Helper()
	tree, err := Parse(strings.NewReader(validManifest))
	require.NoError(t, err)
	return tree
}

func TestParseValidManifest(t *testing.T) {
	tree := parseValid(t)

	assert.Equal(t, "hat-creek", tree.SiteName)
	assert.Equal(t, 1, tree.MajorVer)
	assert.Equal(t, 0, tree.MinorVer)
	assert.Equal(t, []string{"ifc1"}, tree.IFCs())
	assert.ElementsMatch(t, []string{"beam1", "beam2"}, tree.Beams("ifc1"))
	assert.ElementsMatch(t, []string{"dx1", "dx2"}, tree.DXs("beam1"))
	assert.ElementsMatch(t, []string{"dx3"}, tree.DXs("beam2"))
	assert.ElementsMatch(t, []string{"beam1a", "beam1b"}, tree.ArrayBeams("beam1"))

	ifc, ok := tree.IFCOf("beam1")
	require.True(t, ok)
	assert.Equal(t, "ifc1", ifc)

	beam, ok := tree.BeamOf("dx2")
	require.True(t, ok)
	assert.Equal(t, "beam1", beam)

	synth, ok := tree.SynthesisBeamOf("beam2a")
	require.True(t, ok)
	assert.Equal(t, "beam2", synth)

	assert.True(t, tree.Covers("dx1"))
	assert.False(t, tree.Covers("dx-nonexistent"))
}

func TestParseRejectsMissingHeader(t *testing.T) {
	manifest := `Site hat-creek IfcList ifc1
Ifc ifc1 BeamList beam1
Beam beam1 DxList dx1
`
	_, err := Parse(strings.NewReader(manifest))
	assert.Error(t, err)
}

func TestParseRejectsMalformedHeaderVersion(t *testing.T) {
	manifest := "sonata expected components vX.Y\n"
	_, err := Parse(strings.NewReader(manifest))
	assert.Error(t, err)
}

func TestParseRejectsDXClaimedByTwoBeams(t *testing.T) {
	manifest := `sonata expected components v1.0
Site hat-creek IfcList ifc1
Ifc ifc1 BeamList beam1 beam2
Beam beam1 DxList dx1
Beam beam2 DxList dx1
`
	_, err := Parse(strings.NewReader(manifest))
	assert.Error(t, err, "each detector must belong to exactly one synthesis beam")
}

func TestParseRejectsBeamClaimedByTwoIFCs(t *testing.T) {
	manifest := `sonata expected components v1.0
Site hat-creek IfcList ifc1 ifc2
Ifc ifc1 BeamList beam1
Ifc ifc2 BeamList beam1
`
	_, err := Parse(strings.NewReader(manifest))
	assert.Error(t, err, "each synthesis beam must belong to exactly one IF chain")
}

func TestParseRejectsArrayBeamWithNoTuningLetter(t *testing.T) {
	manifest := `sonata expected components v1.0
Site hat-creek IfcList ifc1
Ifc ifc1 BeamList beam1
Beam beam1 DxList dx1
BeamToAtaBeams beam1 beam1-no-letter-9
`
	_, err := Parse(strings.NewReader(manifest))
	assert.Error(t, err, "every array-beam name must encode a trailing tuning letter")
}

func TestParseRejectsUndeclaredBeamInIfc(t *testing.T) {
	manifest := `sonata expected components v1.0
Site hat-creek IfcList ifc1
Beam beam1 DxList dx1
`
	_, err := Parse(strings.NewReader(manifest))
	assert.Error(t, err)
}

func TestCoversFalseForUnknownDX(t *testing.T) {
	tree := parseValid(t)
	assert.False(t, tree.Covers("never-declared"))
}
