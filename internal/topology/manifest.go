// Package topology holds the static expected-components tree: which
// synthesis beams belong to which IF chain, which detectors belong to
// which beam, and the parallel synthesis-beam -> array-beam mapping. The
// tree is parsed from a manifest file and is reloadable without restarting
// the process, using an fsnotify-driven watch that validates before
// swapping in the new tree.
package topology

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"
)

const headerLiteral = "sonata expected components v"

var headerVersionRe = regexp.MustCompile(`^sonata expected components v(\d+)\.(\d+)`)

// Beam is one synthesis beam: its IF chain, its detectors, and the
// array-level (polarization-tagged) beam names that feed it.
type Beam struct {
	Name       string
	DXNames    []string
	ArrayBeams []string
}

// IFChain is one IF chain and the synthesis beams it feeds.
type IFChain struct {
	Name      string
	BeamNames []string
}

// Tree is the parsed, validated expected-components tree for one site.
type Tree struct {
	SiteName    string
	MajorVer    int
	MinorVer    int
	ifcs        map[string]*IFChain
	beams       map[string]*Beam
	ifcOrder    []string
	beamOrder   []string
	beamToIFC   map[string]string // beam -> owning IFC
	dxToBeam    map[string]string // dx -> owning beam
	arrayToBeam map[string]string // array-beam name -> owning synthesis beam
}

// IFCs returns the IF-chain names in manifest order.
func (t *Tree) IFCs() []string { return append([]string(nil), t.ifcOrder...) }

// Beams returns a chain's synthesis-beam names in manifest order, or nil if
// the chain is unknown.
func (t *Tree) Beams(ifcName string) []string {
	ifc, ok := t.ifcs[ifcName]
	if !ok {
		return nil
	}
	return append([]string(nil), ifc.BeamNames...)
}

// DXs returns a beam's detector names in manifest order.
func (t *Tree) DXs(beamName string) []string {
	b, ok := t.beams[beamName]
	if !ok {
		return nil
	}
	return append([]string(nil), b.DXNames...)
}

// ArrayBeams returns the array-level beam names mapped to a synthesis beam.
func (t *Tree) ArrayBeams(beamName string) []string {
	b, ok := t.beams[beamName]
	if !ok {
		return nil
	}
	return append([]string(nil), b.ArrayBeams...)
}

// IFCOf returns the IF chain owning a synthesis beam.
func (t *Tree) IFCOf(beamName string) (string, bool) {
	ifc, ok := t.beamToIFC[beamName]
	return ifc, ok
}

// BeamOf returns the synthesis beam owning a detector.
func (t *Tree) BeamOf(dxName string) (string, bool) {
	b, ok := t.dxToBeam[dxName]
	return b, ok
}

// SynthesisBeamOf returns the synthesis beam an array-beam name feeds.
func (t *Tree) SynthesisBeamOf(arrayBeamName string) (string, bool) {
	b, ok := t.arrayToBeam[arrayBeamName]
	return b, ok
}

// Covers reports whether dxName appears anywhere in the tree.
func (t *Tree) Covers(dxName string) bool {
	_, ok := t.dxToBeam[dxName]
	return ok
}

// Parse reads an expected-components manifest and builds a
// validated Tree. It enforces: a header line containing the literal
// "sonata expected components v<maj>.<min>"; each detector belongs to
// exactly one synthesis beam; each synthesis beam to exactly one IF chain;
// and the graph is acyclic (guaranteed structurally by the three-level
// Site/Ifc/Beam/Dx grammar, but cross-checked for duplicate ownership,
// which is the only way this grammar could otherwise cycle back on itself).
func Parse(r io.Reader) (*Tree, error) {
	sc := bufio.NewScanner(r)
	t := &Tree{
		ifcs:        make(map[string]*IFChain),
		beams:       make(map[string]*Beam),
		beamToIFC:   make(map[string]string),
		dxToBeam:    make(map[string]string),
		arrayToBeam: make(map[string]string),
	}

	sawHeader := false
	beamToArrayPending := make(map[string][]string)

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			continue
		}
		if !sawHeader {
			if !strings.Contains(line, headerLiteral) {
				return nil, fmt.Errorf("topology: first non-comment line must contain %q, got %q", headerLiteral, line)
			}
			m := headerVersionRe.FindStringSubmatch(line)
			if m == nil {
				return nil, fmt.Errorf("topology: malformed header version in %q", line)
			}
			fmt.Sscanf(m[1], "%d", &t.MajorVer)
			fmt.Sscanf(m[2], "%d", &t.MinorVer)
			sawHeader = true
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 2 {
			return nil, fmt.Errorf("topology: malformed entry %q", line)
		}
		keyword, name := fields[0], fields[1]
		switch keyword {
		case "Site":
			if len(fields) < 4 || fields[2] != "IfcList" {
				return nil, fmt.Errorf("topology: malformed Site entry %q", line)
			}
			t.SiteName = name
			for _, ifcName := range fields[3:] {
				if _, exists := t.ifcs[ifcName]; !exists {
					t.ifcs[ifcName] = &IFChain{Name: ifcName}
					t.ifcOrder = append(t.ifcOrder, ifcName)
				}
			}
		case "Ifc":
			if len(fields) < 4 || fields[2] != "BeamList" {
				return nil, fmt.Errorf("topology: malformed Ifc entry %q", line)
			}
			ifc, ok := t.ifcs[name]
			if !ok {
				return nil, fmt.Errorf("topology: Ifc %q not declared in Site IfcList", name)
			}
			for _, beamName := range fields[3:] {
				if owner, exists := t.beamToIFC[beamName]; exists && owner != name {
					return nil, fmt.Errorf("topology: beam %q claimed by both %q and %q", beamName, owner, name)
				}
				t.beamToIFC[beamName] = name
				ifc.BeamNames = append(ifc.BeamNames, beamName)
				if _, exists := t.beams[beamName]; !exists {
					t.beams[beamName] = &Beam{Name: beamName}
					t.beamOrder = append(t.beamOrder, beamName)
				}
			}
		case "Beam":
			if len(fields) < 4 || fields[2] != "DxList" {
				return nil, fmt.Errorf("topology: malformed Beam entry %q", line)
			}
			b, ok := t.beams[name]
			if !ok {
				return nil, fmt.Errorf("topology: Beam %q not declared in any Ifc BeamList", name)
			}
			for _, dxName := range fields[3:] {
				if owner, exists := t.dxToBeam[dxName]; exists && owner != name {
					return nil, fmt.Errorf("topology: dx %q claimed by both %q and %q", dxName, owner, name)
				}
				t.dxToBeam[dxName] = name
				b.DXNames = append(b.DXNames, dxName)
			}
		case "BeamToAtaBeams":
			beamToArrayPending[name] = append(beamToArrayPending[name], fields[2:]...)
		default:
			return nil, fmt.Errorf("topology: unknown keyword %q", keyword)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("topology: scan manifest: %w", err)
	}
	if !sawHeader {
		return nil, fmt.Errorf("topology: manifest missing required header line")
	}

	for beamName, arrayNames := range beamToArrayPending {
		b, ok := t.beams[beamName]
		if !ok {
			return nil, fmt.Errorf("topology: BeamToAtaBeams for undeclared beam %q", beamName)
		}
		b.ArrayBeams = arrayNames
		for _, a := range arrayNames {
			if owner, exists := t.arrayToBeam[a]; exists && owner != beamName {
				return nil, fmt.Errorf("topology: array-beam %q claimed by both %q and %q", a, owner, beamName)
			}
			t.arrayToBeam[a] = beamName
		}
	}

	if err := t.validateTuningLetters(); err != nil {
		return nil, err
	}
	return t, nil
}

// tuningLetterRe extracts the trailing polarization/tuning letter from an
// array-beam name, e.g. "beam1a" -> "a".
var tuningLetterRe = regexp.MustCompile(`([A-Za-z])$`)

// validateTuningLetters enforces that every array-beam name carries a
// trailing tuning letter.
func (t *Tree) validateTuningLetters() error {
	for _, beamName := range t.beamOrder {
		for _, ab := range t.beams[beamName].ArrayBeams {
			if !tuningLetterRe.MatchString(ab) {
				return fmt.Errorf("topology: array-beam %q on beam %q has no trailing tuning letter", ab, beamName)
			}
		}
	}
	return nil
}
