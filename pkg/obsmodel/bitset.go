// Package obsmodel holds the wire-independent data model shared by every
// layer of the observing control plane: operations bitsets, target and
// frequency-plan records, and the activity record that aggregates them.
package obsmodel

// Operation is one bit of the operations bitset an activity carries.
// Activity *types* are distinguished by which bits are set at construction,
// not by Go subtypes: the bitset is the polymorphism mechanism.
type Operation uint64

const (
	TestSignalGen Operation = 1 << iota
	UseTscope
	RFTune
	UseIFC
	UseDX
	PointAtTargets
	Calibrate
	FollowUpObservation
	OnObservation
	OffObservation
	ClassifyAllAsRFIScan
	CreateRecentRFIMask
	MultitargetObservation
	ForceArchivingAroundCenter
	DoNotReportConfirmedCandidates
	AutoselectAnts
	PrepareAnts
	FreeAnts
	BeamformerReset
	BeamformerInit
	BeamformerAutoAtten
	PointAntsAndWait
	GridOnObservation
	GridNorthObservation
	GridSouthObservation
	GridEastObservation
	GridWestObservation
)

// Ops is the operations bitset for one activity. RFTune implies UseIFC: any
// constructor that sets RFTune must also set UseIFC, enforced by Normalize.
type Ops uint64

func NewOps(flags ...Operation) Ops {
	var o Ops
	for _, f := range flags {
		o |= Ops(f)
	}
	return o.Normalize()
}

// Normalize applies the one hard implication the bitset carries: RF_TUNE
// implies USE_IFC.
func (o Ops) Normalize() Ops {
	if Operation(o)&RFTune != 0 {
		o |= Ops(UseIFC)
	}
	return o
}

func (o Ops) Has(f Operation) bool { return Operation(o)&f != 0 }

func (o Ops) Set(f Operation) Ops   { return (o | Ops(f)).Normalize() }
func (o Ops) Clear(f Operation) Ops { return o &^ Ops(f) }

// SecondaryCandidateProcessing reports whether the activity must run the
// states 9-10 ring-broadcast/resolve pass.
func (o Ops) SecondaryCandidateProcessing() bool {
	return o.Has(MultitargetObservation) || o.Has(ForceArchivingAroundCenter)
}

// zeroDriftExemptTypes names activity types that have REJECT_ZERO_DRIFT
// cleared by name rather than by flag.
// This is carried forward as-is: any new activity type must be audited
// manually against this list, it is not flag-driven.
var zeroDriftExemptTypes = map[string]bool{
	"off":             true,
	"zero-drift-test": true,
}

// RejectZeroDriftExempt reports whether activityType is one of the names
// that has the REJECT_ZERO_DRIFT detector behavior suppressed.
func RejectZeroDriftExempt(activityType string) bool {
	return zeroDriftExemptTypes[activityType]
}
