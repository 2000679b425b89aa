package obsmodel

import "time"

// ActivityID is the increasing identifier assigned to every activity, either
// by a database insert or, with persistence off, by a per-strategy in-memory
// counter. The in-memory counter is not saved, so its IDs restart with the
// process.
type ActivityID int32

// NoActivityID is the sentinel distinguishing messages not tied to any
// activity.
const NoActivityID ActivityID = -1

// TargetRecord is a catalog entry resolved at observation time.
type TargetRecord struct {
	TargetID      int64
	RA2000Rads    float64
	Dec2000Rads   float64
	PMRA          float64 // proper motion, rad per Julian year
	PMDec         float64
	Parallax      float64
	IsMoving      bool
	EphemerisFile string // only meaningful when IsMoving
}

// ObsRange is a half-open interval of sky frequency in MHz, used by the
// target selector and the DX tuner.
type ObsRange struct {
	LowMHz, HighMHz float64
}

func (r ObsRange) Width() float64 { return r.HighMHz - r.LowMHz }

func (r ObsRange) Contains(freqMHz float64) bool {
	return freqMHz >= r.LowMHz && freqMHz < r.HighMHz
}

// Tuning is an RF local-oscillator setting feeding one or more synthesis
// beams.
type Tuning struct {
	Name       string
	SkyFreqMHz float64
}

// HalfBandwidth returns half of the tuning's total usable bandwidth; callers
// supply the bandwidth since it's a property of the IF chain, not the tuning.
func HalfBandwidth(totalBandwidthMHz float64) float64 { return totalBandwidthMHz / 2 }

// InBand reports whether a DX frequency is within the tuning's allowed band.
func InBand(dxFreqMHz, tuningCenterMHz, halfBandwidthMHz float64) bool {
	delta := dxFreqMHz - tuningCenterMHz
	if delta < 0 {
		delta = -delta
	}
	return delta <= halfBandwidthMHz
}

// DXFreqPlan is one detector's frequency assignment within an activity.
// SkyFreqMHz < 0 is the sentinel for "detector unused this activity".
type DXFreqPlan struct {
	DXName        string
	SkyFreqMHz    float64
	ChannelNumber int
	BandwidthMHz  float64
}

func (p DXFreqPlan) Unused() bool { return p.SkyFreqMHz < 0 }

// AvoidanceCones bundles the angular-radius exclusion zones the target
// selector enforces. A zero radius disables that cone.
type AvoidanceCones struct {
	SunRads    float64
	MoonRads   float64
	GeosatRads float64
	ZenithRads float64
}

// Visibility describes a target's observability window at a site.
type Visibility struct {
	AboveHorizon      bool
	RiseTime, SetTime time.Time
	RemainingUptime   time.Duration
}

// Available reports whether the target is visible from the site horizon
// with remaining above-horizon time at least setup + data collection length.
func (v Visibility) Available(setupTime, dataCollectionLength time.Duration) bool {
	return v.AboveHorizon && v.RemainingUptime >= setupTime+dataCollectionLength
}
