package obsmodel

import "time"

// PrimaryPointing is either a catalog target or an explicit RA/Dec, used for
// the primary antenna-pattern beam.
type PrimaryPointing struct {
	TargetID  int64 // 0 if RA/Dec is explicit
	RARads    float64
	DecRads   float64
	HasTarget bool
}

// ObsSummaryStats aggregates per-activity candidate counts by category,
// accumulated over the lifetime of an ObserveActivity.
type ObsSummaryStats struct {
	CandidateCount      int
	ConfirmedCount      int
	CandidatesRFI       int
	ActivityUnitsOK     int
	ActivityUnitsFailed int
	DataCollectionSecs  float64
}

// ActivityRecord aggregates everything persisted and carried for one
// observation attempt.
type ActivityRecord struct {
	ID                      ActivityID
	ActivityType            string
	StrategyName            string
	Ops                     Ops
	DXOps                   Ops
	SelectedTargetIDsByBeam map[string]int64
	Primary                 PrimaryPointing
	TuningsByRF             map[string]Tuning
	FreqPlan                map[string][]DXFreqPlan // keyed by synthesis beam name
	ChannelizerTuneMHz      map[string]float64      // keyed by synthesis beam name
	ScheduledStart          int64                   // UTC epoch seconds
	Summary                 ObsSummaryStats
	DiskStatus              string

	// Validated parameters, carried so follow-up validation can reuse the
	// *original* activity's parameters.
	Params UserParameters
}

// UserParameters is the subset of activity parameters a strategy resolves
// once per activity before starting it; additional strategy-specific fields
// live in obsstrategy.Params, which embeds this.
type UserParameters struct {
	ActivityType         string           `validate:"required"`
	TargetIDsByBeam      map[string]int64 `validate:"required_without=PrimaryRARads"`
	PrimaryRARads        float64
	PrimaryDecRads       float64
	DataCollectionLength time.Duration      `validate:"required,gt=0"`
	TuningCenterMHz      map[string]float64 `validate:"required"`
	DXBandwidthMHz       float64            `validate:"gt=0"`
	StartDelay           time.Duration
}

// TargetSelectionMode is how a target observation picks its target: by a
// fixed user choice, by the automated selector, or commensally off whatever
// is already being pointed at.
type TargetSelectionMode string

const (
	ModeUser      TargetSelectionMode = "user"
	ModeSemiAuto  TargetSelectionMode = "semi-auto"
	ModeAuto      TargetSelectionMode = "auto"
	ModeAutoRise  TargetSelectionMode = "auto-rise"
	ModeCommensal TargetSelectionMode = "commensal"
)

// TuningPlanStrategy picks how a detector's tuning frequency is chosen
// within the selected band.
type TuningPlanStrategy string

const (
	TuningRangeCenter TuningPlanStrategy = "range-center"
	TuningUser        TuningPlanStrategy = "user"
	TuningForever     TuningPlanStrategy = "forever"
)
