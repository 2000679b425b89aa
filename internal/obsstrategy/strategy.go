// Package obsstrategy implements ObsActStrategy: the
// observation strategy layered on activitybase.Base with target selection,
// DX tuning-plan computation, follow-up dispatch, and the commensal-
// calibration and primary-target-rotation timers.
package obsstrategy

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/atasvc/sonata/internal/activitybase"
	"github.com/atasvc/sonata/internal/clock"
	"github.com/atasvc/sonata/internal/followup"
	"github.com/atasvc/sonata/internal/obserr"
	"github.com/atasvc/sonata/internal/observe"
	"github.com/atasvc/sonata/internal/targetselector"
	"github.com/atasvc/sonata/internal/telemetry/logging"
	"github.com/atasvc/sonata/internal/topology"
	"github.com/atasvc/sonata/pkg/obsmodel"
)

// validate checks the struct tags on obsmodel.UserParameters, the one place this package needs struct-tag validation rather
// than the hand-rolled constraint checks selectNext/planTuning already do.
var validate = validator.New()

// Params is the full per-run parameter set a strategy instance is started
// with.
type Params struct {
	obsmodel.UserParameters

	Mode               obsmodel.TargetSelectionMode
	TuningPlanStrategy obsmodel.TuningPlanStrategy
	BeamName           string
	CandidateIDs       []int64
	NBeams             int

	// OtherBeamNames lists the additional synthesis beams multi-target mode
	// rides a secondary target on, alongside BeamName's primary target. Its
	// length should match NBeams-1; selectNext ignores it when empty.
	OtherBeamNames []string

	CommensalCalIntervalMinutes int
	RotateIntervalMinutes       int
	PipeliningEnabled           bool

	// Commensal-cal target pool: PrimaryCalTargetID is preferred when it's
	// currently eligible, otherwise the highest-ranked eligible target in
	// CalTargetIDs is used.
	PrimaryCalTargetID int64
	CalTargetIDs       []int64

	// OFF-position placement, only consulted
	// when ActivityType == "off".
	MinBeamSepFactor  float64
	SynthBeamsizeRads float64

	ChannelizerOutputChannels  int
	ChannelizerChannelWidthMHz float64
}

// ProxyRegistry resolves the proxy subsets an activity needs for a beam,
// narrow enough that production code satisfies it with the real
// component-manager set and tests with fakes.
type ProxyRegistry interface {
	ProxiesForBeam(beamName string) observe.ProxySets
}

// Deps bundles everything ObsActStrategy needs beyond its Params.
type Deps struct {
	Topology *topology.Tree
	Selector *targetselector.Selector
	FollowUp *followup.Engine
	Store    observe.Store
	Registry ProxyRegistry
	Clock    clock.Clock
	Log      logging.Logger
	ObsCfg   observe.Config
	Name     string // strategy instance name, for logging/status
}

// ObsActStrategy is the observation strategy.
type ObsActStrategy struct {
	base *activitybase.Base
	deps Deps

	mu         sync.Mutex
	params     Params
	running    map[obsmodel.ActivityID]*observe.Activity
	completed  map[obsmodel.ActivityID]obsmodel.ActivityRecord
	nextID     obsmodel.ActivityID
	onComplete func(failed bool)

	pendingCal  bool
	calTimer    clock.Timer
	rotateTimer clock.Timer
}

// New constructs an ObsActStrategy ready to Run.
func New(cfg activitybase.Config, params Params, deps Deps, onComplete func(failed bool)) *ObsActStrategy {
	s := &ObsActStrategy{
		deps:       deps,
		params:     params,
		running:    make(map[obsmodel.ActivityID]*observe.Activity),
		completed:  make(map[obsmodel.ActivityID]obsmodel.ActivityRecord),
		onComplete: onComplete,
	}
	s.base = activitybase.New(cfg, deps.Clock, deps.Log, s)
	return s
}

// Run drives the actor until completion.
func (s *ObsActStrategy) Run(ctx context.Context) {
	if s.params.Mode == obsmodel.ModeCommensal || s.params.CommensalCalIntervalMinutes > 0 {
		s.armCommensalCalTimer(ctx)
	}
	if s.params.RotateIntervalMinutes > 0 {
		s.armRotateTimer()
	}
	s.base.Run(ctx)
}

// Stop implements scheduler.Strategy.
func (s *ObsActStrategy) Stop() { s.base.Stop() }

// --- activitybase.Hooks ---

// ValidateTargets resolves every per-beam target ID in the current
// parameters.
func (s *ObsActStrategy) ValidateTargets(ctx context.Context) error {
	s.mu.Lock()
	params := s.params.UserParameters
	ids := append([]int64(nil), s.params.CandidateIDs...)
	s.mu.Unlock()

	if err := validate.Struct(params); err != nil {
		return obserr.Wrap(obserr.InvalidParameters, "user parameters", err)
	}
	if len(ids) == 0 {
		return nil
	}
	_, err := s.deps.Selector.Candidates(ctx, ids, float64(s.deps.Clock.Now().Unix()))
	return err
}

// StartNextActivity attempts to construct and start the next activity: a
// pending commensal-cal boundary first, then (unless pipelining is off and an
// activity is still running) regular selection, then the follow-up queue.
func (s *ObsActStrategy) StartNextActivity(ctx context.Context) (bool, error) {
	s.mu.Lock()
	pendingCal := s.pendingCal
	s.pendingCal = false
	s.mu.Unlock()

	if pendingCal {
		return s.startCalActivity(ctx)
	}

	if !s.params.PipeliningEnabled {
		s.mu.Lock()
		running := len(s.running)
		s.mu.Unlock()
		if running > 0 {
			return false, nil
		}
	}

	if rec, ok, err := s.selectNext(ctx); err != nil {
		return false, err
	} else if ok {
		return true, s.startActivity(ctx, rec)
	}

	if id, ok := s.deps.FollowUp.PopFront(); ok {
		return true, s.startFollowUp(ctx, id)
	}
	return false, nil
}

// RepeatStrategy re-arms for another pass.
func (s *ObsActStrategy) RepeatStrategy(ctx context.Context) {
	s.deps.Log.Info("obsstrategy: repeating", "strategy", s.deps.Name)
}

// Cleanup runs once the actor is about to stop for good.
func (s *ObsActStrategy) Cleanup(ctx context.Context) {
	s.mu.Lock()
	if s.calTimer != nil {
		s.calTimer.Stop()
	}
	if s.rotateTimer != nil {
		s.rotateTimer.Stop()
	}
	onComplete := s.onComplete
	s.mu.Unlock()
	if onComplete != nil {
		onComplete(false)
	}
}

// --- observe.Strategy ---

func (s *ObsActStrategy) DataCollectionComplete(a *observe.Activity) {
	s.deps.Log.Info("obsstrategy: data collection complete", "activity", a.ID())
}

func (s *ObsActStrategy) ActivityComplete(a *observe.Activity, failed bool) {
	s.mu.Lock()
	delete(s.running, a.ID())
	if !failed {
		s.completed[a.ID()] = a.Record()
	}
	s.mu.Unlock()
	if !failed {
		s.creditObservedBandwidth(a.Record())
	}
	s.base.Enqueue(activitybase.WorkItem{Kind: activitybase.WorkActivityComplete, ActivityID: a.ID(), Failed: failed})
}

// creditObservedBandwidth marks each completed target's share of the
// frequency plan observed, so the selector's remaining-unobserved-bandwidth
// constraint shrinks as coverage accumulates.
func (s *ObsActStrategy) creditObservedBandwidth(rec obsmodel.ActivityRecord) {
	if s.deps.Selector == nil {
		return
	}
	for beam, targetID := range rec.SelectedTargetIDsByBeam {
		if targetID == 0 {
			continue
		}
		var width float64
		for _, p := range rec.FreqPlan[beam] {
			if !p.Unused() {
				width += p.BandwidthMHz
			}
		}
		if width > 0 {
			s.deps.Selector.MarkObserved(targetID, width)
		}
	}
}

func (s *ObsActStrategy) FoundConfirmedCandidates(a *observe.Activity) {
	rec := a.Record()
	s.mu.Lock()
	s.completed[a.ID()] = rec
	s.mu.Unlock()
	if s.deps.FollowUp != nil {
		s.deps.FollowUp.Enqueue(a.ID(), rec.Ops.Has(obsmodel.DoNotReportConfirmedCandidates))
	}
	s.base.Enqueue(activitybase.WorkItem{Kind: activitybase.WorkFoundConfirmedCandidates, ActivityID: a.ID()})
}

// --- target selection ---

func (s *ObsActStrategy) selectNext(ctx context.Context) (*obsmodel.ActivityRecord, bool, error) {
	s.mu.Lock()
	p := s.params
	s.mu.Unlock()

	var primary obsmodel.TargetRecord
	var others []obsmodel.TargetRecord
	var obsRange obsmodel.ObsRange

	switch p.Mode {
	case obsmodel.ModeUser, obsmodel.ModeSemiAuto:
		if len(p.TargetIDsByBeam) == 0 {
			return nil, false, nil
		}
	case obsmodel.ModeAuto, obsmodel.ModeAutoRise, obsmodel.ModeCommensal:
		if len(p.CandidateIDs) == 0 {
			return nil, false, nil
		}
		sel, err := s.deps.Selector.Select(ctx, p.CandidateIDs, maxInt(p.NBeams, 1), float64(s.deps.Clock.Now().Unix()))
		if err != nil {
			if kind, ok := obserr.KindOf(err); ok && kind == obserr.InvalidTarget {
				return nil, false, nil
			}
			return nil, false, err
		}
		primary, others, obsRange = sel.Primary, sel.OtherBeams, sel.Range
	default:
		return nil, false, obserr.New(obserr.InvalidParameters, fmt.Sprintf("unknown target selection mode %q", p.Mode))
	}

	multitarget := len(others) > 0 && len(p.OtherBeamNames) > 0

	ops := opsFor(p.ActivityType)
	if multitarget {
		ops = ops.Set(obsmodel.MultitargetObservation)
	}
	rec := &obsmodel.ActivityRecord{
		ActivityType: p.ActivityType,
		StrategyName: s.deps.Name,
		Ops:          ops,
		Params:       p.UserParameters,
	}
	rec.SelectedTargetIDsByBeam = make(map[string]int64, len(p.TargetIDsByBeam)+1)
	if primary.TargetID != 0 {
		rec.Primary = obsmodel.PrimaryPointing{TargetID: primary.TargetID, RARads: primary.RA2000Rads, DecRads: primary.Dec2000Rads, HasTarget: true}
		rec.SelectedTargetIDsByBeam[p.BeamName] = primary.TargetID
	} else {
		rec.Primary = obsmodel.PrimaryPointing{RARads: p.PrimaryRARads, DecRads: p.PrimaryDecRads}
	}
	if p.ActivityType == "off" {
		rec.Primary.RARads, rec.Primary.DecRads = offsetOffPosition(rec.Primary.RARads, rec.Primary.DecRads, p.MinBeamSepFactor, p.SynthBeamsizeRads)
	}
	for k, v := range p.TargetIDsByBeam {
		rec.SelectedTargetIDsByBeam[k] = v
	}
	for i, t := range others {
		rec.SelectedTargetIDsByBeam[fmt.Sprintf("%s+%d", p.BeamName, i+1)] = t.TargetID
	}
	if obsRange.Width() != 0 {
		rec.Params.TuningCenterMHz = mergeCenter(rec.Params.TuningCenterMHz, p.BeamName, obsRange)
	}

	planFn := s.planTuning
	if multitarget {
		planFn = s.planMultiBeamTuning
	}
	plan, tunings, err := planFn(p)
	if err != nil {
		return nil, false, err
	}
	rec.FreqPlan = plan
	rec.TuningsByRF = tunings
	if p.ChannelizerOutputChannels > 0 {
		rec.ChannelizerTuneMHz = make(map[string]float64, len(plan))
		for beam, plans := range plan {
			if len(plans) > 0 && !plans[0].Unused() {
				rec.ChannelizerTuneMHz[beam] = channelizerCenterTuneMHz(plans[0], p.ChannelizerOutputChannels, p.ChannelizerChannelWidthMHz)
			}
		}
	}
	return rec, true, nil
}

// channelizerCenterTuneMHz derives the channelizer's center tune from the
// first DX's frequency and channel number. The integer halving of
// outputChannels truncates for odd counts, leaving the tune half a channel
// off center; that matches the long-standing behavior and is carried over
// unchanged.
func channelizerCenterTuneMHz(first obsmodel.DXFreqPlan, outputChannels int, channelWidthMHz float64) float64 {
	return first.SkyFreqMHz + float64(outputChannels/2-first.ChannelNumber)*channelWidthMHz
}

// namedActivityOps maps an activity-type name to the operations flags its
// role implies. Each entry mirrors one activity wrapper: a fixed name paired
// with a fixed combination of bits, rather than per-instance configuration.
var namedActivityOps = map[string][]obsmodel.Operation{
	"target":        {obsmodel.UseTscope, obsmodel.RFTune, obsmodel.UseDX, obsmodel.PointAtTargets, obsmodel.OnObservation},
	"off":           {obsmodel.UseTscope, obsmodel.RFTune, obsmodel.UseDX, obsmodel.PointAtTargets, obsmodel.OffObservation},
	"pointantswait": {obsmodel.UseTscope, obsmodel.PointAntsAndWait},

	"birdiescan":   {obsmodel.TestSignalGen, obsmodel.UseIFC, obsmodel.UseDX},
	"rfbirdiescan": {obsmodel.TestSignalGen, obsmodel.UseTscope, obsmodel.RFTune, obsmodel.UseIFC, obsmodel.UseDX},
	"datacollect":  {obsmodel.TestSignalGen, obsmodel.UseIFC, obsmodel.UseDX},
	"dxtest":       {obsmodel.UseDX},

	"iftest":            {obsmodel.TestSignalGen, obsmodel.UseIFC, obsmodel.UseDX},
	"iftestfollowup":    {obsmodel.TestSignalGen, obsmodel.UseIFC, obsmodel.UseDX, obsmodel.FollowUpObservation},
	"iftestfollowupon":  {obsmodel.TestSignalGen, obsmodel.UseIFC, obsmodel.UseDX, obsmodel.FollowUpObservation, obsmodel.OnObservation},
	"iftestfollowupoff": {obsmodel.TestSignalGen, obsmodel.UseIFC, obsmodel.UseDX, obsmodel.FollowUpObservation, obsmodel.OffObservation},

	"rftest":              {obsmodel.TestSignalGen, obsmodel.UseTscope, obsmodel.RFTune, obsmodel.UseIFC, obsmodel.UseDX},
	"rftestfollowup":      {obsmodel.FollowUpObservation, obsmodel.OnObservation, obsmodel.TestSignalGen, obsmodel.RFTune, obsmodel.UseTscope, obsmodel.UseIFC, obsmodel.UseDX},
	"rftestforcedarchive": {obsmodel.TestSignalGen, obsmodel.RFTune, obsmodel.UseTscope, obsmodel.UseIFC, obsmodel.UseDX, obsmodel.ForceArchivingAroundCenter},
	"rfiscan":             {obsmodel.TestSignalGen, obsmodel.ClassifyAllAsRFIScan, obsmodel.RFTune, obsmodel.UseTscope, obsmodel.UseIFC, obsmodel.UseDX},

	"targeton":           {obsmodel.FollowUpObservation, obsmodel.OnObservation, obsmodel.TestSignalGen, obsmodel.PointAtTargets, obsmodel.RFTune, obsmodel.UseTscope, obsmodel.UseIFC, obsmodel.UseDX, obsmodel.CreateRecentRFIMask},
	"targetoff":          {obsmodel.FollowUpObservation, obsmodel.OffObservation, obsmodel.TestSignalGen, obsmodel.PointAtTargets, obsmodel.RFTune, obsmodel.UseTscope, obsmodel.UseIFC, obsmodel.UseDX},
	"targetonnofollowup": {obsmodel.FollowUpObservation, obsmodel.OnObservation, obsmodel.DoNotReportConfirmedCandidates, obsmodel.TestSignalGen, obsmodel.PointAtTargets, obsmodel.RFTune, obsmodel.UseTscope, obsmodel.UseIFC, obsmodel.UseDX, obsmodel.CreateRecentRFIMask},

	"calibrate":      {obsmodel.TestSignalGen, obsmodel.UseTscope, obsmodel.PointAtTargets, obsmodel.RFTune, obsmodel.Calibrate},
	"autoselectants": {obsmodel.UseTscope, obsmodel.RFTune, obsmodel.AutoselectAnts},
	"tscopesetup":    {obsmodel.UseTscope},
	"prepants":       {obsmodel.UseTscope, obsmodel.PrepareAnts},
	"freeants":       {obsmodel.UseTscope, obsmodel.FreeAnts},

	"beamformerreset":     {obsmodel.UseTscope, obsmodel.BeamformerReset},
	"beamformerinit":      {obsmodel.UseTscope, obsmodel.BeamformerInit},
	"beamformerautoatten": {obsmodel.UseTscope, obsmodel.RFTune, obsmodel.BeamformerAutoAtten},

	"gridwest":  {obsmodel.FollowUpObservation, obsmodel.GridWestObservation, obsmodel.TestSignalGen, obsmodel.PointAtTargets, obsmodel.RFTune, obsmodel.UseTscope, obsmodel.UseIFC, obsmodel.UseDX, obsmodel.CreateRecentRFIMask},
	"gridsouth": {obsmodel.FollowUpObservation, obsmodel.GridSouthObservation, obsmodel.TestSignalGen, obsmodel.PointAtTargets, obsmodel.RFTune, obsmodel.UseTscope, obsmodel.UseIFC, obsmodel.UseDX, obsmodel.CreateRecentRFIMask},
	"gridon":    {obsmodel.FollowUpObservation, obsmodel.GridOnObservation, obsmodel.TestSignalGen, obsmodel.PointAtTargets, obsmodel.RFTune, obsmodel.UseTscope, obsmodel.UseIFC, obsmodel.UseDX, obsmodel.CreateRecentRFIMask},
	"gridnorth": {obsmodel.FollowUpObservation, obsmodel.GridNorthObservation, obsmodel.TestSignalGen, obsmodel.PointAtTargets, obsmodel.RFTune, obsmodel.UseTscope, obsmodel.UseIFC, obsmodel.UseDX, obsmodel.CreateRecentRFIMask},
	"grideast":  {obsmodel.FollowUpObservation, obsmodel.GridEastObservation, obsmodel.TestSignalGen, obsmodel.PointAtTargets, obsmodel.RFTune, obsmodel.UseTscope, obsmodel.UseIFC, obsmodel.UseDX, obsmodel.CreateRecentRFIMask},
}

// opsFor derives the operations bitset for an activity type by name.
// Recognized names set the flags their role implies; an unrecognized name
// defaults to a plain on-source observation.
func opsFor(activityType string) obsmodel.Ops {
	flags, ok := namedActivityOps[activityType]
	if !ok {
		flags = namedActivityOps["target"]
	}
	return obsmodel.NewOps(flags...)
}

// planTuning computes the DX frequency layout for the activity's beam: each
// detector gets a skyFreq and channel number such that
// |skyFreq - tuningCenter| <= halfBandwidth.
func (s *ObsActStrategy) planTuning(p Params) (map[string][]obsmodel.DXFreqPlan, map[string]obsmodel.Tuning, error) {
	plans, center, err := s.planBeamFreqs(p.BeamName, p)
	if err != nil {
		return nil, nil, err
	}
	tunings := map[string]obsmodel.Tuning{p.BeamName: {Name: p.BeamName, SkyFreqMHz: center}}
	return map[string][]obsmodel.DXFreqPlan{p.BeamName: plans}, tunings, nil
}

// planBeamFreqs computes one beam's DX frequency layout against p's tuning
// center and tuning-plan strategy, independent of which beam is primary.
func (s *ObsActStrategy) planBeamFreqs(beamName string, p Params) ([]obsmodel.DXFreqPlan, float64, error) {
	dxNames := s.deps.Topology.DXs(beamName)
	center, ok := p.TuningCenterMHz[beamName]
	if !ok {
		return nil, 0, obserr.New(obserr.InvalidParameters, fmt.Sprintf("no tuning center configured for beam %q", beamName))
	}
	halfBW := obsmodel.HalfBandwidth(float64(len(dxNames)) * p.DXBandwidthMHz)

	var plans []obsmodel.DXFreqPlan
	switch p.TuningPlanStrategy {
	case obsmodel.TuningUser, "":
		for i, name := range dxNames {
			freq := center // every DX gets the beam's tuning center; per-DX frequencies are not supported
			plans = append(plans, obsmodel.DXFreqPlan{DXName: name, SkyFreqMHz: freq, ChannelNumber: i, BandwidthMHz: p.DXBandwidthMHz})
		}
	case obsmodel.TuningRangeCenter, obsmodel.TuningForever:
		n := len(dxNames)
		if n == 0 {
			break
		}
		totalBW := float64(n) * p.DXBandwidthMHz
		start := center - totalBW/2 + p.DXBandwidthMHz/2
		for i, name := range dxNames {
			freq := start + float64(i)*p.DXBandwidthMHz
			if !obsmodel.InBand(freq, center, halfBW) {
				return nil, 0, obserr.New(obserr.OutOfBandFrequency, fmt.Sprintf("dx %q planned freq %.4f out of band", name, freq))
			}
			plans = append(plans, obsmodel.DXFreqPlan{DXName: name, SkyFreqMHz: freq, ChannelNumber: i, BandwidthMHz: p.DXBandwidthMHz})
		}
	}
	return plans, center, nil
}

// planMultiBeamTuning computes the frequency layout for multi-target mode:
// among p.BeamName and p.OtherBeamNames, the beam with the fewest detectors
// is tuned normally via planBeamFreqs, and that plan is then copied onto
// every other participating beam so all beams share one tuning. A beam with
// more detectors than the seed beam has its surplus detectors marked unused
// (SkyFreqMHz < 0), since there is no seed-beam frequency to assign them.
func (s *ObsActStrategy) planMultiBeamTuning(p Params) (map[string][]obsmodel.DXFreqPlan, map[string]obsmodel.Tuning, error) {
	beams := append([]string{p.BeamName}, p.OtherBeamNames...)

	seed := beams[0]
	seedCount := len(s.deps.Topology.DXs(seed))
	for _, b := range beams[1:] {
		if n := len(s.deps.Topology.DXs(b)); n < seedCount {
			seed, seedCount = b, n
		}
	}

	seedPlans, center, err := s.planBeamFreqs(seed, p)
	if err != nil {
		return nil, nil, err
	}

	freqPlan := make(map[string][]obsmodel.DXFreqPlan, len(beams))
	tunings := make(map[string]obsmodel.Tuning, len(beams))
	for _, b := range beams {
		dxNames := s.deps.Topology.DXs(b)
		plans := make([]obsmodel.DXFreqPlan, len(dxNames))
		for i, name := range dxNames {
			if i < len(seedPlans) {
				plans[i] = obsmodel.DXFreqPlan{
					DXName:        name,
					SkyFreqMHz:    seedPlans[i].SkyFreqMHz,
					ChannelNumber: seedPlans[i].ChannelNumber,
					BandwidthMHz:  seedPlans[i].BandwidthMHz,
				}
				continue
			}
			plans[i] = obsmodel.DXFreqPlan{DXName: name, SkyFreqMHz: -1, ChannelNumber: i, BandwidthMHz: p.DXBandwidthMHz}
		}
		freqPlan[b] = plans
		tunings[b] = obsmodel.Tuning{Name: b, SkyFreqMHz: center}
	}
	return freqPlan, tunings, nil
}

// offsetOffPosition computes an OFF pointing at least minBeamSep*beamsize
// away from the ON position, shifting along
// RA to keep the OFF within the primary FOV.
func offsetOffPosition(onRARads, onDecRads, minBeamSepFactor, synthBeamsizeRads float64) (raRads, decRads float64) {
	shift := minBeamSepFactor * synthBeamsizeRads
	return onRARads + shift/math.Cos(onDecRads), onDecRads
}

func (s *ObsActStrategy) startActivity(ctx context.Context, rec *obsmodel.ActivityRecord) error {
	id, err := s.assignActivityID(ctx, rec)
	if err != nil {
		return err
	}
	rec.ID = id

	s.mu.Lock()
	beamName := s.params.BeamName
	s.mu.Unlock()
	proxies := s.deps.Registry.ProxiesForBeam(beamName)
	a, err := observe.New(id, rec, proxies, s.deps.ObsCfg, s.deps.Clock, s.deps.Log, s.deps.Store, s)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.running[id] = a
	s.mu.Unlock()
	go a.Start(ctx)
	return nil
}

// assignActivityID inserts the new activity row and returns its
// database-assigned ID. With persistence off, a per-strategy in-memory
// counter stands in; those IDs restart with the process.
func (s *ObsActStrategy) assignActivityID(ctx context.Context, rec *obsmodel.ActivityRecord) (obsmodel.ActivityID, error) {
	if s.deps.Store != nil {
		return s.deps.Store.InsertActivity(ctx, rec)
	}
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.mu.Unlock()
	return id, nil
}

// startFollowUp reconstructs the successor activity's record from the
// *original* activity's persisted parameters, not the follow-up's own: it
// re-reads the completed record this strategy cached at ActivityComplete
// time, substitutes the follow-up activity type per the closed type map,
// revalidates the targets through validateFollowUpTargets, and then starts
// it through the ordinary startActivity path.
func (s *ObsActStrategy) startFollowUp(ctx context.Context, id obsmodel.ActivityID) error {
	s.mu.Lock()
	orig, ok := s.completed[id]
	if ok {
		delete(s.completed, id)
	}
	s.mu.Unlock()
	if !ok {
		return obserr.New(obserr.InternalAssert, fmt.Sprintf("follow-up: no cached record for activity %d", id))
	}

	successorType, ok := s.deps.FollowUp.NextType(orig.ActivityType)
	if !ok {
		s.deps.Log.Info("obsstrategy: follow-up chain terminal, nothing to start", "activity", id, "type", orig.ActivityType)
		return nil
	}

	if err := s.validateFollowUpTargets(ctx, orig); err != nil {
		return err
	}

	rec := &obsmodel.ActivityRecord{
		ActivityType:            successorType,
		StrategyName:            s.deps.Name,
		Ops:                     opsFor(successorType),
		SelectedTargetIDsByBeam: orig.SelectedTargetIDsByBeam,
		Primary:                 orig.Primary,
		TuningsByRF:             orig.TuningsByRF,
		FreqPlan:                orig.FreqPlan,
		Params:                  orig.Params,
	}
	s.deps.Log.Info("obsstrategy: starting follow-up", "activity", id, "from_type", orig.ActivityType, "to_type", successorType)
	return s.startActivity(ctx, rec)
}

// validateFollowUpTargets revalidates the original activity's resolved
// target IDs before the successor is started.
func (s *ObsActStrategy) validateFollowUpTargets(ctx context.Context, orig obsmodel.ActivityRecord) error {
	var ids []int64
	for _, id := range orig.SelectedTargetIDsByBeam {
		if id != 0 {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	_, err := s.deps.Selector.Candidates(ctx, ids, float64(s.deps.Clock.Now().Unix()))
	return err
}

func (s *ObsActStrategy) startCalActivity(ctx context.Context) (bool, error) {
	s.mu.Lock()
	p := s.params
	s.mu.Unlock()

	targetID, err := s.chooseCommensalCalTarget(ctx, p)
	if err != nil {
		return false, err
	}

	s.deps.Log.Info("obsstrategy: starting commensal cal activity", "target", targetID)
	rec := &obsmodel.ActivityRecord{
		ActivityType: "pointantswait",
		StrategyName: s.deps.Name,
		Ops:          opsFor("pointantswait"),
	}
	if targetID != 0 {
		rec.Primary = obsmodel.PrimaryPointing{TargetID: targetID, HasTarget: true}
		rec.SelectedTargetIDsByBeam = map[string]int64{p.BeamName: targetID}
	}
	return true, s.startActivity(context.Background(), rec)
}

// chooseCommensalCalTarget prefers p.PrimaryCalTargetID when it's currently
// eligible and otherwise falls back to the highest-ranked eligible target in
// p.CalTargetIDs. Returns 0 if no cal target is configured.
func (s *ObsActStrategy) chooseCommensalCalTarget(ctx context.Context, p Params) (int64, error) {
	if p.PrimaryCalTargetID == 0 && len(p.CalTargetIDs) == 0 {
		return 0, nil
	}
	at := float64(s.deps.Clock.Now().Unix())
	ranked, err := s.deps.Selector.Candidates(ctx, p.CalTargetIDs, at)
	if err != nil {
		return 0, err
	}
	if p.PrimaryCalTargetID != 0 {
		for _, c := range ranked {
			if c.Target.TargetID == p.PrimaryCalTargetID {
				return p.PrimaryCalTargetID, nil
			}
		}
	}
	if len(ranked) == 0 {
		return 0, obserr.New(obserr.InvalidTarget, "no eligible commensal cal target")
	}
	return ranked[0].Target.TargetID, nil
}

// armCommensalCalTimer arms the repeating commensal-cal timer: on expiry it sets the pending-cal flag; the next activity boundary
// picks it up in StartNextActivity.
func (s *ObsActStrategy) armCommensalCalTimer(ctx context.Context) {
	var tick func()
	tick = func() {
		s.mu.Lock()
		s.pendingCal = true
		s.calTimer = s.deps.Clock.AfterFunc(durationFromMinutes(s.params.CommensalCalIntervalMinutes), tick)
		s.mu.Unlock()
		s.base.Enqueue(activitybase.WorkItem{Kind: activitybase.WorkContinueWithAnyMoreActivities})
	}
	s.mu.Lock()
	s.calTimer = s.deps.Clock.AfterFunc(durationFromMinutes(s.params.CommensalCalIntervalMinutes), tick)
	s.mu.Unlock()
}

// armRotateTimer arms the repeating primary-target-id rotation timer.
func (s *ObsActStrategy) armRotateTimer() {
	var tick func()
	tick = func() {
		s.mu.Lock()
		ids := s.params.CandidateIDs
		s.mu.Unlock()
		if len(ids) > 0 {
			s.deps.Selector.RotatePrimary(ids[0])
		}
		s.mu.Lock()
		s.rotateTimer = s.deps.Clock.AfterFunc(durationFromMinutes(s.params.RotateIntervalMinutes), tick)
		s.mu.Unlock()
	}
	s.mu.Lock()
	s.rotateTimer = s.deps.Clock.AfterFunc(durationFromMinutes(s.params.RotateIntervalMinutes), tick)
	s.mu.Unlock()
}

func durationFromMinutes(m int) time.Duration { return time.Duration(m) * time.Minute }

// mergeCenter fills in a tuning center derived from the selector's chosen
// ObsRange when the caller hasn't already pinned one for beamName.
func mergeCenter(centers map[string]float64, beamName string, r obsmodel.ObsRange) map[string]float64 {
	if centers == nil {
		centers = make(map[string]float64)
	}
	if _, ok := centers[beamName]; !ok {
		centers[beamName] = (r.LowMHz + r.HighMHz) / 2
	}
	return centers
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
