// Package observe's Activity is ObserveActivity: the
// per-observation state machine that drives a heterogeneous proxy fleet
// through an ordered start-up, data-collection, and signal-resolution
// sequence, surviving individual proxy timeouts and guaranteeing the owning
// strategy hears exactly one completion callback.
package observe

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/atasvc/sonata/internal/clock"
	"github.com/atasvc/sonata/internal/config"
	"github.com/atasvc/sonata/internal/obserr"
	"github.com/atasvc/sonata/internal/proxy"
	"github.com/atasvc/sonata/internal/telemetry/logging"
	"github.com/atasvc/sonata/internal/wire"
	"github.com/atasvc/sonata/pkg/obsmodel"
)

// Strategy is the narrow callback surface ObserveActivity reports to: the
// owning ObsActStrategy.
type Strategy interface {
	DataCollectionComplete(a *Activity)
	ActivityComplete(a *Activity, failed bool)
	FoundConfirmedCandidates(a *Activity)
}

// Store is the narrow persistence surface the activity layer needs: the
// activity-row insert that assigns the database ID, the summary update at
// completion, and the pointing/IFC status rows recorded mid-observation.
// Satisfied by *persistence.Store; nil means persistence is off.
type Store interface {
	InsertActivity(ctx context.Context, rec *obsmodel.ActivityRecord) (obsmodel.ActivityID, error)
	UpdateActivity(ctx context.Context, id obsmodel.ActivityID, summary obsmodel.ObsSummaryStats, minSkyFreq, maxSkyFreq float64, targetBeamIDs map[string]int32, errComment string) error
	InsertPointingRequest(ctx context.Context, id obsmodel.ActivityID, beamName string, raRads, decRads float64, requestedAt time.Time) error
	InsertPointingStatus(ctx context.Context, id obsmodel.ActivityID, beamName string, onSource bool, reportedAt time.Time) error
	InsertIFCStatusSample(ctx context.Context, id obsmodel.ActivityID, ifcName string, powerDBm float64, sampledAt time.Time) error
}

// ProxySets is the subset of live proxies, by component class, this
// activity was handed from the registry.
type ProxySets struct {
	Tscope      map[string]*proxy.Proxy
	IFC         map[string]*proxy.Proxy
	TestSig     map[string]*proxy.Proxy
	DX          map[string]*proxy.Proxy
	Archiver    map[string]*proxy.Proxy
	Channelizer map[string]*proxy.Proxy
}

// Config is the subset of the operational config an activity needs.
type Config struct {
	Watchdog                                     config.WatchdogConfig
	ArchiveRoot                                  string
	DiskErrorPercentFull, DiskWarningPercentFull float64
}

// Activity drives one observation. Two concurrency regions touch it: the
// reactor (proxy callbacks, timer expirations) and the worker (blocking
// operations); state mutation happens only on the reactor, guarded by mu
// for the fields the worker also reads.
type Activity struct {
	id  obsmodel.ActivityID
	rec *obsmodel.ActivityRecord

	proxies  ProxySets
	cfg      Config
	clk      clock.Clock
	log      logging.Logger
	store    Store
	strategy Strategy

	worker     *worker
	watchdogs  map[string]*watchdog
	candidates map[string][]Candidate // keyed by DX name

	mu    sync.Mutex
	state State

	done      atomic.Bool // guards idempotent completion/failure
	destroyed atomic.Bool // guards idempotent self-destruction
}

// New constructs a CREATED activity and attaches every proxy it was handed.
func New(id obsmodel.ActivityID, rec *obsmodel.ActivityRecord, proxies ProxySets, cfg Config, clk clock.Clock, log logging.Logger, store Store, strategy Strategy) (*Activity, error) {
	a := &Activity{
		id:         id,
		rec:        rec,
		proxies:    proxies,
		cfg:        cfg,
		clk:        clk,
		log:        log,
		store:      store,
		strategy:   strategy,
		watchdogs:  make(map[string]*watchdog),
		candidates: make(map[string][]Candidate),
		state:      Created,
	}
	if err := a.attachAll(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Activity) attachAll() error {
	for _, set := range []map[string]*proxy.Proxy{a.proxies.Tscope, a.proxies.IFC, a.proxies.TestSig, a.proxies.DX, a.proxies.Archiver, a.proxies.Channelizer} {
		for name, p := range set {
			if !p.Attach(a) {
				return obserr.New(obserr.MissingComponent, fmt.Sprintf("proxy %q already attached to another activity", name))
			}
		}
	}
	return nil
}

// ID returns the activity's identifier.
func (a *Activity) ID() obsmodel.ActivityID { return a.id }

// Record returns a copy of the activity record's current contents, including
// the resolved targets/tuning plan and the summary so far, for callers that
// need to replay it (e.g. follow-up dispatch).
func (a *Activity) Record() obsmodel.ActivityRecord { return *a.rec }

// State returns the current FSM state.
func (a *Activity) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Activity) setState(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

// Start begins the start-up chain: disk
// safety first, then the ordered PREPARING_* stages, short-circuiting any
// stage whose operations bit is not set.
func (a *Activity) Start(ctx context.Context) {
	a.setState(Started)
	a.worker = newWorker()

	pct, err := checkDiskSafety(a.cfg.ArchiveRoot, a.cfg.DiskErrorPercentFull, a.cfg.DiskWarningPercentFull)
	if err != nil {
		a.fail(ctx, err)
		return
	}
	if pct >= a.cfg.DiskWarningPercentFull {
		a.mu.Lock()
		a.rec.DiskStatus = fmt.Sprintf("warning: archive disk %.1f%% full", pct)
		a.mu.Unlock()
		a.log.Warn("observe: archive disk approaching capacity", "activity", a.id, "percent_full", pct)
	}

	a.advanceToTscope(ctx)
}

func (a *Activity) ops() obsmodel.Ops { return a.rec.Ops }

func (a *Activity) advanceToTscope(ctx context.Context) {
	if !a.ops().Has(obsmodel.UseTscope) {
		a.advanceToIFC(ctx)
		return
	}
	a.setState(PreparingTscope)
	names := proxyNames(a.proxies.Tscope)
	a.armWatchdog("tscope_ready", names, func(missing []string) {
		a.onStageTimeout(ctx, "tscope_ready", missing, subset(a.proxies.Tscope, missing), a.advanceToIFC)
	})
	for name, p := range a.proxies.Tscope {
		if err := p.Send(wire.CodeFor(p.Class(), wire.OffsetDomainCommandsBase), int32(a.id), nil, a.clk); err != nil {
			a.log.Warn("observe: tscope point command failed", "proxy", name, "err", err)
		}
	}
	a.recordPointingRequests(ctx)
	if len(names) == 0 {
		a.cancelWatchdog("tscope_ready")
		a.advanceToIFC(ctx)
	}
}

// recordPointingRequests persists one pointing-request row per beam the
// activity steers, at the moment the point commands go out.
func (a *Activity) recordPointingRequests(ctx context.Context) {
	if a.store == nil {
		return
	}
	now := a.clk.Now()
	for _, beam := range a.pointedBeams() {
		if err := a.store.InsertPointingRequest(ctx, a.id, beam, a.rec.Primary.RARads, a.rec.Primary.DecRads, now); err != nil {
			a.log.Warn("observe: persist pointing request failed", "activity", a.id, "beam", beam, "err", err)
		}
	}
}

// recordPointingStatus persists one pointing-status row per beam, onSource
// true when the tscope stage met quorum and false when its watchdog expired.
func (a *Activity) recordPointingStatus(ctx context.Context, onSource bool) {
	if a.store == nil {
		return
	}
	now := a.clk.Now()
	for _, beam := range a.pointedBeams() {
		if err := a.store.InsertPointingStatus(ctx, a.id, beam, onSource, now); err != nil {
			a.log.Warn("observe: persist pointing status failed", "activity", a.id, "beam", beam, "err", err)
		}
	}
}

// pointedBeams lists the beam names this activity points: the selected
// per-beam targets, or the bare primary when pointing is an explicit RA/Dec
// with no catalog targets.
func (a *Activity) pointedBeams() []string {
	if len(a.rec.SelectedTargetIDsByBeam) == 0 {
		return []string{"primary"}
	}
	out := make([]string, 0, len(a.rec.SelectedTargetIDsByBeam))
	for beam := range a.rec.SelectedTargetIDsByBeam {
		out = append(out, beam)
	}
	return out
}

func (a *Activity) advanceToIFC(ctx context.Context) {
	if !a.ops().Has(obsmodel.UseIFC) {
		a.advanceToTSig(ctx)
		return
	}
	a.setState(PreparingIFC)
	names := proxyNames(a.proxies.IFC)
	a.armWatchdog("ifc_ready", names, func(missing []string) {
		a.onStageTimeout(ctx, "ifc_ready", missing, subset(a.proxies.IFC, missing), a.advanceToTSig)
	})
	for name, p := range a.proxies.IFC {
		if err := p.Send(wire.CodeFor(p.Class(), wire.OffsetDomainCommandsBase), int32(a.id), nil, a.clk); err != nil {
			a.log.Warn("observe: ifc tune command failed", "proxy", name, "err", err)
		}
	}
	a.recordIFCStatus(ctx)
	if len(names) == 0 {
		a.cancelWatchdog("ifc_ready")
		a.advanceToTSig(ctx)
	}
}

// recordIFCStatus persists one status sample per IF chain as the tune
// commands go out, reading whatever power level the proxy last cached.
func (a *Activity) recordIFCStatus(ctx context.Context) {
	if a.store == nil {
		return
	}
	now := a.clk.Now()
	for name, p := range a.proxies.IFC {
		power := 0.0
		if v, ok := p.GetCachedStatus().Fields["power_dbm"].(float64); ok {
			power = v
		}
		if err := a.store.InsertIFCStatusSample(ctx, a.id, name, power, now); err != nil {
			a.log.Warn("observe: persist ifc status sample failed", "activity", a.id, "ifc", name, "err", err)
		}
	}
}

func (a *Activity) advanceToTSig(ctx context.Context) {
	if !a.ops().Has(obsmodel.TestSignalGen) {
		a.advanceToDX(ctx)
		return
	}
	a.setState(PreparingTSig)
	names := proxyNames(a.proxies.TestSig)
	a.armWatchdog("tsig_ready", names, func(missing []string) {
		a.onStageTimeout(ctx, "tsig_ready", missing, subset(a.proxies.TestSig, missing), a.advanceToDX)
	})
	for name, p := range a.proxies.TestSig {
		if err := p.Send(wire.CodeFor(p.Class(), wire.OffsetDomainCommandsBase), int32(a.id), nil, a.clk); err != nil {
			a.log.Warn("observe: test-signal-gen command failed", "proxy", name, "err", err)
		}
	}
	if len(names) == 0 {
		a.cancelWatchdog("tsig_ready")
		a.advanceToDX(ctx)
	}
}

func (a *Activity) advanceToDX(ctx context.Context) {
	if !a.ops().Has(obsmodel.UseDX) {
		a.setState(PendingDataCollection)
		a.beginDataCollection(ctx)
		return
	}
	a.setState(PreparingDX)
	a.tuneChannelizers()
	names := usedDXNames(a.proxies.DX, a.rec.FreqPlan)
	a.armWatchdog("dx_started", names, func(missing []string) {
		a.onStageTimeout(ctx, "dx_started", missing, subset(a.proxies.DX, missing), func(ctx2 context.Context) {
			a.setState(PendingDataCollection)
			a.beginDataCollection(ctx2)
		})
	})
	for beam, plans := range a.rec.FreqPlan {
		for _, plan := range plans {
			if plan.Unused() {
				continue
			}
			tuning, ok := a.rec.TuningsByRF[beam]
			if ok {
				halfBW := obsmodel.HalfBandwidth(plan.BandwidthMHz)
				if !obsmodel.InBand(plan.SkyFreqMHz, tuning.SkyFreqMHz, halfBW) {
					a.fail(ctx, obserr.New(obserr.OutOfBandFrequency,
						fmt.Sprintf("dx %q freq %.4f outside tuning %q band (+/-%.4f around %.4f)",
							plan.DXName, plan.SkyFreqMHz, tuning.Name, halfBW, tuning.SkyFreqMHz)))
					return
				}
			}
			if p, ok := a.proxies.DX[plan.DXName]; ok {
				if err := p.Send(wire.CodeFor(p.Class(), wire.OffsetDomainCommandsBase), int32(a.id), nil, a.clk); err != nil {
					a.log.Warn("observe: dx tune command failed", "proxy", plan.DXName, "err", err)
				}
			}
		}
	}
	if len(names) == 0 {
		a.cancelWatchdog("dx_started")
		a.setState(PendingDataCollection)
		a.beginDataCollection(ctx)
	}
}

// tuneChannelizers sends each channelizer its per-beam center tune, best
// effort and unstaged: channelizers have no ready fan-in of their own, they
// just need the tune ahead of the detectors starting.
func (a *Activity) tuneChannelizers() {
	if len(a.rec.ChannelizerTuneMHz) == 0 {
		return
	}
	body := make([]byte, 8)
	for name, p := range a.proxies.Channelizer {
		for _, tune := range a.rec.ChannelizerTuneMHz {
			binary.BigEndian.PutUint64(body, math.Float64bits(tune))
			if err := p.Send(wire.CodeFor(p.Class(), wire.OffsetDomainCommandsBase), int32(a.id), body, a.clk); err != nil {
				a.log.Warn("observe: channelizer tune command failed", "proxy", name, "err", err)
			}
		}
	}
}

// usedDXNames returns every DX name with an in-use frequency plan entry
// across all beams (sentinel SkyFreqMHz < 0 means unused).
func usedDXNames(all map[string]*proxy.Proxy, plan map[string][]obsmodel.DXFreqPlan) []string {
	var out []string
	for _, plans := range plan {
		for _, p := range plans {
			if !p.Unused() {
				if _, ok := all[p.DXName]; ok {
					out = append(out, p.DXName)
				}
			}
		}
	}
	return out
}

// startTime computes the phase-aligned start time and checks it hasn't
// already gone stale by the time it's about to be sent.
func (a *Activity) startTime(ctx context.Context) (int64, error) {
	now := a.clk.Now()
	start := now.Add(a.rec.Params.StartDelay)
	a.mu.Lock()
	a.rec.ScheduledStart = start.Unix()
	a.mu.Unlock()
	if now.Sub(start) > a.cfg.Watchdog.BaselineAccumulation {
		return 0, obserr.New(obserr.InternalAssert, "computed start time older than baseline accumulation after computation")
	}
	return start.Unix(), nil
}

func (a *Activity) beginDataCollection(ctx context.Context) {
	start, err := a.startTime(ctx)
	if err != nil {
		a.fail(ctx, err)
		return
	}
	names := usedDXNames(a.proxies.DX, a.rec.FreqPlan)
	a.setState(DataCollectionStarted)
	a.armWatchdog("data_collection_complete", names, func(missing []string) {
		a.onStageTimeout(ctx, "data_collection_complete", missing, subset(a.proxies.DX, missing), a.onDataCollectionComplete)
	})
	for _, name := range names {
		p, ok := a.proxies.DX[name]
		if !ok {
			continue
		}
		// Every detector gets the same epoch-seconds start time so data
		// collection is phase-aligned across the fleet.
		body := make([]byte, 8)
		binary.BigEndian.PutUint64(body, uint64(start))
		if err := p.Send(wire.CodeFor(p.Class(), wire.OffsetDomainCommandsBase), int32(a.id), body, a.clk); err != nil {
			a.log.Warn("observe: start data collection failed", "proxy", name, "err", err)
		}
	}
	if len(names) == 0 {
		a.cancelWatchdog("data_collection_complete")
		a.onDataCollectionComplete(ctx)
	}
}

// ProxyReady reports a proxy ready at whichever fan-out stage is currently
// armed for it; the reactor routes this from a proxy's SEND_STATUS/ready
// message. Called externally so tests and the real status-reader path share
// one entrypoint.
func (a *Activity) ProxyReady(stage string, proxyName string) {
	if a.reportIn(stage, proxyName) {
		a.onStageQuorum(stage)
	}
}

func (a *Activity) onStageQuorum(stage string) {
	ctx := context.Background()
	switch stage {
	case "tscope_ready":
		a.recordPointingStatus(ctx, true)
		a.advanceToIFC(ctx)
	case "ifc_ready":
		a.advanceToTSig(ctx)
	case "tsig_ready":
		a.advanceToDX(ctx)
	case "dx_started":
		a.setState(PendingDataCollection)
		a.beginDataCollection(ctx)
	case "data_collection_complete":
		a.onDataCollectionComplete(ctx)
	case "signal_detection_complete":
		a.onSignalDetectionComplete(ctx)
	}
}

// onStageTimeout implements the watchdog-expiry policy:
// components that never reported are sent stop/shutdown/resetSocket and the
// activity continues with survivors, provided at least one detector
// survives; otherwise it terminates.
func (a *Activity) onStageTimeout(ctx context.Context, stage string, missing []string, missingSet map[string]*proxy.Proxy, proceed func(context.Context)) {
	for name, p := range missingSet {
		_ = p.Stop(int32(a.id), a.clk)
		_ = p.Shutdown(a.clk)
		p.ResetSocket()
		a.log.Warn("observe: watchdog survivor cleanup", "activity", a.id, "stage", stage, "proxy", name)
	}
	if stage == "tscope_ready" {
		a.recordPointingStatus(ctx, false)
	}
	if stage == "dx_started" || stage == "data_collection_complete" {
		survivors := 0
		for name := range a.proxies.DX {
			if _, wasMissing := missingSetContains(missing, name); !wasMissing {
				survivors++
			}
		}
		if survivors == 0 {
			a.fail(ctx, obserr.New(obserr.WatchdogTimeout, fmt.Sprintf("stage %q: zero detectors survived", stage)))
			return
		}
		a.mu.Lock()
		a.rec.Summary.ActivityUnitsFailed += len(missing)
		a.mu.Unlock()
		a.log.Warn("observe: partial fleet warning", "activity", a.id, "stage", stage, "survivors", survivors)
	}
	proceed(ctx)
}

func missingSetContains(missing []string, name string) (struct{}, bool) {
	for _, m := range missing {
		if m == name {
			return struct{}{}, true
		}
	}
	return struct{}{}, false
}

func (a *Activity) onDataCollectionComplete(ctx context.Context) {
	a.setState(DataCollectionComplete)
	a.strategy.DataCollectionComplete(a)
	a.setState(SignalDetectionStarted)

	names := usedDXNames(a.proxies.DX, a.rec.FreqPlan)
	a.armWatchdog("signal_detection_complete", names, func(missing []string) {
		a.onStageTimeout(ctx, "signal_detection_complete", missing, subset(a.proxies.DX, missing), a.onSignalDetectionComplete)
	})
	if len(names) == 0 {
		a.cancelWatchdog("signal_detection_complete")
		a.onSignalDetectionComplete(ctx)
	}
}

func (a *Activity) onSignalDetectionComplete(ctx context.Context) {
	a.setState(SignalDetectionComplete)
	if !a.ops().SecondaryCandidateProcessing() {
		a.complete(ctx)
		return
	}
	a.setState(SecondaryCandidateProcessing)
	// Gathering and broadcasting candidates is a blocking operation
	//: it runs on the worker, and the continuation is
	// posted back to the reactor "1 second from now" to keep the state
	// machine single-threaded.
	a.worker.submit(func() {
		a.broadcastCandidates()
		a.postToReactor(func() {
			a.setState(CandidateResolution)
			a.resolveSecondary()
			a.complete(ctx)
		})
	})
}

// AddCandidate records one detector's candidate hit ahead of the secondary
// processing pass.
func (a *Activity) AddCandidate(dxName string, c Candidate) {
	a.mu.Lock()
	a.candidates[dxName] = append(a.candidates[dxName], c)
	a.rec.Summary.CandidateCount++
	a.mu.Unlock()
}

// ComponentError implements proxy.Activity: a proxy forwards
// a classified failure here; ERROR/FATAL terminate the activity, anything
// else is logged only.
func (a *Activity) ComponentError(p *proxy.Proxy, kind obserr.Kind, severity obserr.Severity, message string) {
	ctx := context.Background()
	if severity.Terminal() {
		a.fail(ctx, obserr.New(kind, fmt.Sprintf("%s: %s", p.GetName(), message)))
		return
	}
	a.log.Warn("observe: component error", "activity", a.id, "proxy", p.GetName(), "kind", kind, "severity", severity, "message", message)
}

// complete runs the activity's success path: idempotent, detaches every
// attached proxy (detectors included), persists the summary, reports to the
// strategy exactly once, and schedules self-destruction.
func (a *Activity) complete(ctx context.Context) {
	if !a.done.CompareAndSwap(false, true) {
		return
	}
	a.setState(ActivityComplete)
	a.detachAll()

	if a.store != nil {
		minFreq, maxFreq := a.freqRange()
		if err := a.store.UpdateActivity(ctx, a.id, a.rec.Summary, minFreq, maxFreq, nil, ""); err != nil {
			a.log.Error("observe: persist activity summary failed", "activity", a.id, "err", err)
		}
	}
	a.log.Info("observe: activity complete", "activity", a.id,
		"candidates", a.rec.Summary.CandidateCount, "confirmed", a.rec.Summary.ConfirmedCount)

	if a.rec.Summary.ConfirmedCount > 0 && a.ops().Has(obsmodel.FollowUpObservation) {
		a.strategy.FoundConfirmedCandidates(a)
	}
	a.strategy.ActivityComplete(a, false)
	a.destroy()
}

// fail runs the activity's failure path: idempotent, cancels every pending
// watchdog, stops/shuts down every attached unit, records the error
// comment, and reports failure to the strategy exactly once.
func (a *Activity) fail(ctx context.Context, err error) {
	if !a.done.CompareAndSwap(false, true) {
		return
	}
	a.setState(ActivityFailed)
	a.cancelAllWatchdogs()

	kind, _ := obserr.KindOf(err)
	a.log.Error("observe: activity failed", "activity", a.id, "kind", kind, "err", err)

	for _, set := range []map[string]*proxy.Proxy{a.proxies.DX, a.proxies.Tscope, a.proxies.IFC, a.proxies.TestSig} {
		for _, p := range set {
			_ = p.Stop(int32(a.id), a.clk)                                                              // stop, best effort
			_ = p.Send(wire.CodeFor(p.Class(), wire.OffsetDomainCommandsBase), int32(a.id), nil, a.clk) // shutdown, best effort
		}
	}
	a.detachAll()

	if a.store != nil {
		minFreq, maxFreq := a.freqRange()
		if uerr := a.store.UpdateActivity(ctx, a.id, a.rec.Summary, minFreq, maxFreq, nil, err.Error()); uerr != nil {
			a.log.Error("observe: persist failure comment failed", "activity", a.id, "err", uerr)
		}
	}
	a.strategy.ActivityComplete(a, true)
	a.destroy()
}

func (a *Activity) freqRange() (min, max float64) {
	first := true
	for _, plans := range a.rec.FreqPlan {
		for _, p := range plans {
			if p.Unused() {
				continue
			}
			if first {
				min, max, first = p.SkyFreqMHz, p.SkyFreqMHz, false
				continue
			}
			if p.SkyFreqMHz < min {
				min = p.SkyFreqMHz
			}
			if p.SkyFreqMHz > max {
				max = p.SkyFreqMHz
			}
		}
	}
	return min, max
}

func (a *Activity) detachNonDetectors() {
	for _, set := range []map[string]*proxy.Proxy{a.proxies.Tscope, a.proxies.IFC, a.proxies.TestSig, a.proxies.Archiver, a.proxies.Channelizer} {
		for _, p := range set {
			p.Detach()
		}
	}
}

func (a *Activity) detachAll() {
	a.detachNonDetectors()
	for _, p := range a.proxies.DX {
		p.Detach()
	}
}

// destroy defers the activity's self-destruction: the timer is never
// cancelled, so a leaked reference elsewhere can never prevent eventual
// cleanup. Idempotent so a stray second call (e.g. a racing failure path)
// is a no-op.
func (a *Activity) destroy() {
	if !a.destroyed.CompareAndSwap(false, true) {
		return
	}
	a.clk.AfterFunc(time.Second, func() {
		if a.worker != nil {
			a.worker.stop()
		}
	})
}

func proxyNames(m map[string]*proxy.Proxy) []string {
	out := make([]string, 0, len(m))
	for n := range m {
		out = append(out, n)
	}
	return out
}

func subset(all map[string]*proxy.Proxy, names []string) map[string]*proxy.Proxy {
	out := make(map[string]*proxy.Proxy, len(names))
	for _, n := range names {
		if p, ok := all[n]; ok {
			out[n] = p
		}
	}
	return out
}
