package observe

import (
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atasvc/sonata/internal/clock"
	"github.com/atasvc/sonata/internal/config"
	"github.com/atasvc/sonata/internal/obserr"
	"github.com/atasvc/sonata/internal/proxy"
	"github.com/atasvc/sonata/internal/telemetry/logging"
	"github.com/atasvc/sonata/internal/wire"
	"github.com/atasvc/sonata/pkg/obsmodel"
)

// discardConn is a net.Conn stand-in that accepts every write without
// blocking, so a *proxy.Proxy can be driven in-process with no real socket
// on the other end.
type discardConn struct{}

func (discardConn) Read(b []byte) (int, error)         { return 0, net.ErrClosed }
func (discardConn) Write(b []byte) (int, error)        { return len(b), nil }
func (discardConn) Close() error                       { return nil }
func (discardConn) LocalAddr() net.Addr                { return dummyAddr{} }
func (discardConn) RemoteAddr() net.Addr               { return dummyAddr{} }
func (discardConn) SetDeadline(t time.Time) error      { return nil }
func (discardConn) SetReadDeadline(t time.Time) error  { return nil }
func (discardConn) SetWriteDeadline(t time.Time) error { return nil }

type dummyAddr struct{}

func (dummyAddr) Network() string { return "test" }
func (dummyAddr) String() string  { return "test" }

func newTestProxy(name string, class wire.ComponentClass) *proxy.Proxy {
	return proxy.New(name, class, discardConn{}, nil)
}

type fakeStrategy struct {
	mu sync.Mutex

	dataCollectionComplete int
	activityCompleteCalls  int
	activityFailed         bool
	foundConfirmed         int
}

func (f *fakeStrategy) DataCollectionComplete(a *Activity) {
	f.mu.Lock()
	f.dataCollectionComplete++
	f.mu.Unlock()
}

func (f *fakeStrategy) ActivityComplete(a *Activity, failed bool) {
	f.mu.Lock()
	f.activityCompleteCalls++
	f.activityFailed = failed
	f.mu.Unlock()
}

func (f *fakeStrategy) FoundConfirmedCandidates(a *Activity) {
	f.mu.Lock()
	f.foundConfirmed++
	f.mu.Unlock()
}

type fakeStore struct {
	mu         sync.Mutex
	calls      int
	errComment string

	pointingRequests int
	pointingStatuses map[bool]int
	ifcSamples       []string
}

func (f *fakeStore) InsertActivity(ctx context.Context, rec *obsmodel.ActivityRecord) (obsmodel.ActivityID, error) {
	return rec.ID, nil
}

func (f *fakeStore) UpdateActivity(ctx context.Context, id obsmodel.ActivityID, summary obsmodel.ObsSummaryStats, minSkyFreq, maxSkyFreq float64, targetBeamIDs map[string]int32, errComment string) error {
	f.mu.Lock()
	f.calls++
	f.errComment = errComment
	f.mu.Unlock()
	return nil
}

func (f *fakeStore) InsertPointingRequest(ctx context.Context, id obsmodel.ActivityID, beamName string, raRads, decRads float64, requestedAt time.Time) error {
	f.mu.Lock()
	f.pointingRequests++
	f.mu.Unlock()
	return nil
}

func (f *fakeStore) InsertPointingStatus(ctx context.Context, id obsmodel.ActivityID, beamName string, onSource bool, reportedAt time.Time) error {
	f.mu.Lock()
	if f.pointingStatuses == nil {
		f.pointingStatuses = make(map[bool]int)
	}
	f.pointingStatuses[onSource]++
	f.mu.Unlock()
	return nil
}

func (f *fakeStore) InsertIFCStatusSample(ctx context.Context, id obsmodel.ActivityID, ifcName string, powerDBm float64, sampledAt time.Time) error {
	f.mu.Lock()
	f.ifcSamples = append(f.ifcSamples, ifcName)
	f.mu.Unlock()
	return nil
}

func testObserveLogger() logging.Logger { return logging.New(nil) }

// safeArchiveCfg carries thresholds no real filesystem in the test
// environment will trip, so checkDiskSafety's statfs call never fails the
// test on its own.
func safeArchiveCfg(t *testing.T) Config {
	return Config{
		Watchdog: config.WatchdogConfig{
			SetupOverhead:        time.Second,
			BaselineAccumulation: time.Second,
			ComponentSlack:       map[string]time.Duration{},
		},
		ArchiveRoot:            t.TempDir(),
		DiskErrorPercentFull:   100,
		DiskWarningPercentFull: 100,
	}
}

func singleDXRecord() *obsmodel.ActivityRecord {
	return &obsmodel.ActivityRecord{
		ID:  1,
		Ops: obsmodel.NewOps(obsmodel.UseDX),
		TuningsByRF: map[string]obsmodel.Tuning{
			"beam1": {Name: "t1", SkyFreqMHz: 1420.0},
		},
		FreqPlan: map[string][]obsmodel.DXFreqPlan{
			"beam1": {{DXName: "dx1", SkyFreqMHz: 1420.0, BandwidthMHz: 1}},
		},
		Params: obsmodel.UserParameters{
			DataCollectionLength: time.Second,
		},
	}
}

// TestHappyPathSingleDetectorReachesActivityComplete exercises a
// single-beam, single-detector activity whose proxy reports in promptly at
// every stage: it runs the full chain to completion exactly once.
func TestHappyPathSingleDetectorReachesActivityComplete(t *testing.T) {
	rec := singleDXRecord()
	proxies := ProxySets{DX: map[string]*proxy.Proxy{"dx1": newTestProxy("dx1", wire.ClassDX)}}
	strategy := &fakeStrategy{}
	store := &fakeStore{}
	clk := clock.NewFake(time.Unix(1_700_000_000, 0))

	a, err := New(1, rec, proxies, safeArchiveCfg(t), clk, testObserveLogger(), store, strategy)
	require.NoError(t, err)

	ctx := context.Background()
	a.Start(ctx)
	assert.Equal(t, PreparingDX, a.State())

	a.ProxyReady("dx_started", "dx1")
	assert.Equal(t, DataCollectionStarted, a.State())

	a.ProxyReady("data_collection_complete", "dx1")
	assert.Equal(t, SignalDetectionStarted, a.State())
	assert.Equal(t, 1, strategy.dataCollectionComplete)

	a.ProxyReady("signal_detection_complete", "dx1")

	assert.Equal(t, ActivityComplete, a.State())
	assert.Equal(t, 1, strategy.activityCompleteCalls)
	assert.False(t, strategy.activityFailed)
	assert.Equal(t, 1, store.calls)

	clk.Advance(2 * time.Second) // let the self-destruct timer retire the worker goroutine
}

// TestOutOfBandFrequencyFailsActivity exercises a DX frequency plan
// outside its tuning's band: it terminates the activity immediately,
// synchronously within the start-up chain, without ever arming a
// data-collection watchdog.
func TestOutOfBandFrequencyFailsActivity(t *testing.T) {
	rec := singleDXRecord()
	rec.FreqPlan["beam1"][0].SkyFreqMHz = 1425.0 // outside 1420 +/- 0.5

	proxies := ProxySets{DX: map[string]*proxy.Proxy{"dx1": newTestProxy("dx1", wire.ClassDX)}}
	strategy := &fakeStrategy{}
	store := &fakeStore{}
	clk := clock.NewFake(time.Unix(1_700_000_000, 0))

	a, err := New(1, rec, proxies, safeArchiveCfg(t), clk, testObserveLogger(), store, strategy)
	require.NoError(t, err)

	a.Start(context.Background())

	assert.Equal(t, ActivityFailed, a.State())
	assert.Equal(t, 1, strategy.activityCompleteCalls)
	assert.True(t, strategy.activityFailed)
	require.Equal(t, 1, store.calls)
	assert.Contains(t, store.errComment, string(obserr.OutOfBandFrequency))

	clk.Advance(2 * time.Second)
}

// TestWatchdogPartialFleetSurvives exercises one of two detectors never
// reporting: once its watchdog budget elapses the activity continues with
// the lone survivor rather than stalling, and records the missing unit in
// the running summary.
func TestWatchdogPartialFleetSurvives(t *testing.T) {
	rec := singleDXRecord()
	rec.FreqPlan["beam1"] = append(rec.FreqPlan["beam1"], obsmodel.DXFreqPlan{DXName: "dx2", SkyFreqMHz: 1420.2, BandwidthMHz: 1})

	proxies := ProxySets{DX: map[string]*proxy.Proxy{
		"dx1": newTestProxy("dx1", wire.ClassDX),
		"dx2": newTestProxy("dx2", wire.ClassDX),
	}}
	strategy := &fakeStrategy{}
	store := &fakeStore{}
	clk := clock.NewFake(time.Unix(1_700_000_000, 0))

	a, err := New(1, rec, proxies, safeArchiveCfg(t), clk, testObserveLogger(), store, strategy)
	require.NoError(t, err)

	a.Start(context.Background())
	assert.Equal(t, PreparingDX, a.State())

	// dx2 never reports; dx1 does.
	a.ProxyReady("dx_started", "dx1")
	assert.Equal(t, PreparingDX, a.State(), "quorum not yet met with dx2 still outstanding")

	budget := a.budget("dx_started")
	clk.Advance(budget)

	assert.Equal(t, DataCollectionStarted, a.State(), "survivor dx1 must carry the activity forward")
	assert.Equal(t, 1, a.Record().Summary.ActivityUnitsFailed)
	assert.Equal(t, 0, strategy.activityCompleteCalls)

	clk.Advance(2 * time.Second)
}

// TestWatchdogZeroSurvivorsFailsActivity exercises the other half of the
// watchdog boundary: when every detector in a stage times out, there is
// nothing left to carry forward and the activity fails outright.
func TestWatchdogZeroSurvivorsFailsActivity(t *testing.T) {
	rec := singleDXRecord()
	proxies := ProxySets{DX: map[string]*proxy.Proxy{"dx1": newTestProxy("dx1", wire.ClassDX)}}
	strategy := &fakeStrategy{}
	store := &fakeStore{}
	clk := clock.NewFake(time.Unix(1_700_000_000, 0))

	a, err := New(1, rec, proxies, safeArchiveCfg(t), clk, testObserveLogger(), store, strategy)
	require.NoError(t, err)

	a.Start(context.Background())
	assert.Equal(t, PreparingDX, a.State())

	budget := a.budget("dx_started")
	clk.Advance(budget)

	assert.Equal(t, ActivityFailed, a.State())
	assert.True(t, strategy.activityFailed)
	assert.Contains(t, store.errComment, string(obserr.WatchdogTimeout))

	clk.Advance(2 * time.Second)
}

// TestPointingAndIFCRowsPersisted exercises the mid-observation persistence
// hooks: pointing-request rows go out with the point commands, a
// pointing-status row lands when the tscope stage meets quorum, and one IFC
// status sample per IF chain is recorded with the tune commands.
func TestPointingAndIFCRowsPersisted(t *testing.T) {
	rec := singleDXRecord()
	rec.Ops = obsmodel.NewOps(obsmodel.UseTscope, obsmodel.RFTune, obsmodel.UseDX)
	rec.SelectedTargetIDsByBeam = map[string]int64{"beam1": 17}

	proxies := ProxySets{
		Tscope: map[string]*proxy.Proxy{"tscope1": newTestProxy("tscope1", wire.ClassTscope)},
		IFC:    map[string]*proxy.Proxy{"ifc1": newTestProxy("ifc1", wire.ClassIFC)},
		DX:     map[string]*proxy.Proxy{"dx1": newTestProxy("dx1", wire.ClassDX)},
	}
	strategy := &fakeStrategy{}
	store := &fakeStore{}
	clk := clock.NewFake(time.Unix(1_700_000_000, 0))

	a, err := New(1, rec, proxies, safeArchiveCfg(t), clk, testObserveLogger(), store, strategy)
	require.NoError(t, err)

	a.Start(context.Background())
	assert.Equal(t, PreparingTscope, a.State())
	assert.Equal(t, 1, store.pointingRequests, "one pointing-request row per pointed beam")

	a.ProxyReady("tscope_ready", "tscope1")
	assert.Equal(t, PreparingIFC, a.State())
	assert.Equal(t, 1, store.pointingStatuses[true], "quorum records an on-source status row")
	assert.Equal(t, []string{"ifc1"}, store.ifcSamples, "one status sample per IF chain")

	a.ProxyReady("ifc_ready", "ifc1")
	a.ProxyReady("dx_started", "dx1")
	a.ProxyReady("data_collection_complete", "dx1")
	a.ProxyReady("signal_detection_complete", "dx1")
	assert.Equal(t, ActivityComplete, a.State())

	clk.Advance(2 * time.Second)
}

// TestCompleteIsIdempotent exercises the invariant that the strategy hears
// exactly one completion callback no matter how many times complete is
// invoked (e.g. a racing proxy-ready call after quorum already fired).
func TestCompleteIsIdempotent(t *testing.T) {
	rec := singleDXRecord()
	proxies := ProxySets{DX: map[string]*proxy.Proxy{"dx1": newTestProxy("dx1", wire.ClassDX)}}
	strategy := &fakeStrategy{}
	store := &fakeStore{}
	clk := clock.NewFake(time.Unix(1_700_000_000, 0))

	a, err := New(1, rec, proxies, safeArchiveCfg(t), clk, testObserveLogger(), store, strategy)
	require.NoError(t, err)

	ctx := context.Background()
	a.complete(ctx)
	a.complete(ctx)
	a.fail(ctx, obserr.New(obserr.InternalAssert, "should be a no-op"))

	assert.Equal(t, 1, strategy.activityCompleteCalls)
	assert.Equal(t, 1, store.calls)

	clk.Advance(2 * time.Second)
}

// TestOpsShortCircuitSkipsUnusedStages exercises an activity whose Ops
// bitset has no tscope/ifc/tsig bits set: it jumps straight from Start to
// PREPARING_DX, never arming the stages it skips.
func TestOpsShortCircuitSkipsUnusedStages(t *testing.T) {
	rec := singleDXRecord() // Ops = UseDX only
	proxies := ProxySets{DX: map[string]*proxy.Proxy{"dx1": newTestProxy("dx1", wire.ClassDX)}}
	strategy := &fakeStrategy{}
	store := &fakeStore{}
	clk := clock.NewFake(time.Unix(1_700_000_000, 0))

	a, err := New(1, rec, proxies, safeArchiveCfg(t), clk, testObserveLogger(), store, strategy)
	require.NoError(t, err)

	a.Start(context.Background())

	assert.Equal(t, PreparingDX, a.State())
	a.mu.Lock()
	_, tscopeArmed := a.watchdogs["tscope_ready"]
	_, ifcArmed := a.watchdogs["ifc_ready"]
	_, tsigArmed := a.watchdogs["tsig_ready"]
	a.mu.Unlock()
	assert.False(t, tscopeArmed)
	assert.False(t, ifcArmed)
	assert.False(t, tsigArmed)

	a.ProxyReady("dx_started", "dx1")
	a.ProxyReady("data_collection_complete", "dx1")
	a.ProxyReady("signal_detection_complete", "dx1")
	clk.Advance(2 * time.Second)
}

// TestComponentErrorTerminatesOnlyOnTerminalSeverity exercises the
// severity split: INFO/WARNING are logged only, ERROR/FATAL terminate the
// activity.
func TestComponentErrorTerminatesOnlyOnTerminalSeverity(t *testing.T) {
	rec := singleDXRecord()
	p := newTestProxy("dx1", wire.ClassDX)
	proxies := ProxySets{DX: map[string]*proxy.Proxy{"dx1": p}}
	strategy := &fakeStrategy{}
	store := &fakeStore{}
	clk := clock.NewFake(time.Unix(1_700_000_000, 0))

	a, err := New(1, rec, proxies, safeArchiveCfg(t), clk, testObserveLogger(), store, strategy)
	require.NoError(t, err)

	a.ComponentError(p, obserr.ComponentDisconnect, obserr.Warning, "link blip")
	assert.Equal(t, 0, strategy.activityCompleteCalls, "warning severity must not terminate the activity")

	a.ComponentError(p, obserr.ComponentDisconnect, obserr.Fatal, "link dropped")
	assert.Equal(t, 1, strategy.activityCompleteCalls)
	assert.True(t, strategy.activityFailed)
	assert.True(t, strings.Contains(store.errComment, string(obserr.ComponentDisconnect)))

	clk.Advance(2 * time.Second)
}
