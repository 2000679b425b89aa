package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atasvc/sonata/internal/clock"
	"github.com/atasvc/sonata/internal/telemetry/logging"
)

func testSchedulerLogger() logging.Logger { return logging.New(nil) }

// scriptedStrategy is a Strategy whose Run optionally blocks on release
// until the test lets it proceed, recording its own start in a shared,
// mutex-protected order slice before reporting completion.
type scriptedStrategy struct {
	name       string
	order      *orderLog
	release    chan struct{} // nil means "complete immediately"
	failed     bool
	onComplete func(bool)

	stopCalls int
	mu        sync.Mutex
}

type orderLog struct {
	mu    sync.Mutex
	names []string
}

func (o *orderLog) record(name string) {
	o.mu.Lock()
	o.names = append(o.names, name)
	o.mu.Unlock()
}

func (o *orderLog) snapshot() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.names...)
}

func (s *scriptedStrategy) Run(ctx context.Context) {
	s.order.record(s.name)
	if s.release != nil {
		<-s.release
	}
	s.onComplete(s.failed)
}

func (s *scriptedStrategy) Stop() {
	s.mu.Lock()
	s.stopCalls++
	s.mu.Unlock()
}

func newScriptedFactory(order *orderLog, failed bool, release chan struct{}) StrategyFactory {
	return func(params map[string]any, onComplete func(bool)) Strategy {
		name, _ := params["name"].(string)
		return &scriptedStrategy{name: name, order: order, release: release, failed: failed, onComplete: onComplete}
	}
}

func TestEnqueueUnknownStrategyTypeErrors(t *testing.T) {
	s := New(Config{}, clock.NewFake(time.Unix(0, 0)), testSchedulerLogger(), nil)
	err := s.Enqueue("does-not-exist", nil)
	assert.Error(t, err)
}

func TestRunDrainsQueueOneAtATime(t *testing.T) {
	order := &orderLog{}
	s := New(Config{}, clock.NewFake(time.Unix(0, 0)), testSchedulerLogger(), nil)
	s.RegisterStrategyType("immediate", newScriptedFactory(order, false, nil))

	require.NoError(t, s.Enqueue("immediate", map[string]any{"name": "first"}))
	require.NoError(t, s.Enqueue("immediate", map[string]any{"name": "second"}))

	s.Run(context.Background())

	assert.Equal(t, []string{"first", "second"}, order.snapshot())
	assert.False(t, s.StrategyActive())
	assert.Equal(t, 0, s.QueueLen())
}

func TestStopOnStrategyFailureDrainsQueue(t *testing.T) {
	order := &orderLog{}
	s := New(Config{StopOnStrategyFailure: true}, clock.NewFake(time.Unix(0, 0)), testSchedulerLogger(), nil)
	s.RegisterStrategyType("failing", newScriptedFactory(order, true, nil))
	s.RegisterStrategyType("immediate", newScriptedFactory(order, false, nil))

	require.NoError(t, s.Enqueue("failing", map[string]any{"name": "first"}))
	require.NoError(t, s.Enqueue("immediate", map[string]any{"name": "second"}))

	s.Run(context.Background())

	assert.Equal(t, []string{"first"}, order.snapshot(), "a failing strategy must drain the rest of the queue")
	assert.Equal(t, 0, s.QueueLen())
}

func TestWrapUpPreventsFurtherDequeue(t *testing.T) {
	order := &orderLog{}
	s := New(Config{}, clock.NewFake(time.Unix(0, 0)), testSchedulerLogger(), nil)
	s.RegisterStrategyType("immediate", newScriptedFactory(order, false, nil))
	require.NoError(t, s.Enqueue("immediate", map[string]any{"name": "first"}))
	require.NoError(t, s.Enqueue("immediate", map[string]any{"name": "second"}))

	s.WrapUp()
	s.Run(context.Background())

	assert.Empty(t, order.snapshot(), "wrap-up set before Run must prevent any strategy from starting")
	assert.Equal(t, 2, s.QueueLen())
}

func TestStrategyActiveWhileRunningThenReleased(t *testing.T) {
	order := &orderLog{}
	release := make(chan struct{})
	s := New(Config{}, clock.NewFake(time.Unix(0, 0)), testSchedulerLogger(), nil)
	s.RegisterStrategyType("blocking", newScriptedFactory(order, false, release))
	require.NoError(t, s.Enqueue("blocking", map[string]any{"name": "only"}))

	done := make(chan struct{})
	go func() { s.Run(context.Background()); close(done) }()

	require.Eventually(t, s.StrategyActive, time.Second, time.Millisecond)
	close(release)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not finish after strategy released")
	}
	assert.False(t, s.StrategyActive())
}

func TestRegisterEventObserverSeesStartAndComplete(t *testing.T) {
	order := &orderLog{}
	s := New(Config{}, clock.NewFake(time.Unix(0, 0)), testSchedulerLogger(), nil)
	s.RegisterStrategyType("immediate", newScriptedFactory(order, false, nil))
	require.NoError(t, s.Enqueue("immediate", map[string]any{"name": "only"}))

	var mu sync.Mutex
	var seen []string
	s.RegisterEventObserver(func(ev TelemetryEvent) {
		mu.Lock()
		seen = append(seen, ev.Type)
		mu.Unlock()
	})

	s.Run(context.Background())

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, seen, "strategy_start")
	assert.Contains(t, seen, "strategy_complete")
}

func TestActivityTypeUsesTargetsLookup(t *testing.T) {
	s := New(Config{}, clock.NewFake(time.Unix(0, 0)), testSchedulerLogger(), nil)
	s.RegisterActivityType("target", true)
	s.RegisterActivityType("cal", false)

	uses, ok := s.ActivityTypeUsesTargets("target")
	require.True(t, ok)
	assert.True(t, uses)

	uses, ok = s.ActivityTypeUsesTargets("cal")
	require.True(t, ok)
	assert.False(t, uses)

	_, ok = s.ActivityTypeUsesTargets("unknown")
	assert.False(t, ok)
}

func TestSnapshotReflectsQueueState(t *testing.T) {
	order := &orderLog{}
	s := New(Config{}, clock.NewFake(time.Unix(1_700_000_000, 0)), testSchedulerLogger(), nil)
	s.RegisterStrategyType("immediate", newScriptedFactory(order, false, nil))
	require.NoError(t, s.Enqueue("immediate", map[string]any{"name": "a"}))
	require.NoError(t, s.Enqueue("immediate", map[string]any{"name": "b"}))

	snap := s.Snapshot()
	assert.Equal(t, 2, snap.QueueLength)
	assert.False(t, snap.StrategyActive)
	assert.False(t, snap.Drained)
}

func TestStopDrainsAndStopsCurrentStrategy(t *testing.T) {
	order := &orderLog{}
	release := make(chan struct{})
	s := New(Config{}, clock.NewFake(time.Unix(0, 0)), testSchedulerLogger(), nil)
	s.RegisterStrategyType("blocking", newScriptedFactory(order, false, release))
	require.NoError(t, s.Enqueue("blocking", map[string]any{"name": "only"}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() { s.Run(ctx); close(done) }()

	require.Eventually(t, s.StrategyActive, time.Second, time.Millisecond)
	s.Stop()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not return after Stop+cancel")
	}
}
