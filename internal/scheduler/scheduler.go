// Package scheduler implements the Scheduler singleton: the strategy-type
// and activity-type registries, the queued-strategies FIFO, and the
// one-at-a-time enforcement mutex. A single coordinator owns a set of named,
// pluggable strategies behind a named-strategy-factory registry and a
// user-configurable queue.
package scheduler

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/atasvc/sonata/internal/clock"
	"github.com/atasvc/sonata/internal/telemetry/events"
	"github.com/atasvc/sonata/internal/telemetry/health"
	"github.com/atasvc/sonata/internal/telemetry/logging"
	"github.com/atasvc/sonata/internal/telemetry/metrics"
)

// TelemetryEvent is the reduced, stable event shape external observers see.
type TelemetryEvent struct {
	Time     time.Time
	Category string
	Type     string
	Severity string
	Labels   map[string]string
	Fields   map[string]interface{}
}

// EventObserver receives TelemetryEvent notifications synchronously; it must
// be fast.
type EventObserver func(ev TelemetryEvent)

// Snapshot is the JSON-serializable state view behind the optional
// `-status-http` HTTP mirror.
type Snapshot struct {
	StartedAt      time.Time     `json:"started_at"`
	Uptime         time.Duration `json:"uptime"`
	StrategyActive bool          `json:"strategy_active"`
	QueueLength    int           `json:"queue_length"`
	Drained        bool          `json:"drained"`
}

// Strategy is the minimal surface the Scheduler drives: start it and be
// told, exactly once, when it has finished.
type Strategy interface {
	Run(ctx context.Context)
	Stop()
}

// StrategyFactory builds a fresh strategy actor from a copy of the user
// parameters captured at queue-creation time.
type StrategyFactory func(params map[string]any, onComplete func(failed bool)) Strategy

// ActivityFactoryEntry pairs an activity-type factory with the
// uses-targets flag the registry carries for it.
type ActivityFactoryEntry struct {
	UsesTargets bool
}

// Config configures the Scheduler.
type Config struct {
	StopOnStrategyFailure bool
	StatusSnapshotPeriod  time.Duration
	StatusSnapshotPath    string
}

type queuedStrategy struct {
	name   string
	params map[string]any
}

// Scheduler is the process-wide singleton; tests instantiate their own copy
// rather than sharing global state.
type Scheduler struct {
	cfg Config
	clk clock.Clock
	log logging.Logger
	met metrics.Provider

	strategyFactories map[string]StrategyFactory
	activityFactories map[string]ActivityFactoryEntry

	mu             sync.Mutex
	queue          []queuedStrategy
	strategyActive bool
	current        Strategy
	drained        bool
	wrapUp         bool
	startedAt      time.Time

	statusTicker clock.Timer

	eventBus   events.Bus
	healthEval *health.Evaluator

	observersMu sync.RWMutex
	observers   []EventObserver
	lastHealth  atomic.Value
}

// New constructs an idle Scheduler. The health evaluator's probes cover the
// scheduler's own backlog; callers append more via RegisterHealthProbe
// before calling Run.
func New(cfg Config, clk clock.Clock, log logging.Logger, met metrics.Provider) *Scheduler {
	if met == nil {
		met = metrics.NewNoopProvider()
	}
	s := &Scheduler{
		cfg:               cfg,
		clk:               clk,
		log:               log,
		met:               met,
		strategyFactories: make(map[string]StrategyFactory),
		activityFactories: make(map[string]ActivityFactoryEntry),
		eventBus:          events.NewBus(met),
	}
	s.healthEval = health.NewEvaluator(5*time.Second, health.ProbeFunc(s.queueBacklogProbe))
	return s
}

// RegisterHealthProbe adds another subsystem probe to the scheduler's health
// evaluator (e.g. component-manager disconnect rate, event/health bus
// backlog).
func (s *Scheduler) RegisterHealthProbe(p health.Probe) {
	s.healthEval.Register(p)
}

func (s *Scheduler) queueBacklogProbe(ctx context.Context) health.ProbeResult {
	n := s.QueueLen()
	if n > 10 {
		return health.Degraded("scheduler_queue", fmt.Sprintf("%d strategies queued", n))
	}
	return health.Healthy("scheduler_queue")
}

// RegisterStrategyType adds a named strategy factory to the registry.
func (s *Scheduler) RegisterStrategyType(name string, f StrategyFactory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.strategyFactories[name] = f
}

// RegisterActivityType adds a named activity-type factory entry.
func (s *Scheduler) RegisterActivityType(name string, usesTargets bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activityFactories[name] = ActivityFactoryEntry{UsesTargets: usesTargets}
}

// ActivityTypeUsesTargets reports the uses-targets flag for a registered
// activity type.
func (s *Scheduler) ActivityTypeUsesTargets(name string) (bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.activityFactories[name]
	return e.UsesTargets, ok
}

// Enqueue appends a named strategy with a snapshot of the current user
// parameters to the FIFO.
func (s *Scheduler) Enqueue(name string, params map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.strategyFactories[name]; !ok {
		return fmt.Errorf("scheduler: unknown strategy type %q", name)
	}
	paramsCopy := make(map[string]any, len(params))
	for k, v := range params {
		paramsCopy[k] = v
	}
	s.queue = append(s.queue, queuedStrategy{name: name, params: paramsCopy})
	return nil
}

// StrategyActive reports whether a strategy is currently running.
func (s *Scheduler) StrategyActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.strategyActive
}

// QueueLen reports how many strategies remain queued (not yet started).
func (s *Scheduler) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Run drains the queue one strategy at a time until it empties or the
// context is cancelled, enforcing single-strategy-at-a-time via
// strategyActive. It blocks until the queue drains or ctx is
// done, so callers typically run it on its own goroutine.
func (s *Scheduler) Run(ctx context.Context) {
	s.mu.Lock()
	s.startedAt = s.clk.Now()
	s.mu.Unlock()
	if s.cfg.StatusSnapshotPeriod > 0 {
		s.armStatusTicker(ctx)
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if !s.startNext(ctx) {
			return
		}
	}
}

// WrapUp lets the current strategy finish and the queue drain no further.
// Unlike Stop, it does not interrupt the strategy in flight.
func (s *Scheduler) WrapUp() {
	s.mu.Lock()
	s.wrapUp = true
	s.mu.Unlock()
	s.publish(events.CategoryScheduler, "wrap_up", "info", nil)
}

func (s *Scheduler) startNext(ctx context.Context) (more bool) {
	s.mu.Lock()
	if s.drained || s.wrapUp || len(s.queue) == 0 {
		s.mu.Unlock()
		return false
	}
	next := s.queue[0]
	s.queue = s.queue[1:]
	factory := s.strategyFactories[next.name]
	s.strategyActive = true
	s.mu.Unlock()

	done := make(chan bool, 1)
	strat := factory(next.params, func(failed bool) { done <- failed })

	s.mu.Lock()
	s.current = strat
	s.mu.Unlock()

	s.log.Info("scheduler: starting strategy", "name", next.name)
	s.publish(events.CategoryScheduler, "strategy_start", "info", map[string]interface{}{"name": next.name})
	go strat.Run(ctx)

	select {
	case failed := <-done:
		s.mu.Lock()
		s.strategyActive = false
		s.current = nil
		if failed && s.cfg.StopOnStrategyFailure {
			s.log.Error("scheduler: strategy failed, stop-on-strategy-failure draining queue", "name", next.name)
			s.queue = nil
			s.drained = true
		}
		s.mu.Unlock()
		s.publish(events.CategoryScheduler, "strategy_complete", "info", map[string]interface{}{"name": next.name, "failed": failed})
		return true
	case <-ctx.Done():
		strat.Stop()
		s.mu.Lock()
		s.strategyActive = false
		s.current = nil
		s.mu.Unlock()
		s.publish(events.CategoryScheduler, "strategy_interrupted", "warning", map[string]interface{}{"name": next.name})
		return false
	}
}

// publish fans an event out to the internal bus and to RegisterEventObserver
// subscribers.
func (s *Scheduler) publish(category, eventType, severity string, fields map[string]interface{}) {
	ev := events.Event{Category: category, Type: eventType, Severity: severity, Fields: fields}
	if s.eventBus != nil {
		_ = s.eventBus.Publish(ev)
	}
	s.observersMu.RLock()
	observers := append([]EventObserver(nil), s.observers...)
	s.observersMu.RUnlock()
	if len(observers) == 0 {
		return
	}
	pub := TelemetryEvent{Time: ev.Time, Category: category, Type: eventType, Severity: severity, Fields: fields}
	for _, o := range observers {
		func() { defer func() { _ = recover() }(); o(pub) }()
	}
}

// RegisterEventObserver adds an observer invoked synchronously for every
// scheduler telemetry event. Safe for concurrent use; nil is ignored.
func (s *Scheduler) RegisterEventObserver(obs EventObserver) {
	if obs == nil {
		return
	}
	s.observersMu.Lock()
	s.observers = append(s.observers, obs)
	s.observersMu.Unlock()
}

// HealthSnapshot evaluates (or returns cached) scheduler health. A status
// transition publishes a health_change event the same way strategy/activity
// observers are bridged elsewhere in this package.
func (s *Scheduler) HealthSnapshot(ctx context.Context) health.Snapshot {
	snap := s.healthEval.Evaluate(ctx)
	prevRaw := s.lastHealth.Load()
	prev := ""
	if prevRaw != nil {
		prev = prevRaw.(string)
	}
	cur := string(snap.Overall)
	if prev != "" && prev != cur {
		s.publish(events.CategoryHealth, "health_change", "info", map[string]interface{}{"previous": prev, "current": cur})
	}
	s.lastHealth.Store(cur)
	return snap
}

// Snapshot returns a unified JSON-serializable state view of the scheduler.
func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	started := s.startedAt
	if started.IsZero() {
		started = s.clk.Now()
	}
	return Snapshot{
		StartedAt:      started,
		Uptime:         s.clk.Now().Sub(started),
		StrategyActive: s.strategyActive,
		QueueLength:    len(s.queue),
		Drained:        s.drained,
	}
}

// armStatusTicker writes a plain-text status snapshot on a repeating
// period, built as a one-shot timer that re-arms itself in its own handler.
func (s *Scheduler) armStatusTicker(ctx context.Context) {
	var tick func()
	tick = func() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if err := s.writeStatusSnapshot(); err != nil {
			s.log.Warn("scheduler: status snapshot write failed", "err", err)
		}
		s.mu.Lock()
		s.statusTicker = s.clk.AfterFunc(s.cfg.StatusSnapshotPeriod, tick)
		s.mu.Unlock()
	}
	s.statusTicker = s.clk.AfterFunc(s.cfg.StatusSnapshotPeriod, tick)
}

// writeStatusSnapshot overwrites the status file atomically (write-temp +
// rename) so a concurrent reader never sees a half-written file.
func (s *Scheduler) writeStatusSnapshot() error {
	if s.cfg.StatusSnapshotPath == "" {
		return nil
	}
	s.mu.Lock()
	active := s.strategyActive
	qlen := len(s.queue)
	s.mu.Unlock()

	content := fmt.Sprintf("strategy_active=%v\nqueue_length=%d\ntimestamp=%s\n",
		active, qlen, s.clk.Now().UTC().Format(time.RFC3339))

	tmp := s.cfg.StatusSnapshotPath + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.cfg.StatusSnapshotPath)
}

// Stop requests the currently running strategy (if any) stop, and prevents
// further strategies from starting.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.drained = true
	cur := s.current
	if s.statusTicker != nil {
		s.statusTicker.Stop()
	}
	s.mu.Unlock()
	if cur != nil {
		cur.Stop()
	}
}
