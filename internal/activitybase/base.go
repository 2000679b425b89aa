package activitybase

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/atasvc/sonata/internal/clock"
	"github.com/atasvc/sonata/internal/telemetry/logging"
)

// Hooks is the subclass-visible surface ObsActStrategy (C8) implements on
// top of Base. Every method runs on the actor's single worker goroutine, so
// subclass state needs no lock discipline of its own.
type Hooks interface {
	// StartNextActivity attempts to construct and start the next activity.
	// ok is false if there is nothing left to start right now, which is not
	// an error: the target selector may simply have nothing eligible yet.
	StartNextActivity(ctx context.Context) (ok bool, err error)
	// ValidateTargets resolves every per-beam target ID in the current
	// parameters.
	ValidateTargets(ctx context.Context) error
	// RepeatStrategy re-arms the strategy for another pass when
	// strategyRepeatCount permits it.
	RepeatStrategy(ctx context.Context)
	// Cleanup runs once, when the actor is about to stop for good.
	Cleanup(ctx context.Context)
}

// Config carries the back-off/repeat tunables.
type Config struct {
	MaxSequentialFailedActivities int
	FailurePause                  time.Duration
	StrategyRepeatCount           int
	TscopeReadyMaxFailures        int
	TscopeReadyWaitInterval       time.Duration
	TargetValidationWarnOnly      bool
}

// Base is the single-consumer actor every ActivityStrategy embeds.
type Base struct {
	cfg   Config
	clk   clock.Clock
	log   logging.Logger
	hooks Hooks
	queue *Queue

	stop   atomic.Bool
	wrapUp atomic.Bool

	mu                  sync.Mutex
	sequentialFailures  int
	tscopeReadyFailures int
	remainingRepeats    int
	runningActivities   int
	strategyActive      bool
	backoffTimer        clock.Timer
	backoffGeneration   int
}

// New constructs a Base and spawns its consumer goroutine.
func New(cfg Config, clk clock.Clock, log logging.Logger, hooks Hooks) *Base {
	b := &Base{cfg: cfg, clk: clk, log: log, hooks: hooks, queue: NewQueue(0), remainingRepeats: cfg.StrategyRepeatCount}
	return b
}

// Run drives the actor's dispatch loop until Stop/WrapUp finish it or ctx
// is cancelled. Intended to run on its own goroutine for the strategy's
// lifetime.
func (b *Base) Run(ctx context.Context) {
	b.mu.Lock()
	b.strategyActive = true
	b.mu.Unlock()

	b.Enqueue(WorkItem{Kind: WorkStart})
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-b.queue.C():
			if done := b.dispatch(ctx, item); done {
				return
			}
		}
	}
}

// Enqueue posts a work item.
func (b *Base) Enqueue(item WorkItem) { b.queue.Enqueue(item) }

// Stop aborts as soon as the current work item ends. Safe
// from any goroutine, idempotent.
func (b *Base) Stop() { b.stop.Store(true) }

// WrapUp finishes the current activity and any in-flight follow-ups, then
// ends. Safe from any goroutine, idempotent.
func (b *Base) WrapUp() { b.wrapUp.Store(true) }

// StrategyActive reports whether this strategy instance has started running
// and has not yet finished.
func (b *Base) StrategyActive() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.strategyActive
}

func (b *Base) dispatch(ctx context.Context, item WorkItem) (done bool) {
	if b.stop.Load() {
		b.finish(ctx)
		return true
	}

	switch item.Kind {
	case WorkStart:
		return b.handleStart(ctx)
	case WorkAttemptToStartNextActivity, WorkContinueWithAnyMoreActivities:
		return b.handleStart(ctx)
	case WorkDataCollectionComplete:
		return false
	case WorkActivityComplete:
		return b.handleActivityComplete(ctx, item.Failed)
	case WorkFoundConfirmedCandidates:
		return false
	case WorkWatchdogTimeout:
		b.log.Warn("activitybase: watchdog fired", "timer", item.TimerName)
		return false
	case WorkStop:
		b.finish(ctx)
		return true
	case WorkWrapUp:
		b.wrapUp.Store(true)
		return false
	case WorkShutdown:
		b.finish(ctx)
		return true
	default:
		return false
	}
}

func (b *Base) handleStart(ctx context.Context) (done bool) {
	if b.wrapUp.Load() {
		b.mu.Lock()
		running := b.runningActivities
		b.mu.Unlock()
		if running > 0 {
			return false
		}
		b.finish(ctx)
		return true
	}

	if err := b.hooks.ValidateTargets(ctx); err != nil {
		if b.cfg.TargetValidationWarnOnly {
			b.log.Warn("activitybase: target validation failed, proceeding (warn-only)", "err", err)
		} else {
			b.log.Error("activitybase: target validation failed", "err", err)
			return b.recordFailureAndMaybeBackoff(ctx)
		}
	}

	ok, err := b.hooks.StartNextActivity(ctx)
	if err != nil {
		b.log.Error("activitybase: start next activity failed", "err", err)
		return b.recordFailureAndMaybeBackoff(ctx)
	}
	if ok {
		b.mu.Lock()
		b.runningActivities++
		b.sequentialFailures = 0
		b.mu.Unlock()
		return false
	}

	// Nothing to start right now.
	b.mu.Lock()
	running := b.runningActivities
	b.mu.Unlock()
	if running > 0 {
		return false
	}
	if b.wrapUp.Load() {
		b.finish(ctx)
		return true
	}
	return b.maybeRepeat(ctx)
}

func (b *Base) handleActivityComplete(ctx context.Context, failed bool) (done bool) {
	b.mu.Lock()
	if b.runningActivities > 0 {
		b.runningActivities--
	}
	if failed {
		b.sequentialFailures++
	} else {
		b.sequentialFailures = 0
	}
	seqFailures := b.sequentialFailures
	b.mu.Unlock()

	if seqFailures >= b.cfg.MaxSequentialFailedActivities {
		b.log.Error("activitybase: max sequential failed activities reached, strategy failing",
			"count", seqFailures)
		b.finish(ctx)
		return true
	}

	if failed && b.cfg.FailurePause > 0 && !b.stop.Load() {
		b.armBackoff(ctx)
		return false
	}

	b.Enqueue(WorkItem{Kind: WorkAttemptToStartNextActivity})
	return false
}

func (b *Base) recordFailureAndMaybeBackoff(ctx context.Context) (done bool) {
	b.mu.Lock()
	b.sequentialFailures++
	seqFailures := b.sequentialFailures
	b.mu.Unlock()
	if seqFailures >= b.cfg.MaxSequentialFailedActivities {
		b.finish(ctx)
		return true
	}
	if b.cfg.FailurePause > 0 && !b.stop.Load() {
		b.armBackoff(ctx)
		return false
	}
	b.Enqueue(WorkItem{Kind: WorkAttemptToStartNextActivity})
	return false
}

// armBackoff arms a one-shot timer of cfg.FailurePause before attempting
// another start. A generation counter resolves the
// cancel-races-with-firing case: a stale timer that fires after a newer one
// was armed finds its generation stale and drops itself.
func (b *Base) armBackoff(ctx context.Context) {
	b.mu.Lock()
	b.backoffGeneration++
	gen := b.backoffGeneration
	if b.backoffTimer != nil {
		b.backoffTimer.Stop()
	}
	b.backoffTimer = b.clk.AfterFunc(b.cfg.FailurePause, func() {
		b.mu.Lock()
		stale := gen != b.backoffGeneration
		b.mu.Unlock()
		if stale {
			return
		}
		b.Enqueue(WorkItem{Kind: WorkAttemptToStartNextActivity})
	})
	b.mu.Unlock()
}

func (b *Base) maybeRepeat(ctx context.Context) (done bool) {
	b.mu.Lock()
	if b.remainingRepeats > 0 {
		b.remainingRepeats--
		b.mu.Unlock()
		b.hooks.RepeatStrategy(ctx)
		b.Enqueue(WorkItem{Kind: WorkAttemptToStartNextActivity})
		return false
	}
	b.mu.Unlock()
	b.finish(ctx)
	return true
}

func (b *Base) finish(ctx context.Context) {
	b.mu.Lock()
	if !b.strategyActive {
		b.mu.Unlock()
		return
	}
	b.strategyActive = false
	b.mu.Unlock()
	b.hooks.Cleanup(ctx)
}

// TscopeReadyBudget returns the (max-failures, wait-interval) inflated retry
// budget used only when start failed because the telescope was not yet on
// target.
func (b *Base) TscopeReadyBudget() (maxFailures int, waitInterval time.Duration) {
	return b.cfg.TscopeReadyMaxFailures, b.cfg.TscopeReadyWaitInterval
}

// ObserveTscopeReadyFailure increments the separate tscope-ready failure
// counter, returning whether the inflated budget is exhausted.
func (b *Base) ObserveTscopeReadyFailure() (exhausted bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tscopeReadyFailures++
	return b.tscopeReadyFailures >= b.cfg.TscopeReadyMaxFailures
}

func (b *Base) ResetTscopeReadyFailures() {
	b.mu.Lock()
	b.tscopeReadyFailures = 0
	b.mu.Unlock()
}
