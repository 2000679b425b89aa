package observe

import (
	"time"

	"github.com/atasvc/sonata/internal/clock"
)

// Budget computes one watchdog's total duration:
// setup_overhead + data_collection_length + baseline_accumulation +
// component_specific_slack, computed once at arming time.
func (a *Activity) budget(stage string) time.Duration {
	slack := a.cfg.Watchdog.ComponentSlack[stage]
	return a.cfg.Watchdog.SetupOverhead + a.rec.Params.DataCollectionLength + a.cfg.Watchdog.BaselineAccumulation + slack
}

// watchdog tracks one fan-out stage's quorum: the set of names still
// outstanding, plus a generation counter so a timer that fires after the
// stage already completed (and possibly a new watchdog was armed under the
// same name) drops itself instead of acting on stale state.
type watchdog struct {
	stage       string
	outstanding map[string]bool
	timer       clock.Timer
	generation  int
}

// armWatchdog starts a fresh watchdog for stage covering names, canceling
// any previous watchdog registered under the same stage name. onExpire runs
// on the timer's goroutine, after a.mu is released, with the proxy names that
// never reported.
func (a *Activity) armWatchdog(stage string, names []string, onExpire func(missing []string)) {
	a.mu.Lock()
	defer a.mu.Unlock()

	prev := a.watchdogs[stage]
	gen := 1
	if prev != nil {
		if prev.timer != nil {
			prev.timer.Stop()
		}
		gen = prev.generation + 1
	}

	w := &watchdog{stage: stage, outstanding: make(map[string]bool, len(names)), generation: gen}
	for _, n := range names {
		w.outstanding[n] = true
	}
	a.watchdogs[stage] = w

	d := a.budget(stage)
	w.timer = a.clk.AfterFunc(d, func() {
		a.mu.Lock()
		cur := a.watchdogs[stage]
		if cur == nil || cur.generation != gen {
			a.mu.Unlock()
			return
		}
		missing := make([]string, 0, len(cur.outstanding))
		for n := range cur.outstanding {
			missing = append(missing, n)
		}
		delete(a.watchdogs, stage)
		a.mu.Unlock()
		if len(missing) > 0 {
			a.log.Warn("observe: watchdog expired", "activity", a.id, "stage", stage, "missing", missing)
			onExpire(missing)
		}
	})
}

// reportIn marks name as having reported for stage, returning true once
// every outstanding name for that stage has reported. The caller cancels
// the watchdog and advances state in that case.
func (a *Activity) reportIn(stage string, name string) (quorumMet bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	w := a.watchdogs[stage]
	if w == nil {
		return false
	}
	delete(w.outstanding, name)
	if len(w.outstanding) > 0 {
		return false
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	delete(a.watchdogs, stage)
	return true
}

// cancelWatchdog stops and removes stage's watchdog if armed, used when a
// stage is skipped outright by the Ops short-circuit.
func (a *Activity) cancelWatchdog(stage string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if w := a.watchdogs[stage]; w != nil {
		if w.timer != nil {
			w.timer.Stop()
		}
		delete(a.watchdogs, stage)
	}
}

// cancelAllWatchdogs stops every still-armed watchdog.
func (a *Activity) cancelAllWatchdogs() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for stage, w := range a.watchdogs {
		if w.timer != nil {
			w.timer.Stop()
		}
		delete(a.watchdogs, stage)
	}
}
