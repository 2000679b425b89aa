// Package clock abstracts time so the watchdog/back-off logic throughout the
// control plane (activitybase, observe, proxy) can be driven deterministically
// in tests instead of with real sleeps.
package clock

import "time"

type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a one-shot timer with cancel semantics that race safely with
// firing: Stop returns false if the timer already fired or was already
// stopped, matching time.Timer's contract. Callers resolve the
// cancel-races-with-firing case with a generation counter on
// the owning object, not by trusting Stop's return value alone.
type Timer interface {
	Stop() bool
}

type realClock struct{}

func Real() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return realTimer{t: time.AfterFunc(d, f)}
}

type realTimer struct{ t *time.Timer }

func (r realTimer) Stop() bool { return r.t.Stop() }
