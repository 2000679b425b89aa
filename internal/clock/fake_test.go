package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFakeAdvanceFiresDueTimers(t *testing.T) {
	f := NewFake(time.Unix(1700000000, 0))
	var fired []string

	f.AfterFunc(5*time.Second, func() { fired = append(fired, "a") })
	f.AfterFunc(10*time.Second, func() { fired = append(fired, "b") })

	f.Advance(5 * time.Second)
	assert.Equal(t, []string{"a"}, fired)

	f.Advance(5 * time.Second)
	assert.Equal(t, []string{"a", "b"}, fired)
}

func TestFakeStopPreventsFiring(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	fired := false
	timer := f.AfterFunc(time.Second, func() { fired = true })

	ok := timer.Stop()
	assert.True(t, ok, "Stop on an unfired timer returns true")

	f.Advance(5 * time.Second)
	assert.False(t, fired)

	// Stop is idempotent-false on a second call, matching time.Timer's contract.
	assert.False(t, timer.Stop())
}

func TestFakeStopAfterFiringReturnsFalse(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	timer := f.AfterFunc(time.Second, func() {})
	f.Advance(time.Second)
	assert.False(t, timer.Stop(), "Stop on an already-fired timer returns false")
}

func TestFakeNowAdvances(t *testing.T) {
	start := time.Unix(100, 0)
	f := NewFake(start)
	assert.Equal(t, start, f.Now())
	f.Advance(30 * time.Second)
	assert.Equal(t, start.Add(30*time.Second), f.Now())
}

func TestFakeSelfRearmingTimer(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	count := 0
	var tick func()
	tick = func() {
		count++
		if count < 3 {
			f.AfterFunc(time.Second, tick)
		}
	}
	f.AfterFunc(time.Second, tick)

	f.Advance(time.Second)
	f.Advance(time.Second)
	f.Advance(time.Second)
	assert.Equal(t, 3, count)
}
