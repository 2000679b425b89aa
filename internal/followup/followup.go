// Package followup is the singleton follow-up engine: a mutex-protected
// deque of activity IDs awaiting re-observation, plus the activityType ->
// successorType mapping whose closure the core validates at startup. The
// queue is popped synchronously by the strategy's own worker, not a
// separate consumer goroutine, so a plain mutex is enough.
package followup

import (
	"fmt"
	"sync"

	"github.com/atasvc/sonata/pkg/obsmodel"
)

// TypeMap is the activityType -> successorType mapping. A type mapped to itself is a terminal: the chain
// stops there.
type TypeMap map[string]string

// ValidateClosure enforces that the map is closed: every value is also a
// key, so NextType always has somewhere to look up the chain.
func (m TypeMap) ValidateClosure() error {
	for from, to := range m {
		if _, ok := m[to]; !ok {
			return fmt.Errorf("followup: map not closed: %q -> %q, but %q has no entry", from, to, to)
		}
	}
	return nil
}

// Successor returns the successor type for activityType, and whether the
// chain terminates there (successor == activityType).
func (m TypeMap) Successor(activityType string) (successor string, terminal bool, ok bool) {
	s, ok := m[activityType]
	if !ok {
		return "", false, false
	}
	return s, s == activityType, true
}

type pendingEntry struct {
	activityID               obsmodel.ActivityID
	breaksChainOnDoNotReport bool
}

// Engine is the singleton follow-up queue.
type Engine struct {
	typeMap TypeMap

	mu      sync.Mutex
	pending []pendingEntry
}

// New constructs an Engine, rejecting a typeMap whose closure invariant
// doesn't hold.
func New(typeMap TypeMap) (*Engine, error) {
	if err := typeMap.ValidateClosure(); err != nil {
		return nil, err
	}
	return &Engine{typeMap: typeMap}, nil
}

// Enqueue adds an activity ID to the back of the follow-up deque after it
// reports confirmed candidates and follow-up is enabled.
func (e *Engine) Enqueue(id obsmodel.ActivityID, doNotReportConfirmed bool) {
	e.mu.Lock()
	e.pending = append(e.pending, pendingEntry{activityID: id, breaksChainOnDoNotReport: doNotReportConfirmed})
	e.mu.Unlock()
}

// PopFront pops the front activity ID for the next getNextActivity call
// with no pending regular activity. ok is false if the
// queue is empty.
func (e *Engine) PopFront() (obsmodel.ActivityID, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.pending) == 0 {
		return obsmodel.ActivityID(obsmodel.NoActivityID), false
	}
	front := e.pending[0]
	e.pending = e.pending[1:]
	return front.activityID, true
}

// Len reports the number of activities awaiting follow-up.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// NextType resolves the follow-up activity type for an activity of
// activityType, substituting the successor type per the mapping. A
// configured final type with DoNotReportConfirmedCandidates breaks the
// chain before it reaches here -- callers check that bit on the resolved
// ActivityRecord before calling NextType again.
func (e *Engine) NextType(activityType string) (string, bool) {
	successor, terminal, ok := e.typeMap.Successor(activityType)
	if !ok || terminal {
		return "", false
	}
	return successor, true
}
