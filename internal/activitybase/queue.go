// Package activitybase is the single-consumer work-queue actor base that
// every ActivityStrategy subclasses: a buffered channel plus one dedicated
// consumer goroutine that dispatches exactly one work item to completion
// before pulling the next.
package activitybase

import "github.com/atasvc/sonata/pkg/obsmodel"

// WorkKind enumerates the typed work items the actor dispatches.
type WorkKind int

const (
	WorkStart WorkKind = iota
	WorkStop
	WorkWrapUp
	WorkShutdown
	WorkDataCollectionComplete
	WorkActivityComplete
	WorkFoundConfirmedCandidates
	WorkAttemptToStartNextActivity
	WorkContinueWithAnyMoreActivities
	WorkWatchdogTimeout
)

// WorkItem is one message on the actor's queue.
type WorkItem struct {
	Kind       WorkKind
	ActivityID obsmodel.ActivityID
	Failed     bool   // valid for WorkActivityComplete
	TimerName  string // valid for WorkWatchdogTimeout
}

// Queue is the actor's single-consumer mailbox. enqueue never blocks: it is
// backed by a generously buffered channel, so posting a cancellation or any
// other work item never blocks the caller.
type Queue struct {
	items chan WorkItem
}

// NewQueue builds a queue with capacity buffer. Callers size it generously
// (default below) to make "never block" true in practice, rather than use
// an unbounded channel that could still OOM a wedged actor.
func NewQueue(buffer int) *Queue {
	if buffer <= 0 {
		buffer = 256
	}
	return &Queue{items: make(chan WorkItem, buffer)}
}

// Enqueue posts a work item. Safe to call from any goroutine.
func (q *Queue) Enqueue(item WorkItem) {
	q.items <- item
}

// C exposes the receive side for the actor's run loop.
func (q *Queue) C() <-chan WorkItem { return q.items }
