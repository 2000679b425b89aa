package observe

import "time"

// worker is the activity's single-consumer queue for blocking operations --
// database writes, RFI-mask generation, candidate broadcast -- run on a
// single task queue per activity rather than a fixed worker pool per stage,
// since one activity needs only one blocking-op lane at a time.
type worker struct {
	tasks chan func()
	done  chan struct{}
}

func newWorker() *worker {
	w := &worker{tasks: make(chan func(), 32), done: make(chan struct{})}
	go w.run()
	return w
}

func (w *worker) run() {
	defer close(w.done)
	for t := range w.tasks {
		t()
	}
}

// submit enqueues a blocking task. Never blocks the reactor for long: the
// buffer absorbs bursts, and a full buffer indicates a wedged worker the
// activity's watchdogs will eventually notice via stalled completions.
func (w *worker) submit(task func()) {
	w.tasks <- task
}

func (w *worker) stop() {
	close(w.tasks)
	<-w.done
}

// postToReactor schedules continuation to run one second from now so work
// finished on the worker goroutine resumes on the reactor thread, keeping
// the state machine single-threaded.
func (a *Activity) postToReactor(continuation func()) {
	a.clk.AfterFunc(time.Second, continuation)
}
