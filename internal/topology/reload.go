package topology

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// Registry holds the live Tree and swaps it atomically on manifest change:
// a watch loop that validates a newly parsed Tree before swapping it in. A
// manifest that fails to parse never replaces the current Tree.
type Registry struct {
	path    string
	current atomic.Pointer[Tree]
	watcher *fsnotify.Watcher

	mu       sync.Mutex
	watching bool
}

// NewRegistry loads path once and returns a Registry serving it.
func NewRegistry(path string) (*Registry, error) {
	t, err := loadFile(path)
	if err != nil {
		return nil, err
	}
	r := &Registry{path: path}
	r.current.Store(t)
	return r, nil
}

func loadFile(path string) (*Tree, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("topology: open manifest: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Current returns the live Tree. Safe for concurrent use with Watch.
func (r *Registry) Current() *Tree { return r.current.Load() }

// Watch begins hot-reloading the manifest file; each write event re-parses
// the manifest and, only if parsing succeeds, swaps Current atomically. A
// bad edit (syntax error, duplicate ownership) is logged by the caller via
// the returned error channel and the prior Tree keeps serving.
func (r *Registry) Watch(ctx context.Context) (<-chan error, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.watching {
		return nil, fmt.Errorf("topology: already watching %s", r.path)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("topology: create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(r.path)); err != nil {
		w.Close()
		return nil, fmt.Errorf("topology: watch dir: %w", err)
	}
	r.watcher = w
	r.watching = true

	errs := make(chan error, 4)
	go func() {
		defer close(errs)
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Name != r.path {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				t, err := loadFile(r.path)
				if err != nil {
					errs <- err
					continue
				}
				r.current.Store(t)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				errs <- err
			}
		}
	}()
	return errs, nil
}
