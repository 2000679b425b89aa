package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// Registry holds the live Config and swaps it atomically on file change,
// the same validate-before-swap shape as topology.Registry: a change that
// fails to parse or validate never replaces the current Config.
type Registry struct {
	path    string
	current atomic.Pointer[Config]
}

// NewRegistry loads path once (or defaults, if absent) and returns a
// Registry serving it.
func NewRegistry(path string) (*Registry, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	r := &Registry{path: path}
	r.current.Store(&cfg)
	return r, nil
}

// Current returns the live Config. Safe for concurrent use with Watch.
func (r *Registry) Current() Config { return *r.current.Load() }

// Watch hot-reloads the config file; each write event re-loads and
// validates, swapping Current only on success.
func (r *Registry) Watch(ctx context.Context) (<-chan error, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(r.path)); err != nil {
		w.Close()
		return nil, fmt.Errorf("config: watch dir: %w", err)
	}
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
				if ev.Name != r.path || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cfg, err := Load(r.path)
				if err != nil {
					errs <- err
					continue
				}
				r.current.Store(&cfg)
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
