// Package archive manages the configured archive root's directory layout
// and the append-only activity log: temp/perm/system/error log directories,
// per-activity data-product directories named by time+activity-id+type, and
// the system-config snapshot written on strategy start.
package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/atasvc/sonata/internal/obserr"
	"github.com/atasvc/sonata/pkg/obsmodel"
)

// subdirs is the fixed set of directories the archive root carries.
var subdirs = []string{"templogs", "permlogs", "systemlogs", "errorlogs", "system", "confirmdata"}

// Layout is the archive root and its fixed directory set.
type Layout struct {
	Root string
}

// NewLayout returns a Layout rooted at root; call Ensure before first use.
func NewLayout(root string) Layout { return Layout{Root: root} }

// Ensure creates the root and every fixed subdirectory, erroring with
// FileIOError if any cannot be created.
func (l Layout) Ensure() error {
	for _, d := range append([]string{""}, subdirs...) {
		if err := os.MkdirAll(filepath.Join(l.Root, d), 0o755); err != nil {
			return obserr.Wrap(obserr.FileIOError, "create archive dir "+d, err)
		}
	}
	return nil
}

func (l Layout) TempLogs() string    { return filepath.Join(l.Root, "templogs") }
func (l Layout) PermLogs() string    { return filepath.Join(l.Root, "permlogs") }
func (l Layout) SystemLogs() string  { return filepath.Join(l.Root, "systemlogs") }
func (l Layout) ErrorLogs() string   { return filepath.Join(l.Root, "errorlogs") }
func (l Layout) System() string      { return filepath.Join(l.Root, "system") }
func (l Layout) ConfirmData() string { return filepath.Join(l.Root, "confirmdata") }

// ActivityDir creates and returns the per-activity data-product directory,
// named by start time, activity id, and activity type.
func (l Layout) ActivityDir(start time.Time, id obsmodel.ActivityID, activityType string) (string, error) {
	name := fmt.Sprintf("%s.act%d.%s", start.UTC().Format("2006-01-02_15-04-05"), id, activityType)
	dir := filepath.Join(l.ConfirmData(), name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", obserr.Wrap(obserr.FileIOError, "create activity dir "+name, err)
	}
	return dir, nil
}

// WriteSystemConfigSnapshot writes cfg as yaml into system/, overwritten
// atomically (write-temp + rename) on every strategy start.
func (l Layout) WriteSystemConfigSnapshot(cfg any) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return obserr.Wrap(obserr.InternalAssert, "marshal config snapshot", err)
	}
	final := filepath.Join(l.System(), "system-config.yaml")
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return obserr.Wrap(obserr.FileIOError, "write config snapshot", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return obserr.Wrap(obserr.FileIOError, "rename config snapshot", err)
	}
	return nil
}

// ActivityLog is the single append-only activity log file, mutex-protected
// so concurrent strategy and activity goroutines never interleave lines.
type ActivityLog struct {
	mu sync.Mutex
	f  *os.File
}

// OpenActivityLog opens (or creates) the append-only activity log under
// systemlogs/.
func OpenActivityLog(l Layout) (*ActivityLog, error) {
	f, err := os.OpenFile(filepath.Join(l.SystemLogs(), "activity.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, obserr.Wrap(obserr.FileIOError, "open activity log", err)
	}
	return &ActivityLog{f: f}, nil
}

// Append writes one timestamped line.
func (a *ActivityLog) Append(at time.Time, line string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, err := fmt.Fprintf(a.f, "%s %s\n", at.UTC().Format(time.RFC3339), line)
	if err != nil {
		return obserr.Wrap(obserr.FileIOError, "append activity log", err)
	}
	return nil
}

func (a *ActivityLog) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.f.Close()
}
