// Package obserr defines the error kinds the core needs to distinguish,
// independent of any specific transport, plus the severity classification
// used by the proxy -> activity error-propagation hook.
package obserr

import (
	"errors"
	"fmt"
)

// Kind classifies an error into one of a fixed set of categories.
type Kind string

const (
	InvalidParameters   Kind = "invalid_parameters"
	MissingComponent    Kind = "missing_component"
	OutOfBandFrequency  Kind = "out_of_band_frequency"
	InvalidTarget       Kind = "invalid_target"
	ComponentDisconnect Kind = "component_disconnect"
	WatchdogTimeout     Kind = "watchdog_timeout"
	DatabaseError       Kind = "database_error"
	FileIOError         Kind = "file_io_error"
	VersionMismatch     Kind = "version_mismatch"
	InternalAssert      Kind = "internal_assert"
)

// Severity is the classification a proxy error is given before it reaches
// an activity's componentError hook.
type Severity string

const (
	Info    Severity = "INFO"
	Warning Severity = "WARNING"
	Error   Severity = "ERROR"
	Fatal   Severity = "FATAL"
)

// Terminal reports whether this severity terminates the activity that
// receives it.
func (s Severity) Terminal() bool { return s == Error || s == Fatal }

// ObsError is the core's typed error: a Kind plus a human message and an
// optional wrapped cause.
type ObsError struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *ObsError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ObsError) Unwrap() error { return e.Cause }

func New(kind Kind, message string) *ObsError {
	return &ObsError{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *ObsError {
	return &ObsError{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *ObsError; ok is false otherwise.
func KindOf(err error) (Kind, bool) {
	var oe *ObsError
	if errors.As(err, &oe) {
		return oe.Kind, true
	}
	return "", false
}
