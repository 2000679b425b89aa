// Package logging wraps *slog.Logger, injecting trace/span correlation IDs
// pulled from context, with plain (non-ctx) variants for the reactor-thread
// code that never threads a context.Context through its callbacks, plus a
// size-bounded rotating debug log file with N backups.
package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/atasvc/sonata/internal/telemetry/tracing"
)

// Logger is the structured logging surface used throughout the control
// plane.
type Logger interface {
	Debug(msg string, attrs ...any)
	Info(msg string, attrs ...any)
	Warn(msg string, attrs ...any)
	Error(msg string, attrs ...any)
	InfoCtx(ctx context.Context, msg string, attrs ...any)
	ErrorCtx(ctx context.Context, msg string, attrs ...any)
}

type correlatedLogger struct{ base *slog.Logger }

// New wraps base (or slog.Default() if nil) as a Logger.
func New(base *slog.Logger) Logger {
	if base == nil {
		base = slog.Default()
	}
	return &correlatedLogger{base: base}
}

func (l *correlatedLogger) Debug(msg string, attrs ...any) { l.base.Debug(msg, attrs...) }
func (l *correlatedLogger) Info(msg string, attrs ...any)  { l.base.Info(msg, attrs...) }
func (l *correlatedLogger) Warn(msg string, attrs ...any)  { l.base.Warn(msg, attrs...) }
func (l *correlatedLogger) Error(msg string, attrs ...any) { l.base.Error(msg, attrs...) }

func (l *correlatedLogger) InfoCtx(ctx context.Context, msg string, attrs ...any) {
	l.base.InfoContext(ctx, msg, withCorrelation(ctx, attrs)...)
}

func (l *correlatedLogger) ErrorCtx(ctx context.Context, msg string, attrs ...any) {
	l.base.ErrorContext(ctx, msg, withCorrelation(ctx, attrs)...)
}

func withCorrelation(ctx context.Context, attrs []any) []any {
	traceID, spanID := tracing.ExtractIDs(ctx)
	if traceID == "" && spanID == "" {
		return attrs
	}
	return append(attrs, slog.String("trace_id", traceID), slog.String("span_id", spanID))
}

const (
	debugLogSizeEnvVar  = "SSE_DEBUG_LOG_MAX_FILESIZE_MEGABYTES"
	debugLogSizeDefault = 25.0
	debugLogSizeMin     = 0.010
	debugLogSizeMax     = 500.0
	debugLogBackups     = 10
)

// RotatingDebugSink builds the rotating debug-log writer at path, sized from
// SSE_DEBUG_LOG_MAX_FILESIZE_MEGABYTES. An invalid or
// out-of-range value falls back to the default and logs a warning through
// fallbackWarn rather than failing startup.
func RotatingDebugSink(path string, fallbackWarn func(string)) *lumberjack.Logger {
	megs := debugLogSizeDefault
	if raw := os.Getenv(debugLogSizeEnvVar); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < debugLogSizeMin || v > debugLogSizeMax {
			if fallbackWarn != nil {
				fallbackWarn(fmt.Sprintf("%s=%q invalid (want %.3f-%.0f), using default %.0f", debugLogSizeEnvVar, raw, debugLogSizeMin, debugLogSizeMax, debugLogSizeDefault))
			}
		} else {
			megs = v
		}
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    int(megs),
		MaxBackups: debugLogBackups,
		Compress:   true,
	}
}

// NewWithRotatingDebugSink builds a Logger that writes structured JSON to
// sink only, at level and above.
func NewWithRotatingDebugSink(sink *lumberjack.Logger, level slog.Level) Logger {
	h := slog.NewJSONHandler(sink, &slog.HandlerOptions{Level: level})
	return New(slog.New(h))
}
