package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/atasvc/sonata/internal/telemetry/tracing"
)

func TestCorrelatedLoggerAddsTraceSpan(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{AddSource: false}))
	log := New(base)

	tr := tracing.New(true)
	ctx, span := tr.StartSpan(context.Background(), "prepare-dx")
	defer span.End()

	log.InfoCtx(ctx, "hello", "k", "v")
	out := buf.String()
	require.Contains(t, out, "trace_id=")
	require.Contains(t, out, "span_id=")
}

func TestCorrelatedLoggerNoSpan(t *testing.T) {
	var buf bytes.Buffer
	log := New(slog.New(slog.NewTextHandler(&buf, nil)))
	log.InfoCtx(context.Background(), "plain")
	require.NotContains(t, buf.String(), "trace_id=")
}

func TestNewDefaultsToSlogDefault(t *testing.T) {
	log := New(nil)
	require.NotNil(t, log)
	log.Info("no panic expected")
}

func TestRotatingDebugSinkDefaultsOnInvalidEnv(t *testing.T) {
	t.Setenv("SSE_DEBUG_LOG_MAX_FILESIZE_MEGABYTES", "not-a-float")
	var warned string
	sink := RotatingDebugSink(t.TempDir()+"/debug.log", func(msg string) { warned = msg })
	require.Equal(t, int(debugLogSizeDefault), sink.MaxSize)
	require.Contains(t, warned, "SSE_DEBUG_LOG_MAX_FILESIZE_MEGABYTES")
}

func TestRotatingDebugSinkDefaultsOnOutOfRange(t *testing.T) {
	t.Setenv("SSE_DEBUG_LOG_MAX_FILESIZE_MEGABYTES", "5000")
	var warned string
	sink := RotatingDebugSink(t.TempDir()+"/debug.log", func(msg string) { warned = msg })
	require.Equal(t, int(debugLogSizeDefault), sink.MaxSize)
	require.NotEmpty(t, warned)
}

func TestRotatingDebugSinkAcceptsValidEnv(t *testing.T) {
	t.Setenv("SSE_DEBUG_LOG_MAX_FILESIZE_MEGABYTES", "40")
	sink := RotatingDebugSink(t.TempDir()+"/debug.log", func(string) {
		t.Fatal("no warning expected for a valid size")
	})
	require.Equal(t, 40, sink.MaxSize)
}

func TestNewWithRotatingDebugSinkWritesJSON(t *testing.T) {
	sink := RotatingDebugSink(t.TempDir()+"/debug.log", nil)
	log := NewWithRotatingDebugSink(sink, slog.LevelInfo)
	require.NotNil(t, log)
	log.Info("activity started", "activity_id", 42)
	require.True(t, strings.HasSuffix(sink.Filename, "debug.log"))
}
