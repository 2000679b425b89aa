package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNoopTracerProducesEmptyIDs(t *testing.T) {
	tr := New(false)
	require.True(t, tr.Noop())
	ctx, span := tr.StartSpan(context.Background(), "noop-span")
	traceID, spanID := ExtractIDs(ctx)
	require.Empty(t, traceID)
	require.Empty(t, spanID)
	span.End()
	require.True(t, span.IsEnded())
}

func TestSimpleTracerAssignsIDs(t *testing.T) {
	tr := New(true)
	require.False(t, tr.Noop())
	ctx, span := tr.StartSpan(context.Background(), "prepare-tscope")
	traceID, spanID := ExtractIDs(ctx)
	require.NotEmpty(t, traceID)
	require.NotEmpty(t, spanID)
	require.False(t, span.IsEnded())
	span.End()
	require.True(t, span.IsEnded())
}

func TestChildSpanSharesTraceID(t *testing.T) {
	tr := New(true)
	ctx, parent := tr.StartSpan(context.Background(), "activity")
	defer parent.End()
	parentTraceID, parentSpanID := ExtractIDs(ctx)

	childCtx, child := tr.StartSpan(ctx, "prepare-dx")
	defer child.End()
	childTraceID, childSpanID := ExtractIDs(childCtx)

	require.Equal(t, parentTraceID, childTraceID)
	require.NotEqual(t, parentSpanID, childSpanID)
}

func TestSetAttributeDoesNotPanicAfterEnd(t *testing.T) {
	tr := New(true)
	_, span := tr.StartSpan(context.Background(), "op")
	span.End()
	span.SetAttribute("late", true)
}

func TestSpanFromContextOutsideAnySpan(t *testing.T) {
	traceID, spanID := ExtractIDs(context.Background())
	require.Empty(t, traceID)
	require.Empty(t, spanID)
}
