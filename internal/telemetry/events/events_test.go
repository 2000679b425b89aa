package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/atasvc/sonata/internal/telemetry/metrics"
	"github.com/atasvc/sonata/internal/telemetry/tracing"
)

func TestPublishRejectsMissingCategory(t *testing.T) {
	bus := NewBus(nil)
	err := bus.Publish(Event{Type: "activity_complete"})
	require.Error(t, err)
}

func TestPublishDeliversToSubscriber(t *testing.T) {
	bus := NewBus(metrics.NewNoopProvider())
	sub, err := bus.Subscribe(4)
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, bus.Publish(Event{Category: CategoryActivity, Type: "watchdog_survivor"}))
	ev := <-sub.C()
	require.Equal(t, CategoryActivity, ev.Category)
	require.Equal(t, "watchdog_survivor", ev.Type)
	require.False(t, ev.Time.IsZero())
}

func TestPublishCtxStampsTraceSpanFromContext(t *testing.T) {
	bus := NewBus(nil)
	sub, err := bus.Subscribe(1)
	require.NoError(t, err)
	defer sub.Close()

	tr := tracing.New(true)
	ctx, span := tr.StartSpan(context.Background(), "prepare-dx")
	defer span.End()

	require.NoError(t, bus.PublishCtx(ctx, Event{Category: CategoryProxy, Type: "disconnect"}))
	ev := <-sub.C()
	require.NotEmpty(t, ev.TraceID)
	require.NotEmpty(t, ev.SpanID)
}

func TestPublishDropsOnFullSubscriberBuffer(t *testing.T) {
	bus := NewBus(nil)
	sub, err := bus.Subscribe(1)
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, bus.Publish(Event{Category: CategoryScheduler, Type: "first"}))
	require.NoError(t, bus.Publish(Event{Category: CategoryScheduler, Type: "dropped"}))

	stats := bus.Stats()
	require.Equal(t, uint64(1), stats.Dropped)
	require.Equal(t, uint64(2), stats.Published)
}

func TestUnsubscribeClosesChannelAndStopsDelivery(t *testing.T) {
	bus := NewBus(nil)
	sub, err := bus.Subscribe(4)
	require.NoError(t, err)

	require.NoError(t, bus.Unsubscribe(sub))
	_, ok := <-sub.C()
	require.False(t, ok)

	require.NoError(t, bus.Publish(Event{Category: CategoryHealth, Type: "probe"}))
	require.Equal(t, int64(0), bus.Stats().Subscribers)
}

func TestUnsubscribeNilIsNoop(t *testing.T) {
	bus := NewBus(nil)
	require.NoError(t, bus.Unsubscribe(nil))
}

func TestSubscribeDefaultsBufferSize(t *testing.T) {
	bus := NewBus(nil)
	sub, err := bus.Subscribe(0)
	require.NoError(t, err)
	defer sub.Close()
	require.Equal(t, 64, cap(sub.C()))
}
