package metrics

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestNoopProviderNeverPanics(t *testing.T) {
	p := NewNoopProvider()
	c := p.NewCounter(CounterOpts{CommonOpts: CommonOpts{Name: "survivors"}})
	g := p.NewGauge(GaugeOpts{CommonOpts: CommonOpts{Name: "followup_depth"}})
	h := p.NewHistogram(HistogramOpts{CommonOpts: CommonOpts{Name: "watchdog_wait_seconds"}})
	timer := p.NewTimer(HistogramOpts{CommonOpts: CommonOpts{Name: "activity_duration_seconds"}})()

	c.Inc(1)
	g.Set(3)
	g.Add(-1)
	h.Observe(0.5)
	timer.ObserveDuration()
	require.NoError(t, p.Health(context.Background()))
}

func TestPromProviderRegistersAndRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPromProvider(PromProviderOptions{Registerer: reg})

	c := p.NewCounter(CounterOpts{CommonOpts: CommonOpts{Namespace: "sonata", Subsystem: "proxy", Name: "disconnects_total", Help: "disconnects", Labels: []string{"class"}}})
	c.Inc(1, "dx")

	g := p.NewGauge(GaugeOpts{CommonOpts: CommonOpts{Namespace: "sonata", Subsystem: "followup", Name: "queue_depth", Help: "depth"}})
	g.Set(2)
	g.Add(1)

	h := p.NewHistogram(HistogramOpts{CommonOpts: CommonOpts{Namespace: "sonata", Subsystem: "watchdog", Name: "wait_seconds", Help: "wait"}})
	h.Observe(1.5)

	timer := p.NewTimer(HistogramOpts{CommonOpts: CommonOpts{Namespace: "sonata", Subsystem: "activity", Name: "duration_seconds", Help: "duration"}})()
	timer.ObserveDuration()

	metricFamilies, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, metricFamilies)
	require.NoError(t, p.Health(context.Background()))
}

func TestPromProviderDefaultsBucketsWhenUnset(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPromProvider(PromProviderOptions{Registerer: reg})
	h := p.NewHistogram(HistogramOpts{CommonOpts: CommonOpts{Name: "no_buckets_set"}})
	require.NotNil(t, h)
}

func TestOTelProviderBuildsInstrumentsWithoutPanicking(t *testing.T) {
	p := NewOTelProvider(OTelProviderOptions{ServiceName: "sonatad"})

	c := p.NewCounter(CounterOpts{CommonOpts: CommonOpts{Namespace: "sonata", Name: "candidates_total", Help: "candidates"}})
	c.Inc(1)

	g := p.NewGauge(GaugeOpts{CommonOpts: CommonOpts{Namespace: "sonata", Subsystem: "proxy", Name: "connected", Help: "connected proxies"}})
	g.Set(3)
	g.Set(5)
	g.Add(-2)

	hist := p.NewHistogram(HistogramOpts{CommonOpts: CommonOpts{Namespace: "sonata", Name: "merit_score", Help: "merit"}})
	hist.Observe(0.8)

	timer := p.NewTimer(HistogramOpts{CommonOpts: CommonOpts{Namespace: "sonata", Name: "prepare_seconds", Help: "prepare duration"}})()
	timer.ObserveDuration()

	require.NoError(t, p.Health(context.Background()))
}

func TestBuildOTelNameVariants(t *testing.T) {
	require.Equal(t, "n.s.name", buildOTelName(CommonOpts{Namespace: "n", Subsystem: "s", Name: "name"}))
	require.Equal(t, "n.name", buildOTelName(CommonOpts{Namespace: "n", Name: "name"}))
	require.Equal(t, "name", buildOTelName(CommonOpts{Name: "name"}))
}
