package metrics

// OTel metrics bridge: implements Provider on top of the OTEL SDK so
// deployments that already run an OTEL collector can opt into it instead of
// (or alongside) the Prometheus provider. Gauges simulate Set semantics via
// an UpDownCounter delta.

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

type OTelProviderOptions struct {
	ServiceName string
}

func NewOTelProvider(opts OTelProviderOptions) Provider {
	mp := sdkmetric.NewMeterProvider()
	meter := mp.Meter("sonata")
	return &otelProvider{mp: mp, meter: meter, lastGauge: make(map[string]float64)}
}

type otelProvider struct {
	mp    *sdkmetric.MeterProvider
	meter metric.Meter

	mu        sync.Mutex
	lastGauge map[string]float64
}

func buildOTelName(c CommonOpts) string {
	switch {
	case c.Namespace != "" && c.Subsystem != "":
		return c.Namespace + "." + c.Subsystem + "." + c.Name
	case c.Namespace != "":
		return c.Namespace + "." + c.Name
	default:
		return c.Name
	}
}

func (p *otelProvider) NewCounter(opts CounterOpts) Counter {
	name := buildOTelName(opts.CommonOpts)
	inst, err := p.meter.Float64Counter(name, metric.WithDescription(opts.Help))
	if err != nil {
		return noopCounter{}
	}
	return &otelCounter{c: inst}
}

func (p *otelProvider) NewGauge(opts GaugeOpts) Gauge {
	name := buildOTelName(opts.CommonOpts)
	inst, err := p.meter.Float64UpDownCounter(name, metric.WithDescription(opts.Help))
	if err != nil {
		return noopGauge{}
	}
	return &otelGauge{g: inst, provider: p, id: name}
}

func (p *otelProvider) NewHistogram(opts HistogramOpts) Histogram {
	name := buildOTelName(opts.CommonOpts)
	inst, err := p.meter.Float64Histogram(name, metric.WithDescription(opts.Help))
	if err != nil {
		return noopHistogram{}
	}
	return &otelHistogram{h: inst}
}

func (p *otelProvider) NewTimer(h HistogramOpts) func() Timer {
	hist := p.NewHistogram(h)
	return func() Timer { return &otelTimer{h: hist, start: time.Now()} }
}

func (p *otelProvider) Health(ctx context.Context) error { return nil }

type otelCounter struct{ c metric.Float64Counter }

func (c *otelCounter) Inc(delta float64, labels ...string) {
	c.c.Add(context.Background(), delta)
}

// otelGauge simulates Set by applying the delta between the requested value
// and the last value this gauge instance recorded, since OTEL has no native
// synchronous gauge-set instrument.
type otelGauge struct {
	g        metric.Float64UpDownCounter
	provider *otelProvider
	id       string
}

func (g *otelGauge) Set(v float64, labels ...string) {
	g.provider.mu.Lock()
	delta := v - g.provider.lastGauge[g.id]
	g.provider.lastGauge[g.id] = v
	g.provider.mu.Unlock()
	g.g.Add(context.Background(), delta)
}

func (g *otelGauge) Add(delta float64, labels ...string) {
	g.provider.mu.Lock()
	g.provider.lastGauge[g.id] += delta
	g.provider.mu.Unlock()
	g.g.Add(context.Background(), delta)
}

type otelHistogram struct{ h metric.Float64Histogram }

func (h *otelHistogram) Observe(v float64, labels ...string) {
	h.h.Record(context.Background(), v)
}

type otelTimer struct {
	h     Histogram
	start time.Time
}

func (t *otelTimer) ObserveDuration(labels ...string) {
	t.h.Observe(time.Since(t.start).Seconds(), labels...)
}
