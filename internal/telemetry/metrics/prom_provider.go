package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PromProviderOptions configures the Prometheus-backed provider used to feed
// the status HTTP endpoint's /metrics mirror.
type PromProviderOptions struct {
	Registerer prometheus.Registerer
}

// NewPromProvider returns a Provider backed by prometheus/client_golang,
// registering every instrument against opts.Registerer (or the default
// registry when nil).
func NewPromProvider(opts PromProviderOptions) Provider {
	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &promProvider{reg: reg}
}

type promProvider struct{ reg prometheus.Registerer }

func (p *promProvider) NewCounter(opts CounterOpts) Counter {
	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: opts.Namespace, Subsystem: opts.Subsystem, Name: opts.Name, Help: opts.Help,
	}, opts.Labels)
	_ = p.reg.Register(c)
	return &promCounter{c: c}
}

func (p *promProvider) NewGauge(opts GaugeOpts) Gauge {
	g := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: opts.Namespace, Subsystem: opts.Subsystem, Name: opts.Name, Help: opts.Help,
	}, opts.Labels)
	_ = p.reg.Register(g)
	return &promGauge{g: g}
}

func (p *promProvider) NewHistogram(opts HistogramOpts) Histogram {
	buckets := opts.Buckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}
	h := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: opts.Namespace, Subsystem: opts.Subsystem, Name: opts.Name, Help: opts.Help, Buckets: buckets,
	}, opts.Labels)
	_ = p.reg.Register(h)
	return &promHistogram{h: h}
}

func (p *promProvider) NewTimer(h HistogramOpts) func() Timer {
	hist := p.NewHistogram(h)
	return func() Timer { return &promTimer{h: hist, start: time.Now()} }
}

func (p *promProvider) Health(context.Context) error { return nil }

type promCounter struct{ c *prometheus.CounterVec }

func (c *promCounter) Inc(delta float64, labels ...string) { c.c.WithLabelValues(labels...).Add(delta) }

type promGauge struct{ g *prometheus.GaugeVec }

func (g *promGauge) Set(v float64, labels ...string)     { g.g.WithLabelValues(labels...).Set(v) }
func (g *promGauge) Add(delta float64, labels ...string) { g.g.WithLabelValues(labels...).Add(delta) }

type promHistogram struct{ h *prometheus.HistogramVec }

func (h *promHistogram) Observe(v float64, labels ...string) {
	h.h.WithLabelValues(labels...).Observe(v)
}

type promTimer struct {
	h     Histogram
	start time.Time
}

func (t *promTimer) ObserveDuration(labels ...string) {
	t.h.Observe(time.Since(t.start).Seconds(), labels...)
}
