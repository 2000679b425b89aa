package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/atasvc/sonata/internal/activitybase"
	"github.com/atasvc/sonata/internal/clock"
	"github.com/atasvc/sonata/internal/config"
	"github.com/atasvc/sonata/internal/obsstrategy"
	"github.com/atasvc/sonata/internal/proxy"
	"github.com/atasvc/sonata/internal/telemetry/logging"
	"github.com/atasvc/sonata/internal/telemetry/metrics"
	"github.com/atasvc/sonata/internal/wire"
)

// clockReal is a thin indirection so every subsystem in main.go shares one
// real-time clock without importing clock.Real() a dozen times.
func clockReal() clock.Clock { return clock.Real() }

// buildMetricsProvider picks the configured metrics backend: Prometheus for the default on-host /metrics mirror, the
// OTEL bridge for deployments already running a collector, or a silent
// no-op provider otherwise.
func buildMetricsProvider(cfg config.TelemetryConfig) metrics.Provider {
	switch cfg.MetricsBackend {
	case "otel":
		return metrics.NewOTelProvider(metrics.OTelProviderOptions{ServiceName: "sonatad"})
	case "noop":
		return metrics.NewNoopProvider()
	default:
		return metrics.NewPromProvider(metrics.PromProviderOptions{})
	}
}

// activitybaseConfig derives an activitybase.Config from the loaded
// operational config.
func activitybaseConfig(cfg config.Config) activitybase.Config {
	return activitybase.Config{
		MaxSequentialFailedActivities: cfg.Strategy.MaxSequentialFailedActivities,
		FailurePause:                  cfg.Strategy.FailurePause,
		StrategyRepeatCount:           cfg.Strategy.StrategyRepeatCount,
		TscopeReadyMaxFailures:        cfg.Strategy.TscopeReadyMaxFailures,
		TscopeReadyWaitInterval:       cfg.Strategy.TscopeReadyWaitInterval,
		TargetValidationWarnOnly:      cfg.Strategy.TargetValidationWarnOnly,
	}
}

// portFor resolves the listening port for one component class.
func portFor(ports config.PortsConfig, class wire.ComponentClass) int {
	switch class {
	case wire.ClassSSEControl:
		return ports.SSEControl
	case wire.ClassRFC:
		return ports.RFC
	case wire.ClassIFC:
		return ports.IFC
	case wire.ClassDX:
		return ports.DX
	case wire.ClassTscope:
		return ports.Tscope
	case wire.ClassTestSig:
		return ports.TestSig
	case wire.ClassArchiver:
		return ports.Archiver
	case wire.ClassChannelizer:
		return ports.Channelizer
	default:
		return 0
	}
}

// bindComponentManagers constructs one *proxy.Manager per component class
// the activity fleet spans. Classes outside the observing
// data path (SSE control, RFC) are intentionally left unmanaged here: they
// have no ProxySets slot and nothing in the activity layer ever resolves
// them.
func bindComponentManagers(cfg config.Config, log logging.Logger) map[wire.ComponentClass]*proxy.Manager {
	const interfaceVersion = "1.0"
	clk := clockReal()

	return map[wire.ComponentClass]*proxy.Manager{
		wire.ClassTscope:      proxy.NewManager(wire.ClassTscope, interfaceVersion, nil, clk, log),
		wire.ClassIFC:         proxy.NewManager(wire.ClassIFC, interfaceVersion, nil, clk, log),
		wire.ClassTestSig:     proxy.NewManager(wire.ClassTestSig, interfaceVersion, nil, clk, log),
		wire.ClassDX:          proxy.NewManager(wire.ClassDX, interfaceVersion, nil, clk, log),
		wire.ClassArchiver:    proxy.NewManager(wire.ClassArchiver, interfaceVersion, nil, clk, log),
		wire.ClassChannelizer: proxy.NewManager(wire.ClassChannelizer, interfaceVersion, nil, clk, log),
	}
}

// loadInitialParams reads the strategy parameters the scheduler enqueues at
// startup, JSON-decoded to catch shape errors before the scheduler ever
// starts.
func loadInitialParams(path string) (map[string]any, error) {
	if path == "" {
		return map[string]any{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read params file: %w", err)
	}
	var p obsstrategy.Params
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse params file: %w", err)
	}
	roundTripped, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("re-encode params: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(roundTripped, &out); err != nil {
		return nil, fmt.Errorf("decode params to map: %w", err)
	}
	return out, nil
}

// paramsFromMap reverses loadInitialParams' round-trip, giving the
// strategy factory a typed obsstrategy.Params from whatever map the
// scheduler's FIFO carried.
func paramsFromMap(raw map[string]any) obsstrategy.Params {
	var p obsstrategy.Params
	data, err := json.Marshal(raw)
	if err != nil {
		return p
	}
	_ = json.Unmarshal(data, &p)
	return p
}
