package main

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/atasvc/sonata/internal/scheduler"
	"github.com/atasvc/sonata/internal/telemetry/health"
	"github.com/atasvc/sonata/internal/telemetry/logging"
)

// serveStatusHTTP mirrors the scheduler's status over HTTP for deployments
// that scrape rather than tail the status file: /status (scheduler
// snapshot), /healthz (probe rollup), and /metrics (Prometheus). Blocks
// until the listener fails, so callers run it on its own goroutine.
func serveStatusHTTP(addr string, sched *scheduler.Scheduler, log logging.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(sched.Snapshot())
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		snap := sched.HealthSnapshot(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if snap.Overall == health.StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(snap)
	})
	mux.Handle("/metrics", promhttp.Handler())

	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error("sonatad: status http server exited", "addr", addr, "err", err)
	}
}
