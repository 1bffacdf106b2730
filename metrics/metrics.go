// Package metrics exposes Prometheus counters and gauges for the batch
// engine's iteration counts, solver durations, and stagnation events.
//
// jhkimqd-chaos-utils/pkg/monitoring/prometheus wires up the *query* side
// of github.com/prometheus/client_golang (reading metrics back out of a
// running Prometheus server); this package uses the same module for the
// *exporter* side, which is the half a batch job that runs its own
// process actually needs: a local registry plus an HTTP handler a
// sidecar Prometheus can scrape.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry groups every metric the solvers report against. One Registry is
// created per calculation and threaded into each solver constructor,
// mirroring config.Settings being passed by value rather than held in a
// package global.
type Registry struct {
	reg *prometheus.Registry

	Iterations      *prometheus.CounterVec
	Stagnations     *prometheus.CounterVec
	BudgetExhausted *prometheus.CounterVec
	SolverDuration  *prometheus.HistogramVec
	ActiveSessions  prometheus.Gauge
}

// NewRegistry builds a fresh, unregistered-with-default-registry metric
// set so concurrent tests (and concurrent calculations in one process)
// never collide on Prometheus's global default registry.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		Iterations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dss",
			Name:      "solver_iterations_total",
			Help:      "Number of probe iterations performed by a solver.",
		}, []string{"solver"}),
		Stagnations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dss",
			Name:      "solver_stagnations_total",
			Help:      "Number of times a solver's bisection loop detected stagnation.",
		}, []string{"solver"}),
		BudgetExhausted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dss",
			Name:      "solver_budget_exhausted_total",
			Help:      "Number of times a solver hit its declared iteration bound without converging.",
		}, []string{"solver"}),
		SolverDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dss",
			Name:      "solver_duration_seconds",
			Help:      "Wall-clock duration of one solver Run call for one (regime, variant, scenario) triple.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"solver"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dss",
			Name:      "active_sim_sessions",
			Help:      "Number of simsession.Session instances currently holding the simulator handle (0 or 1 by design, see SPEC_FULL.md §5).",
		}),
	}

	reg.MustRegister(r.Iterations, r.Stagnations, r.BudgetExhausted, r.SolverDuration, r.ActiveSessions)
	return r
}

// Handler returns the HTTP handler that serves this registry's metrics in
// the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Serve starts an HTTP server exposing Handler() at addr and blocks until
// ctx is cancelled. An empty addr is a no-op, matching
// config.MetricsSettings.ListenAddr's "empty disables" contract.
func (r *Registry) Serve(ctx context.Context, addr string) error {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return srv.Shutdown(context.Background())
	case err := <-errc:
		return err
	}
}
