// Package metrics exposes Prometheus instrumentation for controller runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/talgya/nephron-sim/internal/engine"
)

// Metrics holds the collectors registered for one process.
type Metrics struct {
	reg prometheus.Gatherer

	RunsTotal         *prometheus.CounterVec
	RunErrorsTotal    *prometheus.CounterVec
	DaysSimulated     prometheus.Counter
	GuardedIterations prometheus.Counter
	RunDuration       prometheus.Histogram
	FinalPlasma       *prometheus.GaugeVec
	FinalGFR          prometheus.Gauge
}

// New registers every collector on reg.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		RunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nephron_runs_total",
			Help: "Completed controller runs by scenario",
		}, []string{"scenario"}),
		RunErrorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nephron_run_errors_total",
			Help: "Controller runs that failed, by scenario",
		}, []string{"scenario"}),
		DaysSimulated: f.NewCounter(prometheus.CounterOpts{
			Name: "nephron_days_simulated_total",
			Help: "Simulated days across all runs",
		}),
		GuardedIterations: f.NewCounter(prometheus.CounterOpts{
			Name: "nephron_tgf_guarded_iterations_total",
			Help: "TGF passes skipped for degenerate macula densa delivery",
		}),
		RunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "nephron_run_duration_seconds",
			Help:    "Wall time of a controller run",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		FinalPlasma: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "nephron_final_plasma_mmol_per_liter",
			Help: "Controlled plasma concentration at the end of the latest run",
		}, []string{"species"}),
		FinalGFR: f.NewGauge(prometheus.GaugeOpts{
			Name: "nephron_final_gfr_liters_per_hour",
			Help: "TGF-adjusted GFR on the last day of the latest run",
		}),
	}
}

// ObserveRun records a completed run.
func (m *Metrics) ObserveRun(scenario string, hist *engine.History, took time.Duration) {
	m.RunsTotal.WithLabelValues(scenario).Inc()
	m.RunDuration.Observe(took.Seconds())
	if hist == nil || hist.Len() == 0 {
		return
	}

	last := hist.Last()
	m.DaysSimulated.Add(float64(last.Day))
	m.GuardedIterations.Add(float64(hist.GuardedIterations()))
	m.FinalPlasma.WithLabelValues("sodium").Set(last.Sodium)
	m.FinalPlasma.WithLabelValues("potassium").Set(last.Potassium)
	m.FinalPlasma.WithLabelValues("bicarbonate").Set(last.Bicarbonate)
	m.FinalGFR.Set(last.GFR)
}

// ObserveError records a failed run.
func (m *Metrics) ObserveError(scenario string) {
	m.RunErrorsTotal.WithLabelValues(scenario).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
