// Package metrics records scrape runs as Prometheus metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "unityscrape"

// Recorder holds the scrape metrics on its own registry. A nil Recorder
// records nothing.
type Recorder struct {
	registry *prometheus.Registry

	runsTotal        *prometheus.CounterVec
	runDuration      *prometheus.HistogramVec
	attemptsTotal    *prometheus.CounterVec
	failuresTotal    *prometheus.CounterVec
	transitionsTotal *prometheus.CounterVec
	recordsExtracted *prometheus.CounterVec
}

func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Scrape runs by mode and outcome",
			},
			[]string{"mode", "outcome"},
		),
		runDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Wall time of scrape runs",
				Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"mode"},
		),
		attemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "step_attempts_total",
				Help:      "Attempts per pipeline stage, retries included",
			},
			[]string{"mode", "stage"},
		),
		failuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "failures_total",
				Help:      "Failed attempts by stage and error kind",
			},
			[]string{"mode", "stage", "kind"},
		),
		transitionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "state_transitions_total",
				Help:      "Orchestrator state transitions",
			},
			[]string{"mode", "to"},
		),
		recordsExtracted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_extracted_total",
				Help:      "Records returned by successful runs",
			},
			[]string{"mode"},
		),
	}
}

// Registry exposes the underlying registry, e.g. for promhttp.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

func (r *Recorder) Transition(mode, to string) {
	if r == nil {
		return
	}
	r.transitionsTotal.WithLabelValues(mode, to).Inc()
}

func (r *Recorder) Attempt(mode, stage string) {
	if r == nil {
		return
	}
	r.attemptsTotal.WithLabelValues(mode, stage).Inc()
}

func (r *Recorder) Failure(mode, stage, kind string) {
	if r == nil {
		return
	}
	r.failuresTotal.WithLabelValues(mode, stage, kind).Inc()
}

// Run records the end of a run. outcome is "success" or "failure".
func (r *Recorder) Run(mode, outcome string, d time.Duration, records int) {
	if r == nil {
		return
	}
	r.runsTotal.WithLabelValues(mode, outcome).Inc()
	r.runDuration.WithLabelValues(mode).Observe(d.Seconds())
	if records > 0 {
		r.recordsExtracted.WithLabelValues(mode).Add(float64(records))
	}
}

// WriteToTextfile writes the current values in the node_exporter textfile
// format.
func (r *Recorder) WriteToTextfile(path string) error {
	if r == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.registry)
}
