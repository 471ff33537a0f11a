// Package metrics collects probe and organizer counters and writes them in
// the Prometheus text format, for pickup by node_exporter's textfile
// collector.
package metrics

import (
	"fmt"
	"time"

	"stubprobe/internal/organize"
	"stubprobe/internal/probe"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder owns a private registry so several runs in one process never
// collide on registration.
type Recorder struct {
	registry *prometheus.Registry

	probeTotal    *prometheus.CounterVec
	probeDuration *prometheus.HistogramVec
	verdictTotal  *prometheus.CounterVec
	moveTotal     *prometheus.CounterVec
	modules       *prometheus.GaugeVec
	lastRun       prometheus.Gauge
	runDuration   prometheus.Gauge
}

// New creates a Recorder with every collector registered.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		probeTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stubprobe_probe_total",
				Help: "Number of live page probes by result source.",
			},
			[]string{"source"},
		),
		probeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stubprobe_probe_duration_seconds",
				Help:    "Time taken by one page probe, including navigation.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 3, 5, 10, 30},
			},
			[]string{"source"},
		),
		verdictTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stubprobe_verdict_total",
				Help: "Number of module verdicts by status and source.",
			},
			[]string{"status", "source"},
		),
		moveTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stubprobe_move_total",
				Help: "Number of organizer operations by outcome.",
			},
			[]string{"outcome"},
		),
		modules: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "stubprobe_modules",
				Help: "Number of modules per status in the last run.",
			},
			[]string{"status"},
		),
		lastRun: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "stubprobe_last_run_timestamp_seconds",
				Help: "Unix time the last organizer run finished.",
			},
		),
		runDuration: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "stubprobe_last_run_duration_seconds",
				Help: "Wall time of the last organizer run.",
			},
		),
	}

	r.registry.MustRegister(
		r.probeTotal,
		r.probeDuration,
		r.verdictTotal,
		r.moveTotal,
		r.modules,
		r.lastRun,
		r.runDuration,
	)
	return r
}

// Registry exposes the underlying registry, e.g. for an HTTP handler.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveProbe implements probe.Observer.
func (r *Recorder) ObserveProbe(_ string, res probe.Result, elapsed time.Duration) {
	source := string(res.Source)
	r.probeTotal.WithLabelValues(source).Inc()
	r.probeDuration.WithLabelValues(source).Observe(elapsed.Seconds())
}

// RecordReport adds the verdicts and outcomes of one organizer run.
func (r *Recorder) RecordReport(report *organize.Report) {
	if report == nil {
		return
	}
	for _, v := range report.Verdicts {
		r.verdictTotal.WithLabelValues(status(v.Implemented), string(v.Source)).Inc()
	}
	for _, op := range report.Operations {
		r.moveTotal.WithLabelValues(string(op.Outcome)).Inc()
	}
	r.modules.WithLabelValues(status(true)).Set(float64(len(report.Implemented)))
	r.modules.WithLabelValues(status(false)).Set(float64(len(report.Unimplemented)))
	r.lastRun.Set(float64(report.FinishedAt.Unix()))
	r.runDuration.Set(report.Duration().Seconds())
}

// WriteTextfile atomically writes every collected metric to path.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

func status(implemented bool) string {
	if implemented {
		return "implemented"
	}
	return "unimplemented"
}

var _ probe.Observer = (*Recorder)(nil)
