// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package metrics counts screening and pooling activity. Collectors live on
// a private registry; CLI runs export them to a node_exporter textfile.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "evidence_engine"

// Recorder holds the engine's collectors. A nil *Recorder is valid and
// records nothing.
type Recorder struct {
	registry *prometheus.Registry

	decisions     *prometheus.CounterVec
	recordErrors  *prometheus.CounterVec
	fetches       *prometheus.CounterVec
	poolingRuns   *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
}

// New registers the collectors on a fresh registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Recorder{
		registry: reg,
		decisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Screening decisions by stage, decision and reason",
		}, []string{"stage", "decision", "reason"}),
		recordErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "record_errors_total",
			Help:      "Input records rejected by validation, by stage",
		}, []string{"stage"}),
		fetches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fulltext_fetches_total",
			Help:      "Full-text fetches by outcome (available, unavailable, error, timeout)",
		}, []string{"outcome"}),
		poolingRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pooling_runs_total",
			Help:      "Pooling runs by model and result",
		}, []string{"model", "result"}),
		stageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time of one batch run by stage",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
	}
}

// Registry returns the private registry for gathering.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Decision counts one decision record.
func (r *Recorder) Decision(stage, decision, reason string) {
	if r == nil {
		return
	}
	r.decisions.WithLabelValues(stage, decision, reason).Inc()
}

// RecordError counts one rejected input record.
func (r *Recorder) RecordError(stage string) {
	if r == nil {
		return
	}
	r.recordErrors.WithLabelValues(stage).Inc()
}

// Fetch counts one full-text fetch outcome.
func (r *Recorder) Fetch(outcome string) {
	if r == nil {
		return
	}
	r.fetches.WithLabelValues(outcome).Inc()
}

// PoolingRun counts one pooled outcome; result is "ok" or an error class.
func (r *Recorder) PoolingRun(model, result string) {
	if r == nil {
		return
	}
	r.poolingRuns.WithLabelValues(model, result).Inc()
}

// ObserveStage records the duration of a batch run started at start.
func (r *Recorder) ObserveStage(stage string, start time.Time) {
	if r == nil {
		return
	}
	r.stageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// WriteTextfile writes the current values in the text exposition format,
// atomically replacing path.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}
