// Package metrics counts record outcomes, CAPTCHA attempts and restarts in Prometheus form.
// Runs are batch jobs, so the registry is exported to a node-exporter textfile rather than scraped.
package metrics

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jonathan/bill-agent/internal/runner"
)

const namespace = "bill_agent"

// Metrics holds the collectors of one process.
type Metrics struct {
	registry *prometheus.Registry

	records  *prometheus.CounterVec
	attempts *prometheus.CounterVec
	restarts *prometheus.CounterVec
	lastRun  *prometheus.GaugeVec
}

// New creates and registers the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_total",
			Help:      "Records processed, by site and outcome.",
		}, []string{"site", "outcome"}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "captcha_attempts_total",
			Help:      "CAPTCHA attempts, by site and result.",
		}, []string{"site", "result"}),
		restarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "restarts_total",
			Help:      "Whole-site restarts.",
		}, []string{"site"}),
		lastRun: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time a site run finished.",
		}, []string{"site"}),
	}
	m.registry.MustRegister(m.records, m.attempts, m.restarts, m.lastRun)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveAttempt counts one CAPTCHA attempt.
func (m *Metrics) ObserveAttempt(site, result string) {
	m.attempts.WithLabelValues(site, result).Inc()
}

// ObserveRunFinished stamps the completion time of a site run.
func (m *Metrics) ObserveRunFinished(site string, s *runner.Summary) {
	m.lastRun.WithLabelValues(site).Set(float64(s.FinishedAt.Unix()))
}

// RecordResult implements runner.Recorder.
func (m *Metrics) RecordResult(_ context.Context, _ uuid.UUID, site string, r runner.Result) {
	m.records.WithLabelValues(site, string(r.Outcome)).Inc()
}

// RecordRestart implements runner.Recorder.
func (m *Metrics) RecordRestart(_ context.Context, _ uuid.UUID, site string) {
	m.restarts.WithLabelValues(site).Inc()
}

// WriteTextfile writes every metric to path in the text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
