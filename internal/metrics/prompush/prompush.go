// Package prompush implements a metrics.Backend that pushes to a Prometheus
// Pushgateway.
//
// Observations accumulate in a private registry; Flush pushes the whole
// registry (PUT, replacing the job's previous group). Catalog commands are
// short-lived, so the command flushes once before exit.
package prompush

import (
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/mairanteodoro/roman-photoz/internal/metrics"
)

// Backend implements metrics.Backend and metrics.Flusher.
type Backend struct {
	registry *prometheus.Registry
	pusher   *push.Pusher

	steps    *prometheus.CounterVec
	rows     *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewBackend creates a backend pushing to gatewayURL under jobName.
//
// Errors:
//   - Returns an error when gatewayURL or jobName is empty.
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if strings.TrimSpace(gatewayURL) == "" {
		return nil, fmt.Errorf("prompush: empty pushgateway url")
	}
	if strings.TrimSpace(jobName) == "" {
		return nil, fmt.Errorf("prompush: empty job name")
	}

	reg := prometheus.NewRegistry()
	b := &Backend{
		registry: reg,
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.StepTotal,
			Help: "Pipeline steps executed, by step and status",
		}, []string{"step", "status"}),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.RowsTotal,
			Help: "Catalog rows processed, by kind",
		}, []string{"kind"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    metrics.StepDurationSeconds,
			Help:    "Pipeline step duration",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10), // 1ms to ~4min
		}, []string{"step", "status"}),
	}
	reg.MustRegister(b.steps, b.rows, b.duration)
	b.pusher = push.New(gatewayURL, jobName).Gatherer(reg)
	return b, nil
}

// IncCounter implements metrics.Backend.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}
	switch name {
	case metrics.StepTotal:
		b.steps.WithLabelValues(labels["step"], labels["status"]).Add(delta)
	case metrics.RowsTotal:
		if labels["kind"] == "" {
			return
		}
		b.rows.WithLabelValues(labels["kind"]).Add(delta)
	}
}

// ObserveHistogram implements metrics.Backend.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if value < 0 || name != metrics.StepDurationSeconds {
		return
	}
	b.duration.WithLabelValues(labels["step"], labels["status"]).Observe(value)
}

// Flush pushes the registry to the gateway.
func (b *Backend) Flush() error {
	if err := b.pusher.Push(); err != nil {
		return fmt.Errorf("prompush: %w", err)
	}
	return nil
}

// Close performs a final Flush.
func (b *Backend) Close() error { return b.Flush() }

var (
	_ metrics.Backend = (*Backend)(nil)
	_ metrics.Flusher = (*Backend)(nil)
)
