package core

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetricsRecorder exports operation counters, a duration histogram
// and entity-count gauges.
type PrometheusMetricsRecorder struct {
	operations *prometheus.CounterVec
	durations  *prometheus.HistogramVec
	entities   *prometheus.GaugeVec
}

// NewPrometheusMetricsRecorder registers the collectors with reg under
// namespace. Collectors already registered by an earlier recorder are reused.
func NewPrometheusMetricsRecorder(namespace string, reg prometheus.Registerer) (*PrometheusMetricsRecorder, error) {
	operations, err := registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "operations_total",
		Help:      "Entity store operations by outcome.",
	}, []string{"operation", "status"}))
	if err != nil {
		return nil, err
	}
	durations, err := registerOrReuse(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "operation_duration_seconds",
		Help:      "Entity store operation latency.",
		Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
	}, []string{"operation"}))
	if err != nil {
		return nil, err
	}
	entities, err := registerOrReuse(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "entities",
		Help:      "Entities currently held by the store.",
	}, []string{"kind"}))
	if err != nil {
		return nil, err
	}
	return &PrometheusMetricsRecorder{operations: operations, durations: durations, entities: entities}, nil
}

func registerOrReuse[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// Observe records one operation outcome.
func (r *PrometheusMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	status := "error"
	if success {
		status = "success"
	}
	r.operations.WithLabelValues(operation, status).Inc()
	r.durations.WithLabelValues(operation).Observe(duration.Seconds())
}

// SetEntityCounts updates the per-kind entity gauges.
func (r *PrometheusMetricsRecorder) SetEntityCounts(screens, views, patterns int) {
	r.entities.WithLabelValues("screen").Set(float64(screens))
	r.entities.WithLabelValues("view").Set(float64(views))
	r.entities.WithLabelValues("pattern").Set(float64(patterns))
}
