package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/fixnow/dispatch/core/metrics"
)

// PromSink records terminal dispatch decisions in Prometheus metrics.
type PromSink struct {
	outcomes *prometheus.CounterVec
	price    *prometheus.HistogramVec
	duration *prometheus.HistogramVec
}

// NewPromSink registers match metrics on the default Prometheus registerer.
// The Prometheus server should be started separately using cfg.PrometheusPort.
func NewPromSink(cfg coremetrics.Config) (coremetrics.MetricsSink, error) {
	return NewPromSinkWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(cfg coremetrics.Config, reg prometheus.Registerer) (coremetrics.MetricsSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "match_outcomes_total",
		Help: "Total number of terminal dispatch decisions",
	}, []string{"service_type", "status"})
	price := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "winning_price",
		Help:    "Committed price of matched requests",
		Buckets: prometheus.ExponentialBuckets(10, 2, 14),
	}, []string{"service_type"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "broadcast_window_seconds",
		Help:    "Time from broadcast to terminal decision",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"service_type", "status"})

	if err := reg.Register(outcomes); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			outcomes = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(price); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			price = are.ExistingCollector.(*prometheus.HistogramVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(duration); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			duration = are.ExistingCollector.(*prometheus.HistogramVec)
		} else {
			return nil, err
		}
	}
	return &PromSink{outcomes: outcomes, price: price, duration: duration}, nil
}

// RecordMatchResult records each decision in the counters and histograms.
func (s *PromSink) RecordMatchResult(results []coremetrics.MatchResult) error {
	for _, r := range results {
		status := r.Status.String()
		s.outcomes.WithLabelValues(r.ServiceTypeID, status).Inc()
		s.duration.WithLabelValues(r.ServiceTypeID, status).Observe(r.DecidedAt.Sub(r.BroadcastAt).Seconds())
		if r.ProviderID != "" {
			s.price.WithLabelValues(r.ServiceTypeID).Observe(r.Price)
		}
	}
	return nil
}
