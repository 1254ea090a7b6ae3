package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	requestsBroadcast *prometheus.CounterVec
	responsesReceived *prometheus.CounterVec
	requestsClosed    *prometheus.CounterVec
	decisionLatency   *prometheus.HistogramVec
	notifySuccess     prometheus.Counter
	notifyFailure     prometheus.Counter
)

// newCollectors creates new metric collectors.
func newCollectors() (*prometheus.CounterVec, *prometheus.CounterVec, *prometheus.CounterVec, *prometheus.HistogramVec, prometheus.Counter, prometheus.Counter) {
	broadcast := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emergency_requests_broadcast_total",
			Help: "Number of emergency requests broadcast to providers",
		},
		[]string{"service_type"},
	)
	responses := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_responses_received_total",
			Help: "Number of provider responses accepted at intake",
		},
		[]string{"response_type"},
	)
	closed := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emergency_requests_closed_total",
			Help: "Number of emergency requests reaching a terminal state",
		},
		[]string{"status"},
	)
	latency := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "match_decision_latency_seconds",
			Help:    "Time from broadcast to terminal decision",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
		[]string{"status"},
	)
	suc := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "notify_success_total",
			Help: "Number of successful notification deliveries",
		},
	)
	fail := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "notify_failure_total",
			Help: "Number of failed notification deliveries",
		},
	)
	return broadcast, responses, closed, latency, suc, fail
}

func init() {
	requestsBroadcast, responsesReceived, requestsClosed, decisionLatency, notifySuccess, notifyFailure = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers dispatch metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(requestsBroadcast, responsesReceived, requestsClosed, decisionLatency, notifySuccess, notifyFailure)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	requestsBroadcast, responsesReceived, requestsClosed, decisionLatency, notifySuccess, notifyFailure = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
