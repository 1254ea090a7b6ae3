package metrics

import (
	"time"

	"github.com/fixnow/dispatch/core/model"
)

// MatchResult represents one terminal dispatch decision to be recorded.
type MatchResult struct {
	RequestID     string
	ServiceTypeID string
	Status        model.EmergencyStatus
	ProviderID    string
	Price         float64
	DistanceKm    float64
	Responders    int
	AcceptedCount int
	BroadcastAt   time.Time
	DecidedAt     time.Time
}

// MetricsSink records dispatch outcomes for observability purposes.
type MetricsSink interface {
	RecordMatchResult(results []MatchResult) error
}

// NopSink discards every record.
type NopSink struct{}

// RecordMatchResult discards the results.
func (NopSink) RecordMatchResult([]MatchResult) error { return nil }

// Config defines the metrics backends to enable.
type Config struct {
	PrometheusEnabled bool   `json:"prometheus_enabled"`
	PrometheusPort    string `json:"prometheus_port"`
	InfluxEnabled     bool   `json:"influx_enabled"`
	InfluxURL         string `json:"influx_url"`
	InfluxToken       string `json:"influx_token"`
	InfluxOrg         string `json:"influx_org"`
	InfluxBucket      string `json:"influx_bucket"`
}
