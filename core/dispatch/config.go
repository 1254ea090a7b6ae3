package dispatch

import "time"

// Config defines dispatch-related settings.
type Config struct {
	// DefaultTTLSeconds is the broadcast window applied when a request
	// does not specify one.
	DefaultTTLSeconds int `json:"default_ttl_seconds"`
	// ReaperSpec is the cron expression of the overdue-request sweep.
	ReaperSpec string `json:"reaper_spec"`
	// RetentionSeconds is how long a terminal request stays queryable
	// in memory before the reaper evicts it. The decision log keeps the
	// durable record.
	RetentionSeconds int `json:"retention_seconds"`
}

// SetDefaults fills zero values with production defaults.
func (c *Config) SetDefaults() {
	if c.DefaultTTLSeconds <= 0 {
		c.DefaultTTLSeconds = 300
	}
	if c.ReaperSpec == "" {
		c.ReaperSpec = "@every 1m"
	}
	if c.RetentionSeconds <= 0 {
		c.RetentionSeconds = 3600
	}
}

// DefaultTTL returns the default broadcast window as a duration.
func (c Config) DefaultTTL() time.Duration {
	return time.Duration(c.DefaultTTLSeconds) * time.Second
}

// Retention returns how long terminal requests stay queryable.
func (c Config) Retention() time.Duration {
	return time.Duration(c.RetentionSeconds) * time.Second
}
