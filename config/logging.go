package config

import "fmt"

// LoggingConfig defines settings for the match record store.
type LoggingConfig struct {
	// Backend selects the store type: "jsonl" or "sqlite". Empty disables
	// the decision log.
	Backend string `json:"backend"`
	// Path is the file location of the store.
	Path string `json:"path"`
}

// SetDefaults fills zero values with production defaults.
func (c *LoggingConfig) SetDefaults() {
	if c.Backend != "" && c.Path == "" {
		c.Path = "dispatch_matches." + extFor(c.Backend)
	}
}

// Validate checks the backend selection.
func (c LoggingConfig) Validate() error {
	switch c.Backend {
	case "", "jsonl", "sqlite":
		return nil
	default:
		return fmt.Errorf("unknown logging backend: %s", c.Backend)
	}
}

func extFor(backend string) string {
	if backend == "sqlite" {
		return "db"
	}
	return "jsonl"
}
