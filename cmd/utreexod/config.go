package main

import (
	"fmt"

	"github.com/go-utreexo/utreexo/log"
)

// Config holds the resolved CLI configuration for a utreexod run.
type Config struct {
	// Backend selects which forest implementation drives the session:
	// "forest" for the pointer-based arena forest, "hashforest" for the
	// flat-array variant.
	Backend string
	// Verbosity is the log level, 0 (silent) through 5 (trace).
	Verbosity int
	// Metrics enables the Prometheus exporter.
	Metrics bool
	// MetricsPort is the HTTP port the Prometheus exporter listens on.
	MetricsPort uint64
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Backend:     "forest",
		Verbosity:   3,
		Metrics:     false,
		MetricsPort: 9100,
	}
}

// Validate checks cfg for internal consistency.
func (c *Config) Validate() error {
	switch c.Backend {
	case "forest", "hashforest":
	default:
		return fmt.Errorf("unknown backend %q (want \"forest\" or \"hashforest\")", c.Backend)
	}
	if c.Verbosity < 0 || c.Verbosity > 5 {
		return fmt.Errorf("verbosity %d out of range [0,5]", c.Verbosity)
	}
	if c.Metrics && (c.MetricsPort == 0 || c.MetricsPort > 65535) {
		return fmt.Errorf("invalid metrics port %d", c.MetricsPort)
	}
	return nil
}

// verbosityToLogLevel maps the 0-5 verbosity scale onto log.LogLevel for
// display in the startup banner. Verbosity 0 is reported distinctly as
// "silent" since log.LogLevel has no level that turns output off.
func verbosityToLogLevel(v int) string {
	if v <= 0 {
		return "silent"
	}
	switch v {
	case 1:
		return log.ERROR.String()
	case 2:
		return log.WARN.String()
	case 3:
		return log.INFO.String()
	default:
		return log.DEBUG.String()
	}
}
