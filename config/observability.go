package config

import "strings"

// ObservabilityConfig contains metrics configuration.
type ObservabilityConfig struct {
	Metrics MetricsConfig
}

// MetricsConfig contains StatsD metrics configuration.
type MetricsConfig struct {
	// Enabled turns on metric emission.
	Enabled bool `env:"METRICS_ENABLED" envDefault:"false"`

	// StatsdAddress is the host:port of a StatsD-compatible UDP endpoint.
	StatsdAddress string `env:"METRICS_STATSD_ADDRESS" envDefault:""`
}

// IsEnabled reports whether metrics should actually be emitted.
func (m MetricsConfig) IsEnabled() bool {
	return m.Enabled && strings.TrimSpace(m.StatsdAddress) != ""
}
