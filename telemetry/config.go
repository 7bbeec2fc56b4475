package telemetry

// Config configures the telemetry provider: exporter selection, sampling,
// and the resilience knobs around emitting spans/metrics for a running
// engine.
type Config struct {
	Enabled     bool
	ServiceName string
	Endpoint    string
	Provider    string // "otel" (OTLP/gRPC), "stdout" (console exporter, for local dev)

	SamplingRate float64
}

// Profile is a named, pre-tuned Config for a deployment tier.
type Profile string

const (
	ProfileDevelopment Profile = "development"
	ProfileStaging     Profile = "staging"
	ProfileProduction  Profile = "production"
)

// Profiles holds the built-in Config for each Profile.
var Profiles = map[Profile]Config{
	ProfileDevelopment: {
		Enabled:      true,
		Provider:     "stdout",
		SamplingRate: 1.0,
	},
	ProfileStaging: {
		Enabled:      true,
		Provider:     "otel",
		Endpoint:     "otel-collector.staging:4317",
		SamplingRate: 0.25,
	},
	ProfileProduction: {
		Enabled:      true,
		Provider:     "otel",
		Endpoint:     "otel-collector.prod:4317",
		SamplingRate: 0.05,
	},
}

// UseProfile returns the built-in Config for profile, defaulting to
// ProfileDevelopment for an unrecognized name.
func UseProfile(profile Profile) Config {
	if cfg, ok := Profiles[profile]; ok {
		return cfg
	}
	return Profiles[ProfileDevelopment]
}

// WithOverrides applies any non-zero field of overrides onto c, returning
// the merged Config.
func (c Config) WithOverrides(overrides Config) Config {
	if overrides.Enabled {
		c.Enabled = overrides.Enabled
	}
	if overrides.ServiceName != "" {
		c.ServiceName = overrides.ServiceName
	}
	if overrides.Endpoint != "" {
		c.Endpoint = overrides.Endpoint
	}
	if overrides.Provider != "" {
		c.Provider = overrides.Provider
	}
	if overrides.SamplingRate > 0 {
		c.SamplingRate = overrides.SamplingRate
	}
	return c
}
