package telemetry

// Service identifies the process in exported spans and profiles.
type Service struct {
	Name    string
	Version string
}

func (s Service) name() string {
	if s.Name == "" {
		return "hsync"
	}
	return s.Name
}

// Config configures OpenTelemetry tracing. With Enabled unset every span
// is a no-op.
type Config struct {
	Service Service
	Enabled bool

	// Endpoint is the OTLP/gRPC collector, e.g. "localhost:4317".
	Endpoint string
	Insecure bool

	// SampleRate is the fraction of traces kept, from 0 to 1.
	SampleRate float64
}

// ProfilingConfig configures continuous profiling through Pyroscope.
type ProfilingConfig struct {
	Service Service
	Enabled bool

	// Endpoint is the Pyroscope server URL, e.g. "http://localhost:4040".
	Endpoint string

	// ProfileTypes names the profiles to collect. Empty selects
	// DefaultProfileTypes.
	ProfileTypes []string
}
