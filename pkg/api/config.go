package api

import (
	"net"
	"time"
)

// DefaultListen keeps the admin API on loopback unless configured otherwise.
const DefaultListen = "127.0.0.1:8080"

// APIConfig configures the admin HTTP server. Nothing is served unless
// Enabled is set.
type APIConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Listen is the host:port the HTTP server binds.
	Listen string `mapstructure:"listen" validate:"omitempty,hostname_port" yaml:"listen"`

	Timeouts HTTPTimeouts `mapstructure:"timeouts" yaml:"timeouts"`
}

// HTTPTimeouts bound each phase of an admin request. Zero means the
// default; a negative value disables the limit.
type HTTPTimeouts struct {
	Read  time.Duration `mapstructure:"read" yaml:"read"`
	Write time.Duration `mapstructure:"write" yaml:"write"`
	Idle  time.Duration `mapstructure:"idle" yaml:"idle"`
}

// ApplyDefaults fills unset fields.
func (c *APIConfig) ApplyDefaults() {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	setDuration(&c.Timeouts.Read, 10*time.Second)
	setDuration(&c.Timeouts.Write, 10*time.Second)
	setDuration(&c.Timeouts.Idle, time.Minute)
}

func setDuration(d *time.Duration, def time.Duration) {
	switch {
	case *d == 0:
		*d = def
	case *d < 0:
		*d = 0
	}
}

// BaseURL is the address a local client uses to reach Listen. Wildcard
// hosts are rewritten to loopback.
func (c APIConfig) BaseURL() string {
	listen := c.Listen
	if listen == "" {
		listen = DefaultListen
	}
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return "http://" + listen
	}
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}
