package config

import (
	"strings"
	"testing"

	"github.com/marmos91/hsync/pkg/audit"
)

func TestValidate_ValidConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	if err := Validate(cfg); err != nil {
		t.Errorf("Expected valid config to pass validation, got error: %v", err)
	}
}

func TestValidate_Rules(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		want   string
	}{
		{"invalid log level", func(c *Config) { c.Logging.Level = "INVALID" }, "oneof"},
		{"invalid log format", func(c *Config) { c.Logging.Format = "xml" }, "oneof"},
		{"api port out of range", func(c *Config) { c.API.Listen = "127.0.0.1:70000" }, "hostname_port"},
		{"api listen without port", func(c *Config) { c.API.Listen = "127.0.0.1" }, "hostname_port"},
		{"missing root", func(c *Config) { c.Server.Root = "" }, "Root"},
		{"bind without port", func(c *Config) { c.Server.Bind = "localhost" }, "hostname_port"},
		{"client server without port", func(c *Config) { c.Client.Server = "example.org" }, "hostname_port"},
		{"sample rate above one", func(c *Config) { c.Telemetry.SampleRate = 1.5 }, "lte"},
		{"telemetry without endpoint", func(c *Config) {
			c.Telemetry.Enabled = true
			c.Telemetry.Endpoint = ""
		}, "required_if"},
		{"cert without key", func(c *Config) { c.TLS.CertFile = "cert.pem" }, "required_with"},
		{"unknown audit sink", func(c *Config) { c.Audit.Sink = "kafka" }, "oneof"},
		{"jsonl audit without path", func(c *Config) {
			c.Audit.Enabled = true
			c.Audit.Path = ""
		}, "audit.path"},
		{"postgres audit without host", func(c *Config) {
			c.Audit.Enabled = true
			c.Audit.Sink = AuditSinkDatabase
			c.Audit.Database.Type = audit.DatabaseTypePostgres
		}, "postgres host"},
		{"tiny frame size", func(c *Config) { c.Transfer.MaxFrameSize = 10 }, "max_frame_size"},
		{"zero shutdown timeout", func(c *Config) { c.ShutdownTimeout = 0 }, "ShutdownTimeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			tt.modify(cfg)

			err := Validate(cfg)
			if err == nil {
				t.Fatal("Expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error containing %q, got: %v", tt.want, err)
			}
		})
	}
}

func TestValidate_DisabledAuditSkipsBackendChecks(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Audit.Sink = AuditSinkDatabase
	cfg.Audit.Database.Type = audit.DatabaseTypePostgres

	if err := Validate(cfg); err != nil {
		t.Errorf("Expected disabled audit to skip backend checks, got: %v", err)
	}
}
