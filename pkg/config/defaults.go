package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/marmos91/hsync/internal/bytesize"
	"github.com/marmos91/hsync/pkg/audit"
	"github.com/marmos91/hsync/pkg/protocol"
	"github.com/marmos91/hsync/pkg/transfer"
)

const (
	DefaultBind       = "0.0.0.0:4433"
	DefaultServerAddr = "127.0.0.1:4433"
	DefaultServerName = "localhost"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Zero values (0, "", nil) are replaced with defaults; explicit values are
// preserved. Booleans are left alone since false is a valid explicit choice.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	applyServerDefaults(&cfg.Server)
	applyTLSDefaults(&cfg.TLS)
	applyTransferDefaults(&cfg.Transfer)
	applyIndexDefaults(&cfg.Index)
	applyAuditDefaults(&cfg.Audit)
	cfg.API.ApplyDefaults()
	applyClientDefaults(&cfg.Client)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	// Standard OTLP gRPC port
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}

	if cfg.Profiling.Endpoint == "" {
		cfg.Profiling.Endpoint = "http://localhost:4040"
	}
	if len(cfg.Profiling.ProfileTypes) == 0 {
		cfg.Profiling.ProfileTypes = []string{
			"cpu",
			"alloc_space",
			"inuse_space",
			"goroutines",
		}
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Name == "" {
		cfg.Name = "hsync"
	}
	if cfg.Root == "" {
		cfg.Root = "."
	}
	if cfg.Bind == "" {
		cfg.Bind = DefaultBind
	}
	if cfg.MaxStreamsPerConnection == 0 {
		cfg.MaxStreamsPerConnection = 100
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 5 * time.Minute
	}
}

func applyTLSDefaults(cfg *TLSConfig) {
	if len(cfg.Hosts) == 0 {
		cfg.Hosts = []string{"localhost", "127.0.0.1", "::1"}
	}
}

func applyTransferDefaults(cfg *TransferConfig) {
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = bytesize.ByteSize(transfer.DefaultChunkSize)
	}
	if cfg.MaxFrameSize == 0 {
		cfg.MaxFrameSize = bytesize.ByteSize(protocol.DefaultMaxFrameSize)
	}
}

func applyIndexDefaults(cfg *IndexConfig) {
	if cfg.Path == "" {
		cfg.Path = filepath.Join(getConfigDir(), "index")
	}
}

func applyAuditDefaults(cfg *AuditConfig) {
	if cfg.Sink == "" {
		cfg.Sink = AuditSinkJSONL
	}
	if cfg.Path == "" {
		cfg.Path = filepath.Join(getConfigDir(), "audit.jsonl")
	}
	if cfg.MaxFileSize == 0 {
		cfg.MaxFileSize = bytesize.ByteSize(audit.DefaultMaxFileSize)
	}
	if cfg.MaxFiles == 0 {
		cfg.MaxFiles = audit.DefaultMaxFiles
	}
	if cfg.BufferSize == 0 {
		cfg.BufferSize = audit.DefaultBufferSize
	}
	if cfg.Database.SQLite.Path == "" {
		cfg.Database.SQLite.Path = filepath.Join(getConfigDir(), "audit.db")
	}
	cfg.Database.ApplyDefaults()
}

func applyClientDefaults(cfg *ClientConfig) {
	if cfg.Server == "" {
		cfg.Server = DefaultServerAddr
	}
	if cfg.ServerName == "" {
		cfg.ServerName = DefaultServerName
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
}

// GetDefaultConfig returns a Config with all defaults applied.
//
// The client trusts any certificate by default since a fresh server runs
// with a self-signed one.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Client: ClientConfig{Insecure: true},
	}
	ApplyDefaults(cfg)
	return cfg
}
