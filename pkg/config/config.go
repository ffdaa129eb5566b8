package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/marmos91/hsync/internal/bytesize"
	"github.com/marmos91/hsync/pkg/api"
	"github.com/marmos91/hsync/pkg/audit"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config represents the hsync configuration.
//
// A single file serves both halves of the tool: the server section describes
// the sandbox root and the listener, the client section the default remote.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (HSYNC_*)
//  3. Configuration file (YAML or TOML)
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	Server ServerConfig `mapstructure:"server" yaml:"server"`

	TLS TLSConfig `mapstructure:"tls" yaml:"tls"`

	Transfer TransferConfig `mapstructure:"transfer" yaml:"transfer"`

	// Index configures the persistent digest cache
	Index IndexConfig `mapstructure:"index" yaml:"index"`

	Audit AuditConfig `mapstructure:"audit" yaml:"audit"`

	// Metrics contains Prometheus metrics configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// API contains the admin HTTP API configuration
	API api.APIConfig `mapstructure:"api" yaml:"api"`

	Client ClientConfig `mapstructure:"client" yaml:"client"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
type TelemetryConfig struct {
	// Enabled controls whether tracing is active
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP gRPC collector address
	// Default: localhost:4317
	Endpoint string `mapstructure:"endpoint" validate:"required_if=Enabled true" yaml:"endpoint"`

	// Insecure disables TLS towards the collector
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate is the fraction of traces recorded, between 0 and 1
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server URL
	// Default: http://localhost:4040
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// ProfileTypes lists the profiles to collect
	// Valid values: cpu, alloc_objects, alloc_space, inuse_objects, inuse_space,
	// goroutines, mutex_count, mutex_duration, block_count, block_duration
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// ServerConfig configures the sync server.
type ServerConfig struct {
	// Name is reported by the status command
	Name string `mapstructure:"name" yaml:"name"`

	// Root is the sandbox directory served to clients. It must exist.
	Root string `mapstructure:"root" validate:"required" yaml:"root"`

	// Bind is the UDP address the QUIC listener binds to
	// Default: 0.0.0.0:4433
	Bind string `mapstructure:"bind" validate:"required,hostname_port" yaml:"bind"`

	// MaxConnections limits concurrent client connections, 0 means unlimited
	MaxConnections int `mapstructure:"max_connections" validate:"gte=0" yaml:"max_connections"`

	// MaxStreamsPerConnection bounds concurrent commands on one connection
	// Default: 100
	MaxStreamsPerConnection int64 `mapstructure:"max_streams_per_connection" validate:"gte=0" yaml:"max_streams_per_connection"`

	// IdleTimeout closes connections without traffic
	// Default: 5m
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`

	// MetricsLogInterval periodically logs connection counts, 0 disables it
	MetricsLogInterval time.Duration `mapstructure:"metrics_log_interval" yaml:"metrics_log_interval"`
}

// TLSConfig locates the server certificate. When both files are empty an
// ephemeral self-signed certificate is generated at startup.
type TLSConfig struct {
	CertFile string `mapstructure:"cert_file" validate:"required_with=KeyFile" yaml:"cert_file"`
	KeyFile  string `mapstructure:"key_file" validate:"required_with=CertFile" yaml:"key_file"`

	// Hosts are the names and addresses placed in a self-signed certificate
	Hosts []string `mapstructure:"hosts" yaml:"hosts"`
}

// TransferConfig tunes framing and streaming.
type TransferConfig struct {
	// ChunkSize is the copy unit between stream and disk
	// Default: 64Ki
	ChunkSize bytesize.ByteSize `mapstructure:"chunk_size" yaml:"chunk_size"`

	// MaxFrameSize bounds a single request or response frame
	// Default: 1Mi
	MaxFrameSize bytesize.ByteSize `mapstructure:"max_frame_size" yaml:"max_frame_size"`
}

// IndexConfig configures the digest index.
type IndexConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Path is the badger directory
	// Default: $XDG_CONFIG_HOME/hsync/index
	Path string `mapstructure:"path" validate:"required_if=Enabled true" yaml:"path"`
}

// AuditSink names an audit backend.
type AuditSink string

const (
	AuditSinkJSONL    AuditSink = "jsonl"
	AuditSinkDatabase AuditSink = "database"
)

// AuditConfig configures the audit trail.
type AuditConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Sink selects the backend: jsonl or database
	Sink AuditSink `mapstructure:"sink" validate:"omitempty,oneof=jsonl database" yaml:"sink"`

	// Path is the JSON Lines file used by the jsonl sink
	Path string `mapstructure:"path" yaml:"path"`

	// MaxFileSize rotates the JSON Lines file once it would grow past this size
	MaxFileSize bytesize.ByteSize `mapstructure:"max_file_size" yaml:"max_file_size"`

	// MaxFiles is the number of rotated files kept
	MaxFiles int `mapstructure:"max_files" validate:"gte=0" yaml:"max_files"`

	// BufferSize bounds events waiting to be written; further events are dropped
	BufferSize int `mapstructure:"buffer_size" validate:"gte=0" yaml:"buffer_size"`

	Database audit.DatabaseConfig `mapstructure:"database" yaml:"database"`
}

// MetricsConfig contains Prometheus metrics configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics are collected and exposed on /metrics
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// ClientConfig holds the defaults used by client commands.
type ClientConfig struct {
	// Server is the remote address
	// Default: 127.0.0.1:4433
	Server string `mapstructure:"server" validate:"required,hostname_port" yaml:"server"`

	// ServerName is checked against the server certificate
	// Default: localhost
	ServerName string `mapstructure:"server_name" yaml:"server_name"`

	// CAFile is a PEM bundle trusted for the server certificate
	CAFile string `mapstructure:"ca_file" yaml:"ca_file"`

	// Insecure skips certificate verification, required for self-signed servers
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// Timeout bounds dialing the server
	// Default: 10s
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (HSYNC_*)
//  2. Configuration file
//  3. Default values
//
// An empty configPath uses the default location. A missing file is not an
// error; defaults are returned instead.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if _, err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages.
// It checks if the config file exists and provides user-friendly instructions if not.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  hsync init\n\n"+
				"Or specify a custom config file:\n"+
				"  hsync <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s\n\n"+
			"Please create the configuration file:\n"+
			"  hsync init --config %s",
			configPath, configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks struct tags and the cross-field rules tags cannot express.
func Validate(cfg *Config) error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(cfg); err != nil {
		return err
	}

	if cfg.Audit.Enabled {
		switch cfg.Audit.Sink {
		case AuditSinkJSONL, "":
			if cfg.Audit.Path == "" {
				return fmt.Errorf("audit.path is required for the jsonl sink")
			}
		case AuditSinkDatabase:
			if err := cfg.Audit.Database.Validate(); err != nil {
				return fmt.Errorf("audit.database: %w", err)
			}
		}
	}

	if cfg.Transfer.MaxFrameSize != 0 && cfg.Transfer.MaxFrameSize < bytesize.KiB {
		return fmt.Errorf("transfer.max_frame_size must be at least 1Ki, got %s", cfg.Transfer.MaxFrameSize)
	}

	return nil
}

// SaveConfig saves the configuration to the specified file path in YAML.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// The file may carry database credentials.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Example: HSYNC_SERVER_ROOT=/srv/share
	v.SetEnvPrefix("HSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only consults keys viper already knows about. Registering
	// every default also lets a partial file inherit the rest.
	setDefaults(v, "", reflect.ValueOf(*GetDefaultConfig()))

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// setDefaults walks the config struct and registers every leaf as a viper
// default.
func setDefaults(v *viper.Viper, prefix string, val reflect.Value) {
	t := val.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}
		fv := val.Field(i)
		if fv.Kind() == reflect.Struct {
			setDefaults(v, key, fv)
			continue
		}
		v.SetDefault(key, fv.Interface())
	}
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error) where fileFound indicates if a config file was found.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}

	return true, nil
}

// configDecodeHooks returns a combined decode hook for all custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

// byteSizeDecodeHook converts strings and integers to bytesize.ByteSize, so
// config files can say "64Ki" or "1Mi" as well as plain numbers.
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook converts strings like "30s" or "5m" to time.Duration.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			// Assume nanoseconds for raw integers
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns $XDG_CONFIG_HOME/hsync, ~/.config/hsync, or "." when
// no home directory can be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "hsync")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "hsync")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path.
func GetConfigDir() string {
	return getConfigDir()
}
