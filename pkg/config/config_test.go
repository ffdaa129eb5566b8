package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/marmos91/hsync/internal/bytesize"
	"github.com/marmos91/hsync/pkg/audit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// yamlSafePath converts a filesystem path to a YAML-safe representation.
// On Windows, backslashes in double-quoted YAML strings are interpreted as
// escape sequences.
func yamlSafePath(p string) string {
	return filepath.ToSlash(p)
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_PartialFileInheritsDefaults(t *testing.T) {
	root := t.TempDir()
	path := writeConfig(t, `
logging:
  level: "debug"

server:
  root: "`+yamlSafePath(root)+`"
  bind: "127.0.0.1:5000"

transfer:
  chunk_size: 16Ki
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "stdout", cfg.Logging.Output)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, yamlSafePath(root), cfg.Server.Root)
	assert.Equal(t, "127.0.0.1:5000", cfg.Server.Bind)
	assert.Equal(t, int64(100), cfg.Server.MaxStreamsPerConnection)
	assert.Equal(t, 16*bytesize.KiB, cfg.Transfer.ChunkSize)
	assert.Equal(t, bytesize.MiB, cfg.Transfer.MaxFrameSize)
	assert.Equal(t, DefaultServerAddr, cfg.Client.Server)
	assert.True(t, cfg.Client.Insecure)
}

func TestLoad_DurationsAndSizes(t *testing.T) {
	path := writeConfig(t, `
shutdown_timeout: 5s
server:
  idle_timeout: 2m
transfer:
  max_frame_size: 2Mi
audit:
  max_file_size: 1048576
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 2*time.Minute, cfg.Server.IdleTimeout)
	assert.Equal(t, 2*bytesize.MiB, cfg.Transfer.MaxFrameSize)
	assert.Equal(t, bytesize.MiB, cfg.Audit.MaxFileSize)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  bind: "127.0.0.1:5000"
`)
	t.Setenv("HSYNC_SERVER_BIND", "127.0.0.1:6000")
	t.Setenv("HSYNC_CLIENT_SERVER", "example.org:7000")
	t.Setenv("HSYNC_LOGGING_FORMAT", "json")
	t.Setenv("HSYNC_AUDIT_ENABLED", "true")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:6000", cfg.Server.Bind)
	assert.Equal(t, "example.org:7000", cfg.Client.Server)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.True(t, cfg.Audit.Enabled)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultBind, cfg.Server.Bind)
}

func TestLoad_InvalidFile(t *testing.T) {
	path := writeConfig(t, "server: [unterminated")
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_ValidationFailure(t *testing.T) {
	path := writeConfig(t, `
logging:
  format: xml
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
}

func TestMustLoad_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.yaml")
	_, err := MustLoad(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hsync init --config")
}

func TestMustLoad_MissingDefault(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	_, err := MustLoad("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hsync init")
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Server.Root = t.TempDir()
	cfg.Server.MaxConnections = 7
	cfg.Transfer.ChunkSize = 32 * bytesize.KiB
	cfg.Audit.Sink = AuditSinkDatabase
	cfg.Audit.Database.Type = audit.DatabaseTypeSQLite

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, SaveConfig(cfg, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	if os.PathSeparator == '/' {
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	}

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Server.Root, loaded.Server.Root)
	assert.Equal(t, 7, loaded.Server.MaxConnections)
	assert.Equal(t, 32*bytesize.KiB, loaded.Transfer.ChunkSize)
	assert.Equal(t, AuditSinkDatabase, loaded.Audit.Sink)
	assert.Equal(t, cfg.ShutdownTimeout, loaded.ShutdownTimeout)
}

func TestGetConfigDir_XDG(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	assert.Equal(t, filepath.Join(dir, "hsync"), GetConfigDir())
	assert.Equal(t, filepath.Join(dir, "hsync", "config.yaml"), GetDefaultConfigPath())
	assert.False(t, DefaultConfigExists())
}
