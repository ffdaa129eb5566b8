package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/marmos91/hsync/internal/logger"
	"github.com/marmos91/hsync/internal/telemetry"
	"github.com/marmos91/hsync/pkg/api"
	"github.com/marmos91/hsync/pkg/api/handlers"
	"github.com/marmos91/hsync/pkg/audit"
	"github.com/marmos91/hsync/pkg/config"
	"github.com/marmos91/hsync/pkg/digestindex"
	"github.com/marmos91/hsync/pkg/engine"
	"github.com/marmos91/hsync/pkg/metrics"
	"github.com/marmos91/hsync/pkg/sandbox"
	"github.com/marmos91/hsync/pkg/server"
	"github.com/marmos91/hsync/pkg/session"
	"github.com/marmos91/hsync/pkg/transport"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	// Import prometheus metrics to register init() functions
	_ "github.com/marmos91/hsync/pkg/metrics/prometheus"
)

var (
	serveRoot string
	serveBind string
	serveCert string
	serveKey  string
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"server"},
	Short:   "Serve a directory tree",
	Long: `Start the hsync server.

The server exposes the configured root directory to clients over QUIC. No
request can reach outside the root. When no certificate is configured a
self-signed one is generated at startup; clients then need --insecure or
the certificate written by "hsync init --self-signed".

Examples:
  # Serve with the default config file
  hsync serve

  # Serve a specific directory on a specific address
  hsync serve --root /srv/share --bind 0.0.0.0:4433

  # Use environment variables to override config
  HSYNC_LOGGING_LEVEL=DEBUG hsync serve`,
	RunE:    runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveRoot, "root", "", "Directory to serve (overrides server.root)")
	serveCmd.Flags().StringVar(&serveBind, "bind", "", "Listen address host:port (overrides server.bind)")
	serveCmd.Flags().StringVar(&serveCert, "cert", "", "TLS certificate file (overrides tls.cert_file)")
	serveCmd.Flags().StringVar(&serveKey, "key", "", "TLS key file (overrides tls.key_file)")
}

func loadServerConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if cfgFile == "" && !config.DefaultConfigExists() {
		cfg = config.GetDefaultConfig()
	} else {
		cfg, err = config.MustLoad(cfgFile)
		if err != nil {
			return nil, err
		}
	}

	if serveRoot != "" {
		cfg.Server.Root = serveRoot
	}
	if serveBind != "" {
		cfg.Server.Bind = serveBind
	}
	if serveCert != "" {
		cfg.TLS.CertFile = serveCert
	}
	if serveKey != "" {
		cfg.TLS.KeyFile = serveKey
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadServerConfig()
	if err != nil {
		return err
	}
	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	service := telemetry.Service{Name: "hsync", Version: build.Version}
	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Service:    service,
		Enabled:    cfg.Telemetry.Enabled,
		Endpoint:   cfg.Telemetry.Endpoint,
		Insecure:   cfg.Telemetry.Insecure,
		SampleRate: cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(context.Background()); err != nil {
			logger.Error("telemetry shutdown error", logger.Err(err))
		}
	}()

	profilingShutdown, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
		Service:      service,
		Enabled:      cfg.Telemetry.Profiling.Enabled,
		Endpoint:     cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes: cfg.Telemetry.Profiling.ProfileTypes,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", logger.Err(err))
		}
	}()

	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	logger.Info("Configuration loaded", "source", getConfigSource(cfgFile))
	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	}
	if telemetry.IsProfilingEnabled() {
		logger.Info("Profiling enabled", "endpoint", cfg.Telemetry.Profiling.Endpoint)
	}

	// Metrics must be initialized before the collaborators that record them.
	var serverMetrics metrics.ServerMetrics
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		serverMetrics = metrics.NewServerMetrics()
		logger.Info("Metrics enabled")
	}

	sb, err := sandbox.New(cfg.Server.Root)
	if err != nil {
		return fmt.Errorf("invalid root: %w", err)
	}

	checks := map[string]handlers.HealthChecker{}
	engineOpts := []engine.Option{engine.WithMetrics(serverMetrics)}

	if cfg.Index.Enabled {
		idx, err := digestindex.Open(digestindex.Config{Path: cfg.Index.Path})
		if err != nil {
			return fmt.Errorf("failed to open digest index: %w", err)
		}
		defer func() { _ = idx.Close() }()

		pruned, err := idx.Prune(sb.Root())
		if err != nil {
			logger.Warn("Digest index prune failed", logger.Err(err))
		} else if pruned > 0 {
			logger.Info("Pruned digest index", "removed", pruned)
		}
		engineOpts = append(engineOpts, engine.WithDigestIndex(idx))
		checks["digest_index"] = idx
		logger.Info("Digest index enabled", logger.KeyPath, cfg.Index.Path)
	}

	recorder, err := openAuditRecorder(cfg, serverMetrics, checks)
	if err != nil {
		return err
	}
	defer func() {
		if err := recorder.Close(); err != nil {
			logger.Error("audit close error", logger.Err(err))
		}
	}()
	engineOpts = append(engineOpts, engine.WithAudit(recorder))

	sessions := session.NewManager()
	eng := engine.New(engine.Config{
		ServerName:   cfg.Server.Name,
		Version:      build.Version,
		MaxFrameSize: cfg.Transfer.MaxFrameSize.Int(),
		ChunkSize:    cfg.Transfer.ChunkSize.Int(),
	}, sb, sessions, engineOpts...)

	tlsConf, err := transport.ServerTLSConfig(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.Hosts)
	if err != nil {
		return err
	}
	if cfg.TLS.CertFile == "" {
		logger.Warn("No TLS certificate configured, using a generated self-signed certificate")
	}

	ln, err := transport.ListenQUIC(cfg.Server.Bind, tlsConf, transport.QUICConfig{
		MaxIncomingStreams: cfg.Server.MaxStreamsPerConnection,
		IdleTimeout:        cfg.Server.IdleTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Server.Bind, err)
	}

	var serverOpts []server.Option
	if serverMetrics != nil {
		serverOpts = append(serverOpts, server.WithMetrics(serverMetrics))
	}
	serverOpts = append(serverOpts, server.WithAudit(recorder))
	srv := server.New(server.Config{
		MaxConnections:     cfg.Server.MaxConnections,
		ShutdownTimeout:    cfg.ShutdownTimeout,
		MetricsLogInterval: cfg.Server.MetricsLogInterval,
	}, eng, serverOpts...)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(gctx, ln)
	})

	if cfg.API.Enabled {
		apiSrv := api.NewServer(cfg.API, api.Dependencies{
			Root:     sb.Root(),
			Status:   eng,
			Sessions: sessions,
			Checks:   checks,
			Metrics:  metrics.GetRegistry(),
		})
		g.Go(func() error {
			return apiSrv.Start(gctx)
		})
		logger.Info("API server enabled", "listen", cfg.API.Listen)
	}

	fmt.Fprintf(os.Stderr, "hsync serving %s on %s (Ctrl+C to stop)\n", sb.Root(), cfg.Server.Bind)

	if err := g.Wait(); err != nil {
		logger.Error("Server stopped with error", logger.Err(err))
		return err
	}
	logger.Info("Server stopped gracefully")
	return nil
}

// openAuditRecorder builds the configured audit sink. It returns a nil
// recorder when auditing is disabled; Recorder methods accept nil.
func openAuditRecorder(cfg *config.Config, m metrics.ServerMetrics, checks map[string]handlers.HealthChecker) (*audit.Recorder, error) {
	if !cfg.Audit.Enabled {
		return nil, nil
	}

	var sink audit.Sink
	switch cfg.Audit.Sink {
	case config.AuditSinkDatabase:
		db, err := audit.OpenDatabase(cfg.Audit.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit database: %w", err)
		}
		checks["audit_database"] = db
		sink = db
		logger.Info("Audit enabled", "sink", "database", "type", cfg.Audit.Database.Type)
	default:
		jsonl, err := audit.NewJSONLSink(cfg.Audit.Path, audit.JSONLOptions{
			MaxFileSize: int64(cfg.Audit.MaxFileSize.Uint64()),
			MaxFiles:    cfg.Audit.MaxFiles,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open audit log: %w", err)
		}
		sink = jsonl
		logger.Info("Audit enabled", "sink", "jsonl", logger.KeyPath, cfg.Audit.Path)
	}

	opts := audit.RecorderOptions{BufferSize: cfg.Audit.BufferSize}
	if m != nil {
		opts.OnDrop = m.RecordAuditDropped
	}
	return audit.NewRecorder(sink, opts), nil
}

// getConfigSource returns a description of where the config was loaded from
func getConfigSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return "defaults"
}
