package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/marmos91/hsync/internal/cli/output"
	"github.com/marmos91/hsync/internal/logger"
	"github.com/marmos91/hsync/pkg/client"
	"github.com/marmos91/hsync/pkg/config"
	"github.com/marmos91/hsync/pkg/transport"
)

// InitLogger initializes the structured logger from configuration.
func InitLogger(cfg *config.Config) error {
	loggerCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if err := logger.Init(loggerCfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// loadClientConfig loads the configuration for client commands. A missing
// config file is fine: the client section has usable defaults and the
// connection flags override it.
func loadClientConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if cfgFile == "" && !config.DefaultConfigExists() {
		cfg = config.GetDefaultConfig()
	} else {
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return nil, err
		}
	}

	applyClientFlags(&cfg.Client)

	// Client commands keep stdout for results.
	cfg.Logging.Output = "stderr"
	if cfg.Logging.Level == "INFO" {
		cfg.Logging.Level = "WARN"
	}
	if err := InitLogger(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyClientFlags(c *config.ClientConfig) {
	if serverAddr != "" {
		c.Server = serverAddr
	}
	if serverName != "" {
		c.ServerName = serverName
	}
	if caFile != "" {
		c.CAFile = caFile
		c.Insecure = false
	}
	if insecure {
		c.Insecure = true
	}
}

// dialClient connects to the configured server.
func dialClient(ctx context.Context, cfg *config.Config) (*client.Client, error) {
	tlsConf, err := transport.ClientTLSConfig(cfg.Client.ServerName, cfg.Client.CAFile, cfg.Client.Insecure)
	if err != nil {
		return nil, err
	}

	dialCtx := ctx
	if cfg.Client.Timeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, cfg.Client.Timeout)
		defer cancel()
	}

	quicCfg := transport.QUICConfig{
		IdleTimeout: cfg.Server.IdleTimeout,
		KeepAlive:   cfg.Server.IdleTimeout / 3,
	}
	opts := client.Options{
		MaxFrameSize: cfg.Transfer.MaxFrameSize.Int(),
		ChunkSize:    cfg.Transfer.ChunkSize.Int(),
	}
	return client.Dial(dialCtx, cfg.Client.Server, tlsConf, quicCfg, opts)
}

// connector hands a client to a command. release is called when the
// command is done with it.
type connector func(ctx context.Context) (c *client.Client, release func(), err error)

// dialConnector opens a fresh connection per command.
func dialConnector(ctx context.Context) (*client.Client, func(), error) {
	cfg, err := loadClientConfig()
	if err != nil {
		return nil, nil, err
	}
	c, err := dialClient(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return c, func() { _ = c.Close() }, nil
}

// sharedConnector reuses one connection, so navigation persists between
// commands.
func sharedConnector(c *client.Client) connector {
	return func(context.Context) (*client.Client, func(), error) {
		return c, func() {}, nil
	}
}

func newPrinter() (*output.Printer, error) {
	format, err := output.ParseFormat(outputFormat)
	if err != nil {
		return nil, err
	}
	return output.NewPrinter(os.Stdout, format, !noColor), nil
}
