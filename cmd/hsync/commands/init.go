package commands

import (
	"fmt"
	"path/filepath"

	"github.com/marmos91/hsync/internal/cli/prompt"
	"github.com/marmos91/hsync/pkg/config"
	"github.com/marmos91/hsync/pkg/transport"
	"github.com/spf13/cobra"
)

var (
	initForce       bool
	initSelfSigned  bool
	initInteractive bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Initialize a sample hsync configuration file.

By default, the configuration file is created at $XDG_CONFIG_HOME/hsync/config.yaml.
Use --config to specify a custom path.

With --self-signed a certificate and key are generated next to the config
file and referenced from it. Copy the certificate to clients and pass it
with --ca-file to verify the server without --insecure.

Examples:
  # Initialize with default location
  hsync init

  # Initialize with custom path and a persistent certificate
  hsync init --config /etc/hsync/config.yaml --self-signed

  # Answer a few questions instead of editing the file
  hsync init --interactive

  # Force overwrite existing config
  hsync init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
	initCmd.Flags().BoolVar(&initSelfSigned, "self-signed", false, "Generate a self-signed certificate and reference it")
	initCmd.Flags().BoolVarP(&initInteractive, "interactive", "i", false, "Prompt for the main settings")
}

func runInit(cmd *cobra.Command, args []string) error {
	configPath := cfgFile
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}

	cfg := config.GetDefaultConfig()

	if initInteractive {
		if err := promptSettings(cfg); err != nil {
			return err
		}
	}

	if initSelfSigned {
		dir := filepath.Dir(configPath)
		cfg.TLS.CertFile = filepath.Join(dir, "cert.pem")
		cfg.TLS.KeyFile = filepath.Join(dir, "key.pem")
		cfg.Client.CAFile = cfg.TLS.CertFile
		cfg.Client.Insecure = false

		if err := config.InitConfigFrom(configPath, cfg, initForce); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}
		if err := transport.WriteSelfSigned(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.Hosts...); err != nil {
			return fmt.Errorf("failed to generate certificate: %w", err)
		}
	} else if err := config.InitConfigFrom(configPath, cfg, initForce); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	if initSelfSigned {
		fmt.Printf("Certificate written to: %s\n", cfg.TLS.CertFile)
	}
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Set server.root to the directory you want to serve")
	fmt.Println("  2. Start the server with: hsync serve")
	fmt.Printf("  3. Or specify custom config: hsync serve --config %s\n", configPath)
	fmt.Println("  4. Connect from a client: hsync shell --server <host>:4433")
	return nil
}

func promptSettings(cfg *config.Config) error {
	root, err := prompt.Input("Directory to serve", cfg.Server.Root)
	if err != nil {
		return err
	}
	cfg.Server.Root = root

	bind, err := prompt.InputAddress("Listen address", cfg.Server.Bind)
	if err != nil {
		return err
	}
	cfg.Server.Bind = bind

	server, err := prompt.InputAddress("Server address for clients", cfg.Client.Server)
	if err != nil {
		return err
	}
	cfg.Client.Server = server

	audit, err := prompt.Confirm("Enable the audit log", false)
	if err != nil {
		return err
	}
	cfg.Audit.Enabled = audit
	return nil
}
