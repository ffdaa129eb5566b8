package config

import (
	"fmt"
	"os"

	"github.com/marmos91/hsync/pkg/config"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Load the configuration file and check every setting, including the
server root and TLS files it references.

Examples:
  hsync config validate
  hsync config validate --config /etc/hsync/config.yaml`,
	RunE: runConfigValidate,
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(configPath(cmd))
	if err != nil {
		return err
	}

	var problems []string
	if info, err := os.Stat(cfg.Server.Root); err != nil {
		problems = append(problems, fmt.Sprintf("server.root: %v", err))
	} else if !info.IsDir() {
		problems = append(problems, fmt.Sprintf("server.root: %s is not a directory", cfg.Server.Root))
	}
	for name, path := range map[string]string{
		"tls.cert_file":  cfg.TLS.CertFile,
		"tls.key_file":   cfg.TLS.KeyFile,
		"client.ca_file": cfg.Client.CAFile,
	} {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", name, err))
		}
	}

	if len(problems) > 0 {
		for _, p := range problems {
			cmd.PrintErrln("  " + p)
		}
		return fmt.Errorf("configuration has %d problem(s)", len(problems))
	}

	cmd.Println("Configuration is valid")
	return nil
}
