package config

import (
	"github.com/marmos91/hsync/internal/cli/output"
	"github.com/marmos91/hsync/pkg/config"
	"github.com/spf13/cobra"
)

var (
	showFormat   string
	showDefaults bool
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration the server would run with: the file merged
with defaults and HSYNC_* environment overrides.

Examples:
  hsync config show
  hsync config show --format json
  hsync config show --defaults`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(showFormat)
		if err != nil {
			return err
		}

		cfg := config.GetDefaultConfig()
		if !showDefaults {
			if cfg, err = config.MustLoad(configPath(cmd)); err != nil {
				return err
			}
		}

		if format == output.FormatJSON {
			return output.PrintJSON(cmd.OutOrStdout(), cfg)
		}
		return output.PrintYAML(cmd.OutOrStdout(), cfg)
	},
}

func init() {
	showCmd.Flags().StringVar(&showFormat, "format", "yaml", "Output format (yaml|json)")
	showCmd.Flags().BoolVar(&showDefaults, "defaults", false, "Print the built-in defaults and ignore the file")
}
