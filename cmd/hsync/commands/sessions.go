package commands

import (
	"fmt"

	"github.com/marmos91/hsync/internal/cli/output"
	"github.com/marmos91/hsync/pkg/api"
	"github.com/marmos91/hsync/pkg/config"
	"github.com/spf13/cobra"
)

var sessionsAPI string

var sessionsCmd = &cobra.Command{
	Use:   "sessions [id]",
	Short: "List the sessions of a running server",
	Long: `Query the admin API of a running server for its live sessions.

The API address comes from api.listen in the server configuration unless
--api is given. The server must run with api.enabled.

Examples:
  hsync sessions
  hsync sessions --api http://10.0.0.5:8080 -o json
  hsync sessions 3f2c9a1e-...`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSessions,
}

func init() {
	sessionsCmd.Flags().StringVar(&sessionsAPI, "api", "", "Admin API base URL (default: derived from api.listen)")
}

func runSessions(cmd *cobra.Command, args []string) error {
	base := sessionsAPI
	if base == "" {
		cfg, err := config.MustLoad(cfgFile)
		if err != nil {
			return err
		}
		if !cfg.API.Enabled {
			return fmt.Errorf("admin API is disabled\nSet 'api.enabled: true' in %s or pass --api", getConfigSource(cfgFile))
		}
		base = cfg.API.BaseURL()
	}

	p, err := newPrinter()
	if err != nil {
		return err
	}
	c := api.NewClient(base)

	if len(args) == 1 {
		info, err := c.Session(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return p.Print(output.SessionList{*info})
	}

	list, err := c.Sessions(cmd.Context())
	if err != nil {
		return err
	}
	if len(list) == 0 && p.Format() == output.FormatTable {
		p.Println("No active sessions.")
		return nil
	}
	return p.Print(output.SessionList(list))
}
