// Package commands implements the hsync command line: the server, the
// one-shot client commands and the interactive shell.
package commands

import (
	"github.com/marmos91/hsync/cmd/hsync/commands/config"
	"github.com/spf13/cobra"
)

var (
	build = BuildInfo{Version: "dev", Commit: "none", Date: "unknown"}

	// Global flags.
	cfgFile      string
	outputFormat string
	noColor      bool

	// Client connection flags; empty values fall back to the config file.
	serverAddr string
	serverName string
	caFile     string
	insecure   bool
)

var rootCmd = &cobra.Command{
	Use:   "hsync",
	Short: "hsync - point-to-point file sync over QUIC",
	Long: `hsync moves files between a client and a server directory tree over
an encrypted QUIC connection. Every transfer is checked end to end with a
BLAKE2b-256 digest and published atomically on the receiving side.

Run "hsync serve" on the machine that owns the tree, then use the client
commands (put, get, view, list, ...) or "hsync shell" from anywhere else.

Use "hsync [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the command line against os.Args.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/hsync/config.yaml)")
	pf.StringVarP(&outputFormat, "output", "o", "table", "Output format (table|json|yaml)")
	pf.BoolVar(&noColor, "no-color", false, "Disable colored output")
	pf.StringVarP(&serverAddr, "server", "s", "", "Server address host:port (overrides client.server)")
	pf.StringVar(&serverName, "server-name", "", "TLS server name (overrides client.server_name)")
	pf.StringVar(&caFile, "ca-file", "", "CA certificate used to verify the server (overrides client.ca_file)")
	pf.BoolVarP(&insecure, "insecure", "k", false, "Skip server certificate verification")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(shellCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(config.Cmd)
	for _, cmd := range clientCommands(dialConnector) {
		rootCmd.AddCommand(cmd)
	}
}

// PrintErr prints an error message to stderr.
func PrintErr(format string, args ...any) {
	rootCmd.PrintErrf(format+"\n", args...)
}
