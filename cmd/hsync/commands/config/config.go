// Package config holds the "hsync config" subcommands.
package config

import "github.com/spf13/cobra"

// Cmd groups the configuration subcommands. "hsync init" writes a new file.
var Cmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and check the configuration file",
}

func init() {
	Cmd.AddCommand(validateCmd, showCmd, schemaCmd)
}

// configPath reads the persistent --config flag inherited from the root.
func configPath(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("config")
	return path
}
