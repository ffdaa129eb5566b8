package main

import (
	"os"

	"github.com/marmos91/hsync/cmd/hsync/commands"
)

// Overridden by release builds: -ldflags "-X main.version=v1.2.3 ...".
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetBuild(commands.BuildInfo{Version: version, Commit: commit, Date: date})
	if err := commands.Execute(); err != nil {
		commands.PrintErr("Error: %v", err)
		os.Exit(1)
	}
}
