package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/anmitsu/go-shlex"
	"github.com/marmos91/hsync/internal/cli/prompt"
	"github.com/marmos91/hsync/pkg/client"
	"github.com/spf13/cobra"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Open an interactive session",
	Long: `Open one connection to the server and read commands interactively.

The remote working directory persists between commands, so "down", "up"
and relative paths behave like a remote shell. Every client command is
available, plus:

  lcd <dir>   change the local working directory
  lpwd        print the local working directory
  exit        close the session (also Ctrl+D)`,
	Args: cobra.NoArgs,
	RunE: runShell,
}

func runShell(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadClientConfig()
	if err != nil {
		return err
	}
	c, err := dialClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	fmt.Fprintf(os.Stderr, "Connected to %s. Type \"help\" for commands, \"exit\" to quit.\n", c.RemoteAddr())

	cwd := ""
	for {
		line, err := prompt.Line(fmt.Sprintf("hsync:/%s>", cwd))
		if errors.Is(err, io.EOF) {
			return nil
		}
		if prompt.IsAborted(err) {
			// Ctrl+C clears the line.
			continue
		}
		if err != nil {
			return err
		}

		words, err := shlex.Split(line, true)
		if err != nil {
			PrintErr("Error: %v", err)
			continue
		}
		if len(words) == 0 {
			continue
		}

		done, err := runShellLine(ctx, c, words)
		if err != nil {
			PrintErr("Error: %v", err)
		}
		if done {
			return nil
		}

		if words[0] == "up" || words[0] == "down" {
			if info, err := c.Status(ctx); err == nil {
				cwd = info.Cwd
			}
		}
	}
}

// runShellLine executes one tokenized shell line. done reports a request
// to leave the shell.
func runShellLine(ctx context.Context, c *client.Client, words []string) (done bool, err error) {
	switch words[0] {
	case "exit", "quit":
		return true, nil
	case "lcd":
		if len(words) != 2 {
			return false, errors.New("usage: lcd <dir>")
		}
		return false, os.Chdir(words[1])
	case "lpwd":
		wd, err := os.Getwd()
		if err != nil {
			return false, err
		}
		fmt.Println(wd)
		return false, nil
	}

	root := newShellRoot(c)
	root.SetArgs(words)
	return false, root.ExecuteContext(ctx)
}

func newShellRoot(c *client.Client) *cobra.Command {
	root := &cobra.Command{
		Use:           "",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true
	for _, cmd := range clientCommands(sharedConnector(c)) {
		root.AddCommand(cmd)
	}
	return root
}
