package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/marmos91/hsync/internal/cli/output"
	"github.com/marmos91/hsync/internal/cli/prompt"
	"github.com/marmos91/hsync/pkg/client"
	"github.com/spf13/cobra"
)

// clientCommands builds the commands that talk to a server. They are
// constructed per call so the interactive shell gets fresh flag state for
// every line.
func clientCommands(connect connector) []*cobra.Command {
	return []*cobra.Command{
		newPutCmd(connect),
		newGetCmd(connect),
		newViewCmd(connect),
		newListCmd(connect, "list", output.ListingShort),
		newListCmd(connect, "listl", output.ListingLong),
		newListCmd(connect, "listr", output.ListingRecursive),
		newUpCmd(connect),
		newDownCmd(connect),
		newStatusCmd(connect),
	}
}

// withClient runs fn with a connected client and a printer.
func withClient(cmd *cobra.Command, connect connector, fn func(ctx context.Context, c *client.Client, p *output.Printer) error) error {
	p, err := newPrinter()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	c, release, err := connect(ctx)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx, c, p)
}

type transferResult struct {
	Local  string `json:"local" yaml:"local"`
	Remote string `json:"remote" yaml:"remote"`
	Bytes  uint64 `json:"bytes" yaml:"bytes"`
	Hash   string `json:"hash" yaml:"hash"`
}

func printTransfer(p *output.Printer, verb string, results []transferResult) error {
	if p.Format() != output.FormatTable {
		if len(results) == 1 {
			return p.Print(results[0])
		}
		return p.Print(results)
	}
	for _, r := range results {
		p.Success(fmt.Sprintf("%s %s -> %s (%s, %s)", verb, r.Local, r.Remote, humanize.IBytes(r.Bytes), shortHash(r.Hash)))
	}
	return nil
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

func newPutCmd(connect connector) *cobra.Command {
	var dest string
	cmd := &cobra.Command{
		Use:   "put <local> [remote]",
		Short: "Upload a file or directory",
		Long: `Upload a local file to the server, relative to the current remote
directory. The remote name defaults to the local base name; a remote path
ending in "/" uploads into that directory. Directories are uploaded
recursively over parallel streams.

Examples:
  hsync put report.pdf
  hsync put report.pdf archive/2026/
  hsync put ./photos backup/photos`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 2 {
				dest = args[1]
			}
			info, err := os.Stat(args[0])
			if err != nil {
				return err
			}
			return withClient(cmd, connect, func(ctx context.Context, c *client.Client, p *output.Printer) error {
				if !info.IsDir() {
					res, err := c.Put(ctx, args[0], dest)
					if err != nil {
						return err
					}
					return printTransfer(p, "uploaded", []transferResult{{res.Local, res.Remote, res.Written, res.Hash}})
				}

				results, err := c.PutTree(ctx, args[0], dest, func(r client.PutResult) {
					fmt.Fprintf(os.Stderr, "  %s (%s)\n", r.Remote, humanize.IBytes(r.Written))
				})
				if err != nil {
					return err
				}
				if len(results) == 0 && p.Format() == output.FormatTable {
					p.Warning(fmt.Sprintf("no regular files under %s", args[0]))
					return nil
				}
				var total uint64
				views := make([]transferResult, len(results))
				for i, r := range results {
					total += r.Written
					views[i] = transferResult{r.Local, r.Remote, r.Written, r.Hash}
				}
				if p.Format() != output.FormatTable {
					return p.Print(views)
				}
				p.Success(fmt.Sprintf("uploaded %d files (%s)", len(results), humanize.IBytes(total)))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&dest, "dest", "", "Remote destination (same as the second argument)")
	return cmd
}

func newGetCmd(connect connector) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "get <remote> [local]",
		Short: "Download a file",
		Long: `Download a remote file. The content is verified against the server's
BLAKE2b-256 digest before it replaces the local file. An existing local
file is only replaced with --force or after confirmation.

Examples:
  hsync get report.pdf
  hsync get archive/2026/report.pdf ~/Downloads/
  hsync get report.pdf copy.pdf --force`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			local := ""
			if len(args) == 2 {
				local = args[1]
			}
			return withClient(cmd, connect, func(ctx context.Context, c *client.Client, p *output.Printer) error {
				res, err := c.Get(ctx, args[0], local, client.GetOptions{Force: force})
				if errors.Is(err, client.ErrExists) {
					ok, perr := prompt.Confirm(fmt.Sprintf("%v. Overwrite", err), false)
					if perr != nil || !ok {
						return err
					}
					res, err = c.Get(ctx, args[0], local, client.GetOptions{Force: true})
				}
				if err != nil {
					return err
				}
				return printTransfer(p, "downloaded", []transferResult{{res.Local, args[0], res.Size, res.Hash}})
			})
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing local file")
	return cmd
}

func newViewCmd(connect connector) *cobra.Command {
	return &cobra.Command{
		Use:   "view <remote>",
		Short: "Print a remote file",
		Long:  `Stream a remote file to standard output. The digest is checked once the content has been written.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, connect, func(ctx context.Context, c *client.Client, _ *output.Printer) error {
				_, err := c.View(ctx, args[0], cmd.OutOrStdout())
				return err
			})
		},
	}
}

func newListCmd(connect connector, name string, style output.ListingStyle) *cobra.Command {
	var exact bool
	short := map[output.ListingStyle]string{
		output.ListingShort:     "List a remote directory",
		output.ListingLong:      "List a remote directory with permissions, sizes and times",
		output.ListingRecursive: "List a remote directory tree",
	}[style]

	cmd := &cobra.Command{
		Use:   name + " [remote-dir]",
		Short: short,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			}
			return withClient(cmd, connect, func(ctx context.Context, c *client.Client, p *output.Printer) error {
				list := c.List
				switch style {
				case output.ListingLong:
					list = c.ListLong
				case output.ListingRecursive:
					list = c.ListRecursive
				}
				entries, err := list(ctx, dir)
				if err != nil {
					return err
				}
				if p.Format() != output.FormatTable {
					return p.Print(entries)
				}
				if len(entries) == 0 {
					return nil
				}
				return p.Print(output.Listing{Entries: entries, Style: style, Exact: exact})
			})
		},
	}
	if style != output.ListingShort {
		cmd.Flags().BoolVar(&exact, "bytes", false, "Show sizes in bytes")
	}
	return cmd
}

func printCwd(p *output.Printer, cwd string) error {
	if p.Format() != output.FormatTable {
		return p.Print(map[string]string{"cwd": cwd})
	}
	p.Println("/" + cwd)
	return nil
}

func newUpCmd(connect connector) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Move to the parent remote directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, connect, func(ctx context.Context, c *client.Client, p *output.Printer) error {
				cwd, err := c.Up(ctx)
				if err != nil {
					return err
				}
				return printCwd(p, cwd)
			})
		},
	}
}

func newDownCmd(connect connector) *cobra.Command {
	return &cobra.Command{
		Use:   "down [remote-dir]",
		Short: "Move into a remote directory",
		Long: `Move into a remote directory relative to the current one. Without an
argument, return to the directory left by the last "up".`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			}
			return withClient(cmd, connect, func(ctx context.Context, c *client.Client, p *output.Printer) error {
				cwd, err := c.Down(ctx, dir)
				if err != nil {
					return err
				}
				return printCwd(p, cwd)
			})
		},
	}
}

func newStatusCmd(connect connector) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show server status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, connect, func(ctx context.Context, c *client.Client, p *output.Printer) error {
				info, err := c.Status(ctx)
				if err != nil {
					return err
				}
				if p.Format() != output.FormatTable {
					return p.Print(info)
				}
				return output.SimpleTable(p.Writer(), output.StatusView{StatusInfo: info}.Pairs())
			})
		},
	}
}
