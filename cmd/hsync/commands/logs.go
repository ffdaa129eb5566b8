package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/marmos91/hsync/internal/cli/follow"
	"github.com/marmos91/hsync/pkg/config"
	"github.com/spf13/cobra"
)

var (
	logsFollow bool
	logsLines  int
	logsSince  string
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Tail server logs",
	Long: `Display and optionally follow the hsync server logs.

This command reads the log file specified in the configuration and displays
the most recent entries. If the server logs to stdout/stderr, this command
will indicate that logs are not available in a file.

Examples:
  # Show last 100 lines (default)
  hsync logs

  # Follow logs in real-time
  hsync logs -f -n 20

  # Show logs since a specific time
  hsync logs --since "2026-01-15T10:00:00Z"`,
	RunE: runLogs,
}

func init() {
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "Follow log output")
	logsCmd.Flags().IntVarP(&logsLines, "lines", "n", 100, "Number of lines to show")
	logsCmd.Flags().StringVar(&logsSince, "since", "", "Show logs since timestamp (RFC3339 format)")
}

func runLogs(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logOutput := cfg.Logging.Output
	if logOutput == "stdout" || logOutput == "stderr" {
		return fmt.Errorf("server is configured to log to %s, not a file\nConfigure 'logging.output' in config to a file path to use this command", logOutput)
	}
	if _, err := os.Stat(logOutput); os.IsNotExist(err) {
		return fmt.Errorf("log file not found: %s\nThe server may not have started yet or is logging elsewhere", logOutput)
	}

	var since time.Time
	if logsSince != "" {
		since, err = time.Parse(time.RFC3339, logsSince)
		if err != nil {
			return fmt.Errorf("invalid --since format (use RFC3339): %w", err)
		}
	}

	lines, err := follow.Tail(logOutput, logsLines, func(line string) bool {
		if since.IsZero() {
			return true
		}
		t := extractTimestamp(line)
		return t.IsZero() || !t.Before(since)
	})
	if err != nil {
		return fmt.Errorf("failed to read log file: %w", err)
	}
	for _, line := range lines {
		fmt.Println(line)
	}

	if !logsFollow {
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(os.Stderr, "Following %s (Ctrl+C to stop)...\n", logOutput)
	return follow.Follow(ctx, logOutput, func(line string) {
		fmt.Println(line)
	})
}

// extractTimestamp attempts to extract a timestamp from a log line.
// Supports RFC3339 at the start of the line, a JSON "time" field and the
// text handler's "time=" attribute.
func extractTimestamp(line string) time.Time {
	if field, _, _ := strings.Cut(line, " "); field != "" {
		if t, err := time.Parse(time.RFC3339Nano, field); err == nil {
			return t
		}
	}

	for _, key := range []string{`"time":"`, `time=`} {
		idx := strings.Index(line, key)
		if idx < 0 {
			continue
		}
		rest := line[idx+len(key):]
		end := strings.IndexAny(rest, `" `)
		if end < 0 {
			end = len(rest)
		}
		if t, err := time.Parse(time.RFC3339Nano, rest[:end]); err == nil {
			return t
		}
	}

	return time.Time{}
}
