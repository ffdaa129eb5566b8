package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	"github.com/goccy/go-json"
	"github.com/marmos91/hsync/internal/cli/follow"
	"github.com/marmos91/hsync/internal/cli/output"
	"github.com/marmos91/hsync/pkg/audit"
	"github.com/marmos91/hsync/pkg/config"
	"github.com/spf13/cobra"
)

var (
	auditLines  int
	auditFollow bool
	auditEvent  string
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show the server audit log",
	Long: `Display recent entries of the audit log configured in the server's
configuration file, oldest first.

Examples:
  # Last 50 entries
  hsync audit

  # Only commands, as JSON
  hsync audit --event command -o json

  # Follow new entries (JSON Lines sink only)
  hsync audit -f`,
	Args: cobra.NoArgs,
	RunE: runAudit,
}

func init() {
	auditCmd.Flags().IntVarP(&auditLines, "lines", "n", 50, "Number of entries to show")
	auditCmd.Flags().BoolVarP(&auditFollow, "follow", "f", false, "Follow new entries")
	auditCmd.Flags().StringVar(&auditEvent, "event", "", "Only show entries of this event (server_start, server_stop, connect, disconnect, command)")
}

func runAudit(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(cfgFile)
	if err != nil {
		return err
	}
	if !cfg.Audit.Enabled {
		return fmt.Errorf("audit logging is disabled\nSet 'audit.enabled: true' in %s and restart the server", getConfigSource(cfgFile))
	}

	p, err := newPrinter()
	if err != nil {
		return err
	}

	entries, err := recentAudit(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	slices.Reverse(entries)

	if p.Format() != output.FormatTable {
		if err := p.Print(entries); err != nil {
			return err
		}
	} else if len(entries) > 0 {
		if err := p.Print(output.AuditTable(entries)); err != nil {
			return err
		}
	}

	if !auditFollow {
		return nil
	}
	if cfg.Audit.Sink == config.AuditSinkDatabase {
		return fmt.Errorf("--follow requires the jsonl audit sink")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(os.Stderr, "Following %s (Ctrl+C to stop)...\n", cfg.Audit.Path)
	return follow.Follow(ctx, cfg.Audit.Path, func(line string) {
		var e audit.Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil || !matchEvent(e) {
			return
		}
		if p.Format() == output.FormatTable {
			p.Println(strings.Join(output.AuditRow(e), "  "))
			return
		}
		_ = output.PrintJSONCompact(p.Writer(), e)
	})
}

// recentAudit reads up to auditLines entries, newest first, filtered by
// --event.
func recentAudit(ctx context.Context, cfg *config.Config) ([]audit.Entry, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	var reader audit.Reader
	switch cfg.Audit.Sink {
	case config.AuditSinkDatabase:
		db, err := audit.OpenDatabase(cfg.Audit.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit database: %w", err)
		}
		defer func() { _ = db.Close() }()
		reader = db
	default:
		reader = jsonlReader(cfg.Audit.Path)
	}

	limit := auditLines
	if auditEvent != "" {
		// Filtering happens after the read.
		limit = 0
	}
	entries, err := reader.Recent(ctx, limit)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("audit log not found: %s\nThe server may not have started yet", cfg.Audit.Path)
	}
	if err != nil {
		return nil, err
	}

	if auditEvent != "" {
		entries = slices.DeleteFunc(entries, func(e audit.Entry) bool { return !matchEvent(e) })
		if auditLines > 0 && len(entries) > auditLines {
			entries = entries[:auditLines]
		}
	}
	return entries, nil
}

func matchEvent(e audit.Entry) bool {
	return auditEvent == "" || string(e.Event) == auditEvent
}

// jsonlReader reads a JSON Lines audit file without opening it for
// writing.
type jsonlReader string

func (r jsonlReader) Recent(_ context.Context, limit int) ([]audit.Entry, error) {
	return audit.ReadJSONL(string(r), limit)
}
