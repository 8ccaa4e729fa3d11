package cmd

import (
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/codestatus/internal/logging"
	"github.com/Iron-Ham/codestatus/internal/tui/styles"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View codestatus logs",
	Long: `View and filter the log written by "codestatus run", including its
rotated backups.

Examples:
  # Show the last 50 entries
  codestatus logs

  # Show everything
  codestatus logs -n 0

  # Only warnings and errors from the last hour
  codestatus logs --level warn --since 1h

  # Worker output only
  codestatus logs --component worker

  # Search messages
  codestatus logs --grep "restart|exited"

  # Export as CSV
  codestatus logs -n 0 --format csv --export logs.csv`,
	Args: cobra.NoArgs,
	RunE: runLogs,
}

var (
	logsTail      int
	logsLevel     string
	logsSince     string
	logsGrep      string
	logsComponent string
	logsWorker    string
	logsFormat    string
	logsExport    string
)

func init() {
	rootCmd.AddCommand(logsCmd)

	logsCmd.Flags().IntVarP(&logsTail, "tail", "n", 50, "Number of entries to show (0 for all)")
	logsCmd.Flags().StringVar(&logsLevel, "level", "", "Filter by minimum level (debug/info/warn/error)")
	logsCmd.Flags().StringVar(&logsSince, "since", "", "Show logs since duration ago (e.g., 1h, 30m)")
	logsCmd.Flags().StringVar(&logsGrep, "grep", "", "Filter messages matching pattern (regex)")
	logsCmd.Flags().StringVar(&logsComponent, "component", "", "Filter by component (e.g., supervisor, worker, watch)")
	logsCmd.Flags().StringVar(&logsWorker, "worker", "", "Filter by worker id")
	logsCmd.Flags().StringVar(&logsFormat, "format", "text", "Output format (text/json/csv)")
	logsCmd.Flags().StringVar(&logsExport, "export", "", "Write the entries to this file instead of stdout")
}

func runLogs(cmd *cobra.Command, args []string) error {
	filter, err := buildLogFilter(time.Now())
	if err != nil {
		return err
	}

	var pattern *regexp.Regexp
	if logsGrep != "" {
		pattern, err = regexp.Compile(logsGrep)
		if err != nil {
			return fmt.Errorf("invalid grep pattern: %w", err)
		}
	}

	entries, err := logging.AggregateLogs(LogDir())
	if err != nil {
		return err
	}
	entries = selectEntries(entries, filter, pattern, logsTail)

	if logsExport != "" {
		if err := logging.ExportLogEntries(entries, logsExport, logsFormat); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Exported %d entries to %s\n", len(entries), logsExport)
		return nil
	}

	if strings.EqualFold(logsFormat, "text") {
		return writeStyledEntries(cmd.OutOrStdout(), entries)
	}
	return logging.WriteLogEntries(cmd.OutOrStdout(), entries, logsFormat)
}

func buildLogFilter(now time.Time) (logging.LogFilter, error) {
	filter := logging.LogFilter{
		Component: logsComponent,
		WorkerID:  logsWorker,
	}

	if logsLevel != "" {
		level := logging.ParseLevel(logsLevel)
		if !strings.EqualFold(level, logsLevel) {
			return filter, fmt.Errorf("invalid level %q (valid: %s)", logsLevel, strings.Join(logging.ValidLevels(), ", "))
		}
		filter.Level = level
	}

	if logsSince != "" {
		d, err := time.ParseDuration(logsSince)
		if err != nil {
			return filter, fmt.Errorf("invalid --since duration: %w", err)
		}
		filter.StartTime = now.Add(-d)
	}

	return filter, nil
}

// selectEntries applies filter and pattern, then keeps the last tail
// entries (all when tail <= 0).
func selectEntries(entries []logging.LogEntry, filter logging.LogFilter, pattern *regexp.Regexp, tail int) []logging.LogEntry {
	entries = logging.FilterLogs(entries, filter)
	if pattern != nil {
		kept := entries[:0:0]
		for _, e := range entries {
			if pattern.MatchString(e.Message) {
				kept = append(kept, e)
			}
		}
		entries = kept
	}
	if tail > 0 && len(entries) > tail {
		entries = entries[len(entries)-tail:]
	}
	return entries
}

func writeStyledEntries(w io.Writer, entries []logging.LogEntry) error {
	for _, e := range entries {
		line := logging.FormatEntry(e)
		if style, ok := levelStyles[e.Level]; ok {
			line = style.Render(line)
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

var levelStyles = map[string]lipgloss.Style{
	logging.LevelDebug: styles.Muted,
	logging.LevelWarn:  styles.Warning,
	logging.LevelError: styles.Error,
}
