package cmd

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/codestatus/internal/config"
	"github.com/Iron-Ham/codestatus/internal/override"
	"github.com/Iron-Ham/codestatus/internal/presence"
	"github.com/Iron-Ham/codestatus/internal/runlock"
	"github.com/Iron-Ham/codestatus/internal/tui/styles"
	"github.com/Iron-Ham/codestatus/internal/util"
	"github.com/Iron-Ham/codestatus/internal/worker"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the published presence and the manual status",
	Long: `Show what the worker last published and whether a manual status is set.

The published presence is read from the file provider's document, so this
only reflects a worker running with worker.provider: file (the default).`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	out := cmd.OutOrStdout()

	manual, err := override.NewStore(override.DefaultPath()).Load()
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintln(out, styles.Title.Render("codestatus"))

	if held, ok := runlock.Holder(config.StateDir()); ok {
		_, _ = fmt.Fprintln(out, styles.Label.Render("front end")+fmt.Sprintf("running (pid %d, since %s)", held.PID, held.StartedAt.Local().Format(time.DateTime)))
	} else {
		_, _ = fmt.Fprintln(out, styles.Label.Render("front end")+styles.Muted.Render("not running"))
	}

	if cfg.Worker.Provider != "" && cfg.Worker.Provider != worker.ProviderFile {
		_, _ = fmt.Fprintln(out, styles.Muted.Render("worker.provider is "+cfg.Worker.Provider+"; nothing to read"))
	} else {
		path := cfg.Worker.StateFile
		if path == "" {
			path = util.DefaultPresenceFile()
		}
		printDocument(cmd, path, cfg.DynamicKey, manual != "")
	}

	if manual != "" {
		_, _ = fmt.Fprintln(out, styles.Label.Render("manual")+manual)
	} else {
		_, _ = fmt.Fprintln(out, styles.Label.Render("manual")+styles.Muted.Render("not set"))
	}
	return nil
}

func printDocument(cmd *cobra.Command, path, dynamicKey string, manual bool) {
	out := cmd.OutOrStdout()

	doc, err := presence.ReadDocument(path)
	if err != nil {
		if os.IsNotExist(err) {
			_, _ = fmt.Fprintln(out, styles.Label.Render("presence")+styles.Badge(styles.StateOffline)+styles.Muted.Render(" (never published)"))
			return
		}
		_, _ = fmt.Fprintln(out, styles.ErrorMsg.Render("failed to read presence: ")+err.Error())
		return
	}

	state := styles.StateOffline
	switch {
	case doc.Online && manual:
		state = styles.StateOverride
	case doc.Online && doc.Fields[dynamicKey] == "":
		state = styles.StateIdle
	case doc.Online:
		state = styles.StateOnline
	}

	updated := "never"
	if !doc.UpdatedAt.IsZero() {
		updated = doc.UpdatedAt.Local().Format(time.DateTime)
	}
	_, _ = fmt.Fprintln(out, styles.Label.Render("presence")+styles.Badge(state)+styles.Muted.Render(" (app "+doc.AppID+", updated "+updated+")"))

	if line := doc.Fields[dynamicKey]; line != "" {
		_, _ = fmt.Fprintln(out, styles.Status.Render(line))
	}

	keys := make([]string, 0, len(doc.Fields))
	for k := range doc.Fields {
		if k != dynamicKey {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		_, _ = fmt.Fprintln(out, styles.Muted.Render(fmt.Sprintf("  %-24s", k))+doc.Fields[k])
	}
}
