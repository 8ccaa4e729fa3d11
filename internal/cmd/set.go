package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/codestatus/internal/override"
	"github.com/Iron-Ham/codestatus/internal/tui/prompt"
	"github.com/Iron-Ham/codestatus/internal/tui/styles"
)

var setCmd = &cobra.Command{
	Use:   "set [text...]",
	Short: "Set or clear the manual status",
	Long: `Set a manual status that replaces the rendered template until cleared.

With text, the status is set directly. Without text on a terminal, an
interactive prompt opens: enter applies, an empty entry returns to the
automatic status and esc leaves everything unchanged.

A running "codestatus run" picks the change up immediately.`,
	RunE: runSet,
}

var setClear bool

func init() {
	rootCmd.AddCommand(setCmd)

	setCmd.Flags().BoolVar(&setClear, "clear", false, "return to the automatic status")
}

func runSet(cmd *cobra.Command, args []string) error {
	store := override.NewStore(override.DefaultPath())

	var text string
	switch {
	case setClear:
		if len(args) > 0 {
			return fmt.Errorf("--clear takes no text")
		}
	case len(args) > 0:
		text = strings.Join(args, " ")
	default:
		if !prompt.IsTerminal(os.Stdin) || !prompt.IsTerminal(os.Stdout) {
			return fmt.Errorf("no status given: pass the text as arguments or run in a terminal")
		}
		current, err := store.Load()
		if err != nil {
			return err
		}
		res, err := prompt.Run(cmd.Context(), current, os.Stdin, os.Stdout)
		if err != nil {
			return err
		}
		if res.Canceled {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), styles.Muted.Render("unchanged"))
			return nil
		}
		text = res.Text
	}

	return applyOverride(cmd, store, text)
}

func applyOverride(cmd *cobra.Command, store *override.Store, text string) error {
	if err := store.Set(text); err != nil {
		return fmt.Errorf("failed to save manual status: %w", err)
	}

	out := cmd.OutOrStdout()
	if override.Normalize(text) == "" {
		_, _ = fmt.Fprintln(out, styles.SuccessMsg.Render("automatic status restored"))
		return nil
	}
	_, _ = fmt.Fprintln(out, styles.SuccessMsg.Render("manual status set: ")+text)
	return nil
}
