package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/codestatus/internal/worker"
)

// NewWorkerCommand returns the presence worker as a command. Its flags use
// the worker's own single-dash syntax, so cobra does not parse them.
func NewWorkerCommand(exit func(code int)) *cobra.Command {
	return &cobra.Command{
		Use:                "codestatus-worker [-key=value ...]",
		Short:              "Publish status lines read from stdin to the presence provider",
		DisableFlagParsing: true,
		SilenceUsage:       true,
		RunE: func(cmd *cobra.Command, args []string) error {
			exit(worker.Main(cmd.Context(), args, worker.Streams{
				Stdin:  cmd.InOrStdin(),
				Stdout: cmd.OutOrStdout(),
				Stderr: cmd.ErrOrStderr(),
			}))
			return nil
		},
	}
}

var osExit = os.Exit

func init() {
	wc := NewWorkerCommand(osExit)
	wc.Use = "worker [-key=value ...]"
	wc.Hidden = true
	rootCmd.AddCommand(wc)
}
