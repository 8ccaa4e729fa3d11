package cmd

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/codestatus/internal/config"
	"github.com/Iron-Ham/codestatus/internal/editor"
	"github.com/Iron-Ham/codestatus/internal/override"
	"github.com/Iron-Ham/codestatus/internal/protocol"
	"github.com/Iron-Ham/codestatus/internal/supervisor"
	"github.com/Iron-Ham/codestatus/internal/template"
	"github.com/Iron-Ham/codestatus/internal/tui/styles"
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Print the status line for an editor state",
	Long: `Render the configured status template the way "run" would and print the
line that would be sent to the worker.

Without --file the idle text is rendered. The persisted manual status wins
unless --ignore-override is given.

Examples:
  codestatus render --file src/components/Button.tsx --workspace .
  codestatus render --template "{language}: {fileName}" --file main.go -v`,
	Args: cobra.NoArgs,
	RunE: runRender,
}

var (
	renderFile           string
	renderWorkspace      string
	renderWorkspaceName  string
	renderTemplate       string
	renderIgnoreOverride bool
	renderVerbose        bool
)

func init() {
	rootCmd.AddCommand(renderCmd)

	renderCmd.Flags().StringVarP(&renderFile, "file", "f", "", "active document path")
	renderCmd.Flags().StringVarP(&renderWorkspace, "workspace", "w", "", "workspace folder the document belongs to")
	renderCmd.Flags().StringVar(&renderWorkspaceName, "workspace-name", "", "workspace display name (default: folder name)")
	renderCmd.Flags().StringVarP(&renderTemplate, "template", "t", "", "status template (default: statusTemplate)")
	renderCmd.Flags().BoolVar(&renderIgnoreOverride, "ignore-override", false, "render the template even when a manual status is set")
	renderCmd.Flags().BoolVarP(&renderVerbose, "verbose", "v", false, "also print the mode and template variables")
}

func runRender(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	src := cfg.StatusTemplate
	if renderTemplate != "" {
		src = renderTemplate
	}

	state, err := renderState(renderFile, renderWorkspace, renderWorkspaceName)
	if err != nil {
		return err
	}

	manual := ""
	if !renderIgnoreOverride {
		manual, err = override.NewStore(override.DefaultPath()).Load()
		if err != nil {
			return err
		}
	}

	text, mode := supervisor.Compose(template.Parse(src), cfg.IdleText, manual, state)
	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintln(out, protocol.Sanitize(text))

	if renderVerbose {
		_, _ = fmt.Fprintln(out)
		_, _ = fmt.Fprintln(out, styles.Label.Render("mode")+mode)
		ctx := state.Context()
		keys := make([]string, 0, len(ctx))
		for k := range ctx {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			_, _ = fmt.Fprintln(out, styles.Label.Render(k)+ctx[k])
		}
	}
	return nil
}

func renderState(file, workspace, name string) (editor.State, error) {
	state := editor.State{WorkspaceName: name}
	if workspace != "" {
		abs, err := filepath.Abs(workspace)
		if err != nil {
			return state, err
		}
		state.Workspace = abs
	}
	if file != "" {
		abs, err := filepath.Abs(file)
		if err != nil {
			return state, err
		}
		state.Document = editor.DescribeFile(abs)
	}
	return state, nil
}
