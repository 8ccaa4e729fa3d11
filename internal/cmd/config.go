package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/codestatus/internal/config"
	"github.com/Iron-Ham/codestatus/internal/editor"
	"github.com/Iron-Ham/codestatus/internal/supervisor"
	"github.com/Iron-Ham/codestatus/internal/tui/styles"
	"github.com/Iron-Ham/codestatus/internal/util"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or modify codestatus configuration",
	Long: `View or modify codestatus configuration.

Without arguments, displays the current configuration.
Use subcommands to modify settings or create a config file.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the user's config file.

Keys use dot notation for nested sections, e.g.:
  codestatus config set idleText "away from keyboard"
  codestatus config set worker.provider log
  codestatus config set supervisor.restart_delay_ms 1000

A running "codestatus run" picks up the change and restarts the worker
when the presence settings differ.

Run "codestatus config set --list" for all keys.`,
	Args: func(cmd *cobra.Command, args []string) error {
		if configSetList {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.ExactArgs(2)(cmd, args)
	},
	RunE: runConfigSet,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long:  `Create a default config file at ~/.config/codestatus/config.yaml with all available options.`,
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	Args:  cobra.NoArgs,
	RunE:  runConfigPath,
}

var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration",
	Long: `Validate the effective configuration and report problems.

Errors make "codestatus run" refuse to start. Warnings point at settings
that are accepted but probably not what was meant, such as a static
argument without '=' or an unknown status template placeholder.`,
	Args: cobra.NoArgs,
	RunE: runConfigCheck,
}

var (
	configInitForce bool
	configSetList   bool
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configCheckCmd)

	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "overwrite an existing config file")
	configSetCmd.Flags().BoolVar(&configSetList, "list", false, "list the keys that can be set")
}

// settableKeys maps every key `config set` accepts to its value kind.
// watch.ignore is a list and is edited in the file directly.
var settableKeys = map[string]string{
	"enabled":         "bool",
	"steamAppId":      "string",
	"displayTemplate": "string",
	"dynamicKey":      "string",
	"staticArgs":      "string",
	"groupId":         "string",
	"groupSize":       "string",
	"statusTemplate":  "string",
	"idleText":        "string",

	"worker.path":         "string",
	"worker.dir":          "string",
	"worker.provider":     "string",
	"worker.state_file":   "string",
	"worker.retry_ms":     "int",
	"worker.metrics_addr": "string",

	"supervisor.restart_delay_ms":         "int",
	"supervisor.graceful_stop_timeout_ms": "int",

	"watch.enabled":     "bool",
	"watch.root":        "string",
	"watch.debounce_ms": "int",

	"logging.level":       "string",
	"logging.max_size_mb": "int",
	"logging.max_backups": "int",
	"logging.compress":    "bool",

	"metrics.addr": "string",
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	cfg := config.Get()

	_, _ = fmt.Fprintln(out, "Current configuration:")
	_, _ = fmt.Fprintln(out)

	if viper.ConfigFileUsed() != "" {
		_, _ = fmt.Fprintf(out, "Config file: %s\n", viper.ConfigFileUsed())
	} else {
		_, _ = fmt.Fprintln(out, "Config file: (none - using defaults)")
	}
	_, _ = fmt.Fprintln(out)

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	_, err = out.Write(data)
	return err
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if configSetList {
		keys := make([]string, 0, len(settableKeys))
		for k := range settableKeys {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			_, _ = fmt.Fprintf(out, "  %-38s %s\n", k, styles.Muted.Render(settableKeys[k]))
		}
		return nil
	}

	key, value := resolveKey(args[0]), args[1]
	kind, ok := settableKeys[key]
	if !ok {
		return fmt.Errorf("unknown config key: %s\nRun 'codestatus config set --list' to see valid keys", args[0])
	}

	typed, tag, err := parseValue(kind, value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}

	// Validate the result before anything reaches disk.
	viper.Set(key, typed)
	if _, err := config.Load(); err != nil {
		return fmt.Errorf("refusing to write invalid configuration: %w", err)
	}

	path := viper.ConfigFileUsed()
	if path == "" {
		path = config.ConfigFile()
	}
	if err := setFileKey(path, key, value, tag); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(out, "%s %s = %s\n", styles.SuccessMsg.Render("Set"), key, value)
	_, _ = fmt.Fprintf(out, "Config saved to: %s\n", path)
	return nil
}

// resolveKey maps a case-insensitive key onto its canonical spelling, so
// "steamappid" and "steamAppId" name the same setting.
func resolveKey(key string) string {
	for k := range settableKeys {
		if strings.EqualFold(k, key) {
			return k
		}
	}
	return key
}

func parseValue(kind, value string) (typed any, tag string, err error) {
	switch kind {
	case "bool":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, "", fmt.Errorf("expected true or false, got %q", value)
		}
		return b, "!!bool", nil
	case "int":
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, "", fmt.Errorf("expected an integer, got %q", value)
		}
		return n, "!!int", nil
	default:
		return value, "!!str", nil
	}
}

// setFileKey edits a single key in the YAML file at path, keeping the
// rest of the document, including comments, as it is. Writing through
// viper would lowercase every key and drop the comments.
func setFileKey(path, key, value, tag string) error {
	var doc yaml.Node
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return fmt.Errorf("failed to read config: %w", err)
	}

	if doc.Kind == 0 || len(doc.Content) == 0 {
		doc = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode}}}
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return fmt.Errorf("%s: top level is not a mapping", path)
	}

	parts := strings.Split(key, ".")
	node := root
	for _, part := range parts[:len(parts)-1] {
		node = mappingValue(node, part, yaml.MappingNode)
		if node.Kind != yaml.MappingNode {
			return fmt.Errorf("%s: %s is not a mapping", path, part)
		}
	}
	leaf := mappingValue(node, parts[len(parts)-1], yaml.ScalarNode)
	*leaf = yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: value, LineComment: leaf.LineComment}

	out, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := util.WriteFileAtomic(path, out, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// mappingValue returns the value node for key in m, appending an empty
// one of the given kind if the key is missing.
func mappingValue(m *yaml.Node, key string, kind yaml.Kind) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if strings.EqualFold(m.Content[i].Value, key) {
			m.Content[i].Value = key
			return m.Content[i+1]
		}
	}
	k := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}
	v := &yaml.Node{Kind: kind}
	if kind == yaml.MappingNode {
		v.Tag = "!!map"
	}
	m.Content = append(m.Content, k, v)
	return v
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	configFile := config.ConfigFile()

	if _, err := os.Stat(configFile); err == nil && !configInitForce {
		return fmt.Errorf("config file already exists: %s (use --force to overwrite)", configFile)
	}

	if err := os.MkdirAll(config.ConfigDir(), 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	content, err := defaultConfigFile()
	if err != nil {
		return err
	}
	if err := util.WriteFileAtomic(configFile, content, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Created config file: %s\n", configFile)
	_, _ = fmt.Fprintln(out, "Edit this file to customize codestatus behavior.")
	return nil
}

var configComments = map[string]string{
	"enabled":         "Start the presence worker. When false nothing is published.",
	"steamAppId":      "Application id handed to the presence provider on init.",
	"displayTemplate": "Display token written on every cycle.",
	"dynamicKey":      "Field that receives the rendered status line.",
	"staticArgs":      "'&'-separated key=value pairs written on every cycle.",
	"groupId":         "Group id and size. Both are skipped when groupId is empty.",
	"statusTemplate":  statusTemplateComment,
	"idleText":        "Status shown when no editor is active.",
	"worker":          "Presence worker process.",
	"supervisor":      "Worker lifecycle timing, in milliseconds.",
	"watch":           "Filesystem activity source for `codestatus run --watch`.",
	"logging":         "Log output of `codestatus run`.",
	"metrics":         "Prometheus endpoint of `codestatus run`. Empty addr disables it.",
}

var statusTemplateComment = "Status line template. {name} is a placeholder, [ ... ] is dropped\n" +
	"when any placeholder inside it is empty.\n" +
	"Placeholders: " + strings.Join(editor.Variables(), ", ")

// defaultConfigFile renders the defaults as a commented YAML document.
func defaultConfigFile() ([]byte, error) {
	var root yaml.Node
	if err := root.Encode(config.Default()); err != nil {
		return nil, fmt.Errorf("failed to encode defaults: %w", err)
	}
	for i := 0; i+1 < len(root.Content); i += 2 {
		k := root.Content[i]
		if c, ok := configComments[k.Value]; ok {
			k.HeadComment = c
		}
	}

	body, err := yaml.Marshal(&root)
	if err != nil {
		return nil, fmt.Errorf("failed to encode defaults: %w", err)
	}
	header := "# codestatus configuration\n" +
		"# Environment variables override these values, e.g. " + config.EnvPrefix + "_IDLETEXT\n" +
		"# or " + config.EnvPrefix + "_WORKER_PROVIDER.\n\n"
	return append([]byte(header), body...), nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if viper.ConfigFileUsed() != "" {
		_, _ = fmt.Fprintf(out, "Current config file: %s\n", viper.ConfigFileUsed())
	} else {
		_, _ = fmt.Fprintln(out, "No config file in use (using defaults)")
	}

	_, _ = fmt.Fprintln(out)
	_, _ = fmt.Fprintln(out, "Config file search paths:")
	_, _ = fmt.Fprintf(out, "  1. %s\n", config.ConfigFile())
	_, _ = fmt.Fprintln(out, "  2. ./config.yaml")

	var env []string
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, config.EnvPrefix+"_") {
			env = append(env, kv)
		}
	}
	if len(env) > 0 {
		slices.Sort(env)
		_, _ = fmt.Fprintln(out)
		_, _ = fmt.Fprintln(out, "Environment overrides:")
		for _, kv := range env {
			_, _ = fmt.Fprintf(out, "  %s\n", kv)
		}
	}
	return nil
}

func runConfigCheck(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintln(out, styles.ErrorMsg.Render("Configuration is invalid:"))
		_, _ = fmt.Fprintln(out, err.Error())
		return err
	}

	warnings := cfg.Warnings()
	if cfg.Enabled {
		if _, err := supervisor.ResolveExecutable(cfg.Worker.Path, cfg.Worker.Dir); err != nil {
			warnings = append(warnings, "worker: "+err.Error())
		}
	}
	for _, w := range warnings {
		_, _ = fmt.Fprintln(out, styles.Warning.Render("warning: ")+w)
	}

	_, _ = fmt.Fprintln(out, styles.SuccessMsg.Render("Configuration OK"))
	return nil
}
