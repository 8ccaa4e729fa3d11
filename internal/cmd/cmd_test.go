package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/x/ansi"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/codestatus/internal/config"
	"github.com/Iron-Ham/codestatus/internal/logging"
	"github.com/Iron-Ham/codestatus/internal/override"
	"github.com/Iron-Ham/codestatus/internal/presence"
	"github.com/Iron-Ham/codestatus/internal/runlock"
	"github.com/Iron-Ham/codestatus/internal/util"
)

// setupTestEnvironment points every XDG directory at a fresh temp dir and
// clears state left behind by earlier commands.
func setupTestEnvironment(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_STATE_HOME", filepath.Join(dir, "state"))
	viper.Reset()
	t.Cleanup(viper.Reset)
	return dir
}

func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// executeCommand runs the root command with args and returns captured output
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	resetFlags(rootCmd)
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return ansi.Strip(buf.String()), err
}

func TestRootCommand(t *testing.T) {
	assert.Equal(t, "codestatus", rootCmd.Use)

	cmdMap := make(map[string]*cobra.Command)
	for _, c := range rootCmd.Commands() {
		cmdMap[c.Name()] = c
	}
	for _, expected := range []string{"run", "render", "set", "status", "config", "logs", "version", "worker"} {
		assert.Contains(t, cmdMap, expected)
	}
	if w, ok := cmdMap["worker"]; ok {
		assert.True(t, w.Hidden)
		assert.True(t, w.DisableFlagParsing)
	}
}

func TestVersionCommand(t *testing.T) {
	setupTestEnvironment(t)

	out, err := executeCommand(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "codestatus dev"), out)
}

func TestRenderCommand(t *testing.T) {
	dir := setupTestEnvironment(t)

	workspace := filepath.Join(dir, "app")
	file := filepath.Join(workspace, "src", "main.go")
	require.NoError(t, os.MkdirAll(filepath.Dir(file), 0o755))
	require.NoError(t, os.WriteFile(file, []byte("package main\n\nfunc main() {}"), 0o644))

	t.Run("template", func(t *testing.T) {
		out, err := executeCommand(t, "render",
			"--file", file,
			"--workspace", workspace,
			"--template", "{projectName}: {folderName}/{fileName} ({lineCount})")
		require.NoError(t, err)
		assert.Equal(t, "app: src/main.go (3)\n", out)
	})

	t.Run("default template", func(t *testing.T) {
		out, err := executeCommand(t, "render", "--file", file, "--workspace", workspace)
		require.NoError(t, err)
		assert.Equal(t, "app | 正在编写 src/main.go\n", out)
	})

	t.Run("optional section dropped", func(t *testing.T) {
		out, err := executeCommand(t, "render", "--file", file)
		require.NoError(t, err)
		assert.Equal(t, "正在编写 src/main.go\n", out)
	})

	t.Run("idle", func(t *testing.T) {
		out, err := executeCommand(t, "render")
		require.NoError(t, err)
		assert.Equal(t, "正在摸鱼🐟\n", out)
	})

	t.Run("verbose", func(t *testing.T) {
		out, err := executeCommand(t, "render", "-v", "--file", file, "--workspace", workspace, "--workspace-name", "Shop")
		require.NoError(t, err)
		assert.Contains(t, out, "Shop | 正在编写 src/main.go")
		assert.Contains(t, out, "mode")
		assert.Contains(t, out, "language")
		assert.Contains(t, out, "src/main.go")
	})

	t.Run("manual status wins", func(t *testing.T) {
		require.NoError(t, override.NewStore(override.DefaultPath()).Set("in a meeting"))
		t.Cleanup(func() { _ = override.NewStore(override.DefaultPath()).Clear() })

		out, err := executeCommand(t, "render", "--file", file)
		require.NoError(t, err)
		assert.Equal(t, "in a meeting\n", out)

		out, err = executeCommand(t, "render", "--file", file, "--ignore-override")
		require.NoError(t, err)
		assert.Equal(t, "正在编写 src/main.go\n", out)
	})
}

func TestSetCommand(t *testing.T) {
	setupTestEnvironment(t)
	store := override.NewStore(override.DefaultPath())

	out, err := executeCommand(t, "set", "deep", "work")
	require.NoError(t, err)
	assert.Contains(t, out, "manual status set: deep work")

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "deep work", got)

	out, err = executeCommand(t, "set", "--clear")
	require.NoError(t, err)
	assert.Contains(t, out, "automatic status restored")

	got, err = store.Load()
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = executeCommand(t, "set", "--clear", "text")
	assert.Error(t, err)
}

func TestStatusCommand(t *testing.T) {
	setupTestEnvironment(t)

	t.Run("never published", func(t *testing.T) {
		out, err := executeCommand(t, "status")
		require.NoError(t, err)
		assert.Contains(t, out, "never published")
		assert.Contains(t, out, "not set")
		assert.Contains(t, out, "not running")
	})

	t.Run("online document", func(t *testing.T) {
		p := presence.NewFileProvider(util.DefaultPresenceFile())
		require.NoError(t, p.Init("480"))
		require.NoError(t, p.Publish("max_players", presence.Set("coding main.go")))
		require.NoError(t, p.Publish("steam_display", presence.Set("#Status_Airport")))

		out, err := executeCommand(t, "status")
		require.NoError(t, err)
		assert.Contains(t, out, "online")
		assert.Contains(t, out, "app 480")
		assert.Contains(t, out, "coding main.go")
		assert.Contains(t, out, "steam_display")

		lock, err := runlock.Acquire(config.StateDir(), nil)
		require.NoError(t, err)
		out, err = executeCommand(t, "status")
		require.NoError(t, err)
		assert.Contains(t, out, fmt.Sprintf("running (pid %d", os.Getpid()))
		require.NoError(t, lock.Release())

		require.NoError(t, p.Shutdown())
		out, err = executeCommand(t, "status")
		require.NoError(t, err)
		assert.Contains(t, out, "offline")
	})
}

func TestConfigInitCommand(t *testing.T) {
	setupTestEnvironment(t)

	out, err := executeCommand(t, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, config.ConfigFile())

	data, err := os.ReadFile(config.ConfigFile())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "# codestatus configuration"))
	assert.Contains(t, string(data), "# Placeholders: fileName")

	var cfg config.Config
	require.NoError(t, yaml.Unmarshal(data, &cfg))
	def := config.Default()
	assert.True(t, def.Equal(&cfg), "init should write the defaults, got %+v", cfg)

	_, err = executeCommand(t, "config", "init")
	assert.ErrorContains(t, err, "already exists")

	_, err = executeCommand(t, "config", "init", "--force")
	assert.NoError(t, err)
}

func TestConfigSetCommand(t *testing.T) {
	setupTestEnvironment(t)

	_, err := executeCommand(t, "config", "init")
	require.NoError(t, err)

	out, err := executeCommand(t, "config", "set", "idleText", "away from keyboard")
	require.NoError(t, err)
	assert.Contains(t, out, "Set idleText = away from keyboard")

	_, err = executeCommand(t, "config", "set", "worker.retry_ms", "250")
	require.NoError(t, err)

	_, err = executeCommand(t, "config", "set", "STEAMAPPID", "570")
	require.NoError(t, err)

	data, err := os.ReadFile(config.ConfigFile())
	require.NoError(t, err)
	assert.Contains(t, string(data), "# codestatus configuration", "comments should survive")
	assert.Contains(t, string(data), "steamAppId:", "key case should be kept")

	var cfg config.Config
	require.NoError(t, yaml.Unmarshal(data, &cfg))
	assert.Equal(t, "away from keyboard", cfg.IdleText)
	assert.Equal(t, 250, cfg.Worker.RetryMs)
	assert.Equal(t, "570", cfg.SteamAppID)

	t.Run("errors", func(t *testing.T) {
		tests := []struct {
			name string
			args []string
			want string
		}{
			{"unknown key", []string{"nope", "1"}, "unknown config key"},
			{"bad int", []string{"worker.retry_ms", "soon"}, "expected an integer"},
			{"bad bool", []string{"enabled", "maybe"}, "expected true or false"},
			{"invalid result", []string{"worker.provider", "carrier-pigeon"}, "refusing to write"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := executeCommand(t, append([]string{"config", "set"}, tt.args...)...)
				assert.ErrorContains(t, err, tt.want)
			})
		}

		after, err := os.ReadFile(config.ConfigFile())
		require.NoError(t, err)
		assert.Equal(t, string(data), string(after), "failed sets must not touch the file")
	})

	t.Run("list", func(t *testing.T) {
		out, err := executeCommand(t, "config", "set", "--list")
		require.NoError(t, err)
		assert.Contains(t, out, "statusTemplate")
		assert.Contains(t, out, "supervisor.graceful_stop_timeout_ms")
	})
}

func TestConfigSetCommand_NoFile(t *testing.T) {
	setupTestEnvironment(t)

	_, err := executeCommand(t, "config", "set", "logging.level", "debug")
	require.NoError(t, err)

	data, err := os.ReadFile(config.ConfigFile())
	require.NoError(t, err)
	assert.Equal(t, "logging:\n    level: debug\n", string(data))
}

func TestConfigCheckCommand(t *testing.T) {
	setupTestEnvironment(t)

	out, err := executeCommand(t, "config", "check")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration OK")

	require.NoError(t, os.MkdirAll(config.ConfigDir(), 0o750))
	bad := "staticArgs: \"players=/&broken\"\nlogging:\n  max_size_mb: 0\n"
	require.NoError(t, os.WriteFile(config.ConfigFile(), []byte(bad), 0o600))

	out, err = executeCommand(t, "config", "check")
	require.Error(t, err)
	assert.Contains(t, out, "logging.max_size_mb")

	warn := "staticArgs: \"players=/&broken\"\nstatusTemplate: \"{fileName} {branch}\"\n"
	require.NoError(t, os.WriteFile(config.ConfigFile(), []byte(warn), 0o600))

	out, err = executeCommand(t, "config", "check")
	require.NoError(t, err)
	assert.Contains(t, out, `"broken"`)
	assert.Contains(t, out, "branch")
	assert.Contains(t, out, "Configuration OK")
}

func TestConfigShowCommand(t *testing.T) {
	setupTestEnvironment(t)

	out, err := executeCommand(t, "config")
	require.NoError(t, err)
	assert.Contains(t, out, "(none - using defaults)")
	assert.Contains(t, out, "steamAppId: \"480\"")
	assert.Contains(t, out, "provider: file")
}

func TestSelectEntries(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	entries := []logging.LogEntry{
		{Timestamp: base, Level: logging.LevelDebug, Message: "spawned worker"},
		{Timestamp: base.Add(time.Second), Level: logging.LevelInfo, Message: "worker restart scheduled"},
		{Timestamp: base.Add(2 * time.Second), Level: logging.LevelWarn, Message: "worker exited", Component: "supervisor"},
		{Timestamp: base.Add(3 * time.Second), Level: logging.LevelError, Message: "spawn failed", Component: "supervisor"},
	}

	got := selectEntries(entries, logging.LogFilter{Level: logging.LevelInfo}, nil, 0)
	assert.Len(t, got, 3)

	got = selectEntries(entries, logging.LogFilter{}, regexp.MustCompile("restart|exited"), 0)
	require.Len(t, got, 2)
	assert.Equal(t, "worker exited", got[1].Message)

	got = selectEntries(entries, logging.LogFilter{Component: "supervisor"}, nil, 1)
	require.Len(t, got, 1)
	assert.Equal(t, "spawn failed", got[0].Message)

	assert.Len(t, entries, 4, "input must not be modified")
}

func TestBuildLogFilter(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	t.Cleanup(func() { logsLevel, logsSince = "", "" })

	logsLevel, logsSince = "warn", "30m"
	f, err := buildLogFilter(now)
	require.NoError(t, err)
	assert.Equal(t, logging.LevelWarn, f.Level)
	assert.Equal(t, now.Add(-30*time.Minute), f.StartTime)

	logsLevel, logsSince = "loud", ""
	_, err = buildLogFilter(now)
	assert.Error(t, err)

	logsLevel, logsSince = "", "yesterday"
	_, err = buildLogFilter(now)
	assert.Error(t, err)
}

func TestLatest(t *testing.T) {
	ch := make(chan int, 1)
	latest(ch, 1)
	latest(ch, 2)
	latest(ch, 3)

	assert.Equal(t, 3, <-ch)
	select {
	case v := <-ch:
		t.Fatalf("unexpected extra value %d", v)
	default:
	}
}
