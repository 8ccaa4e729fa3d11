package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Iron-Ham/codestatus/internal/editor"
	"github.com/Iron-Ham/codestatus/internal/logging"
	"github.com/Iron-Ham/codestatus/internal/presence"
	"github.com/Iron-Ham/codestatus/internal/supervisor"
	"github.com/Iron-Ham/codestatus/internal/util"
	"github.com/Iron-Ham/codestatus/internal/worker"
)

// EnvPrefix prefixes environment overrides, e.g. CODESTATUS_IDLETEXT or
// CODESTATUS_WORKER_PROVIDER.
const EnvPrefix = "CODESTATUS"

// Config represents the complete codestatus configuration.
//
// The top-level keys keep the names editor integrations already use, so a
// settings block can be copied over unchanged.
type Config struct {
	// Enabled turns the worker on. When false no worker is started.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// SteamAppID is passed to the presence provider on init.
	SteamAppID string `mapstructure:"steamAppId" yaml:"steamAppId"`
	// DisplayTemplate is the display token written on every cycle.
	DisplayTemplate string `mapstructure:"displayTemplate" yaml:"displayTemplate"`
	// DynamicKey is the field that receives each status line.
	DynamicKey string `mapstructure:"dynamicKey" yaml:"dynamicKey"`
	// StaticArgs holds '&'-separated k=v pairs written on every cycle.
	StaticArgs string `mapstructure:"staticArgs" yaml:"staticArgs"`
	// GroupID and GroupSize are written only when GroupID is non-empty.
	GroupID   string `mapstructure:"groupId" yaml:"groupId"`
	GroupSize string `mapstructure:"groupSize" yaml:"groupSize"`
	// StatusTemplate renders the editor state into the status line.
	StatusTemplate string `mapstructure:"statusTemplate" yaml:"statusTemplate"`
	// IdleText is sent when no editor is active.
	IdleText string `mapstructure:"idleText" yaml:"idleText"`

	Worker     WorkerConfig     `mapstructure:"worker" yaml:"worker"`
	Supervisor SupervisorConfig `mapstructure:"supervisor" yaml:"supervisor"`
	Watch      WatchConfig      `mapstructure:"watch" yaml:"watch"`
	Logging    LoggingConfig    `mapstructure:"logging" yaml:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics" yaml:"metrics"`
}

// WorkerConfig controls the worker process.
type WorkerConfig struct {
	// Path is an explicit worker executable. Empty means search Dir.
	Path string `mapstructure:"path" yaml:"path"`
	// Dir holds <goos>-<goarch>/codestatus-worker. Empty means the
	// directory of the running executable.
	Dir string `mapstructure:"dir" yaml:"dir"`
	// Provider is the presence backend: "memory", "file" or "log".
	Provider string `mapstructure:"provider" yaml:"provider"`
	// StateFile is where the file provider writes. Empty means the default.
	StateFile string `mapstructure:"state_file" yaml:"state_file"`
	// RetryMs re-applies a partially failed cycle once after this delay
	// (0 = disabled).
	RetryMs int `mapstructure:"retry_ms" yaml:"retry_ms"`
	// MetricsAddr makes the worker serve Prometheus metrics.
	MetricsAddr string `mapstructure:"metrics_addr" yaml:"metrics_addr"`
}

// SupervisorConfig controls worker lifecycle timing.
type SupervisorConfig struct {
	RestartDelayMs        int `mapstructure:"restart_delay_ms" yaml:"restart_delay_ms"`
	GracefulStopTimeoutMs int `mapstructure:"graceful_stop_timeout_ms" yaml:"graceful_stop_timeout_ms"`
}

// WatchConfig controls the filesystem activity source used by
// `codestatus run --watch`.
type WatchConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Root is the workspace to watch. Empty means the working directory.
	Root string `mapstructure:"root" yaml:"root"`
	// Ignore holds glob patterns matched against path components.
	Ignore     []string `mapstructure:"ignore" yaml:"ignore"`
	DebounceMs int      `mapstructure:"debounce_ms" yaml:"debounce_ms"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `mapstructure:"level" yaml:"level"`
	// MaxSizeMB rotates the log file at this size (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	// MaxBackups is the number of rotated files kept (default: 3)
	MaxBackups int `mapstructure:"max_backups" yaml:"max_backups"`
	// Compress gzips rotated files
	Compress bool `mapstructure:"compress" yaml:"compress"`
}

// MetricsConfig controls the front-end Prometheus endpoint.
type MetricsConfig struct {
	// Addr is the listen address, e.g. "127.0.0.1:9464". Empty disables.
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Enabled:         true,
		SteamAppID:      "480",
		DisplayTemplate: "#Status_Airport",
		DynamicKey:      "max_players",
		StaticArgs:      "players=/",
		GroupID:         "1",
		GroupSize:       "1",
		StatusTemplate:  "[{projectName} | ]正在编写 {folderName}/{fileName}",
		IdleText:        "正在摸鱼🐟",
		Worker: WorkerConfig{
			Provider: worker.DefaultProvider,
		},
		Supervisor: SupervisorConfig{
			RestartDelayMs:        int(supervisor.DefaultRestartDelay / time.Millisecond),
			GracefulStopTimeoutMs: int(supervisor.DefaultGracefulStopTimeout / time.Millisecond),
		},
		Watch: WatchConfig{
			Enabled:    false,
			Ignore:     editor.DefaultIgnore(),
			DebounceMs: int(editor.DefaultDebounce / time.Millisecond),
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			Compress:   false,
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	viper.SetDefault("enabled", defaults.Enabled)
	viper.SetDefault("steamAppId", defaults.SteamAppID)
	viper.SetDefault("displayTemplate", defaults.DisplayTemplate)
	viper.SetDefault("dynamicKey", defaults.DynamicKey)
	viper.SetDefault("staticArgs", defaults.StaticArgs)
	viper.SetDefault("groupId", defaults.GroupID)
	viper.SetDefault("groupSize", defaults.GroupSize)
	viper.SetDefault("statusTemplate", defaults.StatusTemplate)
	viper.SetDefault("idleText", defaults.IdleText)

	viper.SetDefault("worker.path", defaults.Worker.Path)
	viper.SetDefault("worker.dir", defaults.Worker.Dir)
	viper.SetDefault("worker.provider", defaults.Worker.Provider)
	viper.SetDefault("worker.state_file", defaults.Worker.StateFile)
	viper.SetDefault("worker.retry_ms", defaults.Worker.RetryMs)
	viper.SetDefault("worker.metrics_addr", defaults.Worker.MetricsAddr)

	viper.SetDefault("supervisor.restart_delay_ms", defaults.Supervisor.RestartDelayMs)
	viper.SetDefault("supervisor.graceful_stop_timeout_ms", defaults.Supervisor.GracefulStopTimeoutMs)

	viper.SetDefault("watch.enabled", defaults.Watch.Enabled)
	viper.SetDefault("watch.root", defaults.Watch.Root)
	viper.SetDefault("watch.ignore", defaults.Watch.Ignore)
	viper.SetDefault("watch.debounce_ms", defaults.Watch.DebounceMs)

	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	viper.SetDefault("logging.compress", defaults.Logging.Compress)

	viper.SetDefault("metrics.addr", defaults.Metrics.Addr)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, util.AppName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "." + util.AppName
	}
	return filepath.Join(home, ".config", util.AppName)
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// StateDir returns the directory holding logs, the override file and the
// file provider's document.
func StateDir() string {
	return util.StateDir()
}

// ParseStaticArgs splits s on '&' into static fields. Empty entries are
// skipped; entries without exactly one '=' are dropped and returned in
// dropped. A repeated key keeps its first position and takes the last value.
func ParseStaticArgs(s string) (fields []presence.Field, dropped []string) {
	for entry := range strings.SplitSeq(s, "&") {
		if strings.TrimSpace(entry) == "" {
			continue
		}
		f, ok := worker.ParseStatic(entry)
		if !ok {
			dropped = append(dropped, entry)
			continue
		}
		fields = worker.MergeStatic(fields, f)
	}
	return fields, dropped
}

// WorkerConfig derives the worker configuration.
func (c *Config) WorkerConfig() worker.Config {
	static, _ := ParseStaticArgs(c.StaticArgs)
	provider := c.Worker.Provider
	if provider == "" {
		provider = worker.DefaultProvider
	}
	return worker.Config{
		AppID:       c.SteamAppID,
		Template:    c.DisplayTemplate,
		DynamicKey:  c.DynamicKey,
		GroupID:     c.GroupID,
		GroupSize:   c.GroupSize,
		Static:      static,
		Provider:    provider,
		StateFile:   c.Worker.StateFile,
		Retry:       time.Duration(c.Worker.RetryMs) * time.Millisecond,
		MetricsAddr: c.Worker.MetricsAddr,
		LogLevel:    logging.ParseLevel(c.Logging.Level),
	}
}

// SupervisorSettings derives everything the supervisor reads.
func (c *Config) SupervisorSettings() supervisor.Settings {
	return supervisor.Settings{
		Enabled:             c.Enabled,
		Worker:              c.WorkerConfig(),
		StatusTemplate:      c.StatusTemplate,
		IdleText:            c.IdleText,
		WorkerPath:          c.Worker.Path,
		WorkerDir:           c.Worker.Dir,
		RestartDelay:        time.Duration(c.Supervisor.RestartDelayMs) * time.Millisecond,
		GracefulStopTimeout: time.Duration(c.Supervisor.GracefulStopTimeoutMs) * time.Millisecond,
	}
}

// WatchOptions derives the filesystem source options. An empty root falls
// back to the working directory.
func (c *Config) WatchOptions() (editor.WatchOptions, error) {
	root := c.Watch.Root
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return editor.WatchOptions{}, err
		}
		root = wd
	}
	return editor.WatchOptions{
		Root:     root,
		Ignore:   c.Watch.Ignore,
		Debounce: time.Duration(c.Watch.DebounceMs) * time.Millisecond,
	}, nil
}

// RotationConfig derives the log rotation settings.
func (c *Config) RotationConfig() logging.RotationConfig {
	return logging.RotationConfig{
		MaxSizeMB:  c.Logging.MaxSizeMB,
		MaxBackups: c.Logging.MaxBackups,
		Compress:   c.Logging.Compress,
	}
}

// PresenceChanged reports whether any of the keys an editor integration
// recognizes differ between c and o.
func (c *Config) PresenceChanged(o *Config) bool {
	return c.Enabled != o.Enabled ||
		c.SteamAppID != o.SteamAppID ||
		c.DisplayTemplate != o.DisplayTemplate ||
		c.DynamicKey != o.DynamicKey ||
		c.StaticArgs != o.StaticArgs ||
		c.GroupID != o.GroupID ||
		c.GroupSize != o.GroupSize ||
		c.StatusTemplate != o.StatusTemplate ||
		c.IdleText != o.IdleText
}

// Equal reports whether c and o are the same configuration.
func (c *Config) Equal(o *Config) bool {
	return !c.PresenceChanged(o) &&
		c.Worker == o.Worker &&
		c.Supervisor == o.Supervisor &&
		c.Watch.Enabled == o.Watch.Enabled &&
		c.Watch.Root == o.Watch.Root &&
		slices.Equal(c.Watch.Ignore, o.Watch.Ignore) &&
		c.Watch.DebounceMs == o.Watch.DebounceMs &&
		c.Logging == o.Logging &&
		c.Metrics == o.Metrics
}
