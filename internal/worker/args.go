package worker

import (
	"slices"
	"strings"
	"time"

	"github.com/Iron-Ham/codestatus/internal/presence"
)

// Defaults for the argv flags.
const (
	DefaultAppID      = "480"
	DefaultTemplate   = "#Status"
	DefaultDynamicKey = "status"
	DefaultProvider   = ProviderFile
)

// Provider kinds accepted by -provider.
const (
	ProviderMemory = "memory"
	ProviderFile   = "file"
	ProviderLog    = "log"
)

// ValidProviders returns the accepted -provider values.
func ValidProviders() []string {
	return []string{ProviderMemory, ProviderFile, ProviderLog}
}

// Config is the worker configuration. It is parsed once from argv and not
// modified afterwards.
type Config struct {
	AppID      string
	Template   string
	DynamicKey string
	GroupID    string
	GroupSize  string
	Static     []presence.Field

	// Provider selects the presence backend.
	Provider string
	// StateFile is the document written by the file provider. Empty means
	// the default location under the state directory.
	StateFile string
	// Retry, when positive, re-applies the last line once after a cycle
	// with failures unless a newer line arrives first.
	Retry time.Duration
	// MetricsAddr serves Prometheus metrics when non-empty.
	MetricsAddr string
	LogLevel    string
}

// DefaultConfig returns the configuration used when no flags are given.
func DefaultConfig() Config {
	return Config{
		AppID:      DefaultAppID,
		Template:   DefaultTemplate,
		DynamicKey: DefaultDynamicKey,
		Provider:   DefaultProvider,
		LogLevel:   "INFO",
	}
}

// Equal reports whether c and o produce the same worker argv.
func (c Config) Equal(o Config) bool {
	return c.AppID == o.AppID &&
		c.Template == o.Template &&
		c.DynamicKey == o.DynamicKey &&
		c.GroupID == o.GroupID &&
		c.GroupSize == o.GroupSize &&
		slices.Equal(c.Static, o.Static) &&
		c.Provider == o.Provider &&
		c.StateFile == o.StateFile &&
		c.Retry == o.Retry &&
		c.MetricsAddr == o.MetricsAddr &&
		c.LogLevel == o.LogLevel
}

// Fields returns what the publisher writes on every cycle.
func (c Config) Fields() presence.Fields {
	return presence.Fields{
		Template:   c.Template,
		DynamicKey: c.DynamicKey,
		GroupID:    c.GroupID,
		GroupSize:  c.GroupSize,
		Static:     c.Static,
	}
}

// ParseArgs parses worker argv. It never fails: unknown flags, flags
// missing their value and malformed values are skipped and reported in
// the returned notes so the caller can log them.
//
// A -static value must contain exactly one '='. A repeated static key keeps
// its first position and takes the last value.
func ParseArgs(args []string) (Config, []string) {
	cfg := DefaultConfig()
	var notes []string

	for i := 0; i < len(args); i++ {
		flag := args[i]
		if !isKnownFlag(flag) {
			notes = append(notes, "ignoring unknown argument "+flag)
			continue
		}
		if i+1 >= len(args) {
			notes = append(notes, "ignoring "+flag+": missing value")
			break
		}
		i++
		value := args[i]

		switch flag {
		case "-app":
			cfg.AppID = value
		case "-template":
			cfg.Template = value
		case "-key":
			cfg.DynamicKey = value
		case "-group":
			cfg.GroupID = value
		case "-groupsize":
			cfg.GroupSize = value
		case "-static":
			field, ok := ParseStatic(value)
			if !ok {
				notes = append(notes, "dropping malformed -static "+value)
				continue
			}
			cfg.Static = MergeStatic(cfg.Static, field)
		case "-provider":
			cfg.Provider = value
		case "-state":
			cfg.StateFile = value
		case "-retry":
			d, err := time.ParseDuration(value)
			if err != nil || d < 0 {
				notes = append(notes, "ignoring invalid -retry "+value)
				continue
			}
			cfg.Retry = d
		case "-metrics":
			cfg.MetricsAddr = value
		case "-log-level":
			cfg.LogLevel = value
		}
	}

	return cfg, notes
}

var knownFlags = map[string]bool{
	"-app": true, "-template": true, "-key": true, "-group": true,
	"-groupsize": true, "-static": true, "-provider": true, "-state": true,
	"-retry": true, "-metrics": true, "-log-level": true,
}

func isKnownFlag(s string) bool {
	return knownFlags[s]
}

// ParseStatic parses one k=v static entry. It must contain exactly one '='.
func ParseStatic(s string) (presence.Field, bool) {
	if strings.Count(s, "=") != 1 {
		return presence.Field{}, false
	}
	k, v, _ := strings.Cut(s, "=")
	return presence.Field{Key: k, Value: v}, true
}

// MergeStatic replaces the value of an existing key in place or appends.
func MergeStatic(fields []presence.Field, f presence.Field) []presence.Field {
	for i := range fields {
		if fields[i].Key == f.Key {
			fields[i].Value = f.Value
			return fields
		}
	}
	return append(fields, f)
}

// Args renders c as worker argv. ParseArgs(c.Args()) yields c again for
// every field Args emits.
func (c Config) Args() []string {
	args := []string{
		"-app", c.AppID,
		"-template", c.Template,
		"-key", c.DynamicKey,
	}
	for _, f := range c.Static {
		args = append(args, "-static", f.Key+"="+f.Value)
	}
	args = append(args,
		"-group", c.GroupID,
		"-groupsize", c.GroupSize,
	)

	if c.Provider != "" && c.Provider != DefaultProvider {
		args = append(args, "-provider", c.Provider)
	}
	if c.StateFile != "" {
		args = append(args, "-state", c.StateFile)
	}
	if c.Retry > 0 {
		args = append(args, "-retry", c.Retry.String())
	}
	if c.MetricsAddr != "" {
		args = append(args, "-metrics", c.MetricsAddr)
	}
	if c.LogLevel != "" {
		args = append(args, "-log-level", c.LogLevel)
	}
	return args
}
