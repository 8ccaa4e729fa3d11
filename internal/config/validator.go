package config

import (
	"fmt"
	"net"
	"slices"
	"strconv"
	"strings"

	"github.com/Iron-Ham/codestatus/internal/editor"
	"github.com/Iron-Ham/codestatus/internal/errors"
	"github.com/Iron-Ham/codestatus/internal/template"
	"github.com/Iron-Ham/codestatus/internal/worker"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "worker.provider")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Unwrap lets callers match any validation failure with
// errors.Is(err, errors.ErrInvalidConfig).
func (e ValidationErrors) Unwrap() error {
	return errors.ErrInvalidConfig
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

const maxLogSizeMB = 1000

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError

	errs = append(errs, c.validatePresence()...)
	errs = append(errs, c.validateWorker()...)
	errs = append(errs, c.validateSupervisor()...)
	errs = append(errs, c.validateWatch()...)
	errs = append(errs, c.validateLogging()...)
	errs = append(errs, c.validateMetrics()...)

	return errs
}

func (c *Config) validatePresence() []ValidationError {
	var errs []ValidationError

	if strings.TrimSpace(c.SteamAppID) == "" {
		errs = append(errs, ValidationError{
			Field:   "steamAppId",
			Value:   c.SteamAppID,
			Message: "must not be empty",
		})
	}
	if strings.TrimSpace(c.DynamicKey) == "" {
		errs = append(errs, ValidationError{
			Field:   "dynamicKey",
			Value:   c.DynamicKey,
			Message: "must not be empty",
		})
	}
	if c.GroupSize != "" {
		if n, err := strconv.Atoi(c.GroupSize); err != nil || n < 1 {
			errs = append(errs, ValidationError{
				Field:   "groupSize",
				Value:   c.GroupSize,
				Message: "must be a positive integer",
			})
		}
	}

	return errs
}

func (c *Config) validateWorker() []ValidationError {
	var errs []ValidationError

	if c.Worker.Provider != "" && !slices.Contains(worker.ValidProviders(), c.Worker.Provider) {
		errs = append(errs, ValidationError{
			Field:   "worker.provider",
			Value:   c.Worker.Provider,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(worker.ValidProviders(), ", ")),
		})
	}
	if c.Worker.RetryMs < 0 {
		errs = append(errs, ValidationError{
			Field:   "worker.retry_ms",
			Value:   c.Worker.RetryMs,
			Message: "must be non-negative",
		})
	}
	if err := validateAddr(c.Worker.MetricsAddr); err != nil {
		errs = append(errs, ValidationError{
			Field:   "worker.metrics_addr",
			Value:   c.Worker.MetricsAddr,
			Message: err.Error(),
		})
	}

	return errs
}

func (c *Config) validateSupervisor() []ValidationError {
	var errs []ValidationError

	if c.Supervisor.RestartDelayMs < 0 {
		errs = append(errs, ValidationError{
			Field:   "supervisor.restart_delay_ms",
			Value:   c.Supervisor.RestartDelayMs,
			Message: "must be non-negative",
		})
	}
	if c.Supervisor.GracefulStopTimeoutMs < 0 {
		errs = append(errs, ValidationError{
			Field:   "supervisor.graceful_stop_timeout_ms",
			Value:   c.Supervisor.GracefulStopTimeoutMs,
			Message: "must be non-negative",
		})
	}

	return errs
}

func (c *Config) validateWatch() []ValidationError {
	var errs []ValidationError

	if c.Watch.DebounceMs < 0 {
		errs = append(errs, ValidationError{
			Field:   "watch.debounce_ms",
			Value:   c.Watch.DebounceMs,
			Message: "must be non-negative",
		})
	}
	for i, pattern := range c.Watch.Ignore {
		if _, err := editor.CompileIgnore([]string{pattern}); err != nil {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("watch.ignore[%d]", i),
				Value:   pattern,
				Message: "invalid glob pattern",
			})
		}
	}

	return errs
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errs []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	if c.Logging.MaxSizeMB <= 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be positive",
		})
	}
	if c.Logging.MaxSizeMB > maxLogSizeMB {
		errs = append(errs, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: fmt.Sprintf("exceeds maximum of %dMB", maxLogSizeMB),
		})
	}

	if c.Logging.MaxBackups < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errs
}

func (c *Config) validateMetrics() []ValidationError {
	if err := validateAddr(c.Metrics.Addr); err != nil {
		return []ValidationError{{
			Field:   "metrics.addr",
			Value:   c.Metrics.Addr,
			Message: err.Error(),
		}}
	}
	return nil
}

func validateAddr(addr string) error {
	if addr == "" {
		return nil
	}
	if _, port, err := net.SplitHostPort(addr); err != nil || port == "" {
		return errors.New("must be host:port")
	}
	return nil
}

// Warnings returns problems that do not stop codestatus from running but
// probably are not what the user meant: dropped static entries and
// suspicious status template placeholders.
func (c *Config) Warnings() []string {
	var warnings []string

	_, dropped := ParseStaticArgs(c.StaticArgs)
	for _, entry := range dropped {
		warnings = append(warnings, fmt.Sprintf("staticArgs: entry %q is dropped (needs exactly one '=')", entry))
	}
	for _, issue := range template.Lint(c.StatusTemplate, editor.Variables()) {
		warnings = append(warnings, "statusTemplate: "+issue.String())
	}
	if c.GroupID == "" && c.GroupSize != "" {
		warnings = append(warnings, "groupSize is ignored while groupId is empty")
	}

	return warnings
}
