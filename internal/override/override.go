// Package override persists the manual status override so that
// `codestatus set` can change the status of a running `codestatus run`.
package override

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Iron-Ham/codestatus/internal/logging"
	"github.com/Iron-Ham/codestatus/internal/util"
)

// FileName is the override file inside the state directory.
const FileName = "override"

// DefaultPath returns the override file location.
func DefaultPath() string {
	return filepath.Join(util.StateDir(), FileName)
}

// Normalize returns the override for input: whitespace-only input clears
// it (""), anything else is kept verbatim.
func Normalize(input string) string {
	if strings.TrimSpace(input) == "" {
		return ""
	}
	return input
}

// Store reads and writes the override file.
type Store struct {
	path string
}

// NewStore returns a store for path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the file location.
func (s *Store) Path() string {
	return s.path
}

// Load returns the current override, or "" when none is set.
func (s *Store) Load() (string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("read override: %w", err)
	}
	return Normalize(strings.TrimRight(string(data), "\r\n")), nil
}

// Set stores text. Whitespace-only text clears the override.
func (s *Store) Set(text string) error {
	text = Normalize(text)
	if text == "" {
		return s.Clear()
	}
	return util.WriteFileAtomic(s.path, []byte(text+"\n"), 0o600)
}

// Clear removes the override.
func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("clear override: %w", err)
	}
	return nil
}

// Watch calls fn with the override every time it changes, starting with
// the value at the time of the call. It blocks until ctx is done.
//
// The parent directory is watched rather than the file so that atomic
// replacement and removal are both seen.
func (s *Store) Watch(ctx context.Context, debounce time.Duration, logger *logging.Logger, fn func(text string)) error {
	if logger == nil {
		logger = logging.NopLogger()
	}
	logger = logger.WithComponent("override")

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create override directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch override directory: %w", err)
	}

	current, err := s.Load()
	if err != nil {
		logger.Warn("failed to load override", "error", err.Error())
	}
	fn(current)

	if debounce <= 0 {
		debounce = 50 * time.Millisecond
	}
	timer := time.NewTimer(debounce)
	timer.Stop()

	name := filepath.Base(s.path)
	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != name {
				continue
			}
			timer.Reset(debounce)

		case <-timer.C:
			text, err := s.Load()
			if err != nil {
				logger.Warn("failed to load override", "error", err.Error())
				continue
			}
			if text == current {
				continue
			}
			current = text
			logger.Info("override changed", "set", text != "")
			fn(text)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("override watch error", "error", err.Error())
		}
	}
}
