// Package runlock keeps a single `codestatus run` per state directory. Two
// front ends would race on the override file and restart each other's
// workers, so the second one refuses to start.
package runlock

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Iron-Ham/codestatus/internal/logging"
)

// FileName is the lock file inside the state directory.
const FileName = "run.lock"

// ErrLocked is returned by Acquire while another live process holds the lock.
var ErrLocked = errors.New("codestatus is already running")

// Lock describes the process holding the state directory.
type Lock struct {
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	StartedAt time.Time `json:"started_at"`

	path   string
	logger *logging.Logger
}

// Path returns the lock file location.
func Path(dir string) string {
	return filepath.Join(dir, FileName)
}

// Acquire takes the lock in dir. A lock left behind by a dead process is
// removed first. logger may be nil.
func Acquire(dir string, logger *logging.Logger) (*Lock, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}
	path := Path(dir)

	held, err := Read(path)
	switch {
	case err == nil:
		if alive(held.PID) {
			return nil, fmt.Errorf("%w: PID %d on %s since %s", ErrLocked, held.PID, held.Hostname, held.StartedAt.Local().Format(time.DateTime))
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to remove stale lock: %w", err)
		}
		logger.Warn("stale run lock removed", "old_pid", held.PID)
	case !os.IsNotExist(err):
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to remove unreadable lock: %w", err)
		}
		logger.Warn("unreadable run lock removed", "error", err.Error())
	}

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	l := &Lock{
		PID:       os.Getpid(),
		Hostname:  hostname,
		StartedAt: time.Now(),
		path:      path,
		logger:    logger,
	}
	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode lock: %w", err)
	}

	// O_EXCL settles a race with another process starting at the same time.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			if held, readErr := Read(path); readErr == nil {
				return nil, fmt.Errorf("%w: PID %d on %s", ErrLocked, held.PID, held.Hostname)
			}
			return nil, ErrLocked
		}
		return nil, fmt.Errorf("failed to create lock file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Write(data); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("failed to write lock file: %w", err)
	}

	logger.Info("run lock acquired", "pid", l.PID, "path", path)
	return l, nil
}

// Release removes the lock file if it still belongs to this process.
// Safe to call more than once and on a nil Lock.
func (l *Lock) Release() error {
	if l == nil || l.path == "" {
		return nil
	}
	held, err := Read(l.path)
	if err != nil || held.PID != l.PID {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	if l.logger != nil {
		l.logger.Info("run lock released", "pid", l.PID)
	}
	return nil
}

// Read parses the lock file at path.
func Read(path string) (*Lock, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var l Lock
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("failed to parse lock file: %w", err)
	}
	l.path = path
	return &l, nil
}

// Holder returns the live process holding dir, if any. A stale lock
// reports false.
func Holder(dir string) (*Lock, bool) {
	l, err := Read(Path(dir))
	if err != nil || !alive(l.PID) {
		return nil, false
	}
	return l, true
}

// alive sends signal 0, which checks for the process without touching it.
func alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return p.Signal(syscall.Signal(0)) == nil
}
