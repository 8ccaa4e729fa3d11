// Package util provides small helpers shared across packages.
package util

import (
	"os"
	"path/filepath"
)

// AppName is the directory name used under the XDG base directories.
const AppName = "codestatus"

// StateDir returns the directory for runtime state such as the presence
// document and the manual override file.
func StateDir() string {
	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		return filepath.Join(xdg, AppName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "." + AppName
	}
	return filepath.Join(home, ".local", "state", AppName)
}

// DefaultPresenceFile is where the file provider writes when no -state path
// is given.
func DefaultPresenceFile() string {
	return filepath.Join(StateDir(), "presence.yaml")
}
