package supervisor

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/Iron-Ham/codestatus/internal/errors"
)

// WorkerBinary is the base name of the worker executable.
const WorkerBinary = "codestatus-worker"

// PlatformDir returns the per-platform directory name, e.g. "linux-amd64".
func PlatformDir(goos, goarch string) (string, error) {
	switch goos {
	case "linux", "darwin", "windows":
		return goos + "-" + goarch, nil
	default:
		return "", fmt.Errorf("%w: %s/%s", errors.ErrUnsupportedPlatform, goos, goarch)
	}
}

// ResolveExecutable finds the worker binary. An explicit path wins.
// Otherwise <dir>/<goos>-<goarch>/codestatus-worker is used, falling back
// to <dir>/codestatus-worker; an empty dir means the directory of the
// running executable. On unix the executable bit is ensured.
func ResolveExecutable(explicit, dir string) (string, error) {
	return resolveExecutable(runtime.GOOS, runtime.GOARCH, explicit, dir)
}

func resolveExecutable(goos, goarch, explicit, dir string) (string, error) {
	if explicit != "" {
		return ensureExecutable(goos, explicit)
	}

	platform, err := PlatformDir(goos, goarch)
	if err != nil {
		return "", err
	}

	if dir == "" {
		self, err := os.Executable()
		if err != nil {
			return "", fmt.Errorf("locate running executable: %w", err)
		}
		dir = filepath.Dir(self)
	}

	name := WorkerBinary
	if goos == "windows" {
		name += ".exe"
	}

	candidates := []string{
		filepath.Join(dir, platform, name),
		filepath.Join(dir, name),
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return ensureExecutable(goos, c)
		}
	}
	return "", fmt.Errorf("worker binary not found (looked in %s): %w", candidates[0], os.ErrNotExist)
}

func ensureExecutable(goos, path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if goos != "windows" {
		_ = os.Chmod(abs, 0o755)
	}
	return abs, nil
}
