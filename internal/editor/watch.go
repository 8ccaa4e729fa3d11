package editor

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"

	"github.com/Iron-Ham/codestatus/internal/logging"
)

// DefaultDebounce collapses the burst of events a single save produces.
const DefaultDebounce = 250 * time.Millisecond

// maxCountBytes bounds the files whose lines are counted.
const maxCountBytes = 8 << 20

// DefaultIgnore is matched against every path component and against the
// workspace-relative path.
func DefaultIgnore() []string {
	return []string{".git", ".hg", ".svn", "node_modules", ".DS_Store", "*.swp", "*.swx", "*~", "*.tmp", ".tmp-*"}
}

// WatchOptions configures an FSSource.
type WatchOptions struct {
	// Root is the workspace directory to watch.
	Root string
	// WorkspaceName overrides the base name of Root as projectName.
	WorkspaceName string
	// Ignore holds glob patterns; nil means DefaultIgnore.
	Ignore   []string
	Debounce time.Duration
}

// FSSource reports the most recently written file under a workspace as the
// active editor. It stands in for an editor integration when codestatus
// runs next to an editor that cannot report its state.
type FSSource struct {
	root     string
	name     string
	ignore   []glob.Glob
	debounce time.Duration
	watcher  *fsnotify.Watcher
	logger   *logging.Logger
}

// NewFSSource compiles the ignore patterns and starts watching every
// non-ignored directory under opts.Root.
func NewFSSource(opts WatchOptions, logger *logging.Logger) (*FSSource, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve watch root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("watch root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch root %s is not a directory", root)
	}

	patterns := opts.Ignore
	if patterns == nil {
		patterns = DefaultIgnore()
	}
	ignore, err := CompileIgnore(patterns)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	s := &FSSource{
		root:     root,
		name:     opts.WorkspaceName,
		ignore:   ignore,
		debounce: opts.Debounce,
		watcher:  watcher,
		logger:   logger.WithComponent("fs-watch"),
	}
	if s.debounce <= 0 {
		s.debounce = DefaultDebounce
	}
	s.watchDirRecursive(root)
	return s, nil
}

// CompileIgnore compiles glob patterns with '/' as the separator.
func CompileIgnore(patterns []string) ([]glob.Glob, error) {
	globs := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid ignore pattern %q: %w", p, err)
		}
		globs = append(globs, g)
	}
	return globs, nil
}

// Ignored reports whether the workspace-relative path rel, or any of its
// parent directories, matches an ignore pattern.
func (s *FSSource) Ignored(rel string) bool {
	return matchIgnore(s.ignore, rel)
}

func matchIgnore(globs []glob.Glob, rel string) bool {
	rel = filepath.ToSlash(rel)
	if rel == "." || rel == "" {
		return false
	}
	parts := strings.Split(rel, "/")
	for i, part := range parts {
		prefix := strings.Join(parts[:i+1], "/")
		for _, g := range globs {
			if g.Match(part) || g.Match(prefix) {
				return true
			}
		}
	}
	return false
}

func (s *FSSource) rel(path string) string {
	rel, err := filepath.Rel(s.root, path)
	if err != nil {
		return path
	}
	return rel
}

func (s *FSSource) watchDirRecursive(dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != s.root && s.Ignored(s.rel(path)) {
			return filepath.SkipDir
		}
		if err := s.watcher.Add(path); err != nil {
			s.logger.Debug("cannot watch directory", "path", path, "error", err.Error())
		}
		return nil
	})
}

// Run emits one KindActiveEditor event per quiet period, for the last file
// written during it. It returns when ctx is done or the watcher closes.
func (s *FSSource) Run(ctx context.Context, out chan<- Event) error {
	defer func() { _ = s.watcher.Close() }()

	timer := time.NewTimer(s.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	var pending string

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()

		case ev, ok := <-s.watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if s.Ignored(s.rel(ev.Name)) {
				continue
			}
			info, err := os.Stat(ev.Name)
			if err != nil {
				continue
			}
			if info.IsDir() {
				if ev.Op&fsnotify.Create != 0 {
					s.watchDirRecursive(ev.Name)
				}
				continue
			}
			pending = ev.Name
			timer.Reset(s.debounce)

		case <-timer.C:
			if pending == "" {
				continue
			}
			state := s.stateFor(pending)
			pending = ""
			select {
			case out <- Event{Kind: KindActiveEditor, State: state}:
			case <-ctx.Done():
				return ctx.Err()
			}

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("filesystem watch error", "error", err.Error())
		}
	}
}

func (s *FSSource) stateFor(path string) State {
	return State{
		Document:      DescribeFile(path),
		Workspace:     s.root,
		WorkspaceName: s.name,
	}
}

// DescribeFile builds a Document for path, guessing the language from the
// extension and counting lines for files up to a few megabytes.
func DescribeFile(path string) *Document {
	doc := &Document{Path: path, Language: LanguageFor(path)}
	info, err := os.Stat(path)
	if err != nil || info.Size() > maxCountBytes {
		return doc
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return doc
	}
	doc.LineCount = bytes.Count(data, []byte{'\n'}) + 1
	return doc
}
