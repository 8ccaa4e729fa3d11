// Package app runs the host-side event loop: it feeds editor activity,
// configuration reloads and manual override changes into a single
// supervisor from one goroutine.
package app

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Iron-Ham/codestatus/internal/editor"
	"github.com/Iron-Ham/codestatus/internal/errors"
	"github.com/Iron-Ham/codestatus/internal/logging"
	"github.com/Iron-Ham/codestatus/internal/override"
	"github.com/Iron-Ham/codestatus/internal/supervisor"
)

const eventBuffer = 64

// Target is the part of the supervisor the loop drives.
type Target interface {
	Notify(state editor.State)
	SetFocused(focused bool)
	SetManualOverride(text string)
	OnConfigChange(settings supervisor.Settings) bool
	Close()
}

// Loop dispatches every input to the Target from a single goroutine, so
// the order in which the editor reports events is the order in which
// status lines are produced.
type Loop struct {
	target   Target
	sources  []editor.Source
	settings <-chan supervisor.Settings

	store            *override.Store
	overrideDebounce time.Duration

	logger *logging.Logger
}

// Option configures a Loop.
type Option func(*Loop)

// WithSource adds an editor event source. The loop ends when every source
// is exhausted.
func WithSource(src editor.Source) Option {
	return func(l *Loop) { l.sources = append(l.sources, src) }
}

// WithSettings delivers reloaded settings to the loop.
func WithSettings(ch <-chan supervisor.Settings) Option {
	return func(l *Loop) { l.settings = ch }
}

// WithOverrideStore watches store for changes made by other processes and
// persists manual events from the editor into it.
func WithOverrideStore(store *override.Store, debounce time.Duration) Option {
	return func(l *Loop) {
		l.store = store
		l.overrideDebounce = debounce
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(l *Loop) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// New creates a loop driving target.
func New(target Target, opts ...Option) *Loop {
	l := &Loop{
		target: target,
		logger: logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.WithComponent("app")
	return l
}

// Run dispatches until ctx is done or all sources are exhausted, then
// closes the target. A source error is returned; cancellation is not an
// error.
func (l *Loop) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan editor.Event, eventBuffer)
	overrides := make(chan string, 1)

	var sourcesDone chan struct{}
	var sourceErr error
	if len(l.sources) > 0 {
		sourcesDone = make(chan struct{})
		sg, sctx := errgroup.WithContext(ctx)
		for _, src := range l.sources {
			sg.Go(func() error { return src.Run(sctx, events) })
		}
		go func() {
			sourceErr = sg.Wait()
			close(sourcesDone)
		}()
	}

	var aux errgroup.Group
	if l.store != nil {
		aux.Go(func() error {
			err := l.store.Watch(ctx, l.overrideDebounce, l.logger, func(text string) {
				select {
				case overrides <- text:
				case <-ctx.Done():
				}
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				l.logger.Warn("override watcher stopped", "error", err.Error())
			}
			return nil
		})
	}

	settings := l.settings
	exhausted := false
	l.logger.Info("event loop started", "sources", len(l.sources))

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case ev := <-events:
			l.dispatch(ev)
		case text := <-overrides:
			l.target.SetManualOverride(text)
		case s, ok := <-settings:
			if !ok {
				settings = nil
				continue
			}
			l.target.OnConfigChange(s)
		case <-sourcesDone:
			l.drain(events)
			exhausted = true
			l.logger.Info("editor event stream ended")
			break loop
		}
	}

	cancel()
	_ = aux.Wait()
	l.target.Close()

	// A source blocked in a read is not joined on cancellation.
	if exhausted && sourceErr != nil && !errors.Is(sourceErr, context.Canceled) {
		return sourceErr
	}
	return nil
}

// drain dispatches events a source emitted before returning.
func (l *Loop) drain(events <-chan editor.Event) {
	for {
		select {
		case ev := <-events:
			l.dispatch(ev)
		default:
			return
		}
	}
}

func (l *Loop) dispatch(ev editor.Event) {
	switch ev.Kind {
	case editor.KindActiveEditor, editor.KindNoEditor:
		l.target.Notify(ev.State)
	case editor.KindFocus:
		l.target.SetFocused(ev.Focused)
	case editor.KindManual:
		l.target.SetManualOverride(ev.Text)
		if l.store != nil {
			if err := l.store.Set(ev.Text); err != nil {
				l.logger.Warn("failed to persist manual override", "error", err.Error())
			}
		}
	default:
		l.logger.Debug("ignoring editor event", "kind", string(ev.Kind))
	}
}
