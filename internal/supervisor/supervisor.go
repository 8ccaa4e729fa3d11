// Package supervisor owns the presence worker process: it starts, stops and
// restarts it, renders the status line for the current editor state and
// writes it to the worker's stdin.
//
// The Supervisor holds at most one live worker. All of its state sits
// behind one mutex because restart timers and exit monitors run on their
// own goroutines. Events are published on the bus after the mutex is
// released, so handlers may call back into the Supervisor. Status lines
// are written after the mutex is released too: a worker that stops reading
// stdin blocks only the send in flight, never Stop or Restart.
package supervisor

import (
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Iron-Ham/codestatus/internal/editor"
	"github.com/Iron-Ham/codestatus/internal/errors"
	"github.com/Iron-Ham/codestatus/internal/event"
	"github.com/Iron-Ham/codestatus/internal/logging"
	"github.com/Iron-Ham/codestatus/internal/override"
	"github.com/Iron-Ham/codestatus/internal/protocol"
	"github.com/Iron-Ham/codestatus/internal/template"
	"github.com/Iron-Ham/codestatus/internal/worker"
)

// Default timings.
const (
	DefaultRestartDelay        = 500 * time.Millisecond
	DefaultGracefulStopTimeout = 500 * time.Millisecond
)

// ErrClosed is returned by Start after Close.
var ErrClosed = errors.New("supervisor closed")

// Settings is everything the Supervisor reads from configuration.
type Settings struct {
	Enabled        bool
	Worker         worker.Config
	StatusTemplate string
	IdleText       string

	// WorkerPath is an explicit worker executable.
	WorkerPath string
	// WorkerDir holds the per-platform worker directories.
	WorkerDir string

	RestartDelay        time.Duration
	GracefulStopTimeout time.Duration
}

// Equal reports whether s and o would produce the same worker and status.
func (s Settings) Equal(o Settings) bool {
	return s.Enabled == o.Enabled &&
		s.Worker.Equal(o.Worker) &&
		s.StatusTemplate == o.StatusTemplate &&
		s.IdleText == o.IdleText &&
		s.WorkerPath == o.WorkerPath &&
		s.WorkerDir == o.WorkerDir &&
		s.RestartDelay == o.RestartDelay &&
		s.GracefulStopTimeout == o.GracefulStopTimeout
}

func (s Settings) restartDelay() time.Duration {
	if s.RestartDelay > 0 {
		return s.RestartDelay
	}
	return DefaultRestartDelay
}

func (s Settings) stopTimeout() time.Duration {
	if s.GracefulStopTimeout > 0 {
		return s.GracefulStopTimeout
	}
	return DefaultGracefulStopTimeout
}

// Compose returns the status line and its mode: the override when set,
// otherwise the rendered template, or idle when no editor is active.
func Compose(tmpl *template.Template, idle, manual string, state editor.State) (text, mode string) {
	if manual != "" {
		return manual, event.ModeManual
	}
	if !state.Active() {
		return idle, event.ModeAuto
	}
	return tmpl.Render(state.Context()), event.ModeAuto
}

// Handle is the live worker process.
type Handle struct {
	ID      string
	Path    string
	Started time.Time

	proc     Process
	writer   *protocol.Writer
	stopping atomic.Bool
}

// PID returns the worker's process id.
func (h *Handle) PID() int {
	return h.proc.PID()
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithSpawner replaces the os/exec spawner.
func WithSpawner(sp Spawner) Option {
	return func(s *Supervisor) { s.spawner = sp }
}

// WithBus publishes lifecycle and status events on bus.
func WithBus(bus *event.Bus) Option {
	return func(s *Supervisor) { s.bus = bus }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Supervisor) { s.logger = l }
}

// WithResolver replaces ResolveExecutable.
func WithResolver(fn func(Settings) (string, error)) Option {
	return func(s *Supervisor) { s.resolve = fn }
}

// Supervisor manages the worker process.
type Supervisor struct {
	mu       sync.Mutex
	settings Settings
	tmpl     *template.Template
	handle   *Handle
	last     editor.State
	focused  bool
	manual   string
	closed   bool

	// pending is the delayed start scheduled by Restart; pendingGen
	// invalidates a timer that fired while being superseded.
	pending    *time.Timer
	pendingGen uint64

	// outbox collects events while mu is held.
	outbox []event.Event
	// send is the status line composed while mu is held, written by unlock.
	send   *outgoing
	seq    uint64

	// sendMu guards the delivery state below. It is never held across a
	// write.
	sendMu  sync.Mutex
	sending bool
	queued  *outgoing
	sentSeq uint64

	spawner Spawner
	resolve func(Settings) (string, error)
	bus     *event.Bus
	logger  *logging.Logger
}

// New returns a Supervisor with no worker. The window starts focused.
func New(settings Settings, opts ...Option) *Supervisor {
	s := &Supervisor{
		settings: settings,
		tmpl:     template.Parse(settings.StatusTemplate),
		focused:  true,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.NopLogger()
	}
	s.logger = s.logger.WithComponent("supervisor")
	if s.spawner == nil {
		s.spawner = ExecSpawner{Logger: s.logger.WithComponent("worker")}
	}
	if s.resolve == nil {
		s.resolve = func(st Settings) (string, error) {
			return ResolveExecutable(st.WorkerPath, st.WorkerDir)
		}
	}
	return s
}

func (s *Supervisor) emit(e event.Event) {
	s.outbox = append(s.outbox, e)
}

// outgoing is one status line bound for a specific worker.
type outgoing struct {
	h    *Handle
	text string
	mode string
	seq  uint64
}

// unlock releases mu, publishes the events collected meanwhile and
// delivers the composed status line, if any.
func (s *Supervisor) unlock() {
	events := s.outbox
	s.outbox = nil
	o := s.send
	s.send = nil
	s.mu.Unlock()
	for _, e := range events {
		s.bus.Publish(e)
	}
	if o != nil {
		s.deliver(o)
	}
}

// deliver writes o unless a newer line was already written. While another
// goroutine is writing, o replaces any queued line and deliver returns at
// once; the writer picks it up when its own write finishes.
func (s *Supervisor) deliver(o *outgoing) {
	s.sendMu.Lock()
	if s.sending {
		if s.queued == nil || o.seq > s.queued.seq {
			s.queued = o
		}
		s.sendMu.Unlock()
		return
	}
	s.sending = true
	s.sendMu.Unlock()

	for o != nil {
		s.sendMu.Lock()
		stale := o.seq <= s.sentSeq
		if !stale {
			s.sentSeq = o.seq
		}
		s.sendMu.Unlock()

		if !stale {
			s.write(o)
		}

		s.sendMu.Lock()
		o, s.queued = s.queued, nil
		if o == nil {
			s.sending = false
		}
		s.sendMu.Unlock()
	}
}

func (s *Supervisor) write(o *outgoing) {
	h := o.h
	line := protocol.Sanitize(o.text)
	if err := h.writer.Send(o.text); err != nil {
		werr := errors.NewWorkerError("write status", err).WithWorkerID(h.ID).WithPID(h.proc.PID())
		if h.stopping.Load() {
			s.logger.Debug("status update abandoned, worker stopping", "error", werr.Error())
		} else {
			s.logger.Warn("dropping status update", "error", werr.Error())
		}
		s.bus.Publish(event.NewStatusDroppedEvent(event.DropSendError))
		return
	}
	s.logger.Info("status sent", "text", line, "mode", o.mode)
	s.bus.Publish(event.NewStatusSentEvent(line, o.mode))
}

// Start applies settings and spawns the worker unless one is running or
// the worker is disabled. A spawn failure is logged and returned; the
// Supervisor is left without a worker.
func (s *Supervisor) Start(settings Settings) error {
	s.mu.Lock()
	defer s.unlock()
	s.applyLocked(settings)
	return s.startLocked()
}

func (s *Supervisor) applyLocked(settings Settings) {
	if settings.StatusTemplate != s.settings.StatusTemplate || s.tmpl == nil {
		s.tmpl = template.Parse(settings.StatusTemplate)
	}
	s.settings = settings
}

func (s *Supervisor) startLocked() error {
	if s.closed {
		return ErrClosed
	}
	if s.handle != nil {
		return nil
	}
	if !s.settings.Enabled {
		s.logger.Info("worker disabled in settings")
		return nil
	}

	path, err := s.resolve(s.settings)
	if err != nil {
		return s.spawnFailedLocked("", err)
	}

	args := s.settings.Worker.Args()
	s.logger.Info("starting worker", "path", path, "args", args)

	proc, err := s.spawner.Spawn(path, args, filepath.Dir(path))
	if err != nil {
		return s.spawnFailedLocked(path, err)
	}

	h := &Handle{
		ID:      uuid.New().String(),
		Path:    path,
		Started: time.Now(),
		proc:    proc,
		writer:  protocol.NewWriter(proc.Stdin()),
	}
	s.handle = h
	s.logger.Info("worker started", "worker_id", h.ID, "pid", proc.PID())
	s.emit(event.NewWorkerStartedEvent(h.ID, proc.PID(), path))

	go s.monitor(h)

	s.notifyLocked()
	return nil
}

func (s *Supervisor) spawnFailedLocked(path string, cause error) error {
	err := errors.NewWorkerError("spawn worker", fmt.Errorf("%w: %w", errors.ErrSpawnFailed, cause))
	s.logger.Error("failed to start worker", "path", path, "error", err.Error())
	s.emit(event.NewWorkerSpawnFailedEvent(err))
	return err
}

// monitor waits for h to exit and forgets it if it is still current.
func (s *Supervisor) monitor(h *Handle) {
	<-h.proc.Done()
	code := h.proc.ExitCode()

	s.mu.Lock()
	defer s.unlock()

	s.logger.Info("worker exited",
		"worker_id", h.ID,
		"pid", h.proc.PID(),
		"exit_code", code,
		"requested", h.stopping.Load(),
	)
	if s.handle == h {
		s.handle = nil
	}
	s.emit(event.NewWorkerExitedEvent(h.ID, h.proc.PID(), code))
}

// Stop shuts the worker down: stdin is closed, and the worker is killed if
// it has not exited within the graceful stop timeout. A pending delayed
// start is cancelled. Stop is idempotent.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	s.cancelPendingLocked()
	h := s.detachLocked()
	timeout := s.settings.stopTimeout()
	s.unlock()

	s.stopHandle(h, timeout)
}

func (s *Supervisor) detachLocked() *Handle {
	h := s.handle
	s.handle = nil
	return h
}

func (s *Supervisor) cancelPendingLocked() bool {
	if s.pending == nil {
		return false
	}
	s.pending.Stop()
	s.pending = nil
	s.pendingGen++
	return true
}

func (s *Supervisor) stopHandle(h *Handle, timeout time.Duration) {
	if h == nil {
		return
	}
	h.stopping.Store(true)
	s.logger.Info("stopping worker", "worker_id", h.ID, "pid", h.proc.PID())

	if err := h.proc.Stdin().Close(); err != nil {
		s.logger.Debug("closing worker stdin failed", "worker_id", h.ID, "error", err.Error())
	}

	forced := false
	select {
	case <-h.proc.Done():
	case <-time.After(timeout):
		forced = true
		s.logger.Warn("worker ignored EOF, killing", "worker_id", h.ID,
			"error", errors.NewTimeoutError("graceful worker stop", timeout).Error())
		if err := h.proc.Kill(); err != nil {
			s.logger.Error("failed to kill worker", "worker_id", h.ID, "error", err.Error())
		}
		select {
		case <-h.proc.Done():
		case <-time.After(timeout):
			s.logger.Error("worker still running after kill", "worker_id", h.ID)
		}
	}
	s.bus.Publish(event.NewWorkerStoppedEvent(h.ID, forced))
}

// Restart stops the worker and starts it again with settings after the
// restart delay. A restart requested while a previous delayed start is
// still pending replaces it.
func (s *Supervisor) Restart(settings Settings) {
	s.mu.Lock()
	if s.closed {
		s.unlock()
		return
	}
	superseded := s.cancelPendingLocked()
	h := s.detachLocked()
	timeout := s.settings.stopTimeout()
	s.applyLocked(settings)
	s.unlock()

	s.stopHandle(h, timeout)

	s.mu.Lock()
	defer s.unlock()
	if s.closed {
		return
	}
	// A concurrent Restart may have scheduled while we were stopping.
	if s.cancelPendingLocked() {
		superseded = true
	}

	delay := s.settings.restartDelay()
	s.pendingGen++
	gen := s.pendingGen
	s.pending = time.AfterFunc(delay, func() { s.startPending(gen) })

	s.logger.Info("worker restart scheduled", "delay", delay.String(), "superseded", superseded)
	s.emit(event.NewWorkerRestartEvent(delay, superseded))
}

func (s *Supervisor) startPending(gen uint64) {
	s.mu.Lock()
	defer s.unlock()
	if gen != s.pendingGen || s.pending == nil {
		return
	}
	s.pending = nil
	_ = s.startLocked()
}

// OnConfigChange restarts the worker when settings differ from the
// current ones. It reports whether a restart was scheduled.
func (s *Supervisor) OnConfigChange(settings Settings) bool {
	s.mu.Lock()
	same := s.settings.Equal(settings)
	s.mu.Unlock()

	if same {
		s.logger.Debug("configuration unchanged")
		return false
	}
	s.logger.Info("configuration changed, restarting worker")
	s.Restart(settings)
	return true
}

// Notify records state as the last known editor state and sends the
// resulting status line if a worker is running and the window is focused.
func (s *Supervisor) Notify(state editor.State) {
	s.mu.Lock()
	defer s.unlock()
	s.last = state.Clone()
	s.notifyLocked()
}

// Refresh resends the status for the last known editor state.
func (s *Supervisor) Refresh() {
	s.mu.Lock()
	defer s.unlock()
	s.notifyLocked()
}

func (s *Supervisor) notifyLocked() {
	h := s.handle
	if h == nil {
		s.emit(event.NewStatusDroppedEvent(event.DropNoWorker))
		return
	}
	if !s.focused {
		s.emit(event.NewStatusDroppedEvent(event.DropUnfocused))
		return
	}

	text, mode := Compose(s.tmpl, s.settings.IdleText, s.manual, s.last)
	s.seq++
	s.send = &outgoing{h: h, text: text, mode: mode, seq: s.seq}
}

// SetFocused records the window focus. Regaining focus resends the status.
func (s *Supervisor) SetFocused(focused bool) {
	s.mu.Lock()
	defer s.unlock()
	s.focused = focused
	if focused {
		s.notifyLocked()
	}
}

// SetManualOverride replaces template rendering with text until cleared.
// Whitespace-only text clears the override. The status is resent either
// way.
func (s *Supervisor) SetManualOverride(text string) {
	s.mu.Lock()
	defer s.unlock()

	text = override.Normalize(text)
	if text != s.manual {
		s.manual = text
		if text == "" {
			s.logger.Info("manual override cleared")
		} else {
			s.logger.Info("manual override set", "text", text)
		}
		s.emit(event.NewOverrideChangedEvent(text))
	}
	s.notifyLocked()
}

// ManualOverride returns the current override, or "".
func (s *Supervisor) ManualOverride() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.manual
}

// Running reports whether a worker is alive.
func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle != nil
}

// Handle returns the live worker, or nil.
func (s *Supervisor) Handle() *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

// Close stops the worker and rejects further starts.
func (s *Supervisor) Close() {
	s.mu.Lock()
	s.closed = true
	s.cancelPendingLocked()
	h := s.detachLocked()
	timeout := s.settings.stopTimeout()
	s.unlock()

	s.stopHandle(h, timeout)
}
