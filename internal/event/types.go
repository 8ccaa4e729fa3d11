package event

import "time"

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g., "worker.started", "status.sent").
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// Event type identifiers.
const (
	TypeWorkerStarted     = "worker.started"
	TypeWorkerSpawnFailed = "worker.spawn_failed"
	TypeWorkerStopped     = "worker.stopped"
	TypeWorkerExited      = "worker.exited"
	TypeWorkerRestart     = "worker.restart"
	TypeStatusSent        = "status.sent"
	TypeStatusDropped     = "status.dropped"
	TypeOverrideChanged   = "override.changed"
)

type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// -----------------------------------------------------------------------------
// Worker Lifecycle Events
// -----------------------------------------------------------------------------

// WorkerStartedEvent is emitted after the worker process was spawned.
type WorkerStartedEvent struct {
	baseEvent
	WorkerID string
	PID      int
	Path     string
}

// NewWorkerStartedEvent creates a WorkerStartedEvent.
func NewWorkerStartedEvent(workerID string, pid int, path string) WorkerStartedEvent {
	return WorkerStartedEvent{
		baseEvent: newBaseEvent(TypeWorkerStarted),
		WorkerID:  workerID,
		PID:       pid,
		Path:      path,
	}
}

// WorkerSpawnFailedEvent is emitted when the worker could not be started.
type WorkerSpawnFailedEvent struct {
	baseEvent
	Err error
}

// NewWorkerSpawnFailedEvent creates a WorkerSpawnFailedEvent.
func NewWorkerSpawnFailedEvent(err error) WorkerSpawnFailedEvent {
	return WorkerSpawnFailedEvent{
		baseEvent: newBaseEvent(TypeWorkerSpawnFailed),
		Err:       err,
	}
}

// WorkerStoppedEvent is emitted when the supervisor deliberately stops a
// worker. Forced is true when the worker ignored EOF and had to be killed.
type WorkerStoppedEvent struct {
	baseEvent
	WorkerID string
	Forced   bool
}

// NewWorkerStoppedEvent creates a WorkerStoppedEvent.
func NewWorkerStoppedEvent(workerID string, forced bool) WorkerStoppedEvent {
	return WorkerStoppedEvent{
		baseEvent: newBaseEvent(TypeWorkerStopped),
		WorkerID:  workerID,
		Forced:    forced,
	}
}

// WorkerExitedEvent is emitted when a worker process terminates for any
// reason, including a deliberate stop.
type WorkerExitedEvent struct {
	baseEvent
	WorkerID string
	PID      int
	ExitCode int
}

// NewWorkerExitedEvent creates a WorkerExitedEvent.
func NewWorkerExitedEvent(workerID string, pid, exitCode int) WorkerExitedEvent {
	return WorkerExitedEvent{
		baseEvent: newBaseEvent(TypeWorkerExited),
		WorkerID:  workerID,
		PID:       pid,
		ExitCode:  exitCode,
	}
}

// WorkerRestartEvent is emitted when a restart is scheduled. Superseded is
// true when it replaced a restart that had not started the worker yet.
type WorkerRestartEvent struct {
	baseEvent
	Delay      time.Duration
	Superseded bool
}

// NewWorkerRestartEvent creates a WorkerRestartEvent.
func NewWorkerRestartEvent(delay time.Duration, superseded bool) WorkerRestartEvent {
	return WorkerRestartEvent{
		baseEvent:  newBaseEvent(TypeWorkerRestart),
		Delay:      delay,
		Superseded: superseded,
	}
}

// -----------------------------------------------------------------------------
// Status Events
// -----------------------------------------------------------------------------

// Status modes.
const (
	ModeAuto   = "Auto"
	ModeManual = "Manual"
)

// StatusSentEvent is emitted after a status line was written to the worker.
type StatusSentEvent struct {
	baseEvent
	Text string
	Mode string
}

// NewStatusSentEvent creates a StatusSentEvent.
func NewStatusSentEvent(text, mode string) StatusSentEvent {
	return StatusSentEvent{
		baseEvent: newBaseEvent(TypeStatusSent),
		Text:      text,
		Mode:      mode,
	}
}

// Reasons a status was not delivered.
const (
	DropNoWorker  = "no_worker"
	DropUnfocused = "unfocused"
	DropSendError = "send_error"
)

// StatusDroppedEvent is emitted when a status was rendered but not sent.
type StatusDroppedEvent struct {
	baseEvent
	Reason string
}

// NewStatusDroppedEvent creates a StatusDroppedEvent.
func NewStatusDroppedEvent(reason string) StatusDroppedEvent {
	return StatusDroppedEvent{
		baseEvent: newBaseEvent(TypeStatusDropped),
		Reason:    reason,
	}
}

// OverrideChangedEvent is emitted when the manual override is set or
// cleared. Text is empty when cleared.
type OverrideChangedEvent struct {
	baseEvent
	Text string
}

// NewOverrideChangedEvent creates an OverrideChangedEvent.
func NewOverrideChangedEvent(text string) OverrideChangedEvent {
	return OverrideChangedEvent{
		baseEvent: newBaseEvent(TypeOverrideChanged),
		Text:      text,
	}
}
