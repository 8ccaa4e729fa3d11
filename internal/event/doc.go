// Package event provides a pub-sub event bus for decoupled inter-component
// communication in codestatus.
//
// The supervisor publishes what happens to the worker and to each status
// update; the metrics package and the run command subscribe. Neither side
// needs to know about the other.
//
// # Main Types
//
//   - [Event]: Interface that all events must implement, providing EventType() and Timestamp()
//   - [Bus]: Synchronous pub-sub event dispatcher with thread-safe operations
//   - [Handler]: Function type for event handlers (func(Event))
//
// # Event Categories
//
// Worker lifecycle:
//   - [WorkerStartedEvent], [WorkerSpawnFailedEvent]
//   - [WorkerStoppedEvent], [WorkerExitedEvent]
//   - [WorkerRestartEvent]
//
// Status updates:
//   - [StatusSentEvent]: a line reached the worker, tagged Auto or Manual
//   - [StatusDroppedEvent]: a line was rendered but not sent
//   - [OverrideChangedEvent]: the manual override was set or cleared
//
// # Thread Safety
//
// The [Bus] type is safe for concurrent use. Handlers are called
// synchronously on the publishing goroutine and must not block.
//
// # Basic Usage
//
//	bus := event.NewBus()
//	bus.Subscribe(event.TypeWorkerExited, func(e event.Event) {
//	    exited := e.(event.WorkerExitedEvent)
//	    fmt.Println("worker exited with", exited.ExitCode)
//	})
//	bus.Publish(event.NewWorkerExitedEvent(id, pid, 0))
package event
