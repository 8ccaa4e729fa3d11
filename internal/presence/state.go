package presence

// State is the lifecycle state of a Publisher.
type State int32

const (
	StateUninitialized State = iota
	StateConnected
	StatePublishing
	StateIdle
	StateShuttingDown
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateConnected:
		return "connected"
	case StatePublishing:
		return "publishing"
	case StateIdle:
		return "idle"
	case StateShuttingDown:
		return "shutting_down"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// canPublish reports whether a cycle may start from s.
func (s State) canPublish() bool {
	return s == StateConnected || s == StateIdle
}
