package presence

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Iron-Ham/codestatus/internal/errors"
	"github.com/Iron-Ham/codestatus/internal/logging"
)

// DefaultPumpInterval is how often Pump services provider callbacks.
const DefaultPumpInterval = 100 * time.Millisecond

// ErrNotConnected is reported when a cycle is attempted outside the
// Connected/Idle states.
var ErrNotConnected = errors.New("presence publisher not connected")

// Step names reported in StepError.Op.
const (
	OpClearAll = "clear_all"
	OpPublish  = "publish"
)

// StepError records one failed primitive inside a cycle.
type StepError struct {
	Op  string
	Key string
	Err error
}

func (e StepError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e StepError) Unwrap() error { return e.Err }

// CycleResult describes one clear-then-set cycle.
type CycleResult struct {
	Line     string
	Failures []StepError
}

// OK reports whether every step succeeded.
func (r CycleResult) OK() bool { return len(r.Failures) == 0 }

// Err joins the step failures, or returns nil.
func (r CycleResult) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	errs := make([]error, len(r.Failures))
	for i, f := range r.Failures {
		errs[i] = f
	}
	return errors.Join(errs...)
}

// Observer receives cycle measurements. The metrics package implements it.
type Observer interface {
	ObserveCycle(d time.Duration, failures int)
	ObserveStepFailure(op, key string)
}

type nopObserver struct{}

func (nopObserver) ObserveCycle(time.Duration, int)   {}
func (nopObserver) ObserveStepFailure(string, string) {}

// Option configures a Publisher.
type Option func(*Publisher)

// WithLogger sets the logger used for step failures and state changes.
func WithLogger(l *logging.Logger) Option {
	return func(p *Publisher) { p.logger = l }
}

// WithObserver attaches an Observer for cycle metrics.
func WithObserver(o Observer) Option {
	return func(p *Publisher) { p.observer = o }
}

// Publisher runs clear-then-set cycles against a Provider.
// Cycles are serialized; Pump and Apply may be called from different
// goroutines.
type Publisher struct {
	provider Provider
	fields   Fields
	logger   *logging.Logger
	observer Observer

	// cycleMu serializes cycles and guards the provider against concurrent
	// RunCallbacks during a cycle.
	cycleMu sync.Mutex
	state   atomic.Int32
}

// NewPublisher returns a Publisher in the Uninitialized state.
func NewPublisher(provider Provider, fields Fields, opts ...Option) *Publisher {
	p := &Publisher{
		provider: provider,
		fields:   fields,
		logger:   logging.NopLogger(),
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.WithComponent("publisher")
	return p
}

// State returns the current lifecycle state.
func (p *Publisher) State() State {
	return State(p.state.Load())
}

func (p *Publisher) setState(s State) {
	old := State(p.state.Swap(int32(s)))
	if old != s {
		p.logger.Debug("state changed", "from", old.String(), "to", s.String())
	}
}

// Connect initializes the provider. A failure is fatal for the worker and
// leaves the Publisher Uninitialized.
func (p *Publisher) Connect(appID string) error {
	p.cycleMu.Lock()
	defer p.cycleMu.Unlock()

	if s := p.State(); s != StateUninitialized {
		return fmt.Errorf("connect from state %s: %w", s, ErrNotConnected)
	}
	if err := p.provider.Init(appID); err != nil {
		return fmt.Errorf("%w: %w", errors.ErrProviderInit, err)
	}
	p.setState(StateConnected)
	return nil
}

// Apply runs one cycle publishing line as the dynamic field. Step failures
// are logged and collected; the remaining steps still run.
func (p *Publisher) Apply(line string) CycleResult {
	p.cycleMu.Lock()
	defer p.cycleMu.Unlock()

	result := CycleResult{Line: line}
	if s := p.State(); !s.canPublish() {
		result.Failures = append(result.Failures, StepError{Op: "cycle", Err: fmt.Errorf("state %s: %w", s, ErrNotConnected)})
		return result
	}

	start := time.Now()
	p.setState(StatePublishing)

	step := func(op, key string, err error) {
		if err == nil {
			return
		}
		perr := errors.NewPresenceError(op, err).WithKey(key)
		result.Failures = append(result.Failures, StepError{Op: op, Key: key, Err: perr})
		p.observer.ObserveStepFailure(op, key)
		p.logger.Warn("presence step failed", "op", op, "key", key, "error", err.Error())
	}

	step(OpClearAll, "", p.provider.ClearAll())
	step(OpPublish, DisplayKey, p.provider.Publish(DisplayKey, Set(p.fields.Template)))

	for _, f := range p.fields.Static {
		step(OpPublish, f.Key, p.provider.Publish(f.Key, Set(f.Value)))
	}

	if p.fields.HasGroup() {
		step(OpPublish, GroupKey, p.provider.Publish(GroupKey, Set(p.fields.GroupID)))
		step(OpPublish, GroupSizeKey, p.provider.Publish(GroupSizeKey, Set(p.fields.GroupSize)))
	} else {
		step(OpPublish, GroupKey, p.provider.Publish(GroupKey, Null()))
		step(OpPublish, GroupSizeKey, p.provider.Publish(GroupSizeKey, Null()))
	}

	step(OpPublish, p.fields.DynamicKey, p.provider.Publish(p.fields.DynamicKey, Set(line)))

	// Close may have moved us to ShuttingDown while the cycle ran.
	p.state.CompareAndSwap(int32(StatePublishing), int32(StateIdle))
	p.observer.ObserveCycle(time.Since(start), len(result.Failures))
	return result
}

// Pump services provider callbacks every interval until ctx is done. A tick
// that coincides with a running cycle is skipped rather than waiting for it.
func (p *Publisher) Pump(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultPumpInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !p.cycleMu.TryLock() {
				continue
			}
			if s := p.State(); s.canPublish() {
				p.provider.RunCallbacks()
			}
			p.cycleMu.Unlock()
		}
	}
}

// Close shuts the provider down without a final clear. It waits for an
// in-flight cycle to finish. Calling Close more than once is a no-op.
func (p *Publisher) Close() error {
	var prev State
	for {
		prev = p.State()
		if prev == StateShuttingDown || prev == StateStopped {
			return nil
		}
		if p.state.CompareAndSwap(int32(prev), int32(StateShuttingDown)) {
			break
		}
	}
	p.logger.Debug("state changed", "from", prev.String(), "to", StateShuttingDown.String())

	p.cycleMu.Lock()
	defer p.cycleMu.Unlock()

	var err error
	if prev != StateUninitialized {
		err = p.provider.Shutdown()
	}
	p.setState(StateStopped)
	return err
}
