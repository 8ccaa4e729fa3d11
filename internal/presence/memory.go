package presence

import (
	"maps"
	"sync"

	"github.com/Iron-Ham/codestatus/internal/errors"
)

// OpKind identifies a provider primitive in a MemoryProvider journal.
type OpKind string

const (
	OpKindInit      OpKind = "init"
	OpKindClearAll  OpKind = "clear_all"
	OpKindPublish   OpKind = "publish"
	OpKindCallbacks OpKind = "callbacks"
	OpKindShutdown  OpKind = "shutdown"
)

// Op is one journaled provider call.
type Op struct {
	Kind  OpKind
	Key   string
	Value Value
}

// MemoryProvider keeps presence state in a map and journals every call.
// Fail, when set, is consulted before each call and can inject errors.
type MemoryProvider struct {
	// Fail returns a non-nil error to make the matching call fail without
	// touching the state.
	Fail func(op Op) error

	mu        sync.Mutex
	appID     string
	fields    map[string]string
	journal   []Op
	callbacks int
	closed    bool
}

// NewMemoryProvider returns an empty MemoryProvider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{fields: make(map[string]string)}
}

// record journals op and consults Fail. Fail runs without mu held so it may
// block or inspect the provider.
func (m *MemoryProvider) record(op Op) error {
	m.mu.Lock()
	m.journal = append(m.journal, op)
	fail := m.Fail
	m.mu.Unlock()

	if fail != nil {
		return fail(op)
	}
	return nil
}

// Init records appID.
func (m *MemoryProvider) Init(appID string) error {
	if err := m.record(Op{Kind: OpKindInit, Value: Set(appID)}); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.appID = appID
	m.closed = false
	return nil
}

// RunCallbacks counts invocations; the journal is not updated so that pump
// ticks do not drown out cycle steps.
func (m *MemoryProvider) RunCallbacks() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks++
}

// Publish sets or removes key.
func (m *MemoryProvider) Publish(key string, v Value) error {
	if err := m.record(Op{Kind: OpKindPublish, Key: key, Value: v}); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.ErrProviderClosed
	}
	if s, ok := v.Get(); ok {
		if m.fields == nil {
			m.fields = make(map[string]string)
		}
		m.fields[key] = s
	} else {
		delete(m.fields, key)
	}
	return nil
}

// ClearAll removes every key.
func (m *MemoryProvider) ClearAll() error {
	if err := m.record(Op{Kind: OpKindClearAll}); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.ErrProviderClosed
	}
	clear(m.fields)
	return nil
}

// Shutdown marks the provider closed. The fields are kept for inspection.
func (m *MemoryProvider) Shutdown() error {
	if err := m.record(Op{Kind: OpKindShutdown}); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Snapshot returns a copy of the current fields.
func (m *MemoryProvider) Snapshot() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.fields)
}

// Journal returns a copy of every recorded call.
func (m *MemoryProvider) Journal() []Op {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Op(nil), m.journal...)
}

// ResetJournal drops the recorded calls, keeping the fields.
func (m *MemoryProvider) ResetJournal() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.journal = nil
}

// AppID returns the id passed to the last successful Init.
func (m *MemoryProvider) AppID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appID
}

// Callbacks returns how many times RunCallbacks ran.
func (m *MemoryProvider) Callbacks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callbacks
}

// Closed reports whether Shutdown has been called.
func (m *MemoryProvider) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
