package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/codestatus/internal/editor"
	"github.com/Iron-Ham/codestatus/internal/override"
	"github.com/Iron-Ham/codestatus/internal/supervisor"
)

type recordingTarget struct {
	mu     sync.Mutex
	calls  []string
	closed bool
}

func (r *recordingTarget) record(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, fmt.Sprintf(format, args...))
}

func (r *recordingTarget) Notify(state editor.State) {
	path := ""
	if state.Document != nil {
		path = state.Document.Path
	}
	r.record("notify %s", path)
}

func (r *recordingTarget) SetFocused(focused bool)       { r.record("focus %v", focused) }
func (r *recordingTarget) SetManualOverride(text string) { r.record("manual %q", text) }

func (r *recordingTarget) OnConfigChange(s supervisor.Settings) bool {
	r.record("config %s", s.StatusTemplate)
	return true
}

func (r *recordingTarget) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
}

func (r *recordingTarget) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *recordingTarget) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

type failingSource struct{ err error }

func (f failingSource) Run(context.Context, chan<- editor.Event) error { return f.err }

func TestLoop_DispatchesInOrderUntilEOF(t *testing.T) {
	input := strings.Join([]string{
		`{"type":"activeEditor","workspace":"/w/app","document":{"path":"/w/app/a.go"}}`,
		`{"type":"focus","focused":false}`,
		`not json`,
		`{"type":"focus","focused":true}`,
		`{"type":"manual","text":"pairing"}`,
		`{"type":"noEditor","workspace":"/w/app"}`,
	}, "\n")

	target := &recordingTarget{}
	l := New(target, WithSource(editor.NewJSONSource(strings.NewReader(input), nil)))

	err := l.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{
		"notify /w/app/a.go",
		"focus false",
		"focus true",
		`manual "pairing"`,
		"notify ",
	}, target.Calls())
	assert.True(t, target.Closed())
}

func TestLoop_SettingsAndCancel(t *testing.T) {
	target := &recordingTarget{}
	settings := make(chan supervisor.Settings)
	l := New(target, WithSettings(settings))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	settings <- supervisor.Settings{StatusTemplate: "v2"}
	close(settings)

	require.Eventually(t, func() bool {
		return len(target.Calls()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"config v2"}, target.Calls())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop on cancel")
	}
	assert.True(t, target.Closed())
}

func TestLoop_SourceError(t *testing.T) {
	target := &recordingTarget{}
	boom := errors.New("pipe closed")
	l := New(target, WithSource(failingSource{err: boom}))

	err := l.Run(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.True(t, target.Closed())
}

func TestLoop_OverrideStore(t *testing.T) {
	store := override.NewStore(filepath.Join(t.TempDir(), override.FileName))
	require.NoError(t, store.Set("focus time"))

	target := &recordingTarget{}
	l := New(target, WithOverrideStore(store, 10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	require.Eventually(t, func() bool {
		calls := target.Calls()
		return len(calls) > 0 && calls[0] == `manual "focus time"`
	}, 2*time.Second, 10*time.Millisecond, "persisted override should be applied on start")

	require.NoError(t, store.Set("lunch"))
	require.Eventually(t, func() bool {
		calls := target.Calls()
		return calls[len(calls)-1] == `manual "lunch"`
	}, 2*time.Second, 10*time.Millisecond, "override written by another process should be applied")

	cancel()
	require.NoError(t, <-done)
}

func TestLoop_ManualEventPersisted(t *testing.T) {
	store := override.NewStore(filepath.Join(t.TempDir(), override.FileName))
	input := `{"type":"manual","text":"demo prep"}` + "\n"

	target := &recordingTarget{}
	l := New(target,
		WithSource(editor.NewJSONSource(strings.NewReader(input), nil)),
		WithOverrideStore(store, 10*time.Millisecond),
	)
	require.NoError(t, l.Run(context.Background()))

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "demo prep", got)
	assert.Contains(t, target.Calls(), `manual "demo prep"`)
}
