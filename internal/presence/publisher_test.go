package presence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cserrors "github.com/Iron-Ham/codestatus/internal/errors"
)

func testFields() Fields {
	return Fields{
		Template:   "#Status",
		DynamicKey: "status",
		GroupID:    "1",
		GroupSize:  "1",
		Static: []Field{
			{Key: "max_players", Value: "8"},
			{Key: "players", Value: "/"},
		},
	}
}

func connected(t *testing.T, fields Fields, opts ...Option) (*Publisher, *MemoryProvider) {
	t.Helper()
	mem := NewMemoryProvider()
	pub := NewPublisher(mem, fields, opts...)
	require.NoError(t, pub.Connect("480"))
	mem.ResetJournal()
	return pub, mem
}

func TestPublisher_CycleOrder(t *testing.T) {
	pub, mem := connected(t, testFields())

	res := pub.Apply("editing main.go")
	require.True(t, res.OK(), "unexpected failures: %v", res.Err())
	assert.Equal(t, "editing main.go", res.Line)

	want := []Op{
		{Kind: OpKindClearAll},
		{Kind: OpKindPublish, Key: DisplayKey, Value: Set("#Status")},
		{Kind: OpKindPublish, Key: "max_players", Value: Set("8")},
		{Kind: OpKindPublish, Key: "players", Value: Set("/")},
		{Kind: OpKindPublish, Key: GroupKey, Value: Set("1")},
		{Kind: OpKindPublish, Key: GroupSizeKey, Value: Set("1")},
		{Kind: OpKindPublish, Key: "status", Value: Set("editing main.go")},
	}
	assert.Equal(t, want, mem.Journal())

	assert.Equal(t, map[string]string{
		DisplayKey:    "#Status",
		"max_players": "8",
		"players":     "/",
		GroupKey:      "1",
		GroupSizeKey:  "1",
		"status":      "editing main.go",
	}, mem.Snapshot())
	assert.Equal(t, StateIdle, pub.State())
}

func TestPublisher_GroupFieldsToggle(t *testing.T) {
	tests := []struct {
		name      string
		groupID   string
		groupSize string
		wantGroup bool
	}{
		{"both set", "g1", "4", true},
		{"id only", "g1", "", false},
		{"size only", "", "4", false},
		{"neither", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := testFields()
			fields.GroupID = tt.groupID
			fields.GroupSize = tt.groupSize
			pub, mem := connected(t, fields)

			require.True(t, pub.Apply("x").OK())

			snap := mem.Snapshot()
			_, hasGroup := snap[GroupKey]
			_, hasSize := snap[GroupSizeKey]
			assert.Equal(t, tt.wantGroup, hasGroup)
			assert.Equal(t, tt.wantGroup, hasSize)

			if !tt.wantGroup {
				journal := mem.Journal()
				assert.Contains(t, journal, Op{Kind: OpKindPublish, Key: GroupKey, Value: Null()})
				assert.Contains(t, journal, Op{Kind: OpKindPublish, Key: GroupSizeKey, Value: Null()})
			}
		})
	}
}

func TestPublisher_NoStaleFieldsAcrossCycles(t *testing.T) {
	pub, mem := connected(t, testFields())

	// Something outside the publisher wrote a key; the next cycle must drop it.
	require.NoError(t, mem.Publish("stale", Set("left over")))
	require.True(t, pub.Apply("first").OK())
	require.True(t, pub.Apply("second").OK())

	snap := mem.Snapshot()
	assert.NotContains(t, snap, "stale")
	assert.Equal(t, "second", snap["status"])
	assert.Len(t, snap, 6)
}

func TestPublisher_StepFailureContinues(t *testing.T) {
	boom := errors.New("sdk rejected key")
	mem := NewMemoryProvider()
	mem.Fail = func(op Op) error {
		if op.Kind == OpKindPublish && op.Key == "players" {
			return boom
		}
		return nil
	}

	obs := &recordingObserver{}
	pub := NewPublisher(mem, testFields(), WithObserver(obs))
	require.NoError(t, pub.Connect("480"))

	res := pub.Apply("still published")

	require.Len(t, res.Failures, 1)
	assert.Equal(t, OpPublish, res.Failures[0].Op)
	assert.Equal(t, "players", res.Failures[0].Key)
	assert.ErrorIs(t, res.Err(), boom)
	assert.True(t, cserrors.IsRetryable(res.Failures[0]))

	snap := mem.Snapshot()
	assert.Equal(t, "still published", snap["status"])
	assert.NotContains(t, snap, "players")

	assert.Equal(t, 1, obs.cycles)
	assert.Equal(t, 1, obs.lastFailures)
	assert.Equal(t, []string{"publish/players"}, obs.steps)
}

func TestPublisher_ClearFailureContinues(t *testing.T) {
	mem := NewMemoryProvider()
	mem.Fail = func(op Op) error {
		if op.Kind == OpKindClearAll {
			return errors.New("clear failed")
		}
		return nil
	}
	pub := NewPublisher(mem, testFields())
	require.NoError(t, pub.Connect("480"))

	res := pub.Apply("line")
	require.Len(t, res.Failures, 1)
	assert.Equal(t, OpClearAll, res.Failures[0].Op)
	assert.Equal(t, "line", mem.Snapshot()["status"])
}

func TestPublisher_ConnectFailure(t *testing.T) {
	initErr := errors.New("steam not running")
	mem := NewMemoryProvider()
	mem.Fail = func(op Op) error {
		if op.Kind == OpKindInit {
			return initErr
		}
		return nil
	}
	pub := NewPublisher(mem, testFields())

	err := pub.Connect("480")
	require.Error(t, err)
	assert.ErrorIs(t, err, cserrors.ErrProviderInit)
	assert.ErrorIs(t, err, initErr)
	assert.Equal(t, StateUninitialized, pub.State())
}

func TestPublisher_ApplyBeforeConnect(t *testing.T) {
	mem := NewMemoryProvider()
	pub := NewPublisher(mem, testFields())

	res := pub.Apply("x")
	require.Len(t, res.Failures, 1)
	assert.ErrorIs(t, res.Err(), ErrNotConnected)
	assert.Empty(t, mem.Journal())
}

func TestPublisher_Close(t *testing.T) {
	pub, mem := connected(t, testFields())
	require.True(t, pub.Apply("x").OK())

	require.NoError(t, pub.Close())
	require.NoError(t, pub.Close())
	assert.Equal(t, StateStopped, pub.State())

	journal := mem.Journal()
	require.NotEmpty(t, journal)
	last := journal[len(journal)-1]
	assert.Equal(t, OpKindShutdown, last.Kind)
	assert.Equal(t, OpKindPublish, journal[len(journal)-2].Kind, "no clear before shutdown")
	assert.True(t, mem.Closed())
	// No final clear: the last status stays visible until the provider drops it.
	assert.Equal(t, "x", mem.Snapshot()["status"])

	res := pub.Apply("after close")
	assert.False(t, res.OK())
}

func TestPublisher_CloseWithoutConnect(t *testing.T) {
	mem := NewMemoryProvider()
	pub := NewPublisher(mem, testFields())

	require.NoError(t, pub.Close())
	assert.Empty(t, mem.Journal())
	assert.Equal(t, StateStopped, pub.State())
}

func TestPublisher_Pump(t *testing.T) {
	pub, mem := connected(t, testFields())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- pub.Pump(ctx, 5*time.Millisecond) }()

	require.Eventually(t, func() bool { return mem.Callbacks() >= 3 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Pump did not stop after cancel")
	}
}

func TestPublisher_PumpSkipsDuringCycle(t *testing.T) {
	pub, mem := connected(t, testFields())

	release := make(chan struct{})
	entered := make(chan struct{})
	var once sync.Once
	mem.Fail = func(op Op) error {
		if op.Kind == OpKindClearAll {
			once.Do(func() { close(entered) })
			<-release
		}
		return nil
	}

	go pub.Apply("slow")
	<-entered

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = pub.Pump(ctx, time.Millisecond) }()

	// The pump must keep ticking without ever getting through while the
	// cycle holds the lock.
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 0, mem.Callbacks())

	close(release)
	require.Eventually(t, func() bool { return mem.Callbacks() > 0 }, 2*time.Second, time.Millisecond)
}

func TestPublisher_ConcurrentApplySerialized(t *testing.T) {
	pub, mem := connected(t, testFields())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pub.Apply("line")
		}()
	}
	wg.Wait()

	// Each cycle is 7 consecutive ops starting with a clear.
	journal := mem.Journal()
	require.Len(t, journal, 70)
	for i := 0; i < len(journal); i += 7 {
		assert.Equal(t, OpKindClearAll, journal[i].Kind, "cycle at %d interleaved", i)
		assert.Equal(t, "status", journal[i+6].Key)
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "uninitialized", StateUninitialized.String())
	assert.Equal(t, "publishing", StatePublishing.String())
	assert.Equal(t, "shutting_down", StateShuttingDown.String())
	assert.Equal(t, "unknown", State(42).String())
}

type recordingObserver struct {
	mu           sync.Mutex
	cycles       int
	lastFailures int
	steps        []string
}

func (r *recordingObserver) ObserveCycle(_ time.Duration, failures int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cycles++
	r.lastFailures = failures
}

func (r *recordingObserver) ObserveStepFailure(op, key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps = append(r.steps, op+"/"+key)
}
