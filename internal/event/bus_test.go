package event

import (
	"sync"
	"testing"
)

func TestBus_Publish(t *testing.T) {
	bus := NewBus()

	var received Event
	bus.Subscribe(TypeWorkerStarted, func(e Event) {
		received = e
	})

	bus.Publish(NewWorkerStartedEvent("w1", 4242, "/opt/codestatus/linux-amd64/codestatus-worker"))

	if received == nil {
		t.Fatal("handler should have received the event")
	}
	started, ok := received.(WorkerStartedEvent)
	if !ok {
		t.Fatalf("received %T, want WorkerStartedEvent", received)
	}
	if started.PID != 4242 || started.WorkerID != "w1" {
		t.Errorf("unexpected payload: %+v", started)
	}
	if started.Timestamp().IsZero() {
		t.Error("timestamp should be set")
	}
}

func TestBus_PublishNoMatchingHandlers(t *testing.T) {
	bus := NewBus()

	bus.Subscribe(TypeStatusSent, func(e Event) {
		t.Error("handler should not be called for non-matching event type")
	})

	bus.Publish(NewStatusDroppedEvent(DropUnfocused))
}

func TestBus_NilBusDropsEvents(t *testing.T) {
	var bus *Bus
	bus.Publish(NewStatusSentEvent("x", ModeAuto))
}

func TestBus_SpecificBeforeWildcard(t *testing.T) {
	bus := NewBus()

	var order []string
	bus.SubscribeAll(func(e Event) { order = append(order, "all") })
	bus.Subscribe(TypeStatusSent, func(e Event) { order = append(order, "specific-1") })
	bus.Subscribe(TypeStatusSent, func(e Event) { order = append(order, "specific-2") })

	bus.Publish(NewStatusSentEvent("x", ModeManual))

	want := []string{"specific-1", "specific-2", "all"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want[i])
		}
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus()

	calls := 0
	keep := bus.Subscribe(TypeWorkerExited, func(e Event) { calls++ })
	drop := bus.Subscribe(TypeWorkerExited, func(e Event) { calls += 100 })

	if keep == drop {
		t.Fatal("subscription IDs must be unique")
	}
	if !bus.Unsubscribe(drop) {
		t.Fatal("Unsubscribe should report success")
	}
	if bus.Unsubscribe(drop) {
		t.Error("second Unsubscribe should report failure")
	}

	bus.Publish(NewWorkerExitedEvent("w", 1, 0))
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if bus.SubscriptionCount() != 1 {
		t.Errorf("SubscriptionCount() = %d, want 1", bus.SubscriptionCount())
	}
}

func TestBus_HandlerPanicRecovery(t *testing.T) {
	bus := NewBus()

	called := false
	bus.Subscribe(TypeOverrideChanged, func(e Event) { panic("boom") })
	bus.Subscribe(TypeOverrideChanged, func(e Event) { called = true })

	bus.Publish(NewOverrideChangedEvent("在开会"))

	if !called {
		t.Error("handler after a panicking one should still run")
	}
}

func TestBus_ConcurrentPublish(t *testing.T) {
	bus := NewBus()

	var mu sync.Mutex
	count := 0
	bus.SubscribeAll(func(e Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Publish(NewStatusSentEvent("x", ModeAuto))
		}()
	}
	wg.Wait()

	if count != 50 {
		t.Errorf("count = %d, want 50", count)
	}
}

func TestEventTypes(t *testing.T) {
	tests := []struct {
		event Event
		want  string
	}{
		{NewWorkerStartedEvent("w", 1, "p"), TypeWorkerStarted},
		{NewWorkerSpawnFailedEvent(nil), TypeWorkerSpawnFailed},
		{NewWorkerStoppedEvent("w", true), TypeWorkerStopped},
		{NewWorkerExitedEvent("w", 1, 2), TypeWorkerExited},
		{NewWorkerRestartEvent(0, false), TypeWorkerRestart},
		{NewStatusSentEvent("x", ModeAuto), TypeStatusSent},
		{NewStatusDroppedEvent(DropNoWorker), TypeStatusDropped},
		{NewOverrideChangedEvent(""), TypeOverrideChanged},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.event.EventType(); got != tt.want {
				t.Errorf("EventType() = %q, want %q", got, tt.want)
			}
		})
	}
}
