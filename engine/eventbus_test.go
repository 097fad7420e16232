package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"leaderboardkit/core"
)

func abortedEvent() core.Event {
	return core.NewOutcomeEvent("Leaders", core.Result{
		Entry:   core.ScoreEntry{Identity: "u@x.com", Score: 1},
		Outcome: core.OutcomeAborted,
	}, time.Millisecond)
}

func TestEventBusSync(t *testing.T) {
	bus := NewEventBus(DispatchSync)
	count := 0
	bus.Subscribe(core.EventScoreAborted, func(ctx context.Context, e core.Event) { count++ })
	bus.Subscribe(core.EventScoreCommitted, func(ctx context.Context, e core.Event) { t.Fatal("wrong type dispatched") })
	bus.Publish(context.Background(), abortedEvent())
	if count != 1 {
		t.Fatalf("want 1 got %d", count)
	}
}

func TestEventBusAsync(t *testing.T) {
	bus := NewEventBus(DispatchAsync)
	defer bus.Close()
	ch := make(chan struct{})
	bus.Subscribe(core.EventScoreAborted, func(ctx context.Context, e core.Event) { close(ch) })
	bus.Publish(context.Background(), abortedEvent())
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("timeout")
	}
}

func TestEventBusSubscribeAllAndUnsubscribe(t *testing.T) {
	bus := NewEventBus(DispatchSync)
	var count atomic.Int32
	unsubscribe := bus.SubscribeAll(func(ctx context.Context, e core.Event) { count.Add(1) })

	bus.Publish(context.Background(), abortedEvent())
	bus.Publish(context.Background(), core.NewLeaderboardChanged("Leaders", core.Leaderboard{Max: 5}))
	if count.Load() != 2 {
		t.Fatalf("want 2 got %d", count.Load())
	}

	unsubscribe()
	bus.Publish(context.Background(), abortedEvent())
	if count.Load() != 2 {
		t.Fatalf("handler ran after unsubscribe")
	}
}

func TestEventBusCloseDrainsQueue(t *testing.T) {
	bus := NewEventBus(DispatchAsync)
	var count atomic.Int32
	bus.SubscribeAll(func(ctx context.Context, e core.Event) { count.Add(1) })
	for i := 0; i < 100; i++ {
		bus.Publish(context.Background(), abortedEvent())
	}
	bus.Close()
	if count.Load() != 100 {
		t.Fatalf("want 100 dispatched before close returned, got %d", count.Load())
	}
	bus.Close()
}

func TestEventBusCloseRacingPublishLeavesNothingQueued(t *testing.T) {
	for i := 0; i < 50; i++ {
		bus := NewEventBus(DispatchAsync)
		var count atomic.Int32
		bus.SubscribeAll(func(ctx context.Context, e core.Event) { count.Add(1) })

		var wg sync.WaitGroup
		for p := 0; p < 4; p++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for n := 0; n < 50; n++ {
					bus.Publish(context.Background(), abortedEvent())
				}
			}()
		}
		bus.Close()
		wg.Wait()

		if n := len(bus.asyncQueue); n != 0 {
			t.Fatalf("%d events enqueued after workers stopped", n)
		}
		dispatched := count.Load()
		bus.Publish(context.Background(), abortedEvent())
		if count.Load() != dispatched || len(bus.asyncQueue) != 0 {
			t.Fatal("publish after close was accepted")
		}
	}
}
