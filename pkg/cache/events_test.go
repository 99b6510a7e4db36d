package cache

import (
	"testing"

	"github.com/tiercache/tiercache/pkg/types"
)

// TestEventBus_PublishSubscribe tests basic delivery
func TestEventBus_PublishSubscribe(t *testing.T) {
	t.Parallel()

	bus := newEventBus()
	ch, cancel := bus.subscribe(4)
	defer cancel()

	bus.publish(types.Event{Kind: types.EventHit, Key: "a"})

	ev := <-ch
	if ev.Kind != types.EventHit || ev.Key != "a" {
		t.Errorf("unexpected event: %+v", ev)
	}
}

// TestEventBus_DropWhenFull verifies a lagging subscriber loses events
// instead of blocking the publisher
func TestEventBus_DropWhenFull(t *testing.T) {
	t.Parallel()

	bus := newEventBus()
	ch, cancel := bus.subscribe(1)
	defer cancel()

	bus.publish(types.Event{Kind: types.EventSet, Key: "kept"})
	bus.publish(types.Event{Kind: types.EventSet, Key: "dropped"})

	ev := <-ch
	if ev.Key != "kept" {
		t.Errorf("expected first event kept, got %+v", ev)
	}
	select {
	case ev := <-ch:
		t.Errorf("expected second event dropped, got %+v", ev)
	default:
	}
}

// TestEventBus_Cancel verifies cancel closes the channel and stops delivery
func TestEventBus_Cancel(t *testing.T) {
	t.Parallel()

	bus := newEventBus()
	ch, cancel := bus.subscribe(4)

	cancel()
	bus.publish(types.Event{Kind: types.EventSet})

	if _, ok := <-ch; ok {
		t.Error("expected closed channel after cancel")
	}
}

// TestEventBus_Close verifies subscribing after close yields a closed channel
func TestEventBus_Close(t *testing.T) {
	t.Parallel()

	bus := newEventBus()
	ch, _ := bus.subscribe(4)
	bus.close()

	if _, ok := <-ch; ok {
		t.Error("expected subscriber channel closed")
	}

	late, cancel := bus.subscribe(4)
	defer cancel()
	if _, ok := <-late; ok {
		t.Error("expected closed channel for late subscriber")
	}
}
