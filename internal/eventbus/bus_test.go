package eventbus

import (
	"testing"

	"github.com/gwlsn/transcast/internal/events"
)

func TestPublishInvokesHandlersInSubscriptionOrder(t *testing.T) {
	bus := New()
	var order []int
	bus.Subscribe(events.KindJobStarted, func(events.Event) { order = append(order, 1) })
	bus.Subscribe(events.KindJobStarted, func(events.Event) { order = append(order, 2) })
	bus.Subscribe(events.KindJobStarted, func(events.Event) { order = append(order, 3) })

	bus.Publish(events.Event{Kind: events.KindJobStarted})

	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Fatalf("handlers ran out of order: %v", order)
	}
}

func TestPublishOnlyReachesMatchingKind(t *testing.T) {
	bus := New()
	calls := 0
	bus.Subscribe(events.KindJobFailed, func(events.Event) { calls++ })

	bus.Publish(events.Event{Kind: events.KindJobStarted})
	bus.Publish(events.Event{Kind: events.KindJobFailed})

	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestPanickingHandlerDoesNotStopLaterHandlers(t *testing.T) {
	bus := New()
	reached := false
	bus.Subscribe(events.KindJobCompleted, func(events.Event) { panic("boom") })
	bus.Subscribe(events.KindJobCompleted, func(events.Event) { reached = true })

	bus.Publish(events.Event{Kind: events.KindJobCompleted})

	if !reached {
		t.Fatal("second handler did not run after first panicked")
	}
}

func TestNoDeliveryAfterClose(t *testing.T) {
	bus := New()
	calls := 0
	bus.Subscribe(events.KindJobStarted, func(events.Event) { calls++ })

	bus.Close()
	bus.Publish(events.Event{Kind: events.KindJobStarted})

	if calls != 0 {
		t.Fatalf("handler ran after Close: %d calls", calls)
	}
}

func TestLateSubscriberSeesOnlySubsequentEvents(t *testing.T) {
	bus := New()
	bus.Publish(events.Event{Kind: events.KindJobStarted})

	calls := 0
	bus.Subscribe(events.KindJobStarted, func(events.Event) { calls++ })
	bus.Publish(events.Event{Kind: events.KindJobStarted})

	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}
