package uistate

import (
	"fmt"
	"testing"

	"github.com/gwlsn/transcast/internal/eventbus"
	"github.com/gwlsn/transcast/internal/events"
)

func newStateAndBus() (*State, *eventbus.Bus) {
	bus := eventbus.New()
	state := NewState(4)
	NewManager(state, bus)
	return state, bus
}

func TestCountersPerTerminalEvent(t *testing.T) {
	state, bus := newStateAndBus()

	bus.Publish(events.Event{Kind: events.KindJobCompleted, JobID: "1", Outcome: events.OutcomeAccepted})
	bus.Publish(events.Event{Kind: events.KindJobCompleted, JobID: "2", Outcome: events.OutcomeKeptOriginal})
	bus.Publish(events.Event{Kind: events.KindJobCompleted, JobID: "3", Outcome: events.OutcomeSkipped})
	bus.Publish(events.Event{Kind: events.KindJobCompleted, JobID: "4", Outcome: events.OutcomeAlreadyEncoded})
	bus.Publish(events.Event{Kind: events.KindJobFailed, JobID: "5"})
	bus.Publish(events.Event{Kind: events.KindHwCapExceeded, JobID: "6"})

	snap := state.Snapshot()
	if snap.Counters.Completed != 2 {
		t.Fatalf("accepted + already-encoded must both count completed, got %d", snap.Counters.Completed)
	}
	if snap.Counters.KeptOriginal != 1 || snap.Counters.Skipped != 1 || snap.Counters.Failed != 1 || snap.Counters.HwCap != 1 {
		t.Fatalf("counters wrong: %+v", snap.Counters)
	}
}

func TestActiveJobsTrackStartAndProgress(t *testing.T) {
	state, bus := newStateAndBus()

	bus.Publish(events.Event{Kind: events.KindJobStarted, JobID: "j1", SourcePath: "/a.mp4"})
	bus.Publish(events.Event{Kind: events.KindJobProgress, JobID: "j1", Progress: events.Progress{Percent: 42, Speed: 1.5}})

	snap := state.Snapshot()
	if len(snap.Active) != 1 || snap.Active[0].Percent != 42 || snap.Active[0].Speed != 1.5 {
		t.Fatalf("active job progress wrong: %+v", snap.Active)
	}

	bus.Publish(events.Event{Kind: events.KindJobCompleted, JobID: "j1", Outcome: events.OutcomeAccepted})
	if snap = state.Snapshot(); len(snap.Active) != 0 {
		t.Fatal("terminal event must remove the active entry")
	}
}

func TestRecentJobsBounded(t *testing.T) {
	state, bus := newStateAndBus()

	for i := 0; i < 9; i++ {
		bus.Publish(events.Event{
			Kind:       events.KindJobCompleted,
			JobID:      fmt.Sprintf("j%d", i),
			SourcePath: fmt.Sprintf("/clip%d.mp4", i),
			Outcome:    events.OutcomeAccepted,
		})
	}

	snap := state.Snapshot()
	if len(snap.Recent) != recentJobsMax {
		t.Fatalf("recent list must stay bounded at %d, got %d", recentJobsMax, len(snap.Recent))
	}
	if snap.Recent[len(snap.Recent)-1].SourcePath != "/clip8.mp4" {
		t.Fatalf("recent list must keep the newest entries: %+v", snap.Recent)
	}
}

func TestActionMessageAndThreads(t *testing.T) {
	state, bus := newStateAndBus()

	bus.Publish(events.Event{Kind: events.KindActionMessage, Message: "Threads: 4 → 5", Threads: 5})

	snap := state.Snapshot()
	if snap.Threads != 5 {
		t.Fatalf("threads not updated: %d", snap.Threads)
	}
	if snap.LastAction != "Threads: 4 → 5" {
		t.Fatalf("action line wrong: %q", snap.LastAction)
	}
}

func TestQueueUpdatedFeedsPending(t *testing.T) {
	state, bus := newStateAndBus()
	bus.Publish(events.Event{Kind: events.KindQueueUpdated, Pending: 17})
	if state.Snapshot().Pending != 17 {
		t.Fatal("pending count not tracked")
	}
}

func TestOverlayTabCycleAndClose(t *testing.T) {
	state, bus := newStateAndBus()

	bus.Publish(events.Event{Kind: events.KindOverlayTab, Message: "logs"})
	if state.Snapshot().OverlayTab != "logs" {
		t.Fatal("tab open not tracked")
	}

	bus.Publish(events.Event{Kind: events.KindOverlayTab, Message: "logs-next-page"})
	bus.Publish(events.Event{Kind: events.KindOverlayTab, Message: "logs-next-page"})
	bus.Publish(events.Event{Kind: events.KindOverlayTab, Message: "logs-prev-page"})
	if got := state.Snapshot().LogPage; got != 1 {
		t.Fatalf("log page wrong: %d", got)
	}

	bus.Publish(events.Event{Kind: events.KindOverlayTab, Message: "cycle"})
	if got := state.Snapshot().OverlayTab; got != "threads" {
		t.Fatalf("cycle from logs must reach threads, got %q", got)
	}

	bus.Publish(events.Event{Kind: events.KindOverlayTab, Message: "close"})
	snap := state.Snapshot()
	if snap.OverlayTab != "" || snap.LogPage != 0 {
		t.Fatal("close must reset tab and pagination")
	}
}
