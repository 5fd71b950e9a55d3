// Package uistate holds the dashboard view-model: an
// event subscriber updating counters, active/recent job lists, and the
// timed action line behind one lock, exposing immutable snapshots to a
// renderer.
package uistate

import (
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/gwlsn/transcast/internal/eventbus"
	"github.com/gwlsn/transcast/internal/events"
)

const (
	recentJobsMax = 5
	actionTTL     = 60 * time.Second
)

// ActiveJob is one in-flight job's latest progress.
type ActiveJob struct {
	JobID      string
	SourcePath string
	Percent    float64
	Speed      float64
	ETA        string
	StartedAt  time.Time
}

// RecentJob is one terminal classification kept for the dashboard's
// recent list.
type RecentJob struct {
	SourcePath string
	Result     string // "completed", "already-encoded", "kept-original", "skipped", "failed", "hw-cap"
	Reason     string
	FinishedAt time.Time
}

// Counters are the per-terminal-state totals, updated atomically per
// terminal event.
type Counters struct {
	Completed    int
	KeptOriginal int
	Failed       int
	HwCap        int
	Skipped      int
}

// Snapshot is the immutable view handed to the renderer.
type Snapshot struct {
	Counters Counters

	Active  []ActiveJob
	Recent  []RecentJob
	Pending int

	Threads    int
	LastAction string

	JobsPerMin float64
	ETA        string

	OverlayTab string
	LogPage    int

	Elapsed time.Duration
}

// State is the view-model. All mutation happens through the Manager's
// event handlers under one lock.
type State struct {
	mu sync.Mutex

	counters Counters
	active   map[string]ActiveJob
	recent   []RecentJob
	pending  int
	threads  int

	lastAction   string
	lastActionAt time.Time

	overlayTab string
	logPage    int

	startedAt   time.Time
	completedAt []time.Time // terminal-event times inside the rolling window
}

// NewState creates an empty view-model.
func NewState(startThreads int) *State {
	return &State{
		active:    make(map[string]ActiveJob),
		threads:   startThreads,
		startedAt: time.Now(),
	}
}

// Snapshot copies the current view-model.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Counters:   s.counters,
		Pending:    s.pending,
		Threads:    s.threads,
		OverlayTab: s.overlayTab,
		LogPage:    s.logPage,
		Elapsed:    time.Since(s.startedAt),
	}

	if time.Since(s.lastActionAt) < actionTTL {
		snap.LastAction = s.lastAction
	}

	snap.Active = make([]ActiveJob, 0, len(s.active))
	for _, a := range s.active {
		snap.Active = append(snap.Active, a)
	}
	snap.Recent = append([]RecentJob(nil), s.recent...)

	rate := s.throughputLocked()
	snap.JobsPerMin = rate
	if rate > 0 && s.pending > 0 {
		snap.ETA = humanize.Time(time.Now().Add(time.Duration(float64(s.pending)/rate*60) * time.Second))
	}
	return snap
}

// throughputLocked computes terminal events per minute over a 5-minute
// rolling window.
func (s *State) throughputLocked() float64 {
	cutoff := time.Now().Add(-5 * time.Minute)
	kept := s.completedAt[:0]
	for _, t := range s.completedAt {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	s.completedAt = kept
	if len(kept) == 0 {
		return 0
	}
	window := time.Since(kept[0])
	if window < time.Second {
		return 0
	}
	return float64(len(kept)) / window.Minutes()
}

// Manager subscribes the view-model to every published event kind.
type Manager struct {
	state *State
}

// NewManager attaches a State to the bus.
func NewManager(state *State, bus *eventbus.Bus) *Manager {
	m := &Manager{state: state}

	bus.Subscribe(events.KindJobStarted, m.onJobStarted)
	bus.Subscribe(events.KindJobProgress, m.onJobProgress)
	bus.Subscribe(events.KindJobCompleted, m.onJobCompleted)
	bus.Subscribe(events.KindJobFailed, m.onJobFailed)
	bus.Subscribe(events.KindHwCapExceeded, m.onHwCapExceeded)
	bus.Subscribe(events.KindQueueUpdated, m.onQueueUpdated)
	bus.Subscribe(events.KindRefreshFinished, m.onRefreshFinished)
	bus.Subscribe(events.KindActionMessage, m.onActionMessage)
	bus.Subscribe(events.KindOverlayTab, m.onOverlayTab)
	bus.Subscribe(events.KindPauseRequested, m.onPauseRequested)

	return m
}

// State returns the managed view-model.
func (m *Manager) State() *State {
	return m.state
}

func (m *Manager) onJobStarted(e events.Event) {
	s := m.state
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[e.JobID] = ActiveJob{
		JobID:      e.JobID,
		SourcePath: e.SourcePath,
		StartedAt:  time.Now(),
	}
}

func (m *Manager) onJobProgress(e events.Event) {
	s := m.state
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.active[e.JobID]
	if !ok {
		return
	}
	a.Percent = e.Progress.Percent
	a.Speed = e.Progress.Speed
	a.ETA = e.Progress.ETA
	s.active[e.JobID] = a
}

func (m *Manager) onJobCompleted(e events.Event) {
	result := "completed"
	switch e.Outcome {
	case events.OutcomeKeptOriginal:
		result = "kept-original"
	case events.OutcomeSkipped:
		result = "skipped"
	case events.OutcomeAlreadyEncoded:
		result = "already-encoded"
	}
	m.finish(e, result)
}

func (m *Manager) onJobFailed(e events.Event) {
	m.finish(e, "failed")
}

func (m *Manager) onHwCapExceeded(e events.Event) {
	m.finish(e, "hw-cap")
}

// finish applies one terminal event: counter bump, active removal, recent
// push.
func (m *Manager) finish(e events.Event, result string) {
	s := m.state
	s.mu.Lock()
	defer s.mu.Unlock()

	switch result {
	case "completed", "already-encoded":
		s.counters.Completed++
	case "kept-original":
		s.counters.KeptOriginal++
	case "skipped":
		s.counters.Skipped++
	case "failed":
		s.counters.Failed++
	case "hw-cap":
		s.counters.HwCap++
	}

	delete(s.active, e.JobID)
	s.completedAt = append(s.completedAt, time.Now())

	s.recent = append(s.recent, RecentJob{
		SourcePath: e.SourcePath,
		Result:     result,
		Reason:     e.Reason,
		FinishedAt: time.Now(),
	})
	if len(s.recent) > recentJobsMax {
		s.recent = s.recent[len(s.recent)-recentJobsMax:]
	}
}

func (m *Manager) onQueueUpdated(e events.Event) {
	s := m.state
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = e.Pending
}

func (m *Manager) onRefreshFinished(e events.Event) {
	m.setAction(fmt.Sprintf("Refresh: +%d / -%d", e.Added, e.Removed))
}

func (m *Manager) onActionMessage(e events.Event) {
	s := m.state
	s.mu.Lock()
	if e.Threads > 0 {
		s.threads = e.Threads
	}
	s.mu.Unlock()
	m.setAction(e.Message)
}

func (m *Manager) onPauseRequested(e events.Event) {
	m.setAction("PAUSED: " + e.Reason)
}

func (m *Manager) onOverlayTab(e events.Event) {
	s := m.state
	s.mu.Lock()
	defer s.mu.Unlock()
	switch e.Message {
	case "close":
		s.overlayTab = ""
		s.logPage = 0
	case "logs-next-page":
		s.logPage++
	case "logs-prev-page":
		if s.logPage > 0 {
			s.logPage--
		}
	case "cycle":
		s.overlayTab = nextTab(s.overlayTab)
	default:
		s.overlayTab = e.Message
	}
}

// overlayOrder is the Tab-cycle order of the dashboard's overlay tabs.
var overlayOrder = []string{"completed", "failed", "metadata", "errors", "logs", "threads"}

func nextTab(current string) string {
	for i, t := range overlayOrder {
		if t == current {
			return overlayOrder[(i+1)%len(overlayOrder)]
		}
	}
	return overlayOrder[0]
}

func (m *Manager) setAction(msg string) {
	s := m.state
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastAction = msg
	s.lastActionAt = time.Now()
}
