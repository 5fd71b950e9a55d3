package jobs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gwlsn/transcast/internal/config"
	"github.com/gwlsn/transcast/internal/eventbus"
	"github.com/gwlsn/transcast/internal/events"
	"github.com/gwlsn/transcast/internal/ffmpeg"
	"github.com/gwlsn/transcast/internal/logger"
	"github.com/gwlsn/transcast/internal/media"
	"github.com/gwlsn/transcast/internal/scanner"
)

// driverTick bounds how long the driver waits for a completion before
// re-checking refresh/shutdown flags.
const driverTick = time.Second

// workerDone is what a finished worker goroutine reports back to the
// driver.
type workerDone struct {
	item    PendingItem
	outcome Outcome
	dropped bool // slot acquire returned "drop" (shutdown)
}

// Orchestrator owns discovery, the submit-on-demand queue, the worker
// pool, and shutdown/refresh coordination. The
// pending deque, in-flight map and submitted set are mutated only on the
// driver goroutine; control events arriving from other goroutines land in
// atomics the driver polls each tick.
type Orchestrator struct {
	cfg      *config.EffectiveConfig
	bus      *eventbus.Bus
	pipeline *Pipeline
	ctrl     *Controller
	scan     *scanner.Scanner

	pending   *PendingQueue
	inFlight  map[string]PendingItem
	submitted map[string]struct{}
	done      chan workerDone
	wg        sync.WaitGroup

	refreshFlag atomic.Bool
	pauseFlag   atomic.Bool
	fatalFlag   atomic.Bool
	interrupted atomic.Bool

	cancelMu  sync.Mutex
	cancelRun context.CancelFunc

	// Discover, when set, replaces filesystem discovery; the demo mode
	// and tests feed synthetic file lists through it.
	Discover func(ctx context.Context) ([]media.VideoFile, error)
}

func (o *Orchestrator) setCancel(cancel context.CancelFunc) {
	o.cancelMu.Lock()
	defer o.cancelMu.Unlock()
	o.cancelRun = cancel
}

func (o *Orchestrator) cancelInFlight() {
	o.cancelMu.Lock()
	defer o.cancelMu.Unlock()
	if o.cancelRun != nil {
		o.cancelRun()
	}
}

// NewOrchestrator wires the driver and subscribes its control-event
// handlers. Handlers run on publisher goroutines and only touch the
// controller and atomics.
func NewOrchestrator(cfg *config.EffectiveConfig, bus *eventbus.Bus, pipeline *Pipeline, ctrl *Controller) *Orchestrator {
	o := &Orchestrator{
		cfg:       cfg,
		bus:       bus,
		pipeline:  pipeline,
		ctrl:      ctrl,
		scan:      scanner.New(cfg.AcceptedExtensions, cfg.MinSizeBytes),
		pending:   NewPendingQueue(),
		inFlight:  make(map[string]PendingItem),
		submitted: make(map[string]struct{}),
		done:      make(chan workerDone, PoolMax*2),
	}

	bus.Subscribe(events.KindThreadsAdjust, o.onThreadsAdjust)
	bus.Subscribe(events.KindShutdownToggle, o.onShutdownToggle)
	bus.Subscribe(events.KindImmediateInterrupt, o.onImmediateInterrupt)
	bus.Subscribe(events.KindRefreshRequested, func(events.Event) { o.refreshFlag.Store(true) })
	bus.Subscribe(events.KindPauseRequested, func(events.Event) { o.pauseFlag.Store(true) })
	bus.Subscribe(events.KindFatalRequested, func(events.Event) { o.fatalFlag.Store(true) })

	return o
}

func (o *Orchestrator) onThreadsAdjust(e events.Event) {
	old, now := o.ctrl.Adjust(e.Threads)
	o.bus.Publish(events.Event{
		Kind:    events.KindActionMessage,
		Message: fmt.Sprintf("Threads: %d → %d", old, now),
		Threads: now,
	})
}

func (o *Orchestrator) onShutdownToggle(e events.Event) {
	on := o.ctrl.ToggleShutdown()
	msg := "SHUTDOWN requested"
	if !on {
		msg = "shutdown cancelled"
		o.pauseFlag.Store(false)
	}
	o.bus.Publish(events.Event{Kind: events.KindActionMessage, Message: msg})
}

func (o *Orchestrator) onImmediateInterrupt(events.Event) {
	o.interrupted.Store(true)
	o.ctrl.ForceShutdown()
	o.cancelInFlight()
	o.bus.Publish(events.Event{Kind: events.KindActionMessage, Message: "INTERRUPT: cancelling in-flight jobs"})
}

// Interrupted reports whether the run was stopped by an immediate
// interrupt; the process maps this to exit code 130.
func (o *Orchestrator) Interrupted() bool {
	return o.interrupted.Load()
}

// Run discovers work, then drives the submit-on-demand loop until the
// pending deque and in-flight set drain (or shutdown freezes the deque,
// or a fatal event tears the run down). It returns only after every
// spawned worker goroutine has exited.
func (o *Orchestrator) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	o.setCancel(cancel)
	defer cancel()

	files, err := o.discover(runCtx)
	if err != nil {
		return err
	}
	SortFiles(files, o.cfg.QueueSort, o.cfg.QueueSeed, o.cfg.AcceptedExtensions, o.cfg.Roots)
	for _, f := range files {
		o.pending.PushBack(PendingItem{File: f})
	}
	o.publishQueue()

	extDone := ctx.Done()
	for {
		if o.fatalFlag.Load() {
			cancel()
			break
		}

		o.replenish(runCtx)

		if len(o.inFlight) == 0 && (o.pending.Len() == 0 || o.ctrl.ShutdownRequested()) {
			break
		}

		select {
		case d := <-o.done:
			o.handleDone(d)
			o.drainDone()
		case <-time.After(driverTick):
		case <-extDone:
			extDone = nil
			o.interrupted.Store(true)
			o.ctrl.ForceShutdown()
		}

		if o.refreshFlag.Swap(false) {
			o.refresh(runCtx)
			o.pauseFlag.Store(false)
		}
	}

	// Keep receiving completions while the remaining workers wind down so
	// none of them blocks on a full done channel.
	waitCh := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(waitCh)
	}()
	for {
		select {
		case d := <-o.done:
			o.handleDone(d)
		case <-waitCh:
			o.drainDone()
			return nil
		}
	}
}

// discover runs the scanner over every input root, skipping files the
// mtime/path rule already classifies as compressed, and reports per-root
// counters.
func (o *Orchestrator) discover(ctx context.Context) ([]media.VideoFile, error) {
	if o.Discover != nil {
		return o.Discover(ctx)
	}
	var files []media.VideoFile
	for _, m := range o.cfg.Roots {
		counters, err := o.scan.Scan(ctx, m.Input, filepath.Base(m.Output), filepath.Base(m.Error), func(f media.VideoFile) {
			if !o.alreadyCompressed(f) {
				files = append(files, f)
			}
		})
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", m.Input, err)
		}
		logger.Info("scanned input root",
			"root", m.Input,
			"discovered", counters.Discovered,
			"ignored_too_small", counters.IgnoredTooSmall,
			"ignored_wrong_ext", counters.IgnoredWrongExt)
		o.bus.Publish(events.Event{
			Kind:   events.KindDiscoveryProgress,
			Probed: counters.Discovered,
			Total:  counters.Discovered + counters.IgnoredTooSmall + counters.IgnoredWrongExt,
		})
	}
	return files, nil
}

// alreadyCompressed applies the idempotence rule: an output
// (either the transcode container or a kept-original copy) newer than the
// source means the file needs no work this run.
func (o *Orchestrator) alreadyCompressed(f media.VideoFile) bool {
	cfg := o.cfg.ForPath(f.Path)
	mapping, rel, err := MappingFor(cfg.Roots, f.Path)
	if err != nil {
		return false
	}
	container := ffmpeg.ContainerFromArgs(cfg.EncoderArgsGPU)
	if cfg.Mode == config.ModeCPU {
		container = ffmpeg.ContainerFromArgs(cfg.EncoderArgsCPU)
	}
	if scanner.IsCompressed(f.Path, OutputPath(mapping, rel, ffmpeg.OutputExtension(container))) {
		return true
	}
	return scanner.IsCompressed(f.Path, OutputPath(mapping, rel, filepath.Ext(f.Path)))
}

// replenish refills the in-flight set up to prefetch_factor x max_threads,
// spawning one worker goroutine per submission.
func (o *Orchestrator) replenish(runCtx context.Context) {
	if o.ctrl.ShutdownRequested() || o.pauseFlag.Load() {
		return
	}
	limit := int(o.cfg.PrefetchFactor * float64(o.ctrl.MaxThreads()))
	if limit < 1 {
		limit = 1
	}
	changed := false
	for len(o.inFlight) < limit {
		item, ok := o.pending.PopFront()
		if !ok {
			break
		}
		changed = true
		o.inFlight[item.File.Path] = item
		o.submitted[item.File.Path] = struct{}{}
		o.spawn(runCtx, item)
	}
	if changed {
		o.publishQueue()
	}
}

func (o *Orchestrator) spawn(runCtx context.Context, item PendingItem) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if !o.ctrl.Acquire() {
			o.done <- workerDone{item: item, dropped: true}
			return
		}
		defer o.ctrl.Release()
		outcome := o.pipeline.Run(runCtx, item)
		o.done <- workerDone{item: item, outcome: outcome}
	}()
}

// handleDone removes a finished worker from the in-flight set and applies
// its outcome: dropped jobs return to the frozen deque, hardware-cap
// fallbacks requeue at the front with the CPU flag, verify escalations
// raise the pause/fatal flags.
func (o *Orchestrator) handleDone(d workerDone) {
	delete(o.inFlight, d.item.File.Path)

	switch {
	case d.dropped:
		o.pending.PushFront(d.item)
	case d.outcome.RequeueCPU:
		d.item.ForceCPU = true
		o.pending.PushFront(d.item)
	default:
		if d.outcome.PauseRequested {
			o.pauseFlag.Store(true)
		}
		if d.outcome.FatalRequested {
			o.fatalFlag.Store(true)
		}
	}
	o.publishQueue()
}

func (o *Orchestrator) drainDone() {
	for {
		select {
		case d := <-o.done:
			o.handleDone(d)
		default:
			return
		}
	}
}

// refresh re-runs discovery and appends files not yet submitted, queued,
// or already compressed; pending entries whose source vanished are
// pruned.
func (o *Orchestrator) refresh(ctx context.Context) {
	added := 0
	if o.Discover != nil {
		files, err := o.Discover(ctx)
		if err == nil {
			for _, f := range files {
				if _, seen := o.submitted[f.Path]; seen || o.pending.Contains(f.Path) {
					continue
				}
				o.pending.PushBack(PendingItem{File: f})
				added++
			}
		}
		o.bus.Publish(events.Event{Kind: events.KindRefreshFinished, Added: added})
		o.publishQueue()
		return
	}
	for _, m := range o.cfg.Roots {
		_, err := o.scan.Scan(ctx, m.Input, filepath.Base(m.Output), filepath.Base(m.Error), func(f media.VideoFile) {
			if _, seen := o.submitted[f.Path]; seen {
				return
			}
			if o.pending.Contains(f.Path) || o.alreadyCompressed(f) {
				return
			}
			o.pending.PushBack(PendingItem{File: f})
			added++
		})
		if err != nil {
			logger.Warn("refresh scan failed", "root", m.Input, "error", err)
		}
	}

	removed := o.pending.Prune(func(item PendingItem) bool {
		return fileExists(item.File.Path)
	})

	o.bus.Publish(events.Event{
		Kind:    events.KindRefreshFinished,
		Added:   added,
		Removed: removed,
	})
	o.publishQueue()
}

func (o *Orchestrator) publishQueue() {
	o.bus.Publish(events.Event{
		Kind:     events.KindQueueUpdated,
		Pending:  o.pending.Len(),
		InFlight: len(o.inFlight),
	})
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
