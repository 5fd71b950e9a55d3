package jobs

import "sync"

// Controller is the scheduler's concurrency controller: a mutable
// logical thread cap, an active-slot count, a shutdown flag, and one
// condition variable coordinating all three. Workers block in Acquire
// until a slot frees or shutdown is requested.
type Controller struct {
	mu   sync.Mutex
	cond *sync.Cond

	maxThreads int
	runtimeMax int
	active     int
	shutdown   bool
}

// NewController builds a controller starting at startThreads, runtime-
// clamped to [1, runtimeMax].
func NewController(startThreads, runtimeMax int) *Controller {
	if runtimeMax < 1 || runtimeMax > PoolMax {
		runtimeMax = DefaultRuntimeMax
	}
	c := &Controller{
		maxThreads: ClampThreads(startThreads, runtimeMax),
		runtimeMax: runtimeMax,
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Acquire blocks until a worker slot is granted (returns true) or shutdown
// is requested (returns false; the caller must drop the job without
// processing it).
func (c *Controller) Acquire() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.active >= c.maxThreads && !c.shutdown {
		c.cond.Wait()
	}
	if c.shutdown {
		return false
	}
	c.active++
	return true
}

// Release returns a worker slot and wakes all waiters.
func (c *Controller) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active > 0 {
		c.active--
	}
	c.cond.Broadcast()
}

// Adjust moves the logical cap by delta, clamped to [1, runtimeMax], and
// returns the old and new values. A raised cap wakes waiting workers.
func (c *Controller) Adjust(delta int) (old, now int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	old = c.maxThreads
	c.maxThreads = ClampThreads(c.maxThreads+delta, c.runtimeMax)
	c.cond.Broadcast()
	return old, c.maxThreads
}

// ToggleShutdown flips the graceful-shutdown flag (a
// second request before workers drain cancels the first) and returns the
// new state.
func (c *Controller) ToggleShutdown() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shutdown = !c.shutdown
	c.cond.Broadcast()
	return c.shutdown
}

// ForceShutdown sets the shutdown flag unconditionally; the immediate-
// interrupt path, not toggleable.
func (c *Controller) ForceShutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shutdown = true
	c.cond.Broadcast()
}

// ShutdownRequested reports the current shutdown flag.
func (c *Controller) ShutdownRequested() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shutdown
}

// Active returns the number of held worker slots.
func (c *Controller) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// MaxThreads returns the current logical cap.
func (c *Controller) MaxThreads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxThreads
}
