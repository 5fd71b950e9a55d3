// Package keyboard runs a dedicated input goroutine that reads the raw
// terminal and translates keys into control events. Delivery is
// synchronous through the Event Bus; only the producing thread differs
// from the workers.
package keyboard

import (
	"context"
	"os"

	"github.com/mattn/go-isatty"

	"github.com/gwlsn/transcast/internal/eventbus"
	"github.com/gwlsn/transcast/internal/events"
	"github.com/gwlsn/transcast/internal/logger"
)

// Controller owns the raw-mode terminal state and the reader goroutine.
type Controller struct {
	bus         *eventbus.Bus
	interactive bool
	restore     func()
}

// New builds a Controller; interactivity is decided by whether stdin is a
// terminal.
func New(bus *eventbus.Bus) *Controller {
	return &Controller{
		bus:         bus,
		interactive: isatty.IsTerminal(os.Stdin.Fd()),
	}
}

// Interactive reports whether a terminal is attached; non-interactive
// runs skip raw mode and produce no keyboard events.
func (c *Controller) Interactive() bool {
	return c.interactive
}

// Start switches the terminal into raw mode and launches the reader
// goroutine. On a non-interactive stdin it is a no-op.
func (c *Controller) Start(ctx context.Context) error {
	if !c.interactive {
		logger.Debug("stdin is not a terminal, keyboard controller disabled")
		return nil
	}
	restore, err := enterRawMode(int(os.Stdin.Fd()))
	if err != nil {
		return err
	}
	c.restore = restore

	go c.readLoop(ctx)
	return nil
}

// Stop restores the terminal state.
func (c *Controller) Stop() {
	if c.restore != nil {
		c.restore()
		c.restore = nil
	}
}

func (c *Controller) readLoop(ctx context.Context) {
	buf := make([]byte, 1)
	for {
		if ctx.Err() != nil {
			return
		}
		n, err := os.Stdin.Read(buf)
		if err != nil || n == 0 {
			return
		}
		if e, ok := translate(buf[0]); ok {
			c.bus.Publish(e)
		}
	}
}

// translate maps one raw key to its control event (see the "Keyboard
// mapping").
func translate(b byte) (events.Event, bool) {
	switch b {
	case ',', '<':
		return events.Event{Kind: events.KindThreadsAdjust, Threads: -1}, true
	case '.', '>':
		return events.Event{Kind: events.KindThreadsAdjust, Threads: +1}, true
	case 's', 'S':
		return events.Event{Kind: events.KindShutdownToggle}, true
	case 'r', 'R':
		return events.Event{Kind: events.KindRefreshRequested}, true
	case 'c', 'C':
		return events.Event{Kind: events.KindOverlayTab, Message: "completed"}, true
	case 'f', 'F':
		return events.Event{Kind: events.KindOverlayTab, Message: "failed"}, true
	case 'm', 'M':
		return events.Event{Kind: events.KindOverlayTab, Message: "metadata"}, true
	case 'e', 'E':
		return events.Event{Kind: events.KindOverlayTab, Message: "errors"}, true
	case 'l', 'L':
		return events.Event{Kind: events.KindOverlayTab, Message: "logs"}, true
	case 't', 'T':
		return events.Event{Kind: events.KindOverlayTab, Message: "threads"}, true
	case '\t':
		return events.Event{Kind: events.KindOverlayTab, Message: "cycle"}, true
	case '[':
		return events.Event{Kind: events.KindOverlayTab, Message: "logs-prev-page"}, true
	case ']':
		return events.Event{Kind: events.KindOverlayTab, Message: "logs-next-page"}, true
	case 0x1b: // Esc
		return events.Event{Kind: events.KindOverlayTab, Message: "close"}, true
	case 0x03: // Ctrl+C
		return events.Event{Kind: events.KindImmediateInterrupt}, true
	}
	return events.Event{}, false
}
