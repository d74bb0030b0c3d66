package monitor

import "time"

// coalesceDelay is the quiet period after the last relevant filesystem event
// before a single notification fires. Fixed, not configurable.
const coalesceDelay = 888 * time.Millisecond

// coalescer collapses bursts of raw filesystem events into one notification.
// It is owned by a single backend run loop and needs no locking: the run loop
// marks it on relevant events, uses its timeout as the event-wait bound, and
// fires when the wait expires with no further events.
type coalescer struct {
	delay   time.Duration
	pending bool
}

func newCoalescer(delay time.Duration) *coalescer {
	return &coalescer{delay: delay}
}

// mark records that a relevant change occurred since the last notification.
func (c *coalescer) mark() {
	c.pending = true
}

// active reports whether a notification is pending.
func (c *coalescer) active() bool {
	return c.pending
}

// pollTimeout returns the event-wait bound in milliseconds: the coalescing
// delay while a notification is pending, -1 (block forever) otherwise.
func (c *coalescer) pollTimeout() int {
	if c.pending {
		return int(c.delay / time.Millisecond)
	}
	return -1
}

// timerChan returns a channel that fires after the coalescing delay, or nil
// (blocks forever in a select) when nothing is pending.
func (c *coalescer) timerChan() <-chan time.Time {
	if c.pending {
		return time.After(c.delay)
	}
	return nil
}

// fire delivers the coalesced notification if one is pending and clears the
// pending state. Reports whether a notification was delivered.
func (c *coalescer) fire(notify func()) bool {
	if !c.pending {
		return false
	}
	c.pending = false
	if notify != nil {
		notify()
	}
	return true
}
