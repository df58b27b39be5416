package timectrl

// SimClock is read access to a client's virtual time. Components that only
// need to know "now" depend on it rather than on the concrete clock.
type SimClock interface {
	// Now returns the current virtual time in scenario clock units.
	Now() int64
}

// VirtualClock is one client's timestamp cursor. It only moves forward and
// runs until Now exceeds the configured limit.
type VirtualClock struct {
	now   int64
	limit int64
	scale int64
}

// NewVirtualClock constructs a clock starting at start that runs while
// Now() <= limit. scale multiplies the clock when stamping actions; values
// below 1 are treated as 1.
func NewVirtualClock(start, limit, scale int64) *VirtualClock {
	if scale < 1 {
		scale = 1
	}
	return &VirtualClock{now: start, limit: limit, scale: scale}
}

// Now returns the current virtual time. Implements SimClock.
func (c *VirtualClock) Now() int64 { return c.now }

// Limit returns the last clock value at which the client still acts.
func (c *VirtualClock) Limit() int64 { return c.limit }

// Advance moves the clock forward by d. Negative durations are ignored so
// the clock stays monotonic.
func (c *VirtualClock) Advance(d int64) {
	if d > 0 {
		c.now += d
	}
}

// Running reports whether the client is still inside the run duration.
func (c *VirtualClock) Running() bool { return c.now <= c.limit }

// Stamp returns the action timestamp for the current tick plus offset.
func (c *VirtualClock) Stamp(offset int64) int64 {
	return c.now*c.scale + offset
}

// Deadline is an absolute point in virtual time, e.g. the next
// subscription renewal.
type Deadline struct {
	at int64
}

// NewDeadline returns a deadline at the given clock value.
func NewDeadline(at int64) *Deadline { return &Deadline{at: at} }

// At returns the clock value of the deadline.
func (d *Deadline) At() int64 { return d.at }

// Due reports whether clock has reached the deadline.
func (d *Deadline) Due(clock SimClock) bool { return clock.Now() >= d.at }

// Extend pushes the deadline back by gap.
func (d *Deadline) Extend(gap int64) {
	if gap > 0 {
		d.at += gap
	}
}
