package engine

// Clock stamps deltas with a strictly increasing sequence number.
//
// Seq is the only ordering a sink should rely on. Loops repeat across many
// deltas of the same event, and never come from a wall clock.
//
// Not safe for concurrent use; the engine pass owns its clock.
type Clock struct {
	seq int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock that continues after start.
func NewClockAt(start int64) *Clock {
	return &Clock{seq: start}
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	c.seq++
	return c.seq
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq
}
