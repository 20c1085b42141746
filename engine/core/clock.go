package core

import "time"

// Clock measures frame times. The zero value is a stopped clock.
type Clock struct {
	startTime time.Time
	lastTick  time.Time
	elapsed   time.Duration
}

func NewClock() *Clock {
	return &Clock{}
}

// Update refreshes Elapsed. Has no effect on a stopped clock.
func (c *Clock) Update() {
	if !c.startTime.IsZero() {
		c.elapsed = time.Since(c.startTime)
	}
}

// Start resets the elapsed time and the tick reference.
func (c *Clock) Start() {
	now := time.Now()
	c.startTime = now
	c.lastTick = now
	c.elapsed = 0
}

// Stops the clock. Does not reset elapsed time.
func (c *Clock) Stop() {
	c.startTime = time.Time{}
}

func (c *Clock) Running() bool {
	return !c.startTime.IsZero()
}

// Tick updates the clock and returns the time since the previous Tick or Start.
func (c *Clock) Tick() time.Duration {
	if !c.Running() {
		return 0
	}
	c.Update()
	now := c.startTime.Add(c.elapsed)
	delta := now.Sub(c.lastTick)
	c.lastTick = now
	return delta
}

func (c *Clock) Elapsed() time.Duration {
	return c.elapsed
}
