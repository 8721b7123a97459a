// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package media

import (
	"context"
	"sync"
	"time"
)

// Clock is a wall-clock driven Element. A Clock with a positive duration ends
// naturally once its position reaches the duration; a Clock with duration 0 is
// unbounded and never ends on its own (background music, unknown metadata).
type Clock struct {
	mu        sync.Mutex
	duration  float64
	pos       float64
	volume    float64
	playing   bool
	startedAt time.Time
	timer     *time.Timer
	ended     chan struct{}
	endedDone bool
}

// NewClock creates a paused Clock at position 0.
func NewClock(duration float64) *Clock {
	if duration < 0 {
		duration = 0
	}
	return &Clock{duration: duration, volume: 1}
}

var _ Element = (*Clock)(nil)

func (c *Clock) Play(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.playing {
		return nil
	}

	c.ended = make(chan struct{})
	c.endedDone = false

	if c.bounded() {
		remaining := c.duration - c.pos
		if remaining <= 0 {
			// Position already at the end: this play-through is over before
			// it starts, matching an ended element being replayed unseeked.
			c.pos = c.duration
			c.closeEndedLocked()
			return nil
		}
		c.timer = time.AfterFunc(durationOf(remaining), c.finish)
	}
	c.playing = true
	c.startedAt = time.Now()
	return nil
}

func (c *Clock) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.playing {
		return
	}
	c.stopTimerLocked()
	c.pos = c.positionLocked()
	c.playing = false
}

func (c *Clock) Seek(offset float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if offset < 0 {
		offset = 0
	}
	if c.bounded() && offset > c.duration {
		offset = c.duration
	}
	c.pos = offset
	if !c.playing {
		return
	}
	c.startedAt = time.Now()
	c.stopTimerLocked()
	if c.bounded() {
		remaining := c.duration - offset
		if remaining <= 0 {
			c.playing = false
			c.closeEndedLocked()
			return
		}
		c.timer = time.AfterFunc(durationOf(remaining), c.finish)
	}
}

func (c *Clock) CurrentTime() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.positionLocked()
}

func (c *Clock) Duration() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.duration
}

func (c *Clock) SetVolume(v float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	c.volume = v
}

// Volume reports the last volume set. Exposed for tests asserting that the
// live volume cell reaches the element.
func (c *Clock) Volume() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.volume
}

func (c *Clock) Ended() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ended == nil {
		// Never played: hand out a channel that can only be armed by Play.
		c.ended = make(chan struct{})
	}
	return c.ended
}

// finish is the timer callback for a natural end.
func (c *Clock) finish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.playing {
		// A pause or seek won the race against the timer.
		return
	}
	c.playing = false
	c.pos = c.duration
	c.closeEndedLocked()
}

func (c *Clock) positionLocked() float64 {
	p := c.pos
	if c.playing {
		p += time.Since(c.startedAt).Seconds()
	}
	if c.bounded() && p > c.duration {
		p = c.duration
	}
	return p
}

func (c *Clock) bounded() bool { return c.duration > 0 }

func (c *Clock) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Clock) closeEndedLocked() {
	if c.ended != nil && !c.endedDone {
		close(c.ended)
		c.endedDone = true
	}
}

func durationOf(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
