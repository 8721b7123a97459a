// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package media

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitEnded(t *testing.T, c *Clock, within time.Duration) {
	t.Helper()
	select {
	case <-c.Ended():
	case <-time.After(within):
		t.Fatal("element did not signal natural end in time")
	}
}

func TestClockPlaysToNaturalEnd(t *testing.T) {
	c := NewClock(0.05)
	require.NoError(t, c.Play(context.Background()))
	waitEnded(t, c, time.Second)
	assert.InDelta(t, 0.05, c.CurrentTime(), 1e-9)
}

func TestClockPauseResumePreservesPosition(t *testing.T) {
	c := NewClock(10)
	require.NoError(t, c.Play(context.Background()))
	time.Sleep(30 * time.Millisecond)
	c.Pause()

	pos := c.CurrentTime()
	assert.Greater(t, pos, 0.0)

	// Paused position must not drift.
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, pos, c.CurrentTime())

	require.NoError(t, c.Play(context.Background()))
	time.Sleep(20 * time.Millisecond)
	assert.Greater(t, c.CurrentTime(), pos)
	c.Pause()
}

func TestClockSeekWhilePaused(t *testing.T) {
	c := NewClock(10)
	c.Seek(4.2)
	assert.InDelta(t, 4.2, c.CurrentTime(), 1e-9)

	// Clamped at both ends.
	c.Seek(-1)
	assert.Equal(t, 0.0, c.CurrentTime())
	c.Seek(99)
	assert.Equal(t, 10.0, c.CurrentTime())
}

func TestClockSeekWhilePlayingReschedulesEnd(t *testing.T) {
	c := NewClock(60)
	require.NoError(t, c.Play(context.Background()))

	// Jump near the end: natural end must fire from the new position.
	c.Seek(59.98)
	waitEnded(t, c, time.Second)
	assert.InDelta(t, 60.0, c.CurrentTime(), 1e-9)
}

func TestClockPauseBeatsTimer(t *testing.T) {
	c := NewClock(0.03)
	require.NoError(t, c.Play(context.Background()))
	c.Pause()

	select {
	case <-c.Ended():
		t.Fatal("paused element must not signal natural end")
	case <-time.After(80 * time.Millisecond):
	}
}

func TestClockReplayAfterEndIsInstant(t *testing.T) {
	c := NewClock(0.02)
	require.NoError(t, c.Play(context.Background()))
	waitEnded(t, c, time.Second)

	// Unseeked replay at the end position ends immediately.
	require.NoError(t, c.Play(context.Background()))
	waitEnded(t, c, 100*time.Millisecond)
}

func TestClockUnboundedNeverEnds(t *testing.T) {
	c := NewClock(0)
	require.NoError(t, c.Play(context.Background()))
	defer c.Pause()

	c.Seek(1234)
	select {
	case <-c.Ended():
		t.Fatal("unbounded element must never signal natural end")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Greater(t, c.CurrentTime(), 1234.0)
}

func TestClockVolumeClamped(t *testing.T) {
	c := NewClock(1)
	c.SetVolume(1.7)
	assert.Equal(t, 1.0, c.Volume())
	c.SetVolume(-0.3)
	assert.Equal(t, 0.0, c.Volume())
	c.SetVolume(0.45)
	assert.Equal(t, 0.45, c.Volume())
}
