// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package player

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/storyplay/internal/media"
	"github.com/ManuGH/storyplay/internal/settings"
	"github.com/ManuGH/storyplay/internal/story"
	"github.com/ManuGH/storyplay/internal/timeline"
)

// newSlowSettleEngine builds an engine whose cross-scene settle window is
// wide enough for a test to land a second intent inside it.
func newSlowSettleEngine(t *testing.T, scenes []story.Scene) *Engine {
	t.Helper()
	e := New(&fakeSource{}, settings.NewStore(settings.Default()), Options{
		Factory:      &recordingFactory{},
		TickInterval: 2 * time.Millisecond,
		Grace:        150 * time.Millisecond,
	})
	e.SetStory(scenes)
	t.Cleanup(e.Stop)
	return e
}

func TestSeekCrossSceneWhilePlaying(t *testing.T) {
	// Three scenes of 0.4, 0.6 and 0.5 seconds: global 1.2 lands 0.2 into
	// the third scene.
	e, _ := newTestEngine(t, staticScenes(0.4, 0.6, 0.5), nil, nil)
	require.NoError(t, e.Play())

	require.NoError(t, e.Seek(1.2))

	got := e.Status()
	assert.Equal(t, StatePlaying, got.State)
	assert.Equal(t, 2, got.SceneIndex)
	assert.GreaterOrEqual(t, got.SceneTime, 0.2)
	assert.Less(t, got.SceneTime, 0.35)
	assert.GreaterOrEqual(t, got.TotalTime, 1.2)

	waitForState(t, e, StateFinished)
}

func TestSeekSameSceneKeepsLoopRunning(t *testing.T) {
	audio := media.NewClock(1.0)
	src := &fakeSource{
		audio:    map[int]media.Element{0: audio},
		audioDur: map[int]float64{0: 1.0},
	}
	scenes := []story.Scene{{ID: "a", Order: 0, AudioURL: "n"}}
	e, _ := newTestEngine(t, scenes, src, nil)

	require.NoError(t, e.Play())
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, e.Seek(0.9))

	got := e.Status()
	assert.Equal(t, 0, got.SceneIndex)
	assert.GreaterOrEqual(t, got.SceneTime, 0.9)
	assert.Equal(t, StatePlaying, got.State)

	// Only ~0.1s of narration is left; the scene must end off the relocated
	// position, not the original one.
	waitForState(t, e, StateFinished)
}

func TestSeekWhilePausedParksPlayhead(t *testing.T) {
	e, _ := newTestEngine(t, staticScenes(0.4, 0.6, 0.5), nil, nil)

	require.NoError(t, e.Seek(0.5))
	got := e.Status()
	assert.Equal(t, StatePaused, got.State)
	assert.Equal(t, 1, got.SceneIndex)
	assert.InDelta(t, 0.1, got.SceneTime, 1e-9)

	// Play must pick up from the parked position.
	require.NoError(t, e.Play())
	resumed := e.Status()
	assert.Equal(t, 1, resumed.SceneIndex)
	assert.GreaterOrEqual(t, resumed.TotalTime, 0.5)
}

func TestSeekPastEndClampsToLastScene(t *testing.T) {
	e, _ := newTestEngine(t, staticScenes(0.4, 0.6, 0.5), nil, nil)

	require.NoError(t, e.Seek(99))
	got := e.Status()
	assert.Equal(t, 2, got.SceneIndex)
	assert.InDelta(t, 0.5, got.SceneTime, 1e-9)
	assert.InDelta(t, 1.5, got.TotalTime, 1e-9)
}

func TestSeekNegativeClampsToStart(t *testing.T) {
	e, _ := newTestEngine(t, staticScenes(0.4, 0.6), nil, nil)

	require.NoError(t, e.Seek(-3))
	got := e.Status()
	assert.Equal(t, 0, got.SceneIndex)
	assert.Zero(t, got.SceneTime)
}

func TestSeekWithoutScenes(t *testing.T) {
	e, _ := newTestEngine(t, nil, nil, nil)
	assert.ErrorIs(t, e.Seek(1), timeline.ErrNoScenes)
}

func TestSeekRelocatesMusic(t *testing.T) {
	st := settings.NewStore(settings.Settings{
		Volume: 100,
		Music:  settings.Music{Enabled: true, URL: "music.mp3", Volume: 40},
	})
	e, f := newTestEngine(t, staticScenes(0.4, 0.6, 0.5), nil, st)

	require.NoError(t, e.Play())
	require.NoError(t, e.Seek(1.2))

	music := f.lastMusic()
	require.NotNil(t, music)
	pos := music.CurrentTime()
	assert.GreaterOrEqual(t, pos, 1.2)
	assert.Less(t, pos, 1.4, "music must sit at the seek target, not its old position")
}

func TestOverlappingSeeksKeepProgressing(t *testing.T) {
	e := newSlowSettleEngine(t, staticScenes(2, 2, 2))
	require.NoError(t, e.Play())

	// First cross-scene seek enters its settle wait; the second lands
	// inside that window and must win without freezing playback.
	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		_ = e.Seek(2.5)
	}()
	time.Sleep(40 * time.Millisecond)
	require.NoError(t, e.Seek(4.5))
	<-firstDone

	before := e.Status()
	require.Equal(t, StatePlaying, before.State)
	require.Equal(t, 2, before.SceneIndex)

	time.Sleep(60 * time.Millisecond)
	after := e.Status()
	assert.Equal(t, StatePlaying, after.State)
	assert.Greater(t, after.TotalTime, before.TotalTime,
		"playback must keep advancing after overlapping seeks")

	e.Stop()
}

func TestStopDuringSeekTransitionWins(t *testing.T) {
	defer goleak.VerifyNone(t)

	e := newSlowSettleEngine(t, staticScenes(2, 2, 2))
	require.NoError(t, e.Play())

	seekDone := make(chan struct{})
	go func() {
		defer close(seekDone)
		_ = e.Seek(2.5)
	}()
	time.Sleep(40 * time.Millisecond)
	e.Stop()
	<-seekDone

	got := e.Status()
	require.Equal(t, StatePaused, got.State)

	// The superseded seek's tail must not restart playback behind the stop.
	time.Sleep(40 * time.Millisecond)
	after := e.Status()
	assert.Equal(t, StatePaused, after.State)
	assert.Equal(t, got.TotalTime, after.TotalTime)
}

func TestRepeatedSeeksStayConsistent(t *testing.T) {
	e, _ := newTestEngine(t, staticScenes(0.4, 0.6, 0.5), nil, nil)
	require.NoError(t, e.Play())

	targets := []float64{1.2, 0.1, 0.8, 1.4}
	for _, target := range targets {
		require.NoError(t, e.Seek(target))
	}

	got := e.Status()
	assert.Equal(t, StatePlaying, got.State)
	assert.Equal(t, 2, got.SceneIndex)
	assert.GreaterOrEqual(t, got.TotalTime, 1.4)

	waitForState(t, e, StateFinished)
}
