// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package captions

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ManuGH/storyplay/internal/settings"
	"github.com/ManuGH/storyplay/internal/story"
)

func timedScene() story.Scene {
	return story.Scene{
		ID:   "s0",
		Text: "the quick brown fox jumps over",
		WordTimestamps: []story.WordStamp{
			{Word: "the", Start: 0.0, End: 0.3},
			{Word: "quick", Start: 0.3, End: 0.7},
			{Word: "brown", Start: 0.7, End: 1.1},
			{Word: "fox", Start: 1.1, End: 1.5},
			{Word: "jumps", Start: 1.5, End: 2.0},
			{Word: "over", Start: 2.0, End: 2.4},
		},
	}
}

func cfg(batch int) settings.Captions {
	c := settings.Default().Captions
	c.WordsPerBatch = batch
	return c
}

func TestResolveDisabled(t *testing.T) {
	c := cfg(4)
	c.Enabled = false
	got := Resolve(timedScene(), c, 1.0)
	assert.Equal(t, Cue{ActiveWord: -1}, got)
}

func TestResolveStaticFallback(t *testing.T) {
	scene := story.Scene{Text: "no timestamps here"}
	got := Resolve(scene, cfg(4), 3.0)
	assert.True(t, got.Static)
	assert.Equal(t, "no timestamps here", got.Text)
	assert.Equal(t, -1, got.ActiveWord)
	assert.Empty(t, got.Words)
}

func TestResolveBatches(t *testing.T) {
	scene := timedScene()

	tests := []struct {
		name       string
		t          float64
		wantText   string
		wantActive int
	}{
		{name: "first word active", t: 0.1, wantText: "the quick brown", wantActive: 0},
		{name: "second word active", t: 0.5, wantText: "the quick brown", wantActive: 1},
		{name: "second batch", t: 1.2, wantText: "fox jumps over", wantActive: 0},
		{name: "last word active", t: 2.2, wantText: "fox jumps over", wantActive: 2},
		{name: "past last word keeps last batch", t: 5.0, wantText: "fox jumps over", wantActive: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(scene, cfg(3), tt.t)
			assert.False(t, got.Static)
			assert.Equal(t, tt.wantText, got.Text)
			assert.Equal(t, tt.wantActive, got.ActiveWord)
		})
	}
}

func TestResolveBeforeFirstWord(t *testing.T) {
	scene := timedScene()
	// Narration with a leading pause: show the first batch, nothing active.
	shifted := scene
	shifted.WordTimestamps = make([]story.WordStamp, len(scene.WordTimestamps))
	copy(shifted.WordTimestamps, scene.WordTimestamps)
	for i := range shifted.WordTimestamps {
		shifted.WordTimestamps[i].Start += 1.0
		shifted.WordTimestamps[i].End += 1.0
	}

	got := Resolve(shifted, cfg(3), 0.2)
	assert.Equal(t, "the quick brown", got.Text)
	assert.Equal(t, -1, got.ActiveWord)
}

func TestResolveTextTransform(t *testing.T) {
	c := cfg(2)
	c.TextTransform = "uppercase"
	got := Resolve(timedScene(), c, 0.1)
	assert.Equal(t, "THE QUICK", got.Text)
}

func TestResolveZeroBatchShowsAll(t *testing.T) {
	got := Resolve(timedScene(), cfg(0), 0.1)
	assert.Equal(t, "the quick brown fox jumps over", got.Text)
	assert.Equal(t, 0, got.ActiveWord)
}
