// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package timeline maps between global playback time and per-scene offsets.
//
// All functions are pure and recompute from the scene list on every call:
// scene durations change as media metadata loads asynchronously, so cached
// prefix sums would go stale.
package timeline

import (
	"errors"

	"github.com/ManuGH/storyplay/internal/story"
)

// ErrNoScenes is returned when a position is requested on an empty story.
var ErrNoScenes = errors.New("timeline: story has no scenes")

// MediaDurations reports durations of loaded media per scene index.
// Zero means "not (yet) known". A nil MediaDurations is valid and behaves as
// if no media has loaded.
type MediaDurations interface {
	AudioDuration(sceneIndex int) float64
	VideoDuration(sceneIndex int) float64
}

// EffectiveDurations resolves the playable length of every scene.
func EffectiveDurations(scenes []story.Scene, media MediaDurations) []float64 {
	out := make([]float64, len(scenes))
	for i, s := range scenes {
		var audio, video float64
		if media != nil {
			audio = media.AudioDuration(i)
			video = media.VideoDuration(i)
		}
		out[i] = s.EffectiveDuration(audio, video)
	}
	return out
}

// TotalDuration is the length of the whole timeline in seconds.
func TotalDuration(scenes []story.Scene, media MediaDurations) float64 {
	var total float64
	for _, d := range EffectiveDurations(scenes, media) {
		total += d
	}
	return total
}

// StartTimes returns the cumulative start offset of every scene.
// StartTimes(...)[0] is always 0 and the result has one entry per scene.
func StartTimes(scenes []story.Scene, media MediaDurations) []float64 {
	starts := make([]float64, len(scenes))
	var acc float64
	for i, d := range EffectiveDurations(scenes, media) {
		starts[i] = acc
		acc += d
	}
	return starts
}

// SceneAt resolves a global time t to the scene whose half-open interval
// [start, start+duration) contains it, and the offset within that scene.
//
// A t at or past the end of the timeline clamps to the last scene with the
// offset pinned to that scene's duration; negative t clamps to (0, 0).
func SceneAt(scenes []story.Scene, media MediaDurations, t float64) (index int, offset float64, err error) {
	if len(scenes) == 0 {
		return 0, 0, ErrNoScenes
	}
	if t < 0 {
		t = 0
	}

	durations := EffectiveDurations(scenes, media)
	var acc float64
	for i, d := range durations {
		if t < acc+d {
			return i, t - acc, nil
		}
		acc += d
	}

	last := len(scenes) - 1
	return last, durations[last], nil
}
