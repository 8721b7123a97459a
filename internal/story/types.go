// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package story defines the scene data model for the preview timeline.
package story

import (
	"fmt"
	"sort"
)

// FallbackDuration is the playable length assumed for a scene when neither
// narration audio, video metadata nor a stored duration is available.
const FallbackDuration = 5.0

// WordStamp is a single word with its start and end time inside the scene's
// narration clip. Times are scene-local seconds.
type WordStamp struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Effects carries the optional motion tag for image scenes and an optional
// decorative overlay video composited on top of the visual.
type Effects struct {
	Motion  string `json:"motion,omitempty"`
	Overlay string `json:"overlay,omitempty"`
}

// Scene is one narrated segment of a story.
//
// The visual source is mutually exclusive: a scene carries either a generated
// image URL or an uploaded video URL, never both. Narration audio is generated
// independently of the visual.
type Scene struct {
	ID             string      `json:"id"`
	Order          int         `json:"order"`
	Text           string      `json:"text"`
	ImageURL       string      `json:"image_url,omitempty"`
	VideoURL       string      `json:"video_url,omitempty"`
	AudioURL       string      `json:"audio_url,omitempty"`
	Duration       float64     `json:"duration"`
	WordTimestamps []WordStamp `json:"word_timestamps,omitempty"`
	Effects        *Effects    `json:"effects,omitempty"`
}

// HasVideo reports whether the scene's visual is an uploaded/imported video.
func (s Scene) HasVideo() bool { return s.VideoURL != "" }

// HasImage reports whether the scene's visual is a generated image.
func (s Scene) HasImage() bool { return s.ImageURL != "" }

// HasAudio reports whether the scene has a narration clip.
func (s Scene) HasAudio() bool { return s.AudioURL != "" }

// EffectiveDuration resolves the scene's playable length in seconds.
//
// Precedence: loaded narration audio duration > loaded video duration >
// stored duration > FallbackDuration. The audioDur/videoDur arguments are the
// durations reported by loaded media; zero means "not (yet) known". The stored
// duration wins over the fallback constant whenever it is present and positive.
func (s Scene) EffectiveDuration(audioDur, videoDur float64) float64 {
	if audioDur > 0 {
		return audioDur
	}
	if videoDur > 0 {
		return videoDur
	}
	if s.Duration > 0 {
		return s.Duration
	}
	return FallbackDuration
}

// Story is the fetched story detail shape relevant to playback.
type Story struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Scenes   []Scene `json:"scenes"`
	VideoURL string  `json:"video_url,omitempty"`
}

// Normalize sorts scenes by their order field and rewrites the order values to
// a contiguous 0-based sequence. The returned slice is a copy.
func Normalize(scenes []Scene) []Scene {
	out := make([]Scene, len(scenes))
	copy(out, scenes)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	for i := range out {
		out[i].Order = i
	}
	return out
}

// Validate checks the scene list invariants: contiguous 0-based ordering and
// a mutually exclusive visual source per scene.
func Validate(scenes []Scene) error {
	for i, s := range scenes {
		if s.Order != i {
			return fmt.Errorf("scene %q: order %d at position %d, list must be contiguous and order-sorted", s.ID, s.Order, i)
		}
		if s.ImageURL != "" && s.VideoURL != "" {
			return fmt.Errorf("scene %q: image and video are mutually exclusive", s.ID)
		}
	}
	return nil
}
