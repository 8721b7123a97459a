// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package captions resolves what the caption overlay should show for a scene
// at a given caption clock. The engine feeds it the scene-local time on every
// tick; rendering (fonts, colors, position) is the UI collaborator's job.
package captions

import (
	"strings"

	"github.com/ManuGH/storyplay/internal/settings"
	"github.com/ManuGH/storyplay/internal/story"
)

// Cue is the resolved caption window for one point in time.
type Cue struct {
	// Text is the visible caption text: the active word batch, or the whole
	// scene text in static mode.
	Text string `json:"text"`

	// Words are the timed words of the visible batch. Empty in static mode.
	Words []story.WordStamp `json:"words,omitempty"`

	// ActiveWord is the index into Words of the currently spoken word,
	// -1 when no word covers the current time.
	ActiveWord int `json:"active_word"`

	// Static marks the full-sentence fallback used when the scene carries no
	// word-level timestamps.
	Static bool `json:"static"`
}

// Resolve computes the caption cue for a scene at a scene-local time.
// The zero Cue is returned when captions are disabled.
func Resolve(scene story.Scene, cfg settings.Captions, currentTime float64) Cue {
	if !cfg.Enabled {
		return Cue{ActiveWord: -1}
	}

	if len(scene.WordTimestamps) == 0 {
		return Cue{
			Text:       transform(scene.Text, cfg.TextTransform),
			ActiveWord: -1,
			Static:     true,
		}
	}

	batchSize := cfg.WordsPerBatch
	if batchSize <= 0 {
		batchSize = len(scene.WordTimestamps)
	}

	words := scene.WordTimestamps
	active := activeIndex(words, currentTime)

	// The visible batch is the one holding the active word; before the first
	// word starts, show the first batch.
	anchor := active
	if anchor < 0 {
		anchor = upcomingIndex(words, currentTime)
	}
	start := (anchor / batchSize) * batchSize
	end := start + batchSize
	if end > len(words) {
		end = len(words)
	}

	batch := words[start:end]
	parts := make([]string, len(batch))
	for i, w := range batch {
		parts[i] = transform(w.Word, cfg.TextTransform)
	}

	activeInBatch := -1
	if active >= start && active < end {
		activeInBatch = active - start
	}

	return Cue{
		Text:       strings.Join(parts, " "),
		Words:      batch,
		ActiveWord: activeInBatch,
	}
}

// activeIndex finds the word whose [start, end) interval covers t, or -1.
func activeIndex(words []story.WordStamp, t float64) int {
	for i, w := range words {
		if t >= w.Start && t < w.End {
			return i
		}
	}
	// Past the last word's end, keep the last word's batch on screen.
	if len(words) > 0 && t >= words[len(words)-1].End {
		return len(words) - 1
	}
	return -1
}

// upcomingIndex finds the first word starting at or after t.
func upcomingIndex(words []story.WordStamp, t float64) int {
	for i, w := range words {
		if w.Start >= t {
			return i
		}
	}
	return 0
}

func transform(text, mode string) string {
	switch mode {
	case "uppercase":
		return strings.ToUpper(text)
	case "lowercase":
		return strings.ToLower(text)
	default:
		return text
	}
}
