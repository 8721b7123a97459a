// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package media abstracts the playable resources the engine drives: narration
// clips, scene videos and background music. The contract mirrors a media
// element surface (play/pause/seek/current time plus a natural-end signal) so
// the engine never depends on where the timing actually comes from.
package media

import "context"

// Element is one independently playable media resource.
//
// Implementations must be safe for concurrent use: the engine's tick loop and
// the seek controller both touch the active element.
type Element interface {
	// Play starts or resumes playback from the current position.
	// Playing an already-playing element is a no-op.
	Play(ctx context.Context) error

	// Pause halts playback in place. The current position is preserved so a
	// later Play resumes exactly where it left off.
	Pause()

	// Seek relocates the position in seconds. Seeking keeps the play/pause
	// state: a playing element keeps playing from the new position.
	Seek(offset float64)

	// CurrentTime reports the position in seconds.
	CurrentTime() float64

	// Duration reports the media length in seconds, 0 when unknown.
	Duration() float64

	// SetVolume sets the playback volume in [0, 1].
	SetVolume(v float64)

	// Ended returns a channel that is closed when the current play-through
	// reaches its natural end. Pause and Seek never signal it. Each Play from
	// a non-playing state arms a fresh channel.
	Ended() <-chan struct{}
}

// Factory creates elements for the engine. Tests inject scripted factories.
type Factory interface {
	// Clip creates an element for a narration or video clip with a known
	// duration (0 when metadata never arrived).
	Clip(url string, duration float64) Element

	// Music creates an element for the background music track. Music has no
	// known end on the preview timeline and never signals a natural end.
	Music(url string) Element
}

// ClockFactory builds wall-clock driven elements. This is the production
// factory of the preview daemon: the preview clock, not a real decoder, is
// the timing ground truth.
type ClockFactory struct{}

func (ClockFactory) Clip(_ string, duration float64) Element { return NewClock(duration) }

func (ClockFactory) Music(_ string) Element { return NewClock(0) }

// Prober resolves the duration of a remote clip.
type Prober interface {
	ProbeDuration(ctx context.Context, url string) (float64, error)
}
