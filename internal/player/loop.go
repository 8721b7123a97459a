// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package player

import (
	"context"
	"math"
	"time"

	xglog "github.com/ManuGH/storyplay/internal/log"
	"github.com/ManuGH/storyplay/internal/media"
	"github.com/ManuGH/storyplay/internal/metrics"
	"github.com/ManuGH/storyplay/internal/story"
)

// strategyFor picks how a scene is driven, based on which media actually
// loaded rather than on what the scene declares.
func strategyFor(scene story.Scene, audio media.Element) string {
	switch {
	case audio != nil && scene.HasVideo():
		return metrics.StrategyVideoNarration
	case scene.HasVideo():
		return metrics.StrategyVideoOnly
	case audio != nil:
		return metrics.StrategyAudioOnly
	default:
		return metrics.StrategyStatic
	}
}

// runLoop plays scenes in order starting at (startIndex, offset) until the
// story ends or the session is cancelled. It is the only goroutine the
// engine spawns.
func (e *Engine) runLoop(s *session, startIndex int, offset float64) {
	defer close(s.done)

	idx := startIndex
	off := offset
	for {
		e.mu.Lock()
		n := len(e.scenes)
		e.mu.Unlock()
		if idx >= n {
			break
		}
		if s.cancelled.Load() {
			return
		}
		if !e.playScene(s, idx, off) {
			return
		}
		idx++
		off = 0
	}
	e.finishLoop(s)
}

// finishLoop records natural completion of the whole story.
func (e *Engine) finishLoop(s *session) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess != s {
		return
	}
	e.sess = nil
	if e.music != nil {
		e.music.Pause()
	}
	e.driver, e.audio, e.video = nil, nil, nil
	e.state = StateFinished
	e.prog.State = StateFinished
	e.prog.TotalTime = e.prog.TotalDuration
	if n := len(e.scenes); n > 0 {
		e.prog.SceneIndex = n - 1
		e.prog.SceneTime = e.prog.SceneDuration
	}
	e.logger.Info().
		Str("event", "playback.finished").
		Str(xglog.FieldSessionID, s.id).
		Float64(xglog.FieldTotalTime, e.prog.TotalTime).
		Msg("story played to the end")
}

// playScene drives one scene from offset to its natural end. It returns
// false when the session was cancelled mid-scene.
func (e *Engine) playScene(s *session, idx int, offset float64) bool {
	e.mu.Lock()
	scene := e.scenes[idx]
	sceneDur := e.sceneDurationLocked(idx)
	sceneStart := e.sceneStartLocked(idx)
	e.mu.Unlock()

	audio := e.source.AudioElement(idx)
	strategy := strategyFor(scene, audio)

	var video media.Element
	if scene.HasVideo() {
		video = e.factory.Clip(scene.VideoURL, e.source.VideoDuration(idx))
	}

	// The driver is the element whose clock decides when the scene is over.
	// Narration wins over video; when no loaded element has a usable
	// duration, a plain clock of the effective duration paces the scene so
	// it can never hang on an unbounded element.
	var driver media.Element
	degraded := false
	switch {
	case audio != nil && audio.Duration() > 0:
		driver = audio
	case audio == nil && video != nil && video.Duration() > 0:
		driver = video
	default:
		driver = e.factory.Clip("", sceneDur)
		degraded = audio != nil || video != nil
	}

	vol := e.settings.VolumeFraction()
	if audio != nil {
		audio.SetVolume(vol)
		if video != nil {
			// Narration owns the soundtrack.
			video.SetVolume(0)
		}
	} else if video != nil {
		video.SetVolume(vol)
	}

	e.mu.Lock()
	if e.sess != s || s.cancelled.Load() {
		e.mu.Unlock()
		return false
	}
	e.driver, e.audio, e.video = driver, audio, video
	e.prog.SceneIndex = idx
	e.prog.SceneTime = offset
	e.prog.SceneDuration = sceneDur
	e.prog.TotalTime = sceneStart + offset
	e.prog.CaptionTime = offset
	els := e.activeElementsLocked()
	e.mu.Unlock()

	for _, el := range els {
		el.Seek(offset)
	}
	driverFailed := false
	for _, el := range els {
		if err := el.Play(context.Background()); err != nil {
			e.logger.Warn().Err(err).
				Str(xglog.FieldSessionID, s.id).
				Int(xglog.FieldSceneIndex, idx).
				Msg("media element refused to start")
			degraded = true
			if el == driver {
				driverFailed = true
			}
		}
	}
	if driverFailed {
		// The refused element would never arm its ended channel and the
		// scene would tick forever. A plain clock of the effective duration
		// takes over the pacing so the chain keeps advancing.
		fallback := e.factory.Clip("", sceneDur)
		fallback.Seek(offset)
		if err := fallback.Play(context.Background()); err != nil {
			e.logger.Error().Err(err).
				Int(xglog.FieldSceneIndex, idx).
				Msg("pacing clock refused to start")
		}
		driver = fallback
		e.mu.Lock()
		if e.sess == s && !s.cancelled.Load() {
			e.driver = fallback
		}
		e.mu.Unlock()
	}
	if s.cancelled.Load() {
		for _, el := range els {
			el.Pause()
		}
		// The driver may be a fallback clock outside els.
		driver.Pause()
		return false
	}

	metrics.IncPlaybackStart(strategy)
	e.logger.Info().
		Str("event", "scene.started").
		Str(xglog.FieldSessionID, s.id).
		Str(xglog.FieldSceneID, scene.ID).
		Int(xglog.FieldSceneIndex, idx).
		Str(xglog.FieldStrategy, strategy).
		Float64(xglog.FieldDuration, sceneDur).
		Msg("scene playback started")

	ticker := time.NewTicker(e.tick)
	defer ticker.Stop()

	for {
		select {
		case <-currentDriver(e, s, driver).Ended():
			e.mu.Lock()
			d := e.driver
			e.mu.Unlock()
			for _, el := range els {
				if el != d {
					el.Pause()
				}
			}
			e.mu.Lock()
			if e.sess == s && !s.cancelled.Load() {
				e.prog.SceneTime = sceneDur
				e.prog.TotalTime = sceneStart + sceneDur
				e.prog.CaptionTime = sceneDur
			}
			e.mu.Unlock()
			outcome := metrics.OutcomeFinished
			if degraded {
				outcome = metrics.OutcomeDegraded
			}
			metrics.IncPlaybackOutcome(strategy, outcome)
			e.logger.Debug().
				Str("event", "scene.finished").
				Str(xglog.FieldSessionID, s.id).
				Int(xglog.FieldSceneIndex, idx).
				Msg("scene reached natural end")
			return true

		case <-ticker.C:
			if s.cancelled.Load() {
				metrics.IncPlaybackOutcome(strategy, metrics.OutcomeCancelled)
				return false
			}
			e.tickScene(s, idx, sceneStart, driver, audio, video)
		}
	}
}

// tickScene is one scheduler beat: refresh progress, reapply the live
// volume, and pull a drifting video back onto the narration clock.
func (e *Engine) tickScene(s *session, idx int, sceneStart float64, driver, audio, video media.Element) {
	t := driver.CurrentTime()
	vol := e.settings.VolumeFraction()

	if audio != nil {
		audio.SetVolume(vol)
	} else if video != nil {
		video.SetVolume(vol)
	}
	if music, mv := e.musicVolumeTarget(); music != nil {
		music.SetVolume(mv)
	}

	e.mu.Lock()
	if e.sess == s && !s.cancelled.Load() && e.prog.SceneIndex == idx {
		e.prog.SceneTime = t
		e.prog.TotalTime = sceneStart + t
		e.prog.CaptionTime = t
		if audio != nil {
			e.prog.CaptionTime = audio.CurrentTime()
		}
	}
	e.mu.Unlock()

	if video != nil && driver == audio {
		drift := video.CurrentTime() - t
		metrics.ObserveSyncDrift(math.Abs(drift))
		if math.Abs(drift) > maxDriftSeconds {
			video.Seek(t)
			e.logger.Debug().
				Str("event", "sync.drift_corrected").
				Int(xglog.FieldSceneIndex, idx).
				Float64("drift_s", drift).
				Msg("video snapped to narration clock")
		}
	}
}

// currentDriver re-reads the live ended channel source each loop iteration:
// a same-scene seek pauses and replays the driver, which arms a fresh ended
// channel that a captured reference would miss.
func currentDriver(e *Engine, s *session, fallback media.Element) media.Element {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess == s && e.driver != nil {
		return e.driver
	}
	return fallback
}
