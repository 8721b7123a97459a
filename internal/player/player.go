// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package player drives scene-by-scene playback of a story preview. One
// engine owns at most one run loop at a time; intents (play, stop, seek)
// cancel or redirect that loop instead of spawning parallel ones.
package player

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	xglog "github.com/ManuGH/storyplay/internal/log"
	"github.com/ManuGH/storyplay/internal/media"
	"github.com/ManuGH/storyplay/internal/metrics"
	"github.com/ManuGH/storyplay/internal/settings"
	"github.com/ManuGH/storyplay/internal/story"
	"github.com/ManuGH/storyplay/internal/timeline"
)

// State is the engine lifecycle state.
type State string

const (
	StateIdle     State = "idle"
	StatePlaying  State = "playing"
	StatePaused   State = "paused"
	StateFinished State = "finished"
)

const (
	defaultTickInterval = 100 * time.Millisecond

	// defaultGrace is how long a restart waits after cancelling the previous
	// loop so in-flight element operations settle.
	defaultGrace = 100 * time.Millisecond

	// maxDriftSeconds is the tolerated gap between video and narration
	// clocks before the video is snapped back onto the narration.
	maxDriftSeconds = 0.1
)

// Progress is a snapshot of the playback position.
type Progress struct {
	State         State   `json:"state"`
	SceneIndex    int     `json:"scene_index"`
	SceneTime     float64 `json:"scene_time"`
	SceneDuration float64 `json:"scene_duration"`
	TotalTime     float64 `json:"total_time"`
	TotalDuration float64 `json:"total_duration"`

	// CaptionTime is the clock captions highlight against: narration time
	// when the scene has narration, scene time otherwise.
	CaptionTime float64 `json:"caption_time"`
}

// MediaSource hands the engine preloaded media state per scene index.
type MediaSource interface {
	timeline.MediaDurations

	// AudioElement returns the persistent narration element for a scene,
	// nil when the scene has none.
	AudioElement(sceneIndex int) media.Element
}

// Options tune an Engine. Zero values select production defaults.
type Options struct {
	Factory      media.Factory
	TickInterval time.Duration
	Grace        time.Duration
}

// Engine owns the playback state machine.
type Engine struct {
	source   MediaSource
	settings *settings.Store
	factory  media.Factory
	tick     time.Duration
	grace    time.Duration
	logger   zerolog.Logger

	mu     sync.Mutex
	scenes []story.Scene
	state  State
	prog   Progress
	sess   *session

	// gen counts control intents (play, stop, seek, story swap). A
	// cross-scene seek re-checks it after its settle wait; when a newer
	// intent claimed the engine in the meantime the seek's tail must not
	// run, or it would pause a loop that intent just started.
	gen uint64

	// loopDone is the done channel of the most recently started run loop.
	// It outlives e.sess, so a waiter can still observe loop exit after
	// another seek has already detached the session.
	loopDone chan struct{}

	// Active elements of the current scene. driver is the element whose
	// clock is authoritative for scene time; it may alias audio or video.
	driver media.Element
	audio  media.Element
	video  media.Element

	music    media.Element
	musicURL string
}

// session is one run-loop incarnation. The flag is the only cross-goroutine
// control channel: the loop polls it every tick and exits cooperatively.
type session struct {
	id        string
	cancelled atomic.Bool
	done      chan struct{}
}

// New creates an idle Engine.
func New(source MediaSource, st *settings.Store, opts Options) *Engine {
	e := &Engine{
		source:   source,
		settings: st,
		factory:  opts.Factory,
		tick:     opts.TickInterval,
		grace:    opts.Grace,
		logger:   xglog.WithComponent("player"),
		state:    StateIdle,
		prog:     Progress{State: StateIdle},
	}
	if e.factory == nil {
		e.factory = media.ClockFactory{}
	}
	if e.tick <= 0 {
		e.tick = defaultTickInterval
	}
	if e.grace <= 0 {
		e.grace = defaultGrace
	}
	return e
}

// SetStory replaces the scene list and resets playback to idle.
func (e *Engine) SetStory(scenes []story.Scene) {
	e.haltLoop()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.claimLocked()
	e.pauseElementsLocked()
	e.scenes = scenes
	e.driver, e.audio, e.video = nil, nil, nil
	e.state = StateIdle
	e.prog = Progress{
		State:         StateIdle,
		TotalDuration: timeline.TotalDuration(scenes, e.source),
	}
	if len(scenes) > 0 {
		e.prog.SceneDuration = timeline.EffectiveDurations(scenes, e.source)[0]
	}
	if e.music != nil {
		e.music.Seek(0)
	}
}

// UpdateScene swaps one scene in place without resetting playback. The
// timeline totals follow the new scene's effective duration on the next
// recomputation.
func (e *Engine) UpdateScene(index int, s story.Scene) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if index < 0 || index >= len(e.scenes) {
		return fmt.Errorf("player: scene index %d out of range [0, %d)", index, len(e.scenes))
	}
	e.scenes[index] = s
	e.prog.TotalDuration = timeline.TotalDuration(e.scenes, e.source)
	e.prog.SceneDuration = e.sceneDurationLocked(e.prog.SceneIndex)
	return nil
}

// Scene returns the scene at an index, for status reporting.
func (e *Engine) Scene(index int) (story.Scene, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if index < 0 || index >= len(e.scenes) {
		return story.Scene{}, false
	}
	return e.scenes[index], true
}

// Play starts playback. From paused it resumes at the exact pause position;
// from idle or finished it starts at the top.
func (e *Engine) Play() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.state {
	case StatePlaying:
		return nil
	case StatePaused:
		e.startLocked(e.prog.SceneIndex, e.prog.SceneTime)
		return nil
	default:
		if len(e.scenes) == 0 {
			return timeline.ErrNoScenes
		}
		e.startLocked(0, 0)
		return nil
	}
}

// PlayFrom starts playback at a scene index and offset, replacing any
// running loop.
func (e *Engine) PlayFrom(index int, offset float64) error {
	e.haltLoop()

	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.scenes) == 0 {
		return timeline.ErrNoScenes
	}
	if index < 0 || index >= len(e.scenes) {
		return fmt.Errorf("player: scene index %d out of range [0, %d)", index, len(e.scenes))
	}
	if offset < 0 {
		offset = 0
	}
	if d := timeline.EffectiveDurations(e.scenes, e.source)[index]; offset > d {
		offset = d
	}
	// The halted loop leaves its elements playing in place.
	e.pauseElementsLocked()
	e.startLocked(index, offset)
	return nil
}

// Stop pauses playback in place. Element positions are preserved so Play
// resumes exactly where playback stopped.
func (e *Engine) Stop() {
	e.haltLoop()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StatePlaying {
		return
	}
	e.claimLocked()
	e.pauseElementsLocked()
	if e.driver != nil {
		t := e.driver.CurrentTime()
		starts := timeline.StartTimes(e.scenes, e.source)
		e.prog.SceneTime = t
		e.prog.TotalTime = starts[e.prog.SceneIndex] + t
		e.prog.CaptionTime = t
		if e.audio != nil {
			e.prog.CaptionTime = e.audio.CurrentTime()
		}
	}
	e.state = StatePaused
	e.prog.State = StatePaused
	e.logger.Info().
		Str("event", "playback.stopped").
		Int(xglog.FieldSceneIndex, e.prog.SceneIndex).
		Float64(xglog.FieldTotalTime, e.prog.TotalTime).
		Msg("playback paused in place")
}

// Seek relocates playback to a global timeline position. The reported
// progress reflects the target synchronously, before any media has actually
// moved.
func (e *Engine) Seek(t float64) error {
	e.mu.Lock()
	idx, off, err := timeline.SceneAt(e.scenes, e.source, t)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	gen := e.claimLocked()
	starts := timeline.StartTimes(e.scenes, e.source)
	durs := timeline.EffectiveDurations(e.scenes, e.source)
	global := starts[idx] + off
	wasPlaying := e.state == StatePlaying
	same := wasPlaying && e.sess != nil && idx == e.prog.SceneIndex

	e.prog.SceneIndex = idx
	e.prog.SceneTime = off
	e.prog.CaptionTime = off
	e.prog.SceneDuration = durs[idx]
	e.prog.TotalTime = global

	if same {
		metrics.IncSeek(metrics.SeekSameScene)
		e.repositionLocked(off)
		e.syncMusicLocked(global, true)
		e.logger.Debug().
			Str("event", "seek.same_scene").
			Int(xglog.FieldSceneIndex, idx).
			Float64(xglog.FieldOffset, off).
			Msg("relocated within scene")
		e.mu.Unlock()
		return nil
	}

	sess := e.sess
	done := e.loopDone
	e.sess = nil
	if sess != nil {
		sess.cancelled.Store(true)
	}
	e.mu.Unlock()

	metrics.IncSeek(metrics.SeekCrossScene)
	if done != nil {
		// Wait on the loop itself, not the session: an earlier seek may
		// have detached the session while its loop is still winding down.
		// The grace sleep only applies when the loop was actually live, so
		// repeated parked seeks stay cheap.
		select {
		case <-done:
		default:
			<-done
			time.Sleep(e.grace)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gen != gen {
		// A newer intent claimed the engine while this seek waited. Its
		// outcome stands; pausing or restarting here would clobber it.
		e.logger.Debug().
			Str("event", "seek.superseded").
			Int(xglog.FieldSceneIndex, idx).
			Msg("seek overtaken by a newer intent")
		return nil
	}
	e.pauseElementsLocked()
	e.syncMusicLocked(global, false)
	e.logger.Debug().
		Str("event", "seek.cross_scene").
		Int(xglog.FieldSceneIndex, idx).
		Float64(xglog.FieldOffset, off).
		Bool("resuming", wasPlaying).
		Msg("relocated across scenes")
	if wasPlaying && e.sess == nil {
		e.startLocked(idx, off)
	} else if !wasPlaying {
		// A seek while not playing parks the playhead: the next Play resumes
		// from here instead of the top.
		e.state = StatePaused
		e.prog.State = StatePaused
	}
	return nil
}

// Status reports the current position. While playing it reads the driving
// element live instead of returning the last tick's snapshot.
func (e *Engine) Status() Progress {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StatePlaying && e.driver != nil {
		t := e.driver.CurrentTime()
		starts := timeline.StartTimes(e.scenes, e.source)
		e.prog.SceneTime = t
		e.prog.TotalTime = starts[e.prog.SceneIndex] + t
		e.prog.CaptionTime = t
		if e.audio != nil {
			e.prog.CaptionTime = e.audio.CurrentTime()
		}
	}
	e.prog.TotalDuration = timeline.TotalDuration(e.scenes, e.source)
	return e.prog
}

// claimLocked marks a new control intent taking over the engine and
// returns its generation. Caller holds e.mu.
func (e *Engine) claimLocked() uint64 {
	e.gen++
	return e.gen
}

// startLocked begins a fresh run loop at (index, offset). Caller holds e.mu.
func (e *Engine) startLocked(index int, offset float64) {
	e.claimLocked()
	s := &session{id: uuid.NewString(), done: make(chan struct{})}
	e.sess = s
	e.loopDone = s.done
	e.state = StatePlaying

	starts := timeline.StartTimes(e.scenes, e.source)
	durs := timeline.EffectiveDurations(e.scenes, e.source)
	e.prog = Progress{
		State:         StatePlaying,
		SceneIndex:    index,
		SceneTime:     offset,
		SceneDuration: durs[index],
		TotalTime:     starts[index] + offset,
		TotalDuration: timeline.TotalDuration(e.scenes, e.source),
		CaptionTime:   offset,
	}
	e.syncMusicLocked(starts[index]+offset, true)

	e.logger.Info().
		Str("event", "playback.started").
		Str(xglog.FieldSessionID, s.id).
		Int(xglog.FieldSceneIndex, index).
		Float64(xglog.FieldOffset, offset).
		Msg("run loop starting")

	go e.runLoop(s, index, offset)
}

// haltLoop cancels any running loop and waits for it to exit, including a
// loop another caller cancelled but has not yet seen out.
func (e *Engine) haltLoop() {
	e.mu.Lock()
	sess := e.sess
	done := e.loopDone
	e.sess = nil
	if sess != nil {
		sess.cancelled.Store(true)
	}
	e.mu.Unlock()
	if done != nil {
		<-done
	}
}

// repositionLocked relocates the active elements within the current scene:
// pause, seek, reassert the live volume, resume. The run loop keeps ticking
// against the same elements throughout.
func (e *Engine) repositionLocked(offset float64) {
	els := e.activeElementsLocked()
	for _, el := range els {
		el.Pause()
		el.Seek(offset)
	}
	if e.audio != nil {
		e.audio.SetVolume(e.settings.VolumeFraction())
	}
	for _, el := range els {
		if err := el.Play(context.Background()); err != nil {
			e.logger.Warn().Err(err).
				Int(xglog.FieldSceneIndex, e.prog.SceneIndex).
				Msg("media element refused to restart")
			if el == e.driver {
				// The scene must still end on schedule, so a plain clock
				// takes over the pacing from the refused element.
				fallback := e.factory.Clip("", e.sceneDurationLocked(e.prog.SceneIndex))
				fallback.Seek(offset)
				if perr := fallback.Play(context.Background()); perr != nil {
					e.logger.Error().Err(perr).
						Int(xglog.FieldSceneIndex, e.prog.SceneIndex).
						Msg("pacing clock refused to start")
				}
				e.driver = fallback
			}
		}
	}
}

func (e *Engine) pauseElementsLocked() {
	for _, el := range e.activeElementsLocked() {
		el.Pause()
	}
	if e.music != nil {
		e.music.Pause()
	}
}

// activeElementsLocked returns the distinct active elements of the current
// scene. The driver may alias audio or video, so the list is deduplicated.
func (e *Engine) activeElementsLocked() []media.Element {
	els := make([]media.Element, 0, 3)
	add := func(el media.Element) {
		if el == nil {
			return
		}
		for _, have := range els {
			if have == el {
				return
			}
		}
		els = append(els, el)
	}
	add(e.audio)
	add(e.video)
	add(e.driver)
	return els
}

// syncMusicLocked moves the background music to a global timeline position
// and matches its play state. Music settings are read live so edits in the
// settings file take effect at the next relocation.
func (e *Engine) syncMusicLocked(global float64, playing bool) {
	cfg := e.settings.Music()
	if !cfg.Enabled || cfg.URL == "" {
		if e.music != nil {
			e.music.Pause()
		}
		return
	}
	if e.music == nil || e.musicURL != cfg.URL {
		if e.music != nil {
			e.music.Pause()
		}
		e.music = e.factory.Music(cfg.URL)
		e.musicURL = cfg.URL
	}
	e.music.Seek(global)
	e.music.SetVolume(e.settings.VolumeFraction() * float64(cfg.Volume) / 100)
	if playing {
		if err := e.music.Play(context.Background()); err != nil {
			e.logger.Warn().Err(err).
				Str(xglog.FieldURL, cfg.URL).
				Msg("music element refused to start")
		}
	} else {
		e.music.Pause()
	}
}

// sceneDurationLocked recomputes the effective duration of one scene from
// the live scene list. Caller holds e.mu.
func (e *Engine) sceneDurationLocked(idx int) float64 {
	return timeline.EffectiveDurations(e.scenes, e.source)[idx]
}

func (e *Engine) sceneStartLocked(idx int) float64 {
	return timeline.StartTimes(e.scenes, e.source)[idx]
}

// musicVolumeTarget is the effective music volume for the current settings.
func (e *Engine) musicVolumeTarget() (media.Element, float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cfg := e.settings.Music()
	return e.music, e.settings.VolumeFraction() * float64(cfg.Volume) / 100
}
