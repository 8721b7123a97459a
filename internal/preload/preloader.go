// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package preload warms up scene media ahead of playback so the engine can
// start without per-scene stalls. Every failure is swallowed: a broken image
// or narration clip degrades that one scene, never the whole preview.
package preload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	// Decoders for warm-up decoding of generated images.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	xglog "github.com/ManuGH/storyplay/internal/log"
	"github.com/ManuGH/storyplay/internal/media"
	"github.com/ManuGH/storyplay/internal/metrics"
	"github.com/ManuGH/storyplay/internal/story"
)

const (
	// defaultMetadataTimeout bounds how long a single clip probe may take
	// before the resource is accepted without confirmed metadata.
	defaultMetadataTimeout = 3 * time.Second

	defaultConcurrency = 4

	// maxImageBytes caps warm-up downloads; anything larger is not a
	// plausible generated scene image.
	maxImageBytes = 32 << 20
)

// Entry is the warmed state of one scene.
type Entry struct {
	// Audio is the persistent narration element, nil when the scene has no
	// narration or its preload failed outright.
	Audio media.Element

	// AudioDuration is the probed narration length, 0 when metadata never
	// arrived (timeout) or there is no narration.
	AudioDuration float64

	// VideoDuration is the probed video length, 0 when unknown.
	VideoDuration float64

	// ImageReady reports a successful warm-up decode of the scene image.
	ImageReady bool
}

// Options configures a Preloader. Zero values select production defaults.
type Options struct {
	HTTPClient      *http.Client
	Prober          media.Prober
	Factory         media.Factory
	MetadataTimeout time.Duration
	Concurrency     int

	// Volume is the live global volume cell; narration elements are created
	// at the current volume.
	Volume func() float64
}

// Preloader builds and owns the per-scene media cache.
type Preloader struct {
	mu      sync.RWMutex
	entries map[int]*Entry
	ready   atomic.Bool

	httpc   *http.Client
	prober  media.Prober
	factory media.Factory
	timeout time.Duration
	limit   int
	volume  func() float64
	logger  zerolog.Logger
}

// New creates a Preloader.
func New(opts Options) *Preloader {
	p := &Preloader{
		entries: make(map[int]*Entry),
		httpc:   opts.HTTPClient,
		prober:  opts.Prober,
		factory: opts.Factory,
		timeout: opts.MetadataTimeout,
		limit:   opts.Concurrency,
		volume:  opts.Volume,
		logger:  xglog.WithComponent("preload"),
	}
	if p.httpc == nil {
		p.httpc = &http.Client{Timeout: 30 * time.Second}
	}
	if p.factory == nil {
		p.factory = media.ClockFactory{}
	}
	if p.timeout <= 0 {
		p.timeout = defaultMetadataTimeout
	}
	if p.limit <= 0 {
		p.limit = defaultConcurrency
	}
	if p.volume == nil {
		p.volume = func() float64 { return 1 }
	}
	return p
}

// Ready reports whether the last wholesale warm-up completed. The play intent
// is gated on this.
func (p *Preloader) Ready() bool {
	return p.ready.Load()
}

// Entry returns a copy of the warmed state for a scene index.
func (p *Preloader) Entry(i int) (Entry, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.entries[i]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// AudioElement returns the persistent narration element for a scene, nil when
// absent.
func (p *Preloader) AudioElement(i int) media.Element {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if e, ok := p.entries[i]; ok {
		return e.Audio
	}
	return nil
}

// AudioDuration implements timeline.MediaDurations.
func (p *Preloader) AudioDuration(i int) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if e, ok := p.entries[i]; ok {
		return e.AudioDuration
	}
	return 0
}

// VideoDuration implements timeline.MediaDurations.
func (p *Preloader) VideoDuration(i int) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if e, ok := p.entries[i]; ok {
		return e.VideoDuration
	}
	return 0
}

// Warm rebuilds the whole cache for a fresh scene list. It is invoked once
// per story fetch, not on individual edits. A context cancellation aborts the
// warm-up and leaves the preloader not ready.
func (p *Preloader) Warm(ctx context.Context, scenes []story.Scene) {
	p.ready.Store(false)

	next := make(map[int]*Entry, len(scenes))
	var nextMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.limit)

	start := time.Now()
	for i, scene := range scenes {
		i, scene := i, scene
		g.Go(func() error {
			entry := p.warmScene(gctx, i, scene)
			nextMu.Lock()
			next[i] = entry
			nextMu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		p.logger.Warn().
			Str("event", "preload.aborted").
			Int("scenes", len(scenes)).
			Msg("preload aborted")
		return
	}

	p.mu.Lock()
	p.entries = next
	p.mu.Unlock()
	p.ready.Store(true)

	p.logger.Info().
		Str("event", "preload.complete").
		Int("scenes", len(scenes)).
		Dur("elapsed", time.Since(start)).
		Msg("preload complete")
}

// RefreshScene rebuilds exactly one entry, used after a single scene's audio
// is regenerated. Other entries are untouched.
func (p *Preloader) RefreshScene(ctx context.Context, index int, scene story.Scene) {
	entry := p.warmScene(ctx, index, scene)

	p.mu.Lock()
	p.entries[index] = entry
	p.mu.Unlock()

	p.logger.Info().
		Str("event", "preload.scene_refreshed").
		Int(xglog.FieldSceneIndex, index).
		Str(xglog.FieldSceneID, scene.ID).
		Msg("scene media refreshed")
}

func (p *Preloader) warmScene(ctx context.Context, index int, scene story.Scene) *Entry {
	entry := &Entry{}

	if scene.HasImage() {
		if err := p.warmImage(ctx, scene.ImageURL); err != nil {
			metrics.IncPreloadFailure(metrics.PreloadKindImage)
			p.logger.Warn().
				Err(err).
				Str("event", "preload.image_failed").
				Int(xglog.FieldSceneIndex, index).
				Msg("image preload failed, scene plays without image")
		} else {
			entry.ImageReady = true
		}
	}

	if scene.HasVideo() {
		dur, err := p.probe(ctx, scene.VideoURL)
		if err != nil {
			metrics.IncPreloadFailure(metrics.PreloadKindVideo)
			p.logger.Warn().
				Err(err).
				Str("event", "preload.video_probe_failed").
				Int(xglog.FieldSceneIndex, index).
				Msg("video metadata unavailable, falling back to stored duration")
		}
		entry.VideoDuration = dur
	}

	if scene.HasAudio() {
		dur, err := p.probe(ctx, scene.AudioURL)
		switch {
		case err == nil:
			entry.AudioDuration = dur
		case errors.Is(err, context.DeadlineExceeded):
			// Flaky network: accept the resource without confirmed metadata
			// instead of hanging the whole preload.
			p.logger.Warn().
				Str("event", "preload.audio_metadata_timeout").
				Int(xglog.FieldSceneIndex, index).
				Msg("narration metadata timed out, accepting without duration")
		default:
			metrics.IncPreloadFailure(metrics.PreloadKindAudio)
			p.logger.Warn().
				Err(err).
				Str("event", "preload.audio_failed").
				Int(xglog.FieldSceneIndex, index).
				Msg("narration preload failed, scene falls back to static timing")
			return entry
		}

		audio := p.factory.Clip(scene.AudioURL, entry.AudioDuration)
		audio.SetVolume(p.volume())
		entry.Audio = audio
	}

	return entry
}

// warmImage fetches the image and runs a header decode so the bytes are in
// cache and known to be displayable.
func (p *Preloader) warmImage(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	res, err := p.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("fetch image: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch image: unexpected status %d", res.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(res.Body, maxImageBytes))
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("decode image: %w", err)
	}
	return nil
}

func (p *Preloader) probe(ctx context.Context, url string) (float64, error) {
	if p.prober == nil {
		return 0, nil
	}
	pctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	dur, err := p.prober.ProbeDuration(pctx, url)
	if err != nil && pctx.Err() == context.DeadlineExceeded {
		return 0, context.DeadlineExceeded
	}
	return dur, err
}
